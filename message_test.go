package robopoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	testCases := []struct {
		desc   string
		data   string
		expErr bool
	}{
		{desc: "A complete message", data: `{"id":"1","roboId":"robo-1","purpose":"alerts","messageTime":"2018-07-01T10:00:00Z","data":{}}`},
		{desc: "Not JSON", data: `robo`, expErr: true},
		{desc: "Missing id", data: `{"roboId":"robo-1"}`, expErr: true},
		{desc: "Missing robo id", data: `{"id":"1"}`, expErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			m, err := DecodeMessage([]byte(tc.data))
			if tc.expErr {
				require.Error(t, err)
				assert.Equal(t, ClassUser, Classify(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "robo-1", m.RoboID)
			assert.Equal(t, "alerts", m.Purpose)
			assert.JSONEq(t, `{}`, string(m.Data))
		})
	}
}
