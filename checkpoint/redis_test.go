package checkpoint

import (
	"context"
	"errors"
	"testing"

	robopoint "github.com/bdna/robopoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKV struct {
	values map[string][]byte
	getErr error
	setErr error
}

func (m *mockKV) get(key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.values[key], nil
}

func (m *mockKV) set(key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func newMockRedisStorage(kv *mockKV) *RedisStorage {
	return &RedisStorage{addr: "localhost:6379", key: "robopoint:checkpoints", kv: kv}
}

func TestRedisStorage(t *testing.T) {
	key := robopoint.Key{Stream: "robocloud", Consumer: "robo-1", FilterKind: "by-origin", ShardID: "s-1"}

	testCases := []struct {
		desc   string
		kv     *mockKV
		expErr interface{}
	}{
		{
			desc: "When redis accepts the write, then the sequence number can be read back",
			kv:   &mockKV{values: map[string][]byte{}},
		},
		{
			desc:   "When redis fails on read, then a recovery read error is returned",
			kv:     &mockKV{values: map[string][]byte{}, getErr: errors.New("connection refused")},
			expErr: &robopoint.RecoveryReadError{},
		},
		{
			desc:   "When redis fails on write, then a recovery write error is returned",
			kv:     &mockKV{values: map[string][]byte{}, setErr: errors.New("OOM command not allowed")},
			expErr: &robopoint.RecoveryWriteError{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			store := New(newMockRedisStorage(tc.kv))

			err := store.Set(ctx, key, "12")
			if tc.expErr != nil {
				require.Error(t, err)
				assert.IsType(t, tc.expErr, err)
				return
			}
			require.NoError(t, err)

			seq, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "12", seq)
			assert.JSONEq(t, `{"robocloud":{"robo-1":{"by-origin":{"s-1":"12"}}}}`, string(tc.kv.values["robopoint:checkpoints"]))
		})
	}
}

func TestRedisStorage_Location(t *testing.T) {
	s := newMockRedisStorage(&mockKV{})
	assert.Equal(t, "redis://localhost:6379/robopoint:checkpoints", s.Location())
}
