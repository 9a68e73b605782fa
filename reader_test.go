package robopoint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConsumer replays one response per poll and records the requests.
// before and after, when set, run around each poll with its 1-based number.
type scriptedConsumer struct {
	results []*ConsumeResult
	errs    []error
	reqs    []ConsumeRequest
	before  func(poll int)
	after   func(poll int)
}

func (s *scriptedConsumer) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error) {
	i := len(s.reqs)
	s.reqs = append(s.reqs, *req)
	if s.before != nil {
		s.before(i + 1)
	}
	if s.after != nil {
		defer s.after(i + 1)
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.results) {
		return &ConsumeResult{}, nil
	}
	return s.results[i], nil
}

func msg(id, roboID, purpose string) Message {
	return Message{ID: id, RoboID: roboID, Purpose: purpose}
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestNewReader(t *testing.T) {
	_, err := NewReader("", &scriptedConsumer{})
	assert.Error(t, err)

	_, err = NewReader("robocloud", nil)
	assert.Error(t, err)

	r, err := NewReader("robocloud", &scriptedConsumer{})
	require.NoError(t, err)
	assert.Equal(t, noopCheckpoint{}, r.checkpoint)
	assert.NotNil(t, r.logger)
}

func TestReader_ReadUntilCaughtUp(t *testing.T) {
	testCases := []struct {
		desc       string
		results    []*ConsumeResult
		errs       []error
		maxPolls   int
		expPolls   int
		expIDs     []string
		expLag     int64
		expClass   Class
		expErrsLen int
		expSkipped int
	}{
		{
			desc: "Polls until the stream reports no lag and keeps every poll's records",
			results: []*ConsumeResult{
				{Records: []Message{msg("1", "r", "p")}, Lag: 500},
				{Records: []Message{msg("2", "r", "p")}, Lag: 200},
				{Records: []Message{msg("3", "r", "p")}, Lag: 0},
			},
			expPolls: 3,
			expIDs:   []string{"1", "2", "3"},
		},
		{
			desc:     "A caught up stream needs a single poll",
			results:  []*ConsumeResult{{}},
			expPolls: 1,
			expIDs:   []string{},
		},
		{
			desc: "Stops at the poll limit and reports the remaining lag",
			results: []*ConsumeResult{
				{Records: []Message{msg("1", "r", "p")}, Lag: 500},
				{Records: []Message{msg("2", "r", "p")}, Lag: 300},
				{Lag: 0},
			},
			maxPolls: 2,
			expPolls: 2,
			expIDs:   []string{"1", "2"},
			expLag:   300,
		},
		{
			desc:       "A shard initiation failure is critical",
			errs:       []error{&ShardInitiationError{Stream: "robocloud", Err: errors.New("no such stream")}},
			expPolls:   1,
			expClass:   ClassCritical,
			expErrsLen: 1,
		},
		{
			desc: "Invalid records are skipped without discarding the valid ones",
			results: []*ConsumeResult{
				{Records: []Message{msg("1", "r", "p")}, Lag: 100, Errors: []error{&InvalidMessageDataError{Reason: "record has no robo id"}}},
				{Records: []Message{msg("2", "r", "p")}},
			},
			expPolls:   2,
			expIDs:     []string{"1", "2"},
			expSkipped: 1,
		},
		{
			desc:     "A consumer reporting nothing counts as caught up",
			results:  []*ConsumeResult{nil},
			expPolls: 1,
			expIDs:   []string{},
		},
		{
			desc: "A critical error wins over earlier user errors and stops the loop",
			results: []*ConsumeResult{
				{Lag: 100, Errors: []error{&InvalidMessageDataError{Reason: "record has no robo id"}}},
				{Lag: 100},
			},
			errs:       []error{nil, &RecoveryWriteError{Location: "recovery.json", Err: errors.New("disk full")}},
			expPolls:   2,
			expClass:   ClassCritical,
			expErrsLen: 2,
		},
		{
			desc: "A critical record error aborts the read",
			results: []*ConsumeResult{
				{Lag: 100, Errors: []error{errors.New("unexpected")}},
				{},
			},
			expPolls:   1,
			expClass:   ClassCritical,
			expErrsLen: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			sc := &scriptedConsumer{results: tc.results, errs: tc.errs}
			r, err := NewReader("robocloud", sc, WithMaxPolls(tc.maxPolls))
			require.NoError(t, err)

			res, err := r.ReadUntilCaughtUp(context.Background(), "robo-1", ByPurpose("p"))
			assert.Len(t, sc.reqs, tc.expPolls)

			if tc.expClass != ClassNone {
				require.Error(t, err)
				assert.Nil(t, res)
				assert.Equal(t, tc.expClass, Classify(err))

				readErr, ok := err.(*ReadError)
				require.True(t, ok, "expected *ReadError got %T", err)
				assert.Len(t, readErr.Errs, tc.expErrsLen)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expPolls, res.Polls)
			assert.Equal(t, tc.expIDs, ids(res.Records))
			assert.Equal(t, tc.expLag, res.Lag)
			assert.Len(t, res.Skipped, tc.expSkipped)
		})
	}
}

func TestReader_ReadOnce(t *testing.T) {
	sc := &scriptedConsumer{results: []*ConsumeResult{
		{Records: []Message{msg("1", "r", "p")}, Lag: 500},
		{Records: []Message{msg("2", "r", "p")}},
	}}
	r, err := NewReader("robocloud", sc)
	require.NoError(t, err)

	res, err := r.ReadOnce(context.Background(), "robo-1", ByOrigin("r"))
	require.NoError(t, err)
	assert.Len(t, sc.reqs, 1)
	assert.Equal(t, []string{"1"}, ids(res.Records))
	assert.Equal(t, int64(500), res.Lag)
}

func TestReader_Request(t *testing.T) {
	sc := &scriptedConsumer{}
	cp := &recordingCheckpoint{}
	r, err := NewReader("robocloud", sc,
		WithCheckpoint(cp),
		WithStartShard(1),
		WithMaxEmptyPolls(3),
	)
	require.NoError(t, err)

	_, err = r.ReadOnce(context.Background(), "robo-1", ByPurpose("alerts"))
	require.NoError(t, err)
	require.Len(t, sc.reqs, 1)

	req := sc.reqs[0]
	assert.Equal(t, Scope{Stream: "robocloud", Consumer: "robo-1", FilterKind: "by-purpose:alerts"}, req.Scope)
	assert.Equal(t, cp, req.Checkpoint)
	assert.Equal(t, 1, req.StartShard)
	assert.Equal(t, 3, req.MaxEmptyPolls)
}

func TestReader_CancelledAfterFirstPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := &scriptedConsumer{
		results: []*ConsumeResult{
			{Records: []Message{msg("a", "r", "p")}, Lag: 500},
			{Records: []Message{msg("b", "r", "p")}},
		},
		after: func(poll int) {
			if poll == 1 {
				cancel()
			}
		},
	}
	r, err := NewReader("robocloud", sc)
	require.NoError(t, err)

	res, err := r.ReadUntilCaughtUp(ctx, "robo-1", ByOrigin("r"))
	require.NoError(t, err)
	assert.Len(t, sc.reqs, 1)
	assert.Equal(t, []string{"a"}, ids(res.Records))
	assert.Equal(t, int64(500), res.Lag)
	assert.Equal(t, 1, res.Polls)
}

func TestReader_CancelledDuringLaterPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := &scriptedConsumer{
		results: []*ConsumeResult{
			{Records: []Message{msg("a", "r", "p")}, Lag: 500},
		},
		errs: []error{nil, errors.New("get records: context canceled")},
		before: func(poll int) {
			if poll == 2 {
				cancel()
			}
		},
	}
	r, err := NewReader("robocloud", sc)
	require.NoError(t, err)

	res, err := r.ReadUntilCaughtUp(ctx, "robo-1", ByOrigin("r"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res.Records))
	assert.Equal(t, int64(500), res.Lag)
	assert.Equal(t, 1, res.Polls)
}

func TestReader_Cancelled(t *testing.T) {
	sc := &scriptedConsumer{results: []*ConsumeResult{{Lag: 100}, {Lag: 100}}}
	r, err := NewReader("robocloud", sc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.ReadUntilCaughtUp(ctx, "robo-1", ByOrigin("robo-1"))
	require.Error(t, err)
	assert.Equal(t, ClassCritical, Classify(err))
	assert.Empty(t, sc.reqs)
}
