package robopoint

import (
	"context"

	"github.com/apex/log"
	"github.com/bdna/robopoint/internal"
	"github.com/pkg/errors"
)

const (
	defaultMaxBatches    = 10
	defaultMaxEmptyPolls = 1
)

// ShardConsumer implements StreamConsumer on top of a ShardSource. Each call
// walks the shards once, resuming each from its checkpoint.
type ShardConsumer struct {
	source        ShardSource
	logger        Logger
	maxBatches    int
	maxEmptyPolls int
}

// ShardOption is used to override default values when creating a new
// ShardConsumer
type ShardOption func(*ShardConsumer)

// WithShardLogger overrides the default logger
func WithShardLogger(logger Logger) ShardOption {
	return func(c *ShardConsumer) {
		c.logger = logger
	}
}

// WithMaxBatches bounds the number of fetches made against one shard per call
func WithMaxBatches(n int) ShardOption {
	return func(c *ShardConsumer) {
		c.maxBatches = n
	}
}

// WithDefaultMaxEmptyPolls sets the number of empty batches tolerated per
// shard when a request does not say otherwise
func WithDefaultMaxEmptyPolls(n int) ShardOption {
	return func(c *ShardConsumer) {
		c.maxEmptyPolls = n
	}
}

// NewShardConsumer returns a ShardConsumer reading from source.
func NewShardConsumer(source ShardSource, opts ...ShardOption) *ShardConsumer {
	c := &ShardConsumer{
		source:        source,
		maxBatches:    defaultMaxBatches,
		maxEmptyPolls: defaultMaxEmptyPolls,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = internal.DiscardLogger()
	}
	if c.maxBatches <= 0 {
		c.maxBatches = defaultMaxBatches
	}
	if c.maxEmptyPolls <= 0 {
		c.maxEmptyPolls = defaultMaxEmptyPolls
	}

	return c
}

// Consume reads every shard from req.StartShard onwards. A failure to resolve
// shards or iterators is a ShardInitiationError. Records that cannot be decoded
// are collected in the result and skipped. When ctx ends mid-call the records
// matched so far are returned without an error.
func (c *ShardConsumer) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error) {
	if req.Checkpoint == nil {
		withNoop := *req
		withNoop.Checkpoint = noopCheckpoint{}
		req = &withNoop
	}
	stream := req.Scope.Stream

	shards, err := c.source.ListShards(ctx, stream)
	if err != nil {
		return nil, &ShardInitiationError{Stream: stream, Err: err}
	}
	if len(shards) == 0 {
		return nil, &ShardInitiationError{Stream: stream, Err: errors.New("stream has no shards")}
	}
	if req.StartShard < 0 || req.StartShard >= len(shards) {
		return nil, &ShardInitiationError{
			Stream: stream,
			Err:    errors.Errorf("start shard %d out of range of %d shards", req.StartShard, len(shards)),
		}
	}

	res := &ConsumeResult{}
	for _, shardID := range shards[req.StartShard:] {
		lag, err := c.consumeShard(ctx, req, shardID, res)
		if err != nil && ctx.Err() != nil {
			return c.interrupted(res, shardID, err), nil
		}
		if err != nil {
			return nil, err
		}
		if lag > res.Lag {
			res.Lag = lag
		}
	}
	return res, nil
}

// interrupted returns the records matched before the context ended; their
// batches are already checkpointed. The lag is at least 1 since the remaining
// shards were not read.
func (c *ShardConsumer) interrupted(res *ConsumeResult, shardID string, cause error) *ConsumeResult {
	if res.Lag == 0 {
		res.Lag = 1
	}
	c.logger.WithError(cause).WithField("shard_id", shardID).Debug("interrupted")
	return res
}

// consumeShard loops over the batches of one shard and returns the lag
// reported by the last fetch. The checkpoint is advanced once a batch has been
// handed to the filter.
func (c *ShardConsumer) consumeShard(ctx context.Context, req *ConsumeRequest, shardID string, res *ConsumeResult) (int64, error) {
	key := req.Scope.Key(shardID)

	lastSeqNum, err := req.Checkpoint.Get(ctx, key)
	if err != nil {
		return 0, errors.Wrap(err, "get checkpoint")
	}

	iterator, err := c.source.ShardIterator(ctx, key.Stream, shardID, lastSeqNum)
	if err != nil {
		return 0, &ShardInitiationError{Stream: key.Stream, ShardID: shardID, Err: err}
	}

	logger := c.logger.WithFields(log.Fields{
		"stream":      key.Stream,
		"consumer":    key.Consumer,
		"filter":      key.FilterKind,
		"shard_id":    shardID,
		"last_seqnum": lastSeqNum,
	})
	logger.Debug("start")

	maxEmptyPolls := req.MaxEmptyPolls
	if maxEmptyPolls <= 0 {
		maxEmptyPolls = c.maxEmptyPolls
	}

	var (
		lag   int64
		empty int
	)
	for i := 0; i < c.maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return 0, errors.Wrapf(err, "consume shard %s", shardID)
		}

		batch, err := c.source.GetRecords(ctx, iterator)
		if err != nil {
			return 0, errors.Wrapf(err, "get records from shard %s", shardID)
		}
		lag = batch.MillisBehind

		for _, r := range batch.Records {
			m, err := DecodeMessage(r.Data)
			if err != nil {
				res.Errors = append(res.Errors, errors.Wrapf(err, "shard %s sequence %s", shardID, r.SequenceNumber))
				continue
			}
			if req.Filter.Match(m) {
				res.Records = append(res.Records, m)
			}
		}

		if n := len(batch.Records); n > 0 {
			lastSeqNum = batch.Records[n-1].SequenceNumber
			if err := req.Checkpoint.Set(ctx, key, lastSeqNum); err != nil {
				return 0, errors.Wrap(err, "set checkpoint")
			}
		} else {
			empty++
		}

		if shardClosed(batch.NextIterator) {
			logger.WithField("last_seqnum", lastSeqNum).Debug("closed")
			return 0, nil
		}
		iterator = batch.NextIterator

		if len(batch.Records) == 0 && (lag == 0 || empty >= maxEmptyPolls) {
			break
		}
	}

	logger.WithFields(log.Fields{"last_seqnum": lastSeqNum, "lag": lag}).Debug("stop")
	return lag, nil
}

// shardClosed reports whether the source handed out no further iterator.
func shardClosed(nextIterator string) bool {
	return nextIterator == ""
}
