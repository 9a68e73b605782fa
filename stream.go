package robopoint

import "context"

// StreamConsumer pulls one round of records for a scope, resuming every shard
// from its checkpoint, and reports how far behind the stream tip it is.
// A nil result with a nil error is read as an empty, caught-up round.
type StreamConsumer interface {
	Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResult, error)
}

// ConsumeRequest describes one round of consumption.
type ConsumeRequest struct {
	Scope      Scope
	Filter     Filter
	Checkpoint Checkpoint

	// StartShard is the index of the first shard to read, in the order the
	// source lists them.
	StartShard int
	// MaxEmptyPolls bounds the number of empty batches read from one shard.
	// Zero means the consumer's default.
	MaxEmptyPolls int
}

// ConsumeResult holds the matched records of one round. Errors collects the
// per-record failures that did not stop the round.
type ConsumeResult struct {
	Records []Message
	Lag     int64
	Errors  []error
}

// Record is a raw record read from a shard.
type Record struct {
	SequenceNumber string
	PartitionKey   string
	Data           []byte
}

// RecordBatch is the result of one fetch against a shard iterator.
// NextIterator is empty once the shard is closed.
type RecordBatch struct {
	Records      []*Record
	NextIterator string
	MillisBehind int64
}

// ShardSource is the shard-iterator abstraction of a stream backend.
type ShardSource interface {
	ListShards(ctx context.Context, stream string) ([]string, error)
	// ShardIterator returns an iterator positioned after afterSeq, or at the
	// source's initial position when afterSeq is empty.
	ShardIterator(ctx context.Context, stream, shardID, afterSeq string) (string, error)
	GetRecords(ctx context.Context, iterator string) (*RecordBatch, error)
}

// Producer appends validated messages to a stream.
type Producer interface {
	Put(ctx context.Context, stream string, msgs []Message) error
}
