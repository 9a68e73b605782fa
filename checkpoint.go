package robopoint

import "context"

// Scope identifies one checkpoint lineage: a consumer reading a stream in one
// read mode. Two filter kinds for the same consumer never share progress.
type Scope struct {
	Stream     string
	Consumer   string
	FilterKind string
}

// Key returns the checkpoint key of a shard within the scope.
func (s Scope) Key(shardID string) Key {
	return Key{
		Stream:     s.Stream,
		Consumer:   s.Consumer,
		FilterKind: s.FilterKind,
		ShardID:    shardID,
	}
}

// Key uniquely identifies one checkpoint entry.
type Key struct {
	Stream     string
	Consumer   string
	FilterKind string
	ShardID    string
}

// Checkpoint interface used to track consumer progress in the stream
type Checkpoint interface {
	Has(ctx context.Context, key Key) (bool, error)
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, key Key, sequenceNumber string) error
}

// noopCheckpoint implements the checkpoint interface with discard
type noopCheckpoint struct{}

func (n noopCheckpoint) Has(context.Context, Key) (bool, error)   { return false, nil }
func (n noopCheckpoint) Get(context.Context, Key) (string, error) { return "", nil }
func (n noopCheckpoint) Set(context.Context, Key, string) error   { return nil }
