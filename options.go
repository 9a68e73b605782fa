package robopoint

// Option is used to override default values when creating a new Reader
type Option func(*Reader)

// WithCheckpoint overrides the default checkpoint
func WithCheckpoint(checkpoint Checkpoint) Option {
	return func(r *Reader) {
		r.checkpoint = checkpoint
	}
}

// WithLogger overrides the default logger
func WithLogger(logger Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithStartShard sets the index of the first shard read on every poll
func WithStartShard(index int) Option {
	return func(r *Reader) {
		r.startShard = index
	}
}

// WithMaxEmptyPolls bounds the empty batches read from a shard per poll
func WithMaxEmptyPolls(n int) Option {
	return func(r *Reader) {
		r.maxEmptyPolls = n
	}
}

// WithMaxPolls bounds the number of polls ReadUntilCaughtUp makes. Zero, the
// default, leaves the loop unbounded and the caller must apply a timeout.
func WithMaxPolls(n int) Option {
	return func(r *Reader) {
		r.maxPolls = n
	}
}
