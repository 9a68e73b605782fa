package kinesis

import (
	"github.com/apex/log"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

// Option is used to override default values when creating a new Stream
type Option func(*Stream)

// WithLogger overrides the default logger
func WithLogger(logger log.Interface) Option {
	return func(s *Stream) {
		s.logger = logger
	}
}

// WithClient overrides the default client
func WithClient(client kinesisiface.KinesisAPI) Option {
	return func(s *Stream) {
		s.client = client
	}
}

// WithShardIteratorType overrides the starting point for shards without a checkpoint
func WithShardIteratorType(t string) Option {
	return func(s *Stream) {
		s.initialShardIteratorType = t
	}
}

// WithRecordLimit caps the number of records returned by one fetch
func WithRecordLimit(n int64) Option {
	return func(s *Stream) {
		s.limit = n
	}
}
