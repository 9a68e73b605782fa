package dynamostreams

import (
	"github.com/apex/log"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams/dynamodbstreamsiface"
)

// Option is used to override default values when creating a new Stream
type Option func(*Stream)

// WithLogger overrides the default logger
func WithLogger(logger log.Interface) Option {
	return func(s *Stream) {
		s.logger = logger
	}
}

// WithClient overrides the default dynamodbstreams client
func WithClient(client dynamodbstreamsiface.DynamoDBStreamsAPI) Option {
	return func(s *Stream) {
		s.client = client
	}
}

// WithDynamoDBClient overrides the default dynamodb client used to write messages
func WithDynamoDBClient(db dynamodbiface.DynamoDBAPI) Option {
	return func(s *Stream) {
		s.db = db
	}
}

// WithShardIteratorType overrides the starting point for shards without a checkpoint
func WithShardIteratorType(t string) Option {
	return func(s *Stream) {
		s.initialShardIteratorType = t
	}
}
