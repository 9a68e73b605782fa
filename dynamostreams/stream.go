// Package dynamostreams uses a DynamoDB table as the message log: messages are
// written as items and read back through the table's DynamoDB Stream.
package dynamostreams

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams/dynamodbstreamsiface"
	robopoint "github.com/bdna/robopoint"
	"github.com/bdna/robopoint/internal"
	"github.com/pkg/errors"
)

// payloadAttr holds the JSON encoded message on every item.
const payloadAttr = "payload"

// Stream wraps the interaction with a table and its DynamoDB Stream. The stream
// name used by robopoint is the table name.
type Stream struct {
	client                   dynamodbstreamsiface.DynamoDBStreamsAPI
	db                       dynamodbiface.DynamoDBAPI
	initialShardIteratorType string
	logger                   log.Interface
	now                      func() time.Time

	arnMu *sync.Mutex
	arns  map[string]string
}

var (
	_ robopoint.ShardSource = (*Stream)(nil)
	_ robopoint.Producer    = (*Stream)(nil)
)

// New returns a Stream. If no options are passed the Stream is configured with
// clients built from the default AWS session and starts unknown shards at
// TRIM_HORIZON. Use any of the Option functions to override the defaults, for
// example New(WithClient(<your client>)).
func New(opts ...Option) (*Stream, error) {
	s := &Stream{
		initialShardIteratorType: dynamodbstreams.ShardIteratorTypeTrimHorizon,
		now:                      time.Now,
		arnMu:                    &sync.Mutex{},
		arns:                     make(map[string]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.initialShardIteratorType == "" {
		s.initialShardIteratorType = dynamodbstreams.ShardIteratorTypeTrimHorizon
	}

	if s.client == nil || s.db == nil {
		sess, err := session.NewSession(aws.NewConfig())
		if err != nil {
			return nil, err
		}
		if s.client == nil {
			s.client = dynamodbstreams.New(sess)
		}
		if s.db == nil {
			s.db = dynamodb.New(sess)
		}
	}

	if s.logger == nil {
		s.logger = internal.DiscardLogger()
	}

	return s, nil
}

// streamArn takes a table name and returns the arn of its stream. Arns are
// cached; a table only ever has one current stream.
func (s *Stream) streamArn(ctx context.Context, table string) (string, error) {
	s.arnMu.Lock()
	defer s.arnMu.Unlock()

	if arn, ok := s.arns[table]; ok {
		return arn, nil
	}

	resp, err := s.client.ListStreamsWithContext(ctx, &dynamodbstreams.ListStreamsInput{
		TableName: aws.String(table),
	})
	if err != nil {
		return "", errors.Wrapf(err, "couldn't get arn for stream %q", table)
	}
	if len(resp.Streams) == 0 {
		return "", errors.Errorf("table %q has no stream", table)
	}

	arn := aws.StringValue(resp.Streams[0].StreamArn)
	s.arns[table] = arn
	return arn, nil
}

// ListShards pulls the shards of the table's stream from the dynamodbstreams API.
func (s *Stream) ListShards(ctx context.Context, table string) ([]string, error) {
	arn, err := s.streamArn(ctx, table)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	input := &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(arn),
	}
	for {
		resp, err := s.client.DescribeStreamWithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "describe stream %s", arn)
		}
		for _, shard := range resp.StreamDescription.Shards {
			ids = append(ids, aws.StringValue(shard.ShardId))
		}
		if resp.StreamDescription.LastEvaluatedShardId == nil {
			return ids, nil
		}
		input.ExclusiveStartShardId = resp.StreamDescription.LastEvaluatedShardId
	}
}

// ShardIterator returns the iterator for a shard. If a sequence number is passed
// it starts right after it, otherwise at the Stream's initialShardIteratorType.
func (s *Stream) ShardIterator(ctx context.Context, table, shardID, afterSeq string) (string, error) {
	arn, err := s.streamArn(ctx, table)
	if err != nil {
		return "", err
	}

	input := &dynamodbstreams.GetShardIteratorInput{
		ShardId:   aws.String(shardID),
		StreamArn: aws.String(arn),
	}

	if afterSeq != "" {
		input.ShardIteratorType = aws.String(dynamodbstreams.ShardIteratorTypeAfterSequenceNumber)
		input.SequenceNumber = aws.String(afterSeq)
	} else {
		input.ShardIteratorType = aws.String(s.initialShardIteratorType)
	}

	res, err := s.client.GetShardIteratorWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "get shard iterator")
	}
	return aws.StringValue(res.ShardIterator), nil
}

// GetRecords fetches one batch of INSERT events. DynamoDB Streams does not
// report how far behind the tip a fetch is, so lag is the age of the newest
// record returned, and zero for an empty batch.
func (s *Stream) GetRecords(ctx context.Context, iterator string) (*robopoint.RecordBatch, error) {
	resp, err := s.client.GetRecordsWithContext(ctx, &dynamodbstreams.GetRecordsInput{
		ShardIterator: aws.String(iterator),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get records")
	}

	batch := &robopoint.RecordBatch{}
	if !shardClosed(resp.NextShardIterator, iterator) {
		batch.NextIterator = aws.StringValue(resp.NextShardIterator)
	}

	var newest time.Time
	for _, r := range resp.Records {
		if aws.StringValue(r.EventName) != dynamodbstreams.OperationTypeInsert || r.Dynamodb == nil {
			continue
		}

		rec := &robopoint.Record{
			SequenceNumber: aws.StringValue(r.Dynamodb.SequenceNumber),
		}
		if attr, ok := r.Dynamodb.NewImage[payloadAttr]; ok && attr.S != nil {
			rec.Data = []byte(*attr.S)
		}
		if attr, ok := r.Dynamodb.Keys[idAttr]; ok {
			rec.PartitionKey = aws.StringValue(attr.S)
		}
		batch.Records = append(batch.Records, rec)

		if t := aws.TimeValue(r.Dynamodb.ApproximateCreationDateTime); t.After(newest) {
			newest = t
		}
	}

	if !newest.IsZero() {
		if lag := s.now().Sub(newest); lag > 0 {
			batch.MillisBehind = int64(lag / time.Millisecond)
		}
	}
	return batch, nil
}

// shardClosed returns a boolean value that represents whether or not the
// shard has been closed
func shardClosed(nextShardIterator *string, currentShardIterator string) bool {
	return nextShardIterator == nil || *nextShardIterator == currentShardIterator
}
