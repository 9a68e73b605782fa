// Package kinesis reads and writes robot messages on an AWS Kinesis stream.
package kinesis

import (
	"context"
	"encoding/json"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	robopoint "github.com/bdna/robopoint"
	"github.com/bdna/robopoint/internal"
	"github.com/pkg/errors"
)

// maxPutRecords is the PutRecords batch limit of the Kinesis API.
const maxPutRecords = 500

// Stream wraps the interaction with a Kinesis stream. It is a
// robopoint.ShardSource and a robopoint.Producer.
type Stream struct {
	client                   kinesisiface.KinesisAPI
	initialShardIteratorType string
	limit                    int64
	logger                   log.Interface
}

var (
	_ robopoint.ShardSource = (*Stream)(nil)
	_ robopoint.Producer    = (*Stream)(nil)
)

// New returns a Stream. If no options are passed the Stream uses a client built
// from the default AWS session and starts unknown shards at TRIM_HORIZON.
func New(opts ...Option) (*Stream, error) {
	s := &Stream{
		initialShardIteratorType: kinesis.ShardIteratorTypeTrimHorizon,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.initialShardIteratorType == "" {
		s.initialShardIteratorType = kinesis.ShardIteratorTypeTrimHorizon
	}

	if s.client == nil {
		sess, err := session.NewSession(aws.NewConfig())
		if err != nil {
			return nil, err
		}
		s.client = kinesis.New(sess)
	}

	if s.logger == nil {
		s.logger = internal.DiscardLogger()
	}

	return s, nil
}

// ListShards returns the ids of all shards of the stream, following
// DescribeStream pagination.
func (s *Stream) ListShards(ctx context.Context, stream string) ([]string, error) {
	ids := []string{}
	input := &kinesis.DescribeStreamInput{
		StreamName: aws.String(stream),
	}

	for {
		resp, err := s.client.DescribeStreamWithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "describe stream %q", stream)
		}

		shards := resp.StreamDescription.Shards
		for _, shard := range shards {
			ids = append(ids, aws.StringValue(shard.ShardId))
		}

		if !aws.BoolValue(resp.StreamDescription.HasMoreShards) || len(shards) == 0 {
			return ids, nil
		}
		input.ExclusiveStartShardId = shards[len(shards)-1].ShardId
	}
}

// ShardIterator returns the iterator for a shard. If a sequence number is
// passed the iterator starts right after it, otherwise at the Stream's
// initialShardIteratorType.
func (s *Stream) ShardIterator(ctx context.Context, stream, shardID, afterSeq string) (string, error) {
	input := &kinesis.GetShardIteratorInput{
		ShardId:    aws.String(shardID),
		StreamName: aws.String(stream),
	}

	if afterSeq != "" {
		input.ShardIteratorType = aws.String(kinesis.ShardIteratorTypeAfterSequenceNumber)
		input.StartingSequenceNumber = aws.String(afterSeq)
	} else {
		input.ShardIteratorType = aws.String(s.initialShardIteratorType)
	}

	res, err := s.client.GetShardIteratorWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "get shard iterator")
	}
	return aws.StringValue(res.ShardIterator), nil
}

// GetRecords fetches one batch. MillisBehind is the MillisBehindLatest value
// reported by Kinesis for this fetch.
func (s *Stream) GetRecords(ctx context.Context, iterator string) (*robopoint.RecordBatch, error) {
	input := &kinesis.GetRecordsInput{
		ShardIterator: aws.String(iterator),
	}
	if s.limit > 0 {
		input.Limit = aws.Int64(s.limit)
	}

	resp, err := s.client.GetRecordsWithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "get records")
	}

	batch := &robopoint.RecordBatch{
		Records:      make([]*robopoint.Record, 0, len(resp.Records)),
		NextIterator: aws.StringValue(resp.NextShardIterator),
		MillisBehind: aws.Int64Value(resp.MillisBehindLatest),
	}
	for _, r := range resp.Records {
		batch.Records = append(batch.Records, &robopoint.Record{
			SequenceNumber: aws.StringValue(r.SequenceNumber),
			PartitionKey:   aws.StringValue(r.PartitionKey),
			Data:           r.Data,
		})
	}
	return batch, nil
}

// Put writes msgs to the stream, partitioned by robo id. Kinesis may accept
// part of a batch; the records it rejected are reported in the error.
func (s *Stream) Put(ctx context.Context, stream string, msgs []robopoint.Message) error {
	entries := make([]*kinesis.PutRecordsRequestEntry, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return errors.Wrapf(err, "marshal message %s", m.ID)
		}
		entries = append(entries, &kinesis.PutRecordsRequestEntry{
			Data:         data,
			PartitionKey: aws.String(m.RoboID),
		})
	}

	for len(entries) > 0 {
		n := len(entries)
		if n > maxPutRecords {
			n = maxPutRecords
		}
		if err := s.putRecords(ctx, stream, entries[:n]); err != nil {
			return err
		}
		entries = entries[n:]
	}
	return nil
}

func (s *Stream) putRecords(ctx context.Context, stream string, entries []*kinesis.PutRecordsRequestEntry) error {
	resp, err := s.client.PutRecordsWithContext(ctx, &kinesis.PutRecordsInput{
		StreamName: aws.String(stream),
		Records:    entries,
	})
	if err != nil {
		return errors.Wrapf(err, "put records to stream %q", stream)
	}

	if failed := aws.Int64Value(resp.FailedRecordCount); failed > 0 {
		for _, r := range resp.Records {
			if r.ErrorCode != nil {
				return errors.Errorf("put records to stream %q: %d of %d failed, first: %s: %s",
					stream, failed, len(entries), aws.StringValue(r.ErrorCode), aws.StringValue(r.ErrorMessage))
			}
		}
		return errors.Errorf("put records to stream %q: %d of %d failed", stream, failed, len(entries))
	}

	s.logger.WithFields(log.Fields{"stream": stream, "records": len(entries)}).Debug("records put")
	return nil
}
