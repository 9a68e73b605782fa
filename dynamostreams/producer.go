package dynamostreams

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	robopoint "github.com/bdna/robopoint"
	"github.com/pkg/errors"
)

const idAttr = "id"

// item is the table layout of a message. The full message is kept in Payload
// so that it reads back byte for byte through the stream.
type item struct {
	ID      string `dynamodbav:"id"`
	RoboID  string `dynamodbav:"roboId"`
	Purpose string `dynamodbav:"purpose"`
	Time    string `dynamodbav:"messageTime"`
	Payload string `dynamodbav:"payload"`
}

// Put writes each message as an item of the table. Items are written one at a
// time; on failure the messages before the failing one remain written.
func (s *Stream) Put(ctx context.Context, table string, msgs []robopoint.Message) error {
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return errors.Wrapf(err, "marshal message %s", m.ID)
		}

		av, err := dynamodbattribute.MarshalMap(item{
			ID:      m.ID,
			RoboID:  m.RoboID,
			Purpose: m.Purpose,
			Time:    m.Time.UTC().Format(time.RFC3339Nano),
			Payload: string(payload),
		})
		if err != nil {
			return errors.Wrapf(err, "marshal item %s", m.ID)
		}

		_, err = s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(table),
			Item:      av,
		})
		if err != nil {
			return errors.Wrapf(err, "put message %s to table %q", m.ID, table)
		}
	}

	s.logger.WithFields(log.Fields{"table": table, "records": len(msgs)}).Debug("items put")
	return nil
}
