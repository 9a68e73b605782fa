package checkpoint

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

const (
	dynamoNameAttr     = "name"
	dynamoDocumentAttr = "document"
)

// DynamoStorage keeps the document in a DynamoDB item whose hash key "name"
// is the document name.
type DynamoStorage struct {
	client dynamodbiface.DynamoDBAPI
	table  string
	name   string
}

// NewDynamoStorage returns a DynamoStorage for the named document in table.
func NewDynamoStorage(client dynamodbiface.DynamoDBAPI, table, name string) *DynamoStorage {
	return &DynamoStorage{
		client: client,
		table:  table,
		name:   name,
	}
}

// Location returns the table and document name.
func (d *DynamoStorage) Location() string {
	return fmt.Sprintf("dynamodb table %s, document %q", d.table, d.name)
}

// Read returns the stored document, or nil if the item does not exist.
func (d *DynamoStorage) Read(ctx context.Context) ([]byte, error) {
	resp, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			dynamoNameAttr: {S: aws.String(d.name)},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "get checkpoint item")
	}

	attr, ok := resp.Item[dynamoDocumentAttr]
	if !ok || attr.S == nil {
		return nil, nil
	}
	return []byte(*attr.S), nil
}

// Write replaces the item holding the document.
func (d *DynamoStorage) Write(ctx context.Context, doc []byte) error {
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]*dynamodb.AttributeValue{
			dynamoNameAttr:     {S: aws.String(d.name)},
			dynamoDocumentAttr: {S: aws.String(string(doc))},
		},
	})
	if err != nil {
		return errors.Wrap(err, "put checkpoint item")
	}
	return nil
}
