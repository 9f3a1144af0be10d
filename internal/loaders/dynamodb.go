package loaders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

// DynamoClient stores contacts and messages in two DynamoDB tables.
//
// Contacts table: partition key "external_id".
// Messages table: partition key "pk", sort key "sk". Message items use
// pk=<external_id>, sk=msg#<created_at, nanosecond fixed width>#<id>. Every delivery id also gets a
// marker item pk=delivery#<role>#<delivery_id>, sk=delivery, written in the
// same transaction under attribute_not_exists so a retried delivery is
// rejected as a whole.
type DynamoClient struct {
	svc           dynamodbiface.DynamoDBAPI
	contactsTable string
	messagesTable string
}

type dynamoContactItem struct {
	ExternalID   string    `dynamodbav:"external_id"`
	DisplayName  string    `dynamodbav:"display_name,omitempty"`
	Language     string    `dynamodbav:"language_code,omitempty"`
	LastSeenAt   time.Time `dynamodbav:"last_seen_at"`
	HumanHandoff bool      `dynamodbav:"human_handoff"`
}

type dynamoMessageItem struct {
	PK         string    `dynamodbav:"pk"`
	SK         string    `dynamodbav:"sk"`
	ID         string    `dynamodbav:"id"`
	ExternalID string    `dynamodbav:"external_id"`
	Role       string    `dynamodbav:"role"`
	Content    string    `dynamodbav:"content"`
	DeliveryID string    `dynamodbav:"delivery_id,omitempty"`
	Channel    string    `dynamodbav:"channel"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
}

const (
	messageSortPrefix = "msg#"
	// Fixed width so that sort keys order the same way as the timestamps.
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// NewDynamoClient creates a client from the default AWS session chain.
func NewDynamoClient(region, contactsTable, messagesTable string) (*DynamoClient, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewDynamoClientWithAPI(dynamodb.New(sess), contactsTable, messagesTable), nil
}

func NewDynamoClientWithAPI(svc dynamodbiface.DynamoDBAPI, contactsTable, messagesTable string) *DynamoClient {
	return &DynamoClient{svc: svc, contactsTable: contactsTable, messagesTable: messagesTable}
}

func (d *DynamoClient) Ping(ctx context.Context) error {
	_, err := d.svc.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.contactsTable),
	})
	return err
}

func (d *DynamoClient) Close() error { return nil }

func (d *DynamoClient) GetContact(ctx context.Context, externalID string) (*core.Contact, error) {
	result, err := d.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.contactsTable),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			"external_id": {S: aws.String(externalID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item dynamoContactItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
	}
	return &core.Contact{
		ExternalID:   item.ExternalID,
		DisplayName:  item.DisplayName,
		Language:     core.Language(item.Language),
		LastSeenAt:   item.LastSeenAt,
		HumanHandoff: item.HumanHandoff,
	}, nil
}

// UpsertContact sets last-seen and handoff, and name/language only when given.
func (d *DynamoClient) UpsertContact(ctx context.Context, c *core.Contact) error {
	lastSeen := c.LastSeenAt
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}

	// human_handoff is only ever raised here; clearing it is a manual operation.
	handoff := "human_handoff = if_not_exists(human_handoff, :h)"
	if c.HumanHandoff {
		handoff = "human_handoff = :h"
	}
	sets := []string{"last_seen_at = :ls", handoff}
	values := map[string]*dynamodb.AttributeValue{
		":ls": {S: aws.String(lastSeen.UTC().Format(time.RFC3339Nano))},
		":h":  {BOOL: aws.Bool(c.HumanHandoff)},
	}
	if c.DisplayName != "" {
		sets = append(sets, "display_name = :n")
		values[":n"] = &dynamodb.AttributeValue{S: aws.String(c.DisplayName)}
	}
	if c.Language != "" {
		sets = append(sets, "language_code = :l")
		values[":l"] = &dynamodb.AttributeValue{S: aws.String(string(c.Language))}
	}

	_, err := d.svc.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.contactsTable),
		Key: map[string]*dynamodb.AttributeValue{
			"external_id": {S: aws.String(c.ExternalID)},
		},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

func (d *DynamoClient) InsertMessage(ctx context.Context, rec *core.MessageRecord) (bool, error) {
	item, err := dynamodbattribute.MarshalMap(toDynamoMessage(rec))
	if err != nil {
		return false, fmt.Errorf("failed to marshal message: %w", err)
	}

	if rec.DeliveryID == "" {
		_, err := d.svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.messagesTable),
			Item:      item,
		})
		if err != nil {
			return false, fmt.Errorf("failed to put message: %w", err)
		}
		return true, nil
	}

	marker := map[string]*dynamodb.AttributeValue{
		"pk":         {S: aws.String(deliveryKey(rec.Role, rec.DeliveryID))},
		"sk":         {S: aws.String("delivery")},
		"message_id": {S: aws.String(rec.ID)},
	}
	_, err = d.svc.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []*dynamodb.TransactWriteItem{
			{Put: &dynamodb.Put{
				TableName:           aws.String(d.messagesTable),
				Item:                marker,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Put: &dynamodb.Put{
				TableName: aws.String(d.messagesTable),
				Item:      item,
			}},
		},
	})
	if isConditionalFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write message transaction: %w", err)
	}
	return true, nil
}

func (d *DynamoClient) BatchInsertMessages(ctx context.Context, recs []core.MessageRecord) error {
	var errs []error
	for i := range recs {
		if _, err := d.InsertMessage(ctx, &recs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *DynamoClient) RecentMessages(ctx context.Context, externalID string, limit int) ([]core.MessageRecord, error) {
	if limit <= 0 {
		limit = 6
	}

	out, err := d.svc.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.messagesTable),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk":     {S: aws.String(externalID)},
			":prefix": {S: aws.String(messageSortPrefix)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	var items []dynamoMessageItem
	if err := dynamodbattribute.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	records := make([]core.MessageRecord, 0, len(items))
	for _, it := range items {
		records = append(records, core.MessageRecord{
			ID:         it.ID,
			ExternalID: it.ExternalID,
			Role:       core.Role(it.Role),
			Content:    it.Content,
			DeliveryID: it.DeliveryID,
			Channel:    core.Channel(it.Channel),
			CreatedAt:  it.CreatedAt,
		})
	}
	reverseRecords(records)
	return records, nil
}

func toDynamoMessage(rec *core.MessageRecord) dynamoMessageItem {
	channel := rec.Channel
	if channel == "" {
		channel = core.ChannelWhatsApp
	}
	createdAt := rec.CreatedAt.UTC()
	return dynamoMessageItem{
		PK:         rec.ExternalID,
		SK:         messageSortPrefix + createdAt.Format(sortTimeLayout) + "#" + rec.ID,
		ID:         rec.ID,
		ExternalID: rec.ExternalID,
		Role:       string(rec.Role),
		Content:    rec.Content,
		DeliveryID: rec.DeliveryID,
		Channel:    string(channel),
		CreatedAt:  createdAt,
	}
}

func deliveryKey(role core.Role, deliveryID string) string {
	return "delivery#" + string(role) + "#" + deliveryID
}

func isConditionalFailure(err error) bool {
	if err == nil {
		return false
	}
	var canceled *dynamodb.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason != nil && aws.StringValue(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
