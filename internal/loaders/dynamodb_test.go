package loaders

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

// fakeDynamo keeps items keyed by "pk|sk" and honours attribute_not_exists
// conditions on transactional puts.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu       sync.Mutex
	contacts map[string]map[string]*dynamodb.AttributeValue
	items    map[string]map[string]*dynamodb.AttributeValue
	updates  []*dynamodb.UpdateItemInput
	lastQ    *dynamodb.QueryInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		contacts: make(map[string]map[string]*dynamodb.AttributeValue),
		items:    make(map[string]map[string]*dynamodb.AttributeValue),
	}
}

func itemKey(item map[string]*dynamodb.AttributeValue) string {
	return aws.StringValue(item["pk"].S) + "|" + aws.StringValue(item["sk"].S)
}

func (f *fakeDynamo) GetItemWithContext(ctx aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.contacts[aws.StringValue(in.Key["external_id"].S)]}, nil
}

func (f *fakeDynamo) UpdateItemWithContext(ctx aws.Context, in *dynamodb.UpdateItemInput, _ ...request.Option) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)

	id := aws.StringValue(in.Key["external_id"].S)
	item, ok := f.contacts[id]
	if !ok {
		item = map[string]*dynamodb.AttributeValue{"external_id": {S: aws.String(id)}}
		f.contacts[id] = item
	}
	attrs := map[string]string{":ls": "last_seen_at", ":h": "human_handoff", ":n": "display_name", ":l": "language_code"}
	expr := aws.StringValue(in.UpdateExpression)
	for placeholder, attr := range attrs {
		v, ok := in.ExpressionAttributeValues[placeholder]
		if !ok {
			continue
		}
		if _, exists := item[attr]; exists && strings.Contains(expr, "if_not_exists("+attr) {
			continue
		}
		item[attr] = v
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) PutItemWithContext(ctx aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItemsWithContext(ctx aws.Context, in *dynamodb.TransactWriteItemsInput, _ ...request.Option) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reasons := make([]*dynamodb.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = &dynamodb.CancellationReason{Code: aws.String("None")}
		if ti.Put.ConditionExpression != nil {
			if _, exists := f.items[itemKey(ti.Put.Item)]; exists {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		}
	}
	if failed {
		return nil, &dynamodb.TransactionCanceledException{
			Message_:            aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		f.items[itemKey(ti.Put.Item)] = ti.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) QueryWithContext(ctx aws.Context, in *dynamodb.QueryInput, _ ...request.Option) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQ = in

	pk := aws.StringValue(in.ExpressionAttributeValues[":pk"].S)
	prefix := aws.StringValue(in.ExpressionAttributeValues[":prefix"].S)
	var matched []map[string]*dynamodb.AttributeValue
	for _, item := range f.items {
		if aws.StringValue(item["pk"].S) == pk && strings.HasPrefix(aws.StringValue(item["sk"].S), prefix) {
			matched = append(matched, item)
		}
	}
	// newest first, as with ScanIndexForward=false
	for i := 0; i < len(matched); i++ {
		for j := i + 1; j < len(matched); j++ {
			if aws.StringValue(matched[j]["sk"].S) > aws.StringValue(matched[i]["sk"].S) {
				matched[i], matched[j] = matched[j], matched[i]
			}
		}
	}
	if limit := int(aws.Int64Value(in.Limit)); limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return &dynamodb.QueryOutput{Items: matched}, nil
}

func TestDynamoContactRoundTrip(t *testing.T) {
	fake := newFakeDynamo()
	client := NewDynamoClientWithAPI(fake, "contacts", "messages")
	ctx := context.Background()

	if c, err := client.GetContact(ctx, "5511"); err != nil || c != nil {
		t.Fatalf("Expected (nil, nil) for unknown contact, got (%v, %v)", c, err)
	}

	seen := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := client.UpsertContact(ctx, &core.Contact{ExternalID: "5511", DisplayName: "Ana", Language: core.LanguagePortuguese, LastSeenAt: seen}); err != nil {
		t.Fatalf("UpsertContact returned error: %v", err)
	}
	if err := client.UpsertContact(ctx, &core.Contact{ExternalID: "5511", HumanHandoff: true, LastSeenAt: seen}); err != nil {
		t.Fatalf("UpsertContact returned error: %v", err)
	}

	last := fake.updates[len(fake.updates)-1]
	if strings.Contains(aws.StringValue(last.UpdateExpression), "display_name") {
		t.Errorf("Empty name must not be written: %s", aws.StringValue(last.UpdateExpression))
	}

	got, err := client.GetContact(ctx, "5511")
	if err != nil {
		t.Fatalf("GetContact returned error: %v", err)
	}
	if got.DisplayName != "Ana" || got.Language != core.LanguagePortuguese || !got.HumanHandoff || !got.LastSeenAt.Equal(seen) {
		t.Errorf("Unexpected contact: %+v", got)
	}
}

func TestDynamoInsertMessageDeduplicates(t *testing.T) {
	fake := newFakeDynamo()
	client := NewDynamoClientWithAPI(fake, "contacts", "messages")
	ctx := context.Background()

	rec := &core.MessageRecord{ID: "a", ExternalID: "5511", Role: core.RoleUser, Content: "oi", DeliveryID: "wamid.1", CreatedAt: time.Now()}
	ok, err := client.InsertMessage(ctx, rec)
	if err != nil || !ok {
		t.Fatalf("First insert = (%v, %v), want (true, nil)", ok, err)
	}

	retry := *rec
	retry.ID = "b"
	ok, err = client.InsertMessage(ctx, &retry)
	if err != nil || ok {
		t.Fatalf("Duplicate insert = (%v, %v), want (false, nil)", ok, err)
	}

	reply := &core.MessageRecord{ID: "c", ExternalID: "5511", Role: core.RoleAssistant, Content: "olá", DeliveryID: "wamid.1", CreatedAt: time.Now()}
	if ok, _ := client.InsertMessage(ctx, reply); !ok {
		t.Error("Same delivery id under another role must be accepted")
	}
}

func TestDynamoRecentMessagesChronological(t *testing.T) {
	fake := newFakeDynamo()
	client := NewDynamoClientWithAPI(fake, "contacts", "messages")
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	var recs []core.MessageRecord
	for i := 0; i < 8; i++ {
		recs = append(recs, core.MessageRecord{
			ID:         string(rune('a' + i)),
			ExternalID: "5511",
			Role:       core.RoleUser,
			Content:    string(rune('a' + i)),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	if err := client.BatchInsertMessages(ctx, recs); err != nil {
		t.Fatalf("BatchInsertMessages returned error: %v", err)
	}

	got, err := client.RecentMessages(ctx, "5511", 6)
	if err != nil {
		t.Fatalf("RecentMessages returned error: %v", err)
	}
	if len(got) != 6 || got[0].Content != "c" || got[5].Content != "h" {
		t.Errorf("Unexpected history: %+v", got)
	}
	if aws.BoolValue(fake.lastQ.ScanIndexForward) {
		t.Error("Expected descending query")
	}
}

func TestDynamoMessageItemShape(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	item, err := dynamodbattribute.MarshalMap(toDynamoMessage(&core.MessageRecord{
		ID: "x", ExternalID: "5511", Role: core.RoleUser, Content: "hi", CreatedAt: created,
	}))
	if err != nil {
		t.Fatalf("MarshalMap returned error: %v", err)
	}
	if got := aws.StringValue(item["sk"].S); got != "msg#2026-05-01T10:00:00.000000000Z#x" {
		t.Errorf("sk = %q", got)
	}
	if got := aws.StringValue(item["channel"].S); got != string(core.ChannelWhatsApp) {
		t.Errorf("channel = %q", got)
	}
	if _, ok := item["delivery_id"]; ok {
		t.Error("Empty delivery id must be omitted")
	}
}

func TestDynamoUpsertNeverClearsHandoff(t *testing.T) {
	fake := newFakeDynamo()
	client := NewDynamoClientWithAPI(fake, "contacts", "messages")
	ctx := context.Background()

	client.UpsertContact(ctx, &core.Contact{ExternalID: "5511", HumanHandoff: true})
	if err := client.UpsertContact(ctx, &core.Contact{ExternalID: "5511", DisplayName: "Ana"}); err != nil {
		t.Fatalf("UpsertContact returned error: %v", err)
	}

	last := aws.StringValue(fake.updates[len(fake.updates)-1].UpdateExpression)
	if !strings.Contains(last, "if_not_exists(human_handoff, :h)") {
		t.Errorf("Expected conditional handoff write, got %s", last)
	}
	got, _ := client.GetContact(ctx, "5511")
	if !got.HumanHandoff {
		t.Error("Upsert without handoff must keep the stored flag")
	}

	client.UpsertContact(ctx, &core.Contact{ExternalID: "5512"})
	if fresh, _ := client.GetContact(ctx, "5512"); fresh == nil || fresh.HumanHandoff {
		t.Errorf("New contact must start without handoff: %+v", fresh)
	}
}

func TestDynamoRecentMessagesOrdersWithinOneSecond(t *testing.T) {
	fake := newFakeDynamo()
	client := NewDynamoClientWithAPI(fake, "contacts", "messages")
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	recs := []core.MessageRecord{
		{ID: "u", ExternalID: "x", Role: core.RoleUser, Content: "user", CreatedAt: base},
		{ID: "a", ExternalID: "x", Role: core.RoleAssistant, Content: "assistant", CreatedAt: base.Add(400 * time.Millisecond)},
		{ID: "f", ExternalID: "y", Role: core.RoleUser, Content: "first", CreatedAt: base.Add(100 * time.Millisecond)},
		{ID: "s", ExternalID: "y", Role: core.RoleUser, Content: "second", CreatedAt: base.Add(120 * time.Millisecond)},
	}
	if err := client.BatchInsertMessages(ctx, recs); err != nil {
		t.Fatalf("BatchInsertMessages returned error: %v", err)
	}

	tests := []struct {
		externalID string
		want       []string
	}{
		{"x", []string{"user", "assistant"}},
		{"y", []string{"first", "second"}},
	}
	for _, tt := range tests {
		got, err := client.RecentMessages(ctx, tt.externalID, 6)
		if err != nil {
			t.Fatalf("RecentMessages returned error: %v", err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: expected %d records, got %d", tt.externalID, len(tt.want), len(got))
		}
		for i, w := range tt.want {
			if got[i].Content != w {
				t.Errorf("%s: record %d = %s, want %s", tt.externalID, i, got[i].Content, w)
			}
		}
	}

	// Only the newest record fits the limit.
	got, _ := client.RecentMessages(ctx, "x", 1)
	if len(got) != 1 || got[0].Content != "assistant" {
		t.Errorf("Expected newest record under limit 1, got %+v", got)
	}
}
