package loaders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Conversly/whatsapp-concierge/internal/config"
	"github.com/Conversly/whatsapp-concierge/internal/core"
)

func TestMemoryStoreContactUpsertKeepsNameAndLanguage(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if c, err := store.GetContact(ctx, "u1"); err != nil || c != nil {
		t.Fatalf("Expected (nil, nil) for unknown contact, got (%v, %v)", c, err)
	}

	store.UpsertContact(ctx, &core.Contact{ExternalID: "u1", DisplayName: "Ana", Language: core.LanguagePortuguese})
	store.UpsertContact(ctx, &core.Contact{ExternalID: "u1", HumanHandoff: true})

	got, _ := store.GetContact(ctx, "u1")
	if got.DisplayName != "Ana" || got.Language != core.LanguagePortuguese || !got.HumanHandoff {
		t.Errorf("Unexpected contact after partial upsert: %+v", got)
	}

	store.UpsertContact(ctx, &core.Contact{ExternalID: "u1", DisplayName: "Ana"})
	if got, _ := store.GetContact(ctx, "u1"); !got.HumanHandoff {
		t.Error("Upsert without handoff must keep the stored flag")
	}

	got.DisplayName = "mutated"
	again, _ := store.GetContact(ctx, "u1")
	if again.DisplayName != "Ana" {
		t.Error("GetContact must return a detached copy")
	}
}

func TestMemoryStoreDedupByRoleAndDelivery(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, _ := store.InsertMessage(ctx, &core.MessageRecord{ExternalID: "u1", Role: core.RoleUser, DeliveryID: "d1"})
	if !ok {
		t.Fatal("First insert must succeed")
	}
	ok, _ = store.InsertMessage(ctx, &core.MessageRecord{ExternalID: "u1", Role: core.RoleUser, DeliveryID: "d1"})
	if ok {
		t.Error("Duplicate delivery must be rejected")
	}
	ok, _ = store.InsertMessage(ctx, &core.MessageRecord{ExternalID: "u1", Role: core.RoleAssistant, DeliveryID: "d1"})
	if !ok {
		t.Error("Same delivery id under another role must be accepted")
	}
	ok, _ = store.InsertMessage(ctx, &core.MessageRecord{ExternalID: "u1", Role: core.RoleAssistant})
	ok2, _ := store.InsertMessage(ctx, &core.MessageRecord{ExternalID: "u1", Role: core.RoleAssistant})
	if !ok || !ok2 {
		t.Error("Records without delivery id are never duplicates")
	}

	if c, _ := store.GetContact(ctx, "u1"); c == nil {
		t.Error("Inserting a message must create the contact")
	}
}

func TestMemoryStoreRecentMessages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var recs []core.MessageRecord
	for i := 0; i < 10; i++ {
		recs = append(recs, core.MessageRecord{
			ExternalID: "u1",
			Role:       core.RoleUser,
			Content:    fmt.Sprintf("m%d", i),
			CreatedAt:  time.Unix(int64(i), 0),
		})
	}
	store.BatchInsertMessages(ctx, recs)

	got, _ := store.RecentMessages(ctx, "u1", 6)
	if len(got) != 6 || got[0].Content != "m4" || got[5].Content != "m9" {
		t.Errorf("Unexpected recent messages: %+v", got)
	}

	empty, _ := store.RecentMessages(ctx, "nobody", 6)
	if len(empty) != 0 {
		t.Errorf("Expected no messages, got %d", len(empty))
	}
}

func TestOpenSelectsMemoryBackend(t *testing.T) {
	stores, err := Open(context.Background(), &config.Config{StoreBackend: config.StoreBackendMemory})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer stores.Close()

	if _, ok := stores.Contacts.(*MemoryStore); !ok {
		t.Errorf("Expected memory store, got %T", stores.Contacts)
	}
	if err := stores.Pinger.Ping(context.Background()); err != nil {
		t.Errorf("Memory ping failed: %v", err)
	}

	if _, err := Open(context.Background(), &config.Config{StoreBackend: "cassandra"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
