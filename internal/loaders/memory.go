package loaders

import (
	"context"
	"sync"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

// MemoryStore keeps contacts and messages in process memory. It is meant for
// local development and tests; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	contacts   map[string]*core.Contact
	messages   map[string][]core.MessageRecord
	deliveries map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts:   make(map[string]*core.Contact),
		messages:   make(map[string][]core.MessageRecord),
		deliveries: make(map[string]struct{}),
	}
}

func (m *MemoryStore) GetContact(ctx context.Context, externalID string) (*core.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contacts[externalID].Clone(), nil
}

func (m *MemoryStore) UpsertContact(ctx context.Context, c *core.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := c.Clone()
	if prev, ok := m.contacts[c.ExternalID]; ok {
		if next.DisplayName == "" {
			next.DisplayName = prev.DisplayName
		}
		if next.Language == "" {
			next.Language = prev.Language
		}
		next.HumanHandoff = next.HumanHandoff || prev.HumanHandoff
	}
	m.contacts[c.ExternalID] = next
	return nil
}

func (m *MemoryStore) InsertMessage(ctx context.Context, rec *core.MessageRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec), nil
}

func (m *MemoryStore) BatchInsertMessages(ctx context.Context, recs []core.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range recs {
		m.insertLocked(&recs[i])
	}
	return nil
}

func (m *MemoryStore) insertLocked(rec *core.MessageRecord) bool {
	if rec.DeliveryID != "" {
		key := string(rec.Role) + "#" + rec.DeliveryID
		if _, seen := m.deliveries[key]; seen {
			return false
		}
		m.deliveries[key] = struct{}{}
	}
	if _, ok := m.contacts[rec.ExternalID]; !ok {
		m.contacts[rec.ExternalID] = &core.Contact{ExternalID: rec.ExternalID}
	}
	m.messages[rec.ExternalID] = append(m.messages[rec.ExternalID], *rec)
	return true
}

// RecentMessages returns up to limit of the most recent records, oldest first.
func (m *MemoryStore) RecentMessages(ctx context.Context, externalID string, limit int) ([]core.MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[externalID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]core.MessageRecord, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
