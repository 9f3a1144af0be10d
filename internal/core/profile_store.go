package core

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// ProfileStore loads and saves contacts through a ContactStore and keeps a
// copy of every profile it has seen in an in-process cache. The cache is only
// read when the backend fails (or is absent) and entries expire after the
// configured TTL, so a long-running process does not grow without bound.
// Cached profiles may be stale by up to one TTL relative to other writers.
type ProfileStore struct {
	backend ContactStore
	cache   *cache.Cache
}

// NewProfileStore creates a profile store. backend may be nil, in which case
// the cache is the only storage.
func NewProfileStore(backend ContactStore, ttl time.Duration) *ProfileStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProfileStore{
		backend: backend,
		cache:   cache.New(ttl, ttl/2),
	}
}

// Load returns the stored profile for externalID, a cached copy when the
// backend fails, or a fresh profile when neither has one.
func (s *ProfileStore) Load(ctx context.Context, externalID string) *Contact {
	if s.backend != nil {
		c, err := s.backend.GetContact(ctx, externalID)
		if err == nil && c != nil {
			s.cache.Set(externalID, c.Clone(), cache.DefaultExpiration)
			return c
		}
		if err != nil {
			utils.Zlog.Warn("Failed to load contact, using cache",
				zap.String("external_id", externalID),
				zap.Error(&PersistenceError{Op: "load contact", Err: err}))
		}
	}

	if cached, ok := s.cache.Get(externalID); ok {
		return cached.(*Contact).Clone()
	}
	return &Contact{ExternalID: externalID}
}

// Save upserts the profile. Backend failures are logged; the cached copy is
// always refreshed so later loads in this process see the write.
func (s *ProfileStore) Save(ctx context.Context, c *Contact) {
	s.cache.Set(c.ExternalID, c.Clone(), cache.DefaultExpiration)
	if s.backend == nil {
		return
	}
	if err := s.backend.UpsertContact(ctx, c); err != nil {
		utils.Zlog.Warn("Failed to save contact, kept in cache",
			zap.String("external_id", c.ExternalID),
			zap.Error(&PersistenceError{Op: "upsert contact", Err: err}))
	}
}
