package loaders

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/config"
	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type backend interface {
	core.ContactStore
	core.MessageStore
	Pinger
	Close() error
}

// Stores bundles the contact and message stores of the selected backend.
type Stores struct {
	Contacts core.ContactStore
	Messages core.MessageStore
	Pinger   Pinger
	Backend  string

	closer func() error
}

func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// Open connects to the backend named in cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	var b backend

	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pg, err := NewPostgresClient(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		b = pg
	case config.StoreBackendDynamoDB:
		dc, err := NewDynamoClient(cfg.AWSRegion, cfg.DynamoContactsTable, cfg.DynamoMessagesTable)
		if err != nil {
			return nil, err
		}
		b = dc
	case config.StoreBackendMemory, "":
		b = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	utils.Zlog.Info("Storage backend ready", zap.String("backend", cfg.StoreBackend))
	return &Stores{
		Contacts: b,
		Messages: b,
		Pinger:   b,
		Backend:  cfg.StoreBackend,
		closer:   b.Close,
	}, nil
}
