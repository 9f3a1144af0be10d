package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// pgxPool is the part of *pgxpool.Pool the client uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

type PostgresClient struct {
	dsn  string
	pool pgxPool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS contacts (
	external_id   TEXT PRIMARY KEY,
	display_name  TEXT,
	language_code TEXT CHECK (language_code IN ('pt', 'en', 'es')),
	last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	human_handoff BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id          UUID PRIMARY KEY,
	external_id TEXT NOT NULL REFERENCES contacts (external_id),
	role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content     TEXT NOT NULL,
	delivery_id TEXT,
	channel     TEXT NOT NULL DEFAULT 'WHATSAPP',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS messages_role_delivery_id_key
	ON messages (role, delivery_id) WHERE delivery_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS messages_external_id_created_at_idx
	ON messages (external_id, created_at DESC);
`

func NewPostgresClient(ctx context.Context, dsn string, maxConns int) (*PostgresClient, error) {
	client := &PostgresClient{
		dsn: dsn,
	}

	pool, err := client.createConnectionPool(ctx, maxConns)
	if err != nil {
		return nil, err
	}

	client.pool = pool
	utils.Zlog.Info("Connected to PostgreSQL", zap.Int("max_conns", maxConns))
	return client, nil
}

func newPostgresClientWithPool(pool pgxPool) *PostgresClient {
	return &PostgresClient{pool: pool}
}

func (c *PostgresClient) createConnectionPool(ctx context.Context, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres DSN: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 60 * time.Minute
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the contacts and messages tables when missing.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// GetContact returns the contact for externalID, or nil when there is none.
func (c *PostgresClient) GetContact(ctx context.Context, externalID string) (*core.Contact, error) {
	query := `
		SELECT external_id, COALESCE(display_name, ''), COALESCE(language_code, ''),
		       last_seen_at, human_handoff
		FROM contacts
		WHERE external_id = $1
	`

	var contact core.Contact
	var lang string
	err := c.pool.QueryRow(ctx, query, externalID).Scan(
		&contact.ExternalID, &contact.DisplayName, &lang, &contact.LastSeenAt, &contact.HumanHandoff,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	contact.Language = core.Language(lang)
	return &contact, nil
}

// UpsertContact creates or updates a contact. Empty name/language keep the
// stored values, and a raised handoff flag is never cleared by an upsert.
func (c *PostgresClient) UpsertContact(ctx context.Context, contact *core.Contact) error {
	query := `
		INSERT INTO contacts (external_id, display_name, language_code, last_seen_at, human_handoff, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NOW(), NOW())
		ON CONFLICT (external_id)
		DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, contacts.display_name),
			language_code = COALESCE(EXCLUDED.language_code, contacts.language_code),
			last_seen_at = EXCLUDED.last_seen_at,
			human_handoff = contacts.human_handoff OR EXCLUDED.human_handoff,
			updated_at = NOW()
	`

	lastSeen := contact.LastSeenAt
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}

	_, err := c.pool.Exec(ctx, query,
		contact.ExternalID,
		contact.DisplayName,
		string(contact.Language),
		lastSeen.UTC(),
		contact.HumanHandoff,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

const insertMessageSQL = `
	INSERT INTO messages (id, external_id, role, content, delivery_id, channel, created_at)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	ON CONFLICT (role, delivery_id) WHERE delivery_id IS NOT NULL DO NOTHING
`

const ensureContactSQL = `
	INSERT INTO contacts (external_id) VALUES ($1)
	ON CONFLICT (external_id) DO NOTHING
`

// InsertMessage appends a record and reports whether it was new. The owning
// contact row is created first so the foreign key holds on a first message.
func (c *PostgresClient) InsertMessage(ctx context.Context, rec *core.MessageRecord) (bool, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, ensureContactSQL, rec.ExternalID); err != nil {
		return false, fmt.Errorf("failed to ensure contact: %w", err)
	}

	tag, err := tx.Exec(ctx, insertMessageSQL, messageArgs(rec)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// BatchInsertMessages inserts records in one round trip. Duplicates are skipped.
func (c *PostgresClient) BatchInsertMessages(ctx context.Context, recs []core.MessageRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range recs {
		batch.Queue(ensureContactSQL, recs[i].ExternalID)
		batch.Queue(insertMessageSQL, messageArgs(&recs[i])...)
	}

	results := c.pool.SendBatch(ctx, batch)
	defer results.Close()

	failed := 0
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			utils.Zlog.Warn("Batch message statement failed", zap.Int("statement", i), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to insert %d of %d batched statements", failed, batch.Len())
	}
	return nil
}

// RecentMessages returns up to limit of the most recent records, oldest first.
func (c *PostgresClient) RecentMessages(ctx context.Context, externalID string, limit int) ([]core.MessageRecord, error) {
	if limit <= 0 {
		limit = 6
	}

	query := `
		SELECT id::text, external_id, role, content, COALESCE(delivery_id, ''), channel, created_at
		FROM messages
		WHERE external_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := c.pool.Query(ctx, query, externalID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	defer rows.Close()

	var records []core.MessageRecord
	for rows.Next() {
		var rec core.MessageRecord
		var role, channel string
		if err := rows.Scan(&rec.ID, &rec.ExternalID, &role, &rec.Content, &rec.DeliveryID, &channel, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		rec.Role = core.Role(role)
		rec.Channel = core.Channel(channel)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	reverseRecords(records)
	return records, nil
}

func messageArgs(rec *core.MessageRecord) []any {
	channel := rec.Channel
	if channel == "" {
		channel = core.ChannelWhatsApp
	}
	return []any{
		rec.ID,
		rec.ExternalID,
		string(rec.Role),
		rec.Content,
		rec.DeliveryID,
		string(channel),
		rec.CreatedAt.UTC(),
	}
}

// reverseRecords turns newest-first rows into chronological order.
func reverseRecords(records []core.MessageRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
