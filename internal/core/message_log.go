package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// MessageLog is the append-only conversation log. Storage failures are logged
// and swallowed: history may be incomplete but processing continues.
type MessageLog struct {
	store MessageStore
	saver *MessageSaver
}

// NewMessageLog creates a message log. When saver is non-nil, Append goes
// through it; inbound records are always written synchronously.
func NewMessageLog(store MessageStore, saver *MessageSaver) *MessageLog {
	return &MessageLog{store: store, saver: saver}
}

// RecordInbound writes a user message and reports whether its delivery id was
// already logged. A storage failure is treated as "not a duplicate".
func (l *MessageLog) RecordInbound(ctx context.Context, rec MessageRecord) (duplicate bool) {
	rec.Role = RoleUser
	prepare(&rec)

	inserted, err := l.store.InsertMessage(ctx, &rec)
	if err != nil {
		utils.Zlog.Warn("Failed to log inbound message",
			zap.String("external_id", rec.ExternalID),
			zap.String("delivery_id", rec.DeliveryID),
			zap.Error(&PersistenceError{Op: "insert message", Err: err}))
		return false
	}
	return !inserted
}

// Append logs an outbound assistant message.
func (l *MessageLog) Append(ctx context.Context, rec MessageRecord) {
	if rec.Role == "" {
		rec.Role = RoleAssistant
	}
	prepare(&rec)

	if l.saver != nil {
		l.saver.Enqueue(rec)
		return
	}
	if _, err := l.store.InsertMessage(ctx, &rec); err != nil {
		utils.Zlog.Warn("Failed to log outbound message",
			zap.String("external_id", rec.ExternalID),
			zap.Error(&PersistenceError{Op: "insert message", Err: err}))
	}
}

// History returns up to limit of the most recent records, oldest first.
func (l *MessageLog) History(ctx context.Context, externalID string, limit int) []MessageRecord {
	recs, err := l.store.RecentMessages(ctx, externalID, limit)
	if err != nil {
		utils.Zlog.Debug("Failed to load conversation history",
			zap.String("external_id", externalID),
			zap.Error(&PersistenceError{Op: "recent messages", Err: err}))
		return nil
	}
	return recs
}

func prepare(rec *MessageRecord) {
	if rec.ID == "" {
		rec.ID = NewMessageID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Channel == "" {
		rec.Channel = ChannelWhatsApp
	}
}

// NewMessageID returns a time-ordered (v7) record id.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
