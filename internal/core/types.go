package core

import (
	"context"
	"time"
)

// Language is one of the fixed set of supported customer languages.
type Language string

const (
	LanguagePortuguese Language = "pt"
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"

	DefaultLanguage = LanguageEnglish
)

// ParseLanguage accepts only an exact supported code.
func ParseLanguage(code string) (Language, bool) {
	switch Language(code) {
	case LanguagePortuguese, LanguageEnglish, LanguageSpanish:
		return Language(code), true
	}
	return "", false
}

// OrDefault returns l, or DefaultLanguage when l is unset.
func (l Language) OrDefault() Language {
	if l == "" {
		return DefaultLanguage
	}
	return l
}

// Role tags a message record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Channel represents the message channel type
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
)

// Contact is the customer profile keyed by the sender's external id (wa_id).
type Contact struct {
	ExternalID   string
	DisplayName  string
	Language     Language
	LastSeenAt   time.Time
	HumanHandoff bool
}

// Clone returns a detached copy.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// MessageRecord is one append-only entry in the message log.
type MessageRecord struct {
	ID         string
	ExternalID string
	Role       Role
	Content    string
	DeliveryID string // empty when the provider gave none
	Channel    Channel
	CreatedAt  time.Time
}

// ContactStore persists contacts. GetContact returns (nil, nil) when absent.
// UpsertContact keeps the stored name and language when the given ones are empty.
type ContactStore interface {
	GetContact(ctx context.Context, externalID string) (*Contact, error)
	UpsertContact(ctx context.Context, c *Contact) error
}

// MessageStore persists message records. InsertMessage reports false when a
// record with the same role and delivery id already exists.
type MessageStore interface {
	InsertMessage(ctx context.Context, rec *MessageRecord) (bool, error)
	BatchInsertMessages(ctx context.Context, recs []MessageRecord) error
	RecentMessages(ctx context.Context, externalID string, limit int) ([]MessageRecord, error)
}
