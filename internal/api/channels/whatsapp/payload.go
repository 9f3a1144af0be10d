package whatsapp

import (
	"strconv"
	"strings"
	"time"
)

// WebhookPayload represents the structure of a Meta webhook payload
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value  `json:"value"`
	Field string `json:"field"`
}

// Value contains the actual message data
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile Profile `json:"profile"`
	WaID    string  `json:"wa_id"`
}

type Profile struct {
	Name string `json:"name"`
}

// Message represents an incoming WhatsApp message
type Message struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *TextMessage        `json:"text,omitempty"`
	Button      *ButtonReply        `json:"button,omitempty"`
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
	Image       *MediaInfo          `json:"image,omitempty"`
	Document    *MediaInfo          `json:"document,omitempty"`
	Audio       *MediaInfo          `json:"audio,omitempty"`
	Video       *MediaInfo          `json:"video,omitempty"`
}

type TextMessage struct {
	Body string `json:"body"`
}

// ButtonReply is sent when a customer taps a template quick-reply button.
type ButtonReply struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type InteractiveMessage struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"list_reply,omitempty"`
}

type MediaInfo struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Status represents a message status update
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // sent, delivered, read, failed
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Inbound is the one message taken from a delivery.
type Inbound struct {
	From        string
	DeliveryID  string
	Type        string
	Text        string
	ProfileName string
	ReceivedAt  time.Time
}

// IsText reports whether the message carries customer-typed text.
func (in *Inbound) IsText() bool { return in.Text != "" }

// FirstInbound returns the first message of the first change. Any further
// messages in the same delivery are ignored.
func (p *WebhookPayload) FirstInbound() (*Inbound, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, false
	}
	value := p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil, false
	}

	msg := value.Messages[0]
	in := &Inbound{
		From:       msg.From,
		DeliveryID: msg.ID,
		Type:       msg.Type,
		Text:       strings.TrimSpace(msg.text()),
	}
	for _, c := range value.Contacts {
		if c.WaID == "" || c.WaID == msg.From {
			in.ProfileName = strings.TrimSpace(c.Profile.Name)
			break
		}
	}
	if secs, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && secs > 0 {
		in.ReceivedAt = time.Unix(secs, 0).UTC()
	}
	return in, in.From != ""
}

func (m *Message) text() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Button != nil:
		return m.Button.Text
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.Title
	}
	return ""
}
