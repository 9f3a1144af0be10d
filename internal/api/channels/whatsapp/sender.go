package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// MessageSender posts outbound messages and returns the provider message id.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, name, languageCode string) (string, error)
}

// CloudSender sends through the WhatsApp Cloud API messages endpoint.
type CloudSender struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	client        *http.Client
}

func NewCloudSender(baseURL, phoneNumberID, accessToken string) *CloudSender {
	return &CloudSender{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OutboundMessage represents the Cloud API request body
type OutboundMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type,omitempty"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *TextContent     `json:"text,omitempty"`
	Template         *TemplateContent `json:"template,omitempty"`
}

type TextContent struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type TemplateContent struct {
	Name     string           `json:"name"`
	Language TemplateLanguage `json:"language"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

// SendResponse is the Cloud API reply to a send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (s *CloudSender) SendText(ctx context.Context, to, body string) (string, error) {
	return s.send(ctx, &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextContent{Body: body},
	})
}

func (s *CloudSender) SendTemplate(ctx context.Context, to, name, languageCode string) (string, error) {
	return s.send(ctx, &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: &TemplateContent{
			Name:     name,
			Language: TemplateLanguage{Code: languageCode},
		},
	})
}

func (s *CloudSender) send(ctx context.Context, msg *OutboundMessage) (string, error) {
	const op = "whatsapp send"
	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)

	jsonBody, err := json.Marshal(msg)
	if err != nil {
		return "", &core.TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", &core.TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &core.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &core.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("meta API error: %s", strings.TrimSpace(string(snippet)))}
	}

	// The message was accepted; an unreadable body only costs us its id.
	var out SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		utils.Zlog.Warn("Sent WhatsApp message but could not read its id",
			zap.String("to", msg.To),
			zap.Error(&core.ParseError{Err: fmt.Errorf("%s: failed to decode response: %w", op, err)}))
		return "", nil
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// TemplateLanguageCode maps a customer language to a template locale.
func TemplateLanguageCode(lang core.Language) string {
	switch lang.OrDefault() {
	case core.LanguagePortuguese:
		return "pt_BR"
	case core.LanguageSpanish:
		return "es"
	default:
		return "en_US"
	}
}
