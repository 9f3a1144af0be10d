package whatsapp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/language"
	"github.com/Conversly/whatsapp-concierge/internal/reply"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// Outcome names the step at which processing of a message stopped.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeNonText          Outcome = "non_text"
	OutcomeHandoffRequested Outcome = "handoff_requested"
	OutcomeHandoffActive    Outcome = "handoff_active"
	OutcomeAskedName        Outcome = "asked_name"
	OutcomeOutOfHours       Outcome = "out_of_hours"
	OutcomeReplied          Outcome = "replied"
)

// Service runs the per-message pipeline.
type Service struct {
	profiles           *core.ProfileStore
	log                *core.MessageLog
	detector           *language.Detector
	generator          *reply.Generator
	sender             MessageSender
	hours              *core.BusinessHours
	handoffKeywords    []string
	outOfHoursTemplate string
	historyLimit       int
	now                func() time.Time
}

// Deps are the collaborators of a Service. Hours may be nil (always open).
type Deps struct {
	Profiles           *core.ProfileStore
	Log                *core.MessageLog
	Detector           *language.Detector
	Generator          *reply.Generator
	Sender             MessageSender
	Hours              *core.BusinessHours
	HandoffKeywords    []string
	OutOfHoursTemplate string
	HistoryLimit       int
	Now                func() time.Time
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.HistoryLimit <= 0 || d.HistoryLimit > reply.MaxHistory {
		d.HistoryLimit = reply.MaxHistory
	}
	return &Service{
		profiles:           d.Profiles,
		log:                d.Log,
		detector:           d.Detector,
		generator:          d.Generator,
		sender:             d.Sender,
		hours:              d.Hours,
		handoffKeywords:    d.HandoffKeywords,
		outOfHoursTemplate: d.OutOfHoursTemplate,
		historyLimit:       d.HistoryLimit,
		now:                d.Now,
	}
}

// Process handles one inbound message. Failures are logged; the caller always
// acknowledges the delivery.
func (s *Service) Process(ctx context.Context, in *Inbound) Outcome {
	if in == nil || in.From == "" {
		return OutcomeIgnored
	}
	startTime := time.Now()
	now := s.now()

	logger := utils.Zlog.With(
		zap.String("wa_id", in.From),
		zap.String("delivery_id", in.DeliveryID))

	// 1. dedup
	content := in.Text
	if content == "" {
		content = "[" + in.Type + "]"
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	inboundID := core.NewMessageID()
	if s.log.RecordInbound(ctx, core.MessageRecord{
		ID:         inboundID,
		ExternalID: in.From,
		Content:    content,
		DeliveryID: in.DeliveryID,
		CreatedAt:  receivedAt,
	}) {
		logger.Info("Duplicate delivery ignored")
		return OutcomeDuplicate
	}

	// 2. profile
	contact := s.profiles.Load(ctx, in.From)
	contact.LastSeenAt = now

	if !in.IsText() {
		s.profiles.Save(ctx, contact)
		logger.Debug("Non-text message, profile touched", zap.String("type", in.Type))
		return OutcomeNonText
	}

	// 3. language, once per profile
	if contact.Language == "" {
		contact.Language = s.detector.Detect(ctx, in.Text)
		logger.Info("Language detected", zap.String("language", string(contact.Language)))
	}
	lang := contact.Language

	// 4. name from provider metadata, then from an explicit phrase
	ackName := false
	if contact.DisplayName == "" {
		if name, ok := ProfileName(in.ProfileName); ok {
			contact.DisplayName = name
		} else if name, ok := ExplicitName(in.Text); ok {
			contact.DisplayName = name
			ackName = true
		}
	}

	// 5. handoff request
	if containsKeyword(in.Text, s.handoffKeywords) {
		contact.HumanHandoff = true
		s.profiles.Save(ctx, contact)
		s.send(ctx, in.From, HandoffConfirmation(lang))
		logger.Info("Human handoff requested")
		return OutcomeHandoffRequested
	}

	// 6. a human is engaged
	if contact.HumanHandoff {
		s.profiles.Save(ctx, contact)
		logger.Debug("Human handoff active, no automated reply")
		return OutcomeHandoffActive
	}

	// 7. one name round-trip before anything substantive
	if contact.DisplayName == "" {
		if name, ok := NameAnswer(in.Text); ok {
			contact.DisplayName = name
			ackName = true
		} else {
			s.profiles.Save(ctx, contact)
			s.send(ctx, in.From, AskName(lang))
			return OutcomeAskedName
		}
	}
	s.profiles.Save(ctx, contact)
	if ackName {
		s.send(ctx, in.From, AckName(lang, contact.DisplayName))
	}

	// 8. business hours
	if !s.hours.IsOpen(now) {
		s.sendOutOfHours(ctx, in.From, lang)
		logger.Info("Outside business hours")
		return OutcomeOutOfHours
	}

	// 9. reply
	history := s.priorHistory(ctx, in, inboundID)
	text := s.generator.Generate(ctx, in.Text, contact, history)
	s.send(ctx, in.From, text)

	logger.Info("WhatsApp message processed",
		zap.String("language", string(lang)),
		zap.Int("history", len(history)),
		zap.Int64("latency_ms", time.Since(startTime).Milliseconds()))
	return OutcomeReplied
}

// priorHistory loads recent records without the message being answered.
// The current record is matched by the id it was logged under, or by delivery
// id when another writer logged it.
func (s *Service) priorHistory(ctx context.Context, in *Inbound, inboundID string) []core.MessageRecord {
	recs := s.log.History(ctx, in.From, s.historyLimit+1)
	out := recs[:0]
	for _, r := range recs {
		if r.ID == inboundID {
			continue
		}
		if r.Role == core.RoleUser && in.DeliveryID != "" && r.DeliveryID == in.DeliveryID {
			continue
		}
		out = append(out, r)
	}
	if len(out) > s.historyLimit {
		out = out[len(out)-s.historyLimit:]
	}
	return out
}

func (s *Service) send(ctx context.Context, to, body string) {
	msgID, err := s.sender.SendText(ctx, to, body)
	if err != nil {
		utils.Zlog.Error("Failed to send WhatsApp message",
			zap.String("wa_id", to),
			zap.Error(err))
		return
	}
	s.log.Append(ctx, core.MessageRecord{
		ExternalID: to,
		Role:       core.RoleAssistant,
		Content:    body,
		DeliveryID: msgID,
		CreatedAt:  s.now(),
	})
}

func (s *Service) sendOutOfHours(ctx context.Context, to string, lang core.Language) {
	if s.outOfHoursTemplate == "" {
		s.send(ctx, to, OutOfHours(lang))
		return
	}
	msgID, err := s.sender.SendTemplate(ctx, to, s.outOfHoursTemplate, TemplateLanguageCode(lang))
	if err != nil {
		utils.Zlog.Warn("Out-of-hours template failed, sending text",
			zap.String("wa_id", to),
			zap.String("template", s.outOfHoursTemplate),
			zap.Error(err))
		s.send(ctx, to, OutOfHours(lang))
		return
	}
	s.log.Append(ctx, core.MessageRecord{
		ExternalID: to,
		Role:       core.RoleAssistant,
		Content:    "[template:" + s.outOfHoursTemplate + "]",
		DeliveryID: msgID,
		CreatedAt:  s.now(),
	})
}
