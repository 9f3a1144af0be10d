package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// MaxHistory is the most history entries ever handed to a tier.
const MaxHistory = 6

// Prompt is what every tier receives for one reply.
type Prompt struct {
	Instructions   string
	Messages       []*schema.Message // chronological history followed by the current message
	CustomerName   string
	Language       core.Language
	HistorySnippet string
}

// Tier produces a reply or fails, letting the generator try the next one.
type Tier interface {
	Name() string
	Respond(ctx context.Context, p *Prompt) (string, error)
}

// Generator tries each tier in order and falls back to a canned sentence.
type Generator struct {
	tiers        []Tier
	historyLimit int
	tierTimeout  time.Duration
}

// NewGenerator builds a generator. Nil tiers are skipped.
func NewGenerator(historyLimit int, tiers ...Tier) *Generator {
	if historyLimit <= 0 || historyLimit > MaxHistory {
		historyLimit = MaxHistory
	}
	g := &Generator{historyLimit: historyLimit, tierTimeout: 30 * time.Second}
	for _, t := range tiers {
		if t != nil {
			g.tiers = append(g.tiers, t)
		}
	}
	return g
}

// Tiers lists the configured tier names in call order.
func (g *Generator) Tiers() []string {
	names := make([]string, len(g.tiers))
	for i, t := range g.tiers {
		names[i] = t.Name()
	}
	return names
}

// Generate never fails. history must be chronological and must not contain
// the current message.
func (g *Generator) Generate(ctx context.Context, message string, contact *core.Contact, history []core.MessageRecord) string {
	lang := core.DefaultLanguage
	name := ""
	if contact != nil {
		lang = contact.Language.OrDefault()
		name = contact.DisplayName
	}

	p := g.buildPrompt(message, lang, name, history)
	for _, tier := range g.tiers {
		tctx, cancel := context.WithTimeout(ctx, g.tierTimeout)
		text, err := tier.Respond(tctx, p)
		cancel()
		if err != nil {
			utils.Zlog.Warn("Reply tier failed, falling through",
				zap.String("tier", tier.Name()),
				zap.Error(err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			utils.Zlog.Debug("Reply generated", zap.String("tier", tier.Name()))
			return text
		}
	}
	return DefaultReply(lang, name)
}

func (g *Generator) buildPrompt(message string, lang core.Language, name string, history []core.MessageRecord) *Prompt {
	if len(history) > g.historyLimit {
		history = history[len(history)-g.historyLimit:]
	}

	messages := make([]*schema.Message, 0, len(history)+1)
	var snippet strings.Builder
	for _, rec := range history {
		switch rec.Role {
		case core.RoleUser:
			messages = append(messages, schema.UserMessage(rec.Content))
		case core.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(rec.Content, nil))
		default:
			continue
		}
		fmt.Fprintf(&snippet, "%s: %s\n", rec.Role, rec.Content)
	}
	messages = append(messages, schema.UserMessage(message))
	fmt.Fprintf(&snippet, "%s: %s", core.RoleUser, message)

	return &Prompt{
		Instructions:   Instructions(lang, name),
		Messages:       messages,
		CustomerName:   name,
		Language:       lang,
		HistorySnippet: snippet.String(),
	}
}

var languageNames = map[core.Language]string{
	core.LanguagePortuguese: "Portuguese",
	core.LanguageEnglish:    "English",
	core.LanguageSpanish:    "Spanish",
}

// Instructions tells the model to answer only in lang and to greet by name
// when one is known.
func Instructions(lang core.Language, name string) string {
	lang = lang.OrDefault()
	var b strings.Builder
	b.WriteString("You are a customer support agent. ")
	fmt.Fprintf(&b, "Always reply in %s (%s), whatever language the customer writes in. ", languageNames[lang], lang)
	if name != "" {
		fmt.Fprintf(&b, "The customer's name is %s; greet them by name.", name)
	} else {
		b.WriteString("The customer's name is unknown; do not invent one.")
	}
	return b.String()
}

// DefaultReply is the canned sentence used when no tier produced text.
func DefaultReply(lang core.Language, name string) string {
	switch lang.OrDefault() {
	case core.LanguagePortuguese:
		if name != "" {
			return fmt.Sprintf("Oi, %s! Já estou verificando as opções para você. 😊", name)
		}
		return "Recebi sua mensagem e já estou verificando as opções para você. 😊"
	case core.LanguageSpanish:
		if name != "" {
			return fmt.Sprintf("¡Hola, %s! Ya estoy revisando opciones para ti. 😊", name)
		}
		return "Recibí tu mensaje y ya estoy revisando opciones para ti. 😊"
	default:
		if name != "" {
			return fmt.Sprintf("Hi, %s! I'm checking options for you now. 😊", name)
		}
		return "Got your message. I'm checking options for you now. 😊"
	}
}
