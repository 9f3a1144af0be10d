package whatsapp

import (
	"fmt"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

type localized map[core.Language]string

func (l localized) in(lang core.Language) string {
	if s, ok := l[lang.OrDefault()]; ok {
		return s
	}
	return l[core.DefaultLanguage]
}

var (
	askNameText = localized{
		core.LanguagePortuguese: "Oi! Como posso te chamar? 😊 (responda com seu primeiro nome)",
		core.LanguageEnglish:    "Hi! How should I call you? 😊 (please reply with your first name)",
		core.LanguageSpanish:    "¡Hola! ¿Cómo puedo llamarte? 😊 (responde con tu primer nombre)",
	}
	ackNameText = localized{
		core.LanguagePortuguese: "Obrigado, %s!",
		core.LanguageEnglish:    "Thanks, %s!",
		core.LanguageSpanish:    "¡Gracias, %s!",
	}
	handoffText = localized{
		core.LanguagePortuguese: "Certo! Vou te transferir para um atendente humano. Em breve alguém da equipe responde por aqui.",
		core.LanguageEnglish:    "Sure! I'm handing you over to a human agent. Someone from our team will reply here shortly.",
		core.LanguageSpanish:    "¡Claro! Te paso con un agente humano. Alguien del equipo te responderá por aquí en breve.",
	}
	outOfHoursText = localized{
		core.LanguagePortuguese: "Obrigado pela mensagem! Nosso atendimento está fora do horário agora. Respondemos assim que abrirmos.",
		core.LanguageEnglish:    "Thanks for your message! We're outside business hours right now. We'll reply as soon as we open.",
		core.LanguageSpanish:    "¡Gracias por tu mensaje! Ahora estamos fuera del horario de atención. Te responderemos en cuanto abramos.",
	}
)

func AskName(lang core.Language) string { return askNameText.in(lang) }

func AckName(lang core.Language, name string) string {
	return fmt.Sprintf(ackNameText.in(lang), name)
}

func HandoffConfirmation(lang core.Language) string { return handoffText.in(lang) }

func OutOfHours(lang core.Language) string { return outOfHoursText.in(lang) }
