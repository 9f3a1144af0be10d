package language

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// Classifier asks an external model for a language code.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

var (
	spanishPunct    = regexp.MustCompile(`[¿¡]`)
	spanishWords    = regexp.MustCompile(`\b(hola|disponibilidad|gracias|buen[oa]s|precio)\b`)
	englishWords    = regexp.MustCompile(`\b(hi|hello|thanks|availability|price|book|schedule)\b`)
	portugueseWords = regexp.MustCompile(`(^|[^\p{L}])(oi|olá|obrigad[oa]|disponibilidade|agenda|preço)($|[^\p{L}])`)
	portugueseChars = regexp.MustCompile(`[áâãéêíóôõúç]`)
)

// Detector resolves a customer's language from a single message.
type Detector struct {
	classifier Classifier
}

// NewDetector creates a detector. classifier may be nil.
func NewDetector(classifier Classifier) *Detector {
	return &Detector{classifier: classifier}
}

// Heuristic matches keyword and diacritic sets in the fixed order
// Spanish, English, Portuguese.
func Heuristic(text string) (core.Language, bool) {
	t := strings.ToLower(text)
	switch {
	case spanishPunct.MatchString(t) || spanishWords.MatchString(t):
		return core.LanguageSpanish, true
	case englishWords.MatchString(t):
		return core.LanguageEnglish, true
	case portugueseWords.MatchString(t) || portugueseChars.MatchString(t):
		return core.LanguagePortuguese, true
	}
	return "", false
}

// Detect never fails: classifier errors and unexpected answers fall back to
// the default language.
func (d *Detector) Detect(ctx context.Context, text string) core.Language {
	if lang, ok := Heuristic(text); ok {
		return lang
	}
	if d == nil || d.classifier == nil || strings.TrimSpace(text) == "" {
		return core.DefaultLanguage
	}

	code, err := d.classifier.Classify(ctx, text)
	if err != nil {
		utils.Zlog.Warn("Language classifier failed", zap.Error(err))
		return core.DefaultLanguage
	}
	if lang, ok := core.ParseLanguage(strings.ToLower(strings.TrimSpace(code))); ok {
		return lang
	}
	utils.Zlog.Debug("Language classifier returned unsupported code", zap.String("code", code))
	return core.DefaultLanguage
}
