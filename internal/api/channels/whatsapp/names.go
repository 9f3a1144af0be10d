package whatsapp

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	namePhrase  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:meu nome é|meu nome e|mi nombre es|my name is)\s+([\p{L}']+)`)
	namePattern = regexp.MustCompile(`^[a-zA-ZÀ-ÿ' ]{2,30}$`)
)

// notNames are words customers commonly send that look like a bare name.
var notNames = map[string]bool{
	"hi": true, "hello": true, "hey": true, "thanks": true, "thank": true, "yes": true, "no": true,
	"ok": true, "okay": true, "good": true, "price": true, "book": true, "schedule": true,
	"availability": true, "oi": true, "olá": true, "ola": true, "bom": true, "boa": true,
	"obrigado": true, "obrigada": true, "sim": true, "não": true, "nao": true, "agenda": true,
	"hola": true, "buenas": true, "buenos": true, "gracias": true, "si": true, "sí": true,
	"precio": true, "disponibilidad": true, "disponibilidade": true, "human": true,
	"humano": true, "atendente": true, "menu": true, "help": true, "ajuda": true, "ayuda": true,
}

// ExplicitName extracts the name from "my name is X" style phrases in any of
// the supported languages.
func ExplicitName(text string) (string, bool) {
	m := namePhrase.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return cleanName(m[1])
}

// NameAnswer treats a short alphabetic reply as the customer's name. Only the
// first word is kept.
func NameAnswer(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if name, ok := ExplicitName(text); ok {
		return name, true
	}
	if !namePattern.MatchString(text) {
		return "", false
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 3 {
		return "", false
	}
	for _, w := range words {
		if notNames[strings.ToLower(w)] {
			return "", false
		}
	}
	return cleanName(words[0])
}

// ProfileName cleans the display name the provider sends with a message.
func ProfileName(raw string) (string, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(raw) < 2 {
		return "", false
	}
	hasLetter := false
	for _, r := range raw {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	return raw, hasLetter
}

func cleanName(word string) (string, bool) {
	word = strings.Trim(word, "'")
	if utf8.RuneCountInString(word) < 2 || notNames[strings.ToLower(word)] {
		return "", false
	}
	r, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r)) + word[size:], true
}

// containsKeyword matches whole words case-insensitively.
func containsKeyword(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		for _, k := range keywords {
			if w == strings.ToLower(k) {
				return true
			}
		}
	}
	return false
}
