package whatsapp

import "testing"

func TestExplicitName(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"meu nome é ana clara", "Ana", true},
		{"Meu nome é Ana", "Ana", true},
		{"Oi! mi nombre es Lucía y quiero reservar", "Lucía", true},
		{"hello, my name is bob", "Bob", true},
		{"I want to book", "", false},
		{"my name is hi", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExplicitName(tt.text)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ExplicitName(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNameAnswer(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Ana", "Ana", true},
		{"  joão silva ", "João", true},
		{"D'Angelo", "D'Angelo", true},
		{"hello", "", false},
		{"oi", "", false},
		{"Buenas tardes", "", false},
		{"quero reservar uma mesa para hoje", "", false},
		{"5511999", "", false},
		{"a", "", false},
		{"my name is Carla", "Carla", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := NameAnswer(tt.text)
			if got != tt.want || ok != tt.ok {
				t.Errorf("NameAnswer(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestProfileName(t *testing.T) {
	if got, ok := ProfileName("  Maria   Souza "); !ok || got != "Maria Souza" {
		t.Errorf("ProfileName = (%q, %v)", got, ok)
	}
	for _, raw := range []string{"", "x", "123 456"} {
		if _, ok := ProfileName(raw); ok {
			t.Errorf("ProfileName(%q) should be rejected", raw)
		}
	}
}

func TestContainsKeyword(t *testing.T) {
	keywords := []string{"human", "atendente", "humano"}
	if !containsKeyword("Quero falar com um ATENDENTE!", keywords) {
		t.Error("Expected case-insensitive match")
	}
	if !containsKeyword("human please", keywords) {
		t.Error("Expected match")
	}
	if containsKeyword("humanity is great", keywords) {
		t.Error("Partial words must not match")
	}
	if containsKeyword("human", nil) {
		t.Error("No keywords must never match")
	}
}
