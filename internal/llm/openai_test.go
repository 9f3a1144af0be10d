package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

// capturedRequest holds the fields of a Responses request the tests inspect.
type capturedRequest struct {
	Model        string            `json:"model"`
	Instructions string            `json:"instructions"`
	Metadata     map[string]string `json:"metadata"`
	Input        []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
}

func writeResponse(w http.ResponseWriter, parts ...string) {
	content := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		content = append(content, map[string]any{"type": "output_text", "text": p, "annotations": []any{}})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "resp_1",
		"object": "response",
		"status": "completed",
		"output": []map[string]any{{
			"type": "message", "id": "msg_1", "role": "assistant", "status": "completed", "content": content,
		}},
	})
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if c := NewOpenAIClient("https://api.openai.com/v1", "", "gpt-4o-mini"); c != nil {
		t.Error("Expected nil client without API key")
	}
}

func TestOpenAICompleteSendsConversation(t *testing.T) {
	var got capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeResponse(w, "  Olá Ana!  ")
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL+"/v1/", "sk-test", "gpt-4o-mini")
	text, err := client.Complete(context.Background(), "reply in pt", []*schema.Message{
		schema.UserMessage("oi"),
		schema.AssistantMessage("Olá!", nil),
		schema.UserMessage("tem mesa?"),
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "Olá Ana!" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "gpt-4o-mini" || got.Instructions != "reply in pt" || len(got.Input) != 3 {
		t.Fatalf("Unexpected request: %+v", got)
	}
	if got.Input[1].Role != "assistant" || got.Input[2].Content != "tem mesa?" {
		t.Errorf("Unexpected input order: %+v", got.Input)
	}
}

func TestOpenAIRunAgentUsesAgentPathAndMetadata(t *testing.T) {
	var got capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/agent_123/responses" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeResponse(w, "Hi ", "Ana")
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "sk-test", "gpt-4o-mini")
	text, err := client.RunAgent(context.Background(), "agent_123", "be nice",
		[]*schema.Message{schema.UserMessage("hello")},
		map[string]string{"customer_name": "Ana", "customer_lang": "en"})
	if err != nil {
		t.Fatalf("RunAgent returned error: %v", err)
	}
	if text != "Hi Ana" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "" || got.Metadata["customer_name"] != "Ana" || got.Instructions != "be nice" {
		t.Errorf("Unexpected agent request: %+v", got)
	}
}

func TestOpenAIErrorsAreTyped(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/responses":
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
		default:
			fmt.Fprint(w, `{"id":"resp_2","object":"response","output":[]}`)
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "sk-test", "gpt-4o-mini")

	_, err := client.Classify(context.Background(), "ok")
	var terr *core.TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected TransportError with 429, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected no retries, got %d calls", calls)
	}

	_, err = client.RunAgent(context.Background(), "a1", "", nil, nil)
	var perr *core.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("Expected ParseError for empty output, got %v", err)
	}
}

func TestOpenAIClassifySendsFixedPrompt(t *testing.T) {
	var got capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		writeResponse(w, "pt")
	}))
	defer server.Close()

	code, err := NewOpenAIClient(server.URL, "k", "m").Classify(context.Background(), "bom dia")
	if err != nil || code != "pt" {
		t.Fatalf("Classify = (%q, %v)", code, err)
	}
	if len(got.Input) != 2 || got.Input[0].Role != "system" || got.Input[0].Content != classifyInstructions || got.Input[1].Content != "Text: bom dia" {
		t.Errorf("Unexpected classify input: %+v", got.Input)
	}
}
