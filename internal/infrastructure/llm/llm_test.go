package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatCompletionAnalyze(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Fatalf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[{\"name\":\"Acme\"}]"}}]}`))
	}))
	defer srv.Close()

	client := NewChatCompletionClient(ChatConfig{Endpoint: srv.URL, Model: "sonar", APIKey: "key", SystemPrompt: "be terse"})
	out, err := client.Analyze(context.Background(), "list competitors", 500, 0.2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out != `[{"name":"Acme"}]` {
		t.Fatalf("unexpected content %q", out)
	}
	if got.Model != "sonar" || got.MaxTokens != 500 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestChatCompletionErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewChatCompletionClient(ChatConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"})
	_, err := client.Analyze(context.Background(), "p", 10, 0)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestChatCompletionMisconfigured(t *testing.T) {
	client := NewChatCompletionClient(ChatConfig{Endpoint: "http://localhost", Model: "m"})
	if _, err := client.Analyze(context.Background(), "p", 10, 0); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestClaudeAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "claude-test" {
			t.Fatalf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"[{\"title\":\"t\"}]"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":5}
		}`))
	}))
	defer srv.Close()

	analyzer, err := NewClaudeAnalyzer(ClaudeConfig{APIKey: "k", Model: "claude-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	out, err := analyzer.Analyze(context.Background(), "score these", 2000, 0.3)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out != `[{"title":"t"}]` {
		t.Fatalf("unexpected text %q", out)
	}
}

func TestClaudeRequiresKey(t *testing.T) {
	if _, err := NewClaudeAnalyzer(ClaudeConfig{Model: "m"}); err == nil {
		t.Fatalf("expected error without key")
	}
}
