package responder

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestStub_PicksAFixedTemplate(t *testing.T) {
	g := NewStub(rand.NewPCG(1, 2))
	want := Templates("Login broken")
	if len(want) != 3 {
		t.Fatalf("expected 3 templates, got %d", len(want))
	}

	for range 20 {
		got, err := g.Generate(context.Background(), "Login broken", "Cannot log in since yesterday")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !slices.Contains(want, got) {
			t.Fatalf("unexpected response %q", got)
		}
		if !strings.Contains(got, `"Login broken"`) {
			t.Errorf("title not interpolated: %q", got)
		}
	}
}

func TestStub_CoversAllTemplates(t *testing.T) {
	g := NewStub(rand.NewPCG(7, 11))
	seen := map[string]bool{}
	for range 200 {
		got, _ := g.Generate(context.Background(), "x", "")
		seen[got] = true
	}
	if len(seen) != 3 {
		t.Errorf("saw %d distinct templates in 200 draws", len(seen))
	}
}

func TestStub_IgnoresDescription(t *testing.T) {
	a, _ := NewStub(rand.NewPCG(3, 3)).Generate(context.Background(), "t", "one")
	b, _ := NewStub(rand.NewPCG(3, 3)).Generate(context.Background(), "t", "two")
	if a != b {
		t.Error("description influenced the response")
	}
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing auth header")
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %s", req.Model)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "Login broken") {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  Try resetting your password.  "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	g := NewOpenAI("test-key", WithBaseURL(srv.URL), WithModel("test-model"))
	got, err := g.Generate(context.Background(), "Login broken", "Cannot log in since yesterday")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Try resetting your password." {
		t.Errorf("got %q", got)
	}
}

func TestOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	g := NewOpenAI("k", WithBaseURL(srv.URL))
	if _, err := g.Generate(context.Background(), "t", "d"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	g := NewOpenAI("k", WithBaseURL(srv.URL))
	if _, err := g.Generate(context.Background(), "t", "d"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestAnthropic_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "claude-test" {
			t.Errorf("model = %s", req.Model)
		}
		if req.System != "Be brief." {
			t.Errorf("system = %q", req.System)
		}
		if req.MaxTokens <= 0 {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Login broken") {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"Try "},{"type":"text","text":"resetting your password."}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	g := NewAnthropic("test-key",
		WithAnthropicBaseURL(srv.URL),
		WithAnthropicModel("claude-test"),
		WithAnthropicSystemPrompt("Be brief."))
	got, err := g.Generate(context.Background(), "Login broken", "Cannot log in")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Try resetting your password." {
		t.Errorf("got %q", got)
	}
}

func TestAnthropic_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", WithAnthropicBaseURL(srv.URL)).Generate(context.Background(), "t", "d")
	if err == nil || !strings.Contains(err.Error(), "max_tokens too large") {
		t.Fatalf("err = %v", err)
	}
}

func TestAnthropic_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"tool_use","id":"x"}]}`))
	}))
	defer srv.Close()

	if _, err := NewAnthropic("k", WithAnthropicBaseURL(srv.URL)).Generate(context.Background(), "t", "d"); err == nil {
		t.Fatal("expected error for response without text")
	}
}
