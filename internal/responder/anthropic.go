package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const anthropicAPIVersion = "2023-06-01"

// Anthropic generates responses with the Anthropic Messages API.
type Anthropic struct {
	rc           *resty.Client
	model        string
	systemPrompt string
	maxTokens    int
}

// AnthropicOption configures an Anthropic generator.
type AnthropicOption func(*Anthropic)

// WithAnthropicBaseURL sets a custom API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(g *Anthropic) { g.rc.SetBaseURL(strings.TrimRight(url, "/")) }
}

// WithAnthropicModel sets the model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(g *Anthropic) { g.model = model }
}

// WithAnthropicSystemPrompt replaces the default support-agent instructions.
func WithAnthropicSystemPrompt(prompt string) AnthropicOption {
	return func(g *Anthropic) { g.systemPrompt = prompt }
}

// NewAnthropic creates a generator backed by the Messages API.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *Anthropic {
	g := &Anthropic{
		rc: resty.New().
			SetBaseURL("https://api.anthropic.com").
			SetTimeout(120*time.Second).
			SetHeader("x-api-key", apiKey).
			SetHeader("anthropic-version", anthropicAPIVersion).
			SetHeader("Content-Type", "application/json"),
		model:        "claude-sonnet-4-20250514",
		systemPrompt: defaultSystemPrompt,
		maxTokens:    600,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Anthropic) Generate(ctx context.Context, title, description string) (string, error) {
	var out anthropicResponse
	resp, err := g.rc.R().
		SetContext(ctx).
		SetBody(anthropicRequest{
			Model:  g.model,
			System: g.systemPrompt,
			Messages: []anthropicMessage{
				{Role: "user", Content: fmt.Sprintf("Ticket title: %s\n\n%s", title, description)},
			},
			MaxTokens: g.maxTokens,
		}).
		SetResult(&out).
		SetError(&anthropicError{}).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("responder: anthropic: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if e, ok := resp.Error().(*anthropicError); ok && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return "", fmt.Errorf("responder: anthropic: api error (status %d): %s", resp.StatusCode(), msg)
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", errors.New("responder: anthropic: empty response")
	}
	return content, nil
}
