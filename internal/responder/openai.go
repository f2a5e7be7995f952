package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = "You are a helpful customer support agent for SupportFlow. " +
	"Reply to the user's ticket with a short, concrete first response: acknowledge the problem, " +
	"list the immediate troubleshooting steps, and say what happens next. Use plain Markdown."

// OpenAI generates responses with any OpenAI-compatible chat completion API.
type OpenAI struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
}

// OpenAIOption configures an OpenAI generator.
type OpenAIOption func(*openaiSettings)

type openaiSettings struct {
	baseURL      string
	model        string
	systemPrompt string
	maxTokens    int
}

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(s *openaiSettings) { s.baseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) OpenAIOption {
	return func(s *openaiSettings) { s.model = model }
}

// WithSystemPrompt replaces the default support-agent instructions.
func WithSystemPrompt(prompt string) OpenAIOption {
	return func(s *openaiSettings) { s.systemPrompt = prompt }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) OpenAIOption {
	return func(s *openaiSettings) { s.maxTokens = n }
}

// NewOpenAI creates a generator backed by the chat completions endpoint.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	s := openaiSettings{
		model:        openai.GPT4o,
		systemPrompt: defaultSystemPrompt,
		maxTokens:    600,
	}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(cfg),
		model:        s.model,
		systemPrompt: s.systemPrompt,
		maxTokens:    s.maxTokens,
	}
}

func (g *OpenAI) Name() string { return "openai" }

func (g *OpenAI) Generate(ctx context.Context, title, description string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Ticket title: %s\n\n%s", title, description)},
		},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("responder: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("responder: openai: no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("responder: openai: empty response")
	}
	return content, nil
}
