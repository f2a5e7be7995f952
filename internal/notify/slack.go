package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackConfig holds Slack incoming-webhook settings.
type SlackConfig struct {
	WebhookURL string
	Channel    string // optional override of the webhook's default channel
	Username   string
}

// Slack posts notices to a Slack incoming webhook.
type Slack struct {
	cfg SlackConfig
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack: webhook_url is required")
	}
	if cfg.Username == "" {
		cfg.Username = "SupportFlow"
	}
	return &Slack{cfg: cfg}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, n Notice) error {
	msg := &slack.WebhookMessage{
		Text:     Format(n),
		Channel:  s.cfg.Channel,
		Username: s.cfg.Username,
	}
	if err := slack.PostWebhookContext(ctx, s.cfg.WebhookURL, msg); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}
