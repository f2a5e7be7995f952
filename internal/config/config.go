package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "SUPPORTFLOW_"

// Config is the top-level supportd configuration.
type Config struct {
	Service   ServiceConfig            `json:"service" envPrefix:"SERVICE_"`
	Lifecycle LifecycleConfig          `json:"lifecycle" envPrefix:"LIFECYCLE_"`
	Responder ResponderConfig          `json:"responder" envPrefix:"RESPONDER_"`
	Auth      AuthConfig               `json:"auth" envPrefix:"AUTH_"`
	API       APIConfig                `json:"api" envPrefix:"API_"`
	Notify    NotifyConfig             `json:"notify" envPrefix:"NOTIFY_"`
	Webhooks  map[string]WebhookConfig `json:"webhooks,omitempty"`
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	ID        string `json:"id" env:"ID" envDefault:"supportflow"`
	DataDir   string `json:"data_dir" env:"DATA_DIR" envDefault:"/data"`
	LogBuffer int    `json:"log_buffer,omitempty" env:"LOG_BUFFER" envDefault:"2000"`
}

// LifecycleConfig holds ticket lifecycle timing.
type LifecycleConfig struct {
	CompletionDelay   Duration `json:"completion_delay" env:"COMPLETION_DELAY" envDefault:"2s"`
	CompletionTimeout Duration `json:"completion_timeout,omitempty" env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	PollInterval      Duration `json:"poll_interval" env:"POLL_INTERVAL" envDefault:"2s"` // client polling fallback
	SweepSchedule     string   `json:"sweep_schedule,omitempty" env:"SWEEP_SCHEDULE" envDefault:"@every 30s"`
	FeedQueue         int      `json:"feed_queue,omitempty" env:"FEED_QUEUE" envDefault:"64"`
}

// ResponderConfig selects and configures the response generator.
type ResponderConfig struct {
	Type         string `json:"type" env:"TYPE" envDefault:"stub"` // "stub", "openai" or "anthropic"
	APIKey       string `json:"api_key,omitempty" env:"API_KEY"`
	BaseURL      string `json:"base_url,omitempty" env:"BASE_URL"`
	Model        string `json:"model,omitempty" env:"MODEL"`
	SystemPrompt string `json:"system_prompt,omitempty" env:"SYSTEM_PROMPT"`
}

// AuthConfig holds access-token verification settings.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `json:"issuer,omitempty" env:"ISSUER"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host     string `json:"host" env:"HOST" envDefault:"0.0.0.0"`
	Port     int    `json:"port" env:"PORT" envDefault:"8080"`
	AdminKey string `json:"admin_key,omitempty" env:"ADMIN_KEY"`
}

// NotifyConfig holds staff notification channels. A channel with its
// required field empty is disabled.
type NotifyConfig struct {
	Slack    SlackConfig    `json:"slack" envPrefix:"SLACK_"`
	Telegram TelegramConfig `json:"telegram" envPrefix:"TELEGRAM_"`
}

// SlackConfig holds Slack incoming-webhook settings.
type SlackConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" env:"WEBHOOK_URL"`
	Channel    string `json:"channel,omitempty" env:"CHANNEL"`
	Username   string `json:"username,omitempty" env:"USERNAME"`
}

// Enabled reports whether Slack notifications are configured.
func (c SlackConfig) Enabled() bool { return c.WebhookURL != "" }

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token  string `json:"token,omitempty" env:"TOKEN"`
	ChatID int64  `json:"chat_id,omitempty" env:"CHAT_ID"`
}

// Enabled reports whether Telegram notifications are configured.
func (c TelegramConfig) Enabled() bool { return c.Token != "" }

// WebhookConfig authenticates one inbound webhook endpoint.
type WebhookConfig struct {
	// Secret for HMAC-SHA256 signature verification (X-Hub-Signature-256 header).
	// If empty, Bearer auth is used instead.
	Secret string `json:"secret,omitempty"`
	// BearerToken for Authorization header auth. Used if Secret is empty.
	BearerToken string `json:"bearer_token,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	// Defaults come from the envDefault tags; no variables are consulted.
	env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Load reads configuration from a JSON file. Fields the file leaves out keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.Service.DataDir) {
		cfg.Service.DataDir = filepath.Join(filepath.Dir(path), cfg.Service.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a config from SUPPORTFLOW_* environment variables,
// e.g. SUPPORTFLOW_AUTH_JWT_SECRET or SUPPORTFLOW_LIFECYCLE_COMPLETION_DELAY.
// A single webhook endpoint can be declared with SUPPORTFLOW_WEBHOOK_NAME plus
// SUPPORTFLOW_WEBHOOK_SECRET or SUPPORTFLOW_WEBHOOK_BEARER_TOKEN.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if name := os.Getenv(EnvPrefix + "WEBHOOK_NAME"); name != "" {
		cfg.Webhooks = map[string]WebhookConfig{
			name: {
				Secret:      os.Getenv(EnvPrefix + "WEBHOOK_SECRET"),
				BearerToken: os.Getenv(EnvPrefix + "WEBHOOK_BEARER_TOKEN"),
			},
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields and consistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}
	if c.Service.DataDir == "" {
		errs = append(errs, "service.data_dir is required")
	}

	if c.Lifecycle.CompletionDelay.Duration < 0 {
		errs = append(errs, "lifecycle.completion_delay must not be negative")
	}
	if c.Lifecycle.CompletionTimeout.Duration <= 0 {
		errs = append(errs, "lifecycle.completion_timeout must be positive")
	}
	if c.Lifecycle.PollInterval.Duration <= 0 {
		errs = append(errs, "lifecycle.poll_interval must be positive")
	}
	if c.Lifecycle.SweepSchedule == "" {
		errs = append(errs, "lifecycle.sweep_schedule is required")
	}

	switch c.Responder.Type {
	case "stub":
	case "openai", "anthropic":
		if c.Responder.APIKey == "" {
			errs = append(errs, fmt.Sprintf("responder.api_key is required for the %s responder", c.Responder.Type))
		}
	default:
		errs = append(errs, fmt.Sprintf("responder.type %q is not one of stub, openai, anthropic", c.Responder.Type))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if c.Notify.Telegram.Enabled() && c.Notify.Telegram.ChatID == 0 {
		errs = append(errs, "notify.telegram.chat_id is required")
	}

	for name := range c.Webhooks {
		if name == "" || strings.Contains(name, "/") {
			errs = append(errs, fmt.Sprintf("webhooks: invalid endpoint name %q", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DBPath returns the ticket database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.Service.DataDir, "tickets.db")
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// Duration is a time.Duration that reads "2s"-style strings from JSON and
// the environment.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		return d.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("invalid duration value: %v", value)
	}
}

// UnmarshalText parses a duration string such as "2s" or "1m30s".
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration format '%s': %w", string(b), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}
