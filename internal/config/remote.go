package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteOptions holds parameters for fetching config from a central config
// service.
type RemoteOptions struct {
	URL       string // e.g. https://config.example.com
	ServiceID string
	APIKey    string
	DataDir   string // local data directory, default /data
}

// LoadRemote fetches the service configuration from the config service,
// prepares the local data directory, and returns the parsed Config.
func LoadRemote(ctx context.Context, opts RemoteOptions) (*Config, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("remote config: url is required")
	}
	if opts.DataDir == "" {
		opts.DataDir = "/data"
	}

	resp, err := resty.New().
		SetTimeout(30*time.Second).
		R().
		SetContext(ctx).
		SetAuthToken(opts.APIKey).
		SetHeader("X-Service-ID", opts.ServiceID).
		Get(strings.TrimRight(opts.URL, "/") + "/api/services/config")
	if err != nil {
		return nil, fmt.Errorf("remote config: fetch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote config: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	cfg := Default()
	if err := json.Unmarshal(resp.Body(), cfg); err != nil {
		return nil, fmt.Errorf("remote config: parse: %w", err)
	}

	// The data dir is always local.
	cfg.Service.DataDir = opts.DataDir
	if opts.ServiceID != "" {
		cfg.Service.ID = opts.ServiceID
	}
	if err := os.MkdirAll(cfg.Service.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("remote config: create data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
