package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/supportflow-io/supportflow/internal/api"
	"github.com/supportflow-io/supportflow/internal/auth"
	"github.com/supportflow-io/supportflow/internal/config"
	"github.com/supportflow-io/supportflow/internal/feed"
	"github.com/supportflow-io/supportflow/internal/lifecycle"
	"github.com/supportflow-io/supportflow/internal/logbuf"
	"github.com/supportflow-io/supportflow/internal/notify"
	"github.com/supportflow-io/supportflow/internal/responder"
	"github.com/supportflow-io/supportflow/internal/scheduler"
	"github.com/supportflow-io/supportflow/internal/ticket"
	"github.com/supportflow-io/supportflow/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	configURL := flag.String("config-url", os.Getenv("SUPPORTFLOW_CONFIG_URL"), "Config service URL")
	serviceID := flag.String("service-id", os.Getenv("SUPPORTFLOW_SERVICE_ID"), "Service ID for remote config")
	configKey := flag.String("config-key", os.Getenv("SUPPORTFLOW_CONFIG_KEY"), "API key for the config service")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}

	// Config is loaded before the log buffer is sized, so bootstrap logs go
	// straight to stdout.
	boot := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	var cfg *config.Config
	var err error
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case *configURL != "":
		boot.Info("loading config from config service", "url", *configURL, "service_id", *serviceID)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		cfg, err = config.LoadRemote(ctx, config.RemoteOptions{
			URL:       *configURL,
			ServiceID: *serviceID,
			APIKey:    *configKey,
		})
		cancel()
	default:
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logBuf := logbuf.New(cfg.Service.LogBuffer)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	if err := run(cfg, logger, logBuf); err != nil {
		logger.Error("supportd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, logBuf *logbuf.Buffer) error {
	logger.Info("supportd starting", "service_id", cfg.Service.ID)

	// 1. Ticket store
	if err := os.MkdirAll(cfg.Service.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := ticket.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open ticket store %s: %w", cfg.DBPath(), err)
	}
	defer store.Close()

	// 2. Response generator and notifiers
	gen := newGenerator(cfg.Responder)
	logger.Info("responder initialized", "type", gen.Name(), "model", cfg.Responder.Model)

	notifier, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		return err
	}

	// 3. Lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(logger.With("component", "scheduler"))
	broker := feed.New(cfg.Lifecycle.FeedQueue, logger.With("component", "feed"))
	ctrl := lifecycle.New(store, gen, broker, sched, lifecycle.Config{
		CompletionDelay:   cfg.Lifecycle.CompletionDelay.Duration,
		CompletionTimeout: cfg.Lifecycle.CompletionTimeout.Duration,
	}, logger.With("component", "lifecycle"))
	ctrl.SetNotifier(notifier)

	if err := ctrl.RegisterSweep(sched, cfg.Lifecycle.SweepSchedule); err != nil {
		return err
	}
	if _, err := ctrl.Recover(ctx); err != nil {
		logger.Warn("completion recovery failed, the sweep will retry", "error", err)
	}

	// 4. API
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	srv := api.NewServer(ctrl, verifier, api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		AdminKey:     cfg.API.AdminKey,
		PollInterval: cfg.Lifecycle.PollInterval.Duration,
	}, logger.With("component", "api"), logBuf)
	if len(cfg.Webhooks) > 0 {
		srv.MountWebhook(webhook.New(cfg.Webhooks, ctrl, logger.With("component", "webhook")))
		logger.Info("webhook endpoints mounted", "count", len(cfg.Webhooks))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return sched.Start(gctx) })
	logger.Info("supportd started", "addr", cfg.Addr())

	err = g.Wait()
	logger.Info("shutting down")

	// Let in-flight completions finish before the store closes.
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Lifecycle.CompletionTimeout.Duration)
	defer cancel()
	if werr := sched.Wait(waitCtx); werr != nil {
		logger.Warn("completions still running at shutdown", "pending", sched.Pending())
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("supportd stopped")
	return nil
}

func newGenerator(cfg config.ResponderConfig) responder.Generator {
	switch cfg.Type {
	case "openai":
		var opts []responder.OpenAIOption
		if cfg.BaseURL != "" {
			opts = append(opts, responder.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, responder.WithModel(cfg.Model))
		}
		if cfg.SystemPrompt != "" {
			opts = append(opts, responder.WithSystemPrompt(cfg.SystemPrompt))
		}
		return responder.NewOpenAI(cfg.APIKey, opts...)
	case "anthropic":
		var opts []responder.AnthropicOption
		if cfg.BaseURL != "" {
			opts = append(opts, responder.WithAnthropicBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, responder.WithAnthropicModel(cfg.Model))
		}
		if cfg.SystemPrompt != "" {
			opts = append(opts, responder.WithAnthropicSystemPrompt(cfg.SystemPrompt))
		}
		return responder.NewAnthropic(cfg.APIKey, opts...)
	default:
		seed := uint64(time.Now().UnixNano())
		return responder.NewStub(rand.NewPCG(seed, seed>>1))
	}
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	multi := notify.Multi{notify.Logger{Log: logger.With("component", "notify")}}
	if cfg.Slack.Enabled() {
		s, err := notify.NewSlack(notify.SlackConfig{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
		})
		if err != nil {
			return nil, err
		}
		multi = append(multi, s)
		logger.Info("slack notifications enabled")
	}
	if cfg.Telegram.Enabled() {
		t, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		}, logger.With("component", "telegram"))
		if err != nil {
			return nil, err
		}
		multi = append(multi, t)
		logger.Info("telegram notifications enabled", "chat_id", cfg.Telegram.ChatID)
	}
	return multi, nil
}
