// Package lifecycle owns the ticket state machine: creation in open, the
// deferred automated response that moves a ticket to pending, and the
// resolve action that closes it out.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supportflow-io/supportflow/internal/feed"
	"github.com/supportflow-io/supportflow/internal/metrics"
	"github.com/supportflow-io/supportflow/internal/notify"
	"github.com/supportflow-io/supportflow/internal/responder"
	"github.com/supportflow-io/supportflow/internal/ticket"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

const (
	DefaultCompletionDelay   = 2 * time.Second
	DefaultCompletionTimeout = 60 * time.Second

	notifyTimeout = 10 * time.Second
)

// Deferrer runs a function once after a delay, detached from the caller.
type Deferrer interface {
	After(name string, delay time.Duration, fn func())
}

// Cron registers recurring jobs.
type Cron interface {
	AddJob(name, schedule string, fn func()) error
}

// Config holds lifecycle timing.
type Config struct {
	// CompletionDelay is how long after creation the response is generated.
	CompletionDelay time.Duration
	// CompletionTimeout bounds one completion (generation plus store writes).
	CompletionTimeout time.Duration
}

// Controller is the single entry point for ticket mutations.
type Controller struct {
	store    ticket.Store
	gen      responder.Generator
	feed     *feed.Broker
	sched    Deferrer
	notifier notify.Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Controller. Zero Config durations take the defaults.
func New(store ticket.Store, gen responder.Generator, broker *feed.Broker, sched Deferrer, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CompletionDelay <= 0 {
		cfg.CompletionDelay = DefaultCompletionDelay
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultCompletionTimeout
	}
	return &Controller{
		store:    store,
		gen:      gen,
		feed:     broker,
		sched:    sched,
		notifier: notify.Logger{Log: logger},
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier replaces the default log-only notifier.
func (c *Controller) SetNotifier(n notify.Notifier) {
	if n != nil {
		c.notifier = n
	}
}

// Create persists a new open ticket and schedules its one completion.
func (c *Controller) Create(ctx context.Context, ownerID, title, description string) (*protocol.Ticket, error) {
	if ownerID == "" {
		return nil, protocol.ErrUnauthenticated
	}
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", protocol.ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", protocol.ErrValidation)
	}

	now := c.now()
	t := &protocol.Ticket{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      protocol.TicketOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		OwnerID:     ownerID,
	}
	if err := c.store.Insert(ctx, t, now.Add(c.cfg.CompletionDelay)); err != nil {
		return nil, fmt.Errorf("lifecycle: create: %w", err)
	}
	metrics.TicketsCreated.Inc()
	c.logger.Info("ticket created", "ticket", t.ID, "owner", ownerID, "title", title)

	c.publish(protocol.EventInsert, t)

	id := t.ID
	c.sched.After("complete:"+id, c.cfg.CompletionDelay, func() {
		c.Complete(context.Background(), id)
	})
	return t.Clone(), nil
}

// Complete generates and stores the automated response for a ticket and
// moves it to pending. It runs at most once per ticket: the first caller to
// claim the completion job wins and every later call is a no-op. Failures
// are logged and dropped; there is no retry.
func (c *Controller) Complete(ctx context.Context, ticketID string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CompletionTimeout)
	defer cancel()
	log := c.logger.With("ticket", ticketID)

	job, ok, err := c.store.ClaimCompletion(ctx, ticketID)
	if err != nil {
		metrics.Completions.WithLabelValues("store_error").Inc()
		log.Error("completion claim failed", "error", err)
		return
	}
	if !ok {
		metrics.Completions.WithLabelValues("skipped").Inc()
		log.Debug("completion already claimed")
		return
	}

	err = c.complete(ctx, job)
	if ferr := c.store.FinishCompletion(context.WithoutCancel(ctx), ticketID, err); ferr != nil {
		log.Error("completion bookkeeping failed", "error", ferr)
	}
	if err != nil {
		log.Error("completion failed", "generator", c.gen.Name(), "error", err)
	}
}

func (c *Controller) complete(ctx context.Context, job ticket.Job) error {
	t, err := c.store.Get(ctx, job.TicketID, job.OwnerID)
	if err != nil {
		metrics.Completions.WithLabelValues("store_error").Inc()
		return fmt.Errorf("load ticket: %w", err)
	}

	text, err := c.gen.Generate(ctx, t.Title, t.Description)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		metrics.Completions.WithLabelValues("generate_error").Inc()
		return fmt.Errorf("generate: %w", err)
	}

	next := t.Clone()
	next.AIResponse = &text
	if err := protocol.CanTransition(next, protocol.TicketPending); err != nil {
		metrics.Completions.WithLabelValues("skipped").Inc()
		return err
	}

	pending, open := protocol.TicketPending, protocol.TicketOpen
	updated, err := c.store.Update(ctx, t.ID, t.OwnerID, ticket.Patch{
		Status:     &pending,
		AIResponse: &text,
		From:       &open,
	})
	if err != nil {
		metrics.Completions.WithLabelValues("store_error").Inc()
		return fmt.Errorf("store response: %w", err)
	}

	metrics.Completions.WithLabelValues("ok").Inc()
	metrics.CompletionLatency.Observe(c.now().Sub(t.CreatedAt).Seconds())
	c.logger.Info("ticket response ready", "ticket", t.ID, "owner", t.OwnerID, "generator", c.gen.Name())

	c.publish(protocol.EventUpdate, updated)
	c.notify(notify.ResponseReady, updated)
	return nil
}

// Resolve moves a pending ticket to resolved. A ticket in any other status
// fails with protocol.ErrInvalidTransition and is left unchanged, so a
// second resolve is an error rather than a no-op.
func (c *Controller) Resolve(ctx context.Context, ticketID, ownerID string) (*protocol.Ticket, error) {
	if ownerID == "" {
		return nil, protocol.ErrUnauthenticated
	}

	resolved, pending := protocol.TicketResolved, protocol.TicketPending
	updated, err := c.store.Update(ctx, ticketID, ownerID, ticket.Patch{
		Status: &resolved,
		From:   &pending,
	})
	if err != nil {
		metrics.Resolves.WithLabelValues(resultLabel(err)).Inc()
		return nil, fmt.Errorf("lifecycle: resolve: %w", err)
	}
	metrics.Resolves.WithLabelValues("ok").Inc()
	c.logger.Info("ticket resolved", "ticket", ticketID, "owner", ownerID)

	c.publish(protocol.EventUpdate, updated)
	c.notify(notify.Resolved, updated)
	return updated, nil
}

// Get returns one of ownerID's tickets.
func (c *Controller) Get(ctx context.Context, ticketID, ownerID string) (*protocol.Ticket, error) {
	if ownerID == "" {
		return nil, protocol.ErrUnauthenticated
	}
	return c.store.Get(ctx, ticketID, ownerID)
}

// List returns ownerID's tickets, newest first.
func (c *Controller) List(ctx context.Context, ownerID string, status *protocol.TicketStatus, limit int) ([]*protocol.Ticket, error) {
	if ownerID == "" {
		return nil, protocol.ErrUnauthenticated
	}
	return c.store.List(ctx, ticket.Filter{OwnerID: ownerID, Status: status, Limit: limit})
}

// Stats returns ownerID's ticket counts by status.
func (c *Controller) Stats(ctx context.Context, ownerID string) (protocol.StatusCounts, error) {
	if ownerID == "" {
		return protocol.StatusCounts{}, protocol.ErrUnauthenticated
	}
	return c.store.Count(ctx, ownerID)
}

// Subscribe registers fn for change events on ownerID's tickets. The caller
// owns the returned subscription and must Close it.
func (c *Controller) Subscribe(ownerID string, fn feed.Handler) (*feed.Subscription, error) {
	if ownerID == "" {
		return nil, protocol.ErrUnauthenticated
	}
	return c.feed.Subscribe(ownerID, fn), nil
}

// Recover runs every completion that is due but was never claimed, e.g.
// because the process restarted while its timer was pending. It returns the
// number of jobs attempted.
func (c *Controller) Recover(ctx context.Context) (int, error) {
	jobs, err := c.store.DueCompletions(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("lifecycle: recover: %w", err)
	}
	for _, job := range jobs {
		c.Complete(ctx, job.TicketID)
	}
	if len(jobs) > 0 {
		c.logger.Info("recovered overdue completions", "count", len(jobs))
	}
	return len(jobs), nil
}

// RegisterSweep runs Recover on schedule so a completion whose timer was
// lost is still picked up while the process is running.
func (c *Controller) RegisterSweep(cron Cron, schedule string) error {
	return cron.AddJob("completion-sweep", schedule, func() {
		if _, err := c.Recover(context.Background()); err != nil {
			c.logger.Error("completion sweep failed", "error", err)
		}
	})
}

func (c *Controller) publish(typ protocol.EventType, t *protocol.Ticket) {
	if c.feed == nil {
		return
	}
	c.feed.Publish(protocol.Event{Type: typ, Ticket: t})
}

// notify runs on its own goroutine; staff notifications never hold up a
// ticket mutation.
func (c *Controller) notify(kind notify.Kind, t *protocol.Ticket) {
	n := notify.Notice{Kind: kind, Ticket: t.Clone()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.logger.Warn("notification failed", "ticket", n.Ticket.ID, "kind", string(kind), "error", err)
		}
	}()
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		return "not_found"
	case errors.Is(err, protocol.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "store_error"
	}
}
