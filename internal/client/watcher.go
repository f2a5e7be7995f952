package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// DefaultPollInterval is how often a watched ticket is re-fetched while the
// automated response is outstanding.
const DefaultPollInterval = 2 * time.Second

// Fetcher reads a single ticket.
type Fetcher interface {
	GetTicket(ctx context.Context, id string) (*protocol.Ticket, error)
}

// Subscription is an open change-feed subscription.
type Subscription interface {
	Close() error
}

// Subscriber opens a change-feed subscription for the caller's tickets.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(protocol.Event)) (Subscription, error)
}

// Watcher observes one ticket until its automated response is visible. It
// listens to the change feed and, because feed delivery may drop events, also
// polls on a fixed interval for as long as the ticket is open without a
// response.
type Watcher struct {
	fetch    Fetcher
	feed     Subscriber
	view     *View
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher. feed may be nil, in which case only polling
// is used.
func NewWatcher(fetch Fetcher, feed Subscriber, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{fetch: fetch, feed: feed, view: NewView(), interval: interval, logger: logger}
}

// View returns the view every observed copy is reconciled into.
func (w *Watcher) View() *View { return w.view }

// Watch fetches ticket id, reports it to onChange, then keeps reporting every
// observed change until the ticket is no longer awaiting a response or ctx is
// done. It returns the last observed state. The feed subscription and the
// poll ticker are both released before Watch returns.
func (w *Watcher) Watch(ctx context.Context, id string, onChange func(*protocol.Ticket)) (*protocol.Ticket, error) {
	first, err := w.fetch.GetTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("watch: initial fetch: %w", err)
	}
	w.view.Reconcile(first)
	last, _ := w.view.Get(id)
	if onChange != nil {
		onChange(last.Clone())
	}
	if !last.AwaitingResponse() {
		return last, nil
	}

	updates := make(chan *protocol.Ticket, 16)
	if w.feed != nil {
		sub, err := w.feed.Subscribe(ctx, func(ev protocol.Event) {
			if ev.Ticket == nil || ev.Ticket.ID != id {
				return
			}
			select {
			case updates <- ev.Ticket:
			default:
			}
		})
		if err != nil {
			w.logger.Warn("change feed unavailable, polling only", "ticket", id, "error", err)
		} else {
			defer sub.Close()
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		var next *protocol.Ticket
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case next = <-updates:
		case <-ticker.C:
			t, err := w.fetch.GetTicket(ctx, id)
			if err != nil {
				if errors.Is(err, protocol.ErrNotFound) || errors.Is(err, protocol.ErrUnauthenticated) {
					return last, fmt.Errorf("watch: poll: %w", err)
				}
				w.logger.Debug("poll failed", "ticket", id, "error", err)
				continue
			}
			next = t
		}

		if w.view.Reconcile(next) {
			last, _ = w.view.Get(id)
			if onChange != nil {
				onChange(last.Clone())
			}
		}
		if !last.AwaitingResponse() {
			return last, nil
		}
	}
}
