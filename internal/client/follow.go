package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// DefaultRefreshInterval is how often a followed list is re-fetched in full.
const DefaultRefreshInterval = 30 * time.Second

// Lister lists the caller's tickets, newest first.
type Lister interface {
	ListTickets(ctx context.Context, status string, limit int) ([]*protocol.Ticket, error)
}

// Follower keeps a View of all the caller's tickets current. The change feed
// drives updates; a periodic full re-list repairs anything the feed dropped.
type Follower struct {
	list     Lister
	feed     Subscriber
	interval time.Duration
	logger   *slog.Logger
}

// NewFollower creates a Follower. feed may be nil, in which case the list is
// only refreshed on the interval.
func NewFollower(list Lister, feed Subscriber, interval time.Duration, logger *slog.Logger) *Follower {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{list: list, feed: feed, interval: interval, logger: logger}
}

// Follow loads the caller's tickets into view and keeps merging changes
// until ctx is done. render is called once after the initial load and again
// after every change, always from Follow's own goroutine.
func (f *Follower) Follow(ctx context.Context, view *View, render func(*View)) error {
	tickets, err := f.list.ListTickets(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("follow: initial list: %w", err)
	}
	view.ReconcileAll(tickets)
	render(view)

	dirty := make(chan struct{}, 1)
	if f.feed != nil {
		sub, err := f.feed.Subscribe(ctx, func(ev protocol.Event) {
			if !view.Apply(ev) {
				return
			}
			select {
			case dirty <- struct{}{}:
			default:
			}
		})
		if err != nil {
			f.logger.Warn("change feed unavailable, refreshing on interval only", "error", err)
		} else {
			defer sub.Close()
		}
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dirty:
			render(view)
		case <-ticker.C:
			tickets, err := f.list.ListTickets(ctx, "", 0)
			if err != nil {
				if errors.Is(err, protocol.ErrUnauthenticated) {
					return fmt.Errorf("follow: refresh: %w", err)
				}
				f.logger.Debug("refresh failed", "error", err)
				continue
			}
			if view.ReconcileAll(tickets) > 0 {
				render(view)
			}
		}
	}
}
