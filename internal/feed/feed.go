// Package feed is the in-process change feed. Every insert or update of a
// ticket is published to the subscriptions of the ticket's owner.
//
// Delivery is best-effort: each subscription has a bounded queue and events
// that do not fit are dropped. Observers that must not miss a state change
// pair a subscription with polling.
package feed

import (
	"log/slog"
	"sync"

	"github.com/supportflow-io/supportflow/internal/metrics"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

const defaultQueueSize = 64

// Handler receives events for one subscription. Calls for a given
// subscription are sequential.
type Handler func(protocol.Event)

// Broker fans ticket events out to owner-scoped subscriptions.
type Broker struct {
	mu        sync.RWMutex
	subs      map[string]map[*Subscription]struct{} // owner_id → subscriptions
	queueSize int
	logger    *slog.Logger
}

// New creates a broker. queueSize <= 0 uses the default.
func New(queueSize int, logger *slog.Logger) *Broker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:      make(map[string]map[*Subscription]struct{}),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscription is an owned handle on a stream of events. Close releases it.
type Subscription struct {
	broker  *Broker
	ownerID string
	queue   chan protocol.Event
	done    chan struct{}
	once    sync.Once
}

// Subscribe registers fn for every event concerning ownerID's tickets.
// The caller must Close the returned subscription when it stops observing.
func (b *Broker) Subscribe(ownerID string, fn Handler) *Subscription {
	sub := &Subscription{
		broker:  b,
		ownerID: ownerID,
		queue:   make(chan protocol.Event, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[*Subscription]struct{})
	}
	b.subs[ownerID][sub] = struct{}{}
	b.mu.Unlock()

	metrics.FeedSubscribers.Inc()
	go sub.run(fn)
	b.logger.Debug("feed subscribed", "owner", ownerID)
	return sub
}

func (s *Subscription) run(fn Handler) {
	for {
		select {
		case ev := <-s.queue:
			fn(ev)
		case <-s.done:
			return
		}
	}
}

// Close unregisters the subscription. Events still queued are discarded.
// Close is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		if set, ok := b.subs[s.ownerID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, s.ownerID)
			}
		}
		b.mu.Unlock()
		close(s.done)
		metrics.FeedSubscribers.Dec()
		b.logger.Debug("feed unsubscribed", "owner", s.ownerID)
	})
}

// Publish delivers ev to every subscription of the ticket's owner. It never
// blocks; a full queue drops the event for that subscriber.
func (b *Broker) Publish(ev protocol.Event) {
	if ev.Ticket == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[ev.Ticket.OwnerID] {
		// Each subscriber gets its own copy so handlers cannot alias.
		cp := protocol.Event{Type: ev.Type, Ticket: ev.Ticket.Clone()}
		select {
		case sub.queue <- cp:
		default:
			metrics.FeedDropped.Inc()
			b.logger.Warn("feed queue full, dropping event", "owner", sub.ownerID, "ticket", ev.Ticket.ID)
		}
	}
}

// Subscribers returns the number of live subscriptions for ownerID.
func (b *Broker) Subscribers(ownerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ownerID])
}
