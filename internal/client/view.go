package client

import (
	"sync"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// View is a client-side ordered collection of tickets, most recent first.
// Snapshots, feed events and poll results are all folded in with Reconcile,
// so the same ticket arriving from several channels never duplicates.
type View struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*protocol.Ticket
}

// NewView creates an empty view.
func NewView() *View {
	return &View{byID: make(map[string]*protocol.Ticket)}
}

// Reconcile merges t into the view. A known ticket is replaced in place by
// whatever copy arrived last; an unknown one is inserted at the front. It
// reports whether the view changed.
func (v *View) Reconcile(t *protocol.Ticket) bool {
	if t == nil || t.ID == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if cur, ok := v.byID[t.ID]; ok {
		if sameTicket(cur, t) {
			return false
		}
		v.byID[t.ID] = t.Clone()
		return true
	}
	v.byID[t.ID] = t.Clone()
	v.order = append([]string{t.ID}, v.order...)
	return true
}

// ReconcileAll merges a newest-first list, preserving its order for tickets
// not yet in the view.
func (v *View) ReconcileAll(ts []*protocol.Ticket) int {
	changed := 0
	for i := len(ts) - 1; i >= 0; i-- {
		if v.Reconcile(ts[i]) {
			changed++
		}
	}
	return changed
}

// Apply folds a change-feed event into the view.
func (v *View) Apply(ev protocol.Event) bool {
	return v.Reconcile(ev.Ticket)
}

// Get returns a copy of one ticket.
func (v *View) Get(id string) (*protocol.Ticket, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.byID[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tickets returns copies of all tickets in view order.
func (v *View) Tickets() []*protocol.Ticket {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*protocol.Ticket, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.byID[id].Clone())
	}
	return out
}

// Len returns the number of tickets held.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.order)
}

// Counts tallies the held tickets by status.
func (v *View) Counts() protocol.StatusCounts {
	v.mu.Lock()
	defer v.mu.Unlock()
	var c protocol.StatusCounts
	for _, t := range v.byID {
		switch t.Status {
		case protocol.TicketOpen:
			c.Open++
		case protocol.TicketPending:
			c.Pending++
		case protocol.TicketResolved:
			c.Resolved++
		}
		c.Total++
	}
	return c
}

func sameTicket(a, b *protocol.Ticket) bool {
	if a.Status != b.Status || a.Title != b.Title || a.Description != b.Description {
		return false
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if (a.AIResponse == nil) != (b.AIResponse == nil) {
		return false
	}
	return a.AIResponse == nil || *a.AIResponse == *b.AIResponse
}
