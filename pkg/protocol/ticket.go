package protocol

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketPending, TicketResolved:
		return true
	}
	return false
}

// ParseTicketStatus converts a raw status string, rejecting unknown values.
func ParseTicketStatus(s string) (TicketStatus, error) {
	st := TicketStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// Ticket is a support request raised by a user.
type Ticket struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TicketStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	OwnerID     string       `json:"user_id"`
	AIResponse  *string      `json:"ai_response,omitempty"`
}

// HasResponse reports whether a non-empty generated response is attached.
func (t *Ticket) HasResponse() bool {
	return t.AIResponse != nil && *t.AIResponse != ""
}

// AwaitingResponse is true while the completion has not landed yet.
// Observers poll for as long as this holds.
func (t *Ticket) AwaitingResponse() bool {
	return t.Status == TicketOpen && !t.HasResponse()
}

// Clone returns a deep copy.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.AIResponse != nil {
		v := *t.AIResponse
		c.AIResponse = &v
	}
	return &c
}

// transitions lists the allowed forward moves. Nothing leaves resolved.
var transitions = map[TicketStatus]map[TicketStatus]struct{}{
	TicketOpen:     {TicketPending: {}},
	TicketPending:  {TicketResolved: {}},
	TicketResolved: {},
}

// CanTransition checks a status move for t. Moving to pending also requires
// a generated response to be present on t.
func CanTransition(t *Ticket, to TicketStatus) error {
	allowed, ok := transitions[t.Status]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, t.Status)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	if to == TicketPending && !t.HasResponse() {
		return fmt.Errorf("%w: %s -> %s without ai_response", ErrInvalidTransition, t.Status, to)
	}
	return nil
}

// StatusCounts is the per-status breakdown of a user's tickets.
type StatusCounts struct {
	Open     int `json:"open"`
	Pending  int `json:"pending"`
	Resolved int `json:"resolved"`
	Total    int `json:"total"`
}
