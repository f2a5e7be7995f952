package ticket

import (
	"context"
	"time"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// Store is the persistence interface for tickets and their completion jobs.
// Every ticket operation is scoped to an owner; a ticket owned by someone else
// is reported as protocol.ErrNotFound.
type Store interface {
	// Insert persists a new ticket together with its completion job, atomically.
	Insert(ctx context.Context, t *protocol.Ticket, completeAt time.Time) error
	// Get retrieves a ticket by ID for its owner.
	Get(ctx context.Context, id, ownerID string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error)
	// Count returns per-status counts for an owner.
	Count(ctx context.Context, ownerID string) (protocol.StatusCounts, error)
	// Update applies a patch and returns the updated ticket.
	Update(ctx context.Context, id, ownerID string, patch Patch) (*protocol.Ticket, error)

	// ClaimCompletion moves a scheduled job to claimed. It returns false when
	// the job was already claimed or finished.
	ClaimCompletion(ctx context.Context, ticketID string) (Job, bool, error)
	// FinishCompletion records the outcome of a claimed job.
	FinishCompletion(ctx context.Context, ticketID string, failure error) error
	// DueCompletions lists scheduled jobs whose due time is not after now.
	DueCompletions(ctx context.Context, now time.Time) ([]Job, error)
}

// Filter constrains ticket list queries.
type Filter struct {
	OwnerID string // required
	Status  *protocol.TicketStatus
	Limit   int // 0 = no limit
}

// Patch is a partial ticket update. Nil fields are left alone.
type Patch struct {
	Status     *protocol.TicketStatus
	AIResponse *string
	// From makes the update conditional on the current status. When the
	// ticket exists but is in another status, Update fails with
	// protocol.ErrInvalidTransition and nothing is written.
	From *protocol.TicketStatus
}

// JobState is the state of a completion job.
type JobState string

const (
	JobScheduled JobState = "scheduled"
	JobClaimed   JobState = "claimed"
	JobDone      JobState = "done"
	JobFailed    JobState = "failed"
)

// Job is the durable record of a ticket's one deferred completion.
type Job struct {
	TicketID  string
	OwnerID   string
	DueAt     time.Time
	State     JobState
	Error     string
	UpdatedAt time.Time
}
