package protocol

// EventType distinguishes change feed events.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is a change feed notification for one ticket. Subscriptions are
// keyed on Ticket.OwnerID.
type Event struct {
	Type   EventType `json:"type"`
	Ticket *Ticket   `json:"ticket"`
}

// Profile is the authenticated caller as presented to clients.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
