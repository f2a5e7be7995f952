// Package responder produces the automated first response attached to a
// new ticket.
package responder

import "context"

// Generator turns a ticket's title and description into response text.
type Generator interface {
	Generate(ctx context.Context, title, description string) (string, error)
	Name() string
}
