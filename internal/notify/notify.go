// Package notify tells support staff about ticket lifecycle milestones.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supportflow-io/supportflow/internal/metrics"
	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// Kind is the milestone being announced.
type Kind string

const (
	ResponseReady Kind = "response_ready"
	Resolved      Kind = "resolved"
)

// Notice is one announcement about a ticket.
type Notice struct {
	Kind   Kind
	Ticket *protocol.Ticket
}

// Notifier delivers notices to an external channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notice) error
}

// Multi fans a notice out to several notifiers. Every notifier is tried;
// failures are joined.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			metrics.NotifyErrors.WithLabelValues(nt.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", nt.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Logger is a Notifier that only writes to the log. Used when no external
// channel is configured.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Name() string { return "log" }

func (l Logger) Notify(_ context.Context, n Notice) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("ticket notice", "kind", string(n.Kind), "ticket", n.Ticket.ID, "status", string(n.Ticket.Status))
	return nil
}

// Format renders a notice as plain text.
func Format(n Notice) string {
	t := n.Ticket
	var b strings.Builder
	switch n.Kind {
	case ResponseReady:
		fmt.Fprintf(&b, "Automated response ready for ticket %s: %q\n", t.ID, t.Title)
		if t.AIResponse != nil {
			b.WriteString("\n")
			b.WriteString(StripMarkdown(*t.AIResponse))
		}
	case Resolved:
		fmt.Fprintf(&b, "Ticket %s resolved: %q", t.ID, t.Title)
	default:
		fmt.Fprintf(&b, "Ticket %s (%s): %q", t.ID, t.Status, t.Title)
	}
	return b.String()
}
