package protocol

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestCanTransition(t *testing.T) {
	t.Run("open to pending needs a response", func(t *testing.T) {
		tk := &Ticket{Status: TicketOpen}
		if err := CanTransition(tk, TicketPending); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		tk.AIResponse = strPtr("")
		if err := CanTransition(tk, TicketPending); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("empty response: expected ErrInvalidTransition, got %v", err)
		}
		tk.AIResponse = strPtr("hello")
		if err := CanTransition(tk, TicketPending); err != nil {
			t.Errorf("expected allowed, got %v", err)
		}
	})

	t.Run("open cannot skip to resolved", func(t *testing.T) {
		tk := &Ticket{Status: TicketOpen, AIResponse: strPtr("x")}
		if err := CanTransition(tk, TicketResolved); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("pending to resolved", func(t *testing.T) {
		tk := &Ticket{Status: TicketPending, AIResponse: strPtr("x")}
		if err := CanTransition(tk, TicketResolved); err != nil {
			t.Errorf("expected allowed, got %v", err)
		}
	})

	t.Run("nothing leaves resolved", func(t *testing.T) {
		tk := &Ticket{Status: TicketResolved, AIResponse: strPtr("x")}
		for _, to := range []TicketStatus{TicketOpen, TicketPending, TicketResolved} {
			if err := CanTransition(tk, to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("resolved -> %s: expected ErrInvalidTransition, got %v", to, err)
			}
		}
	})

	t.Run("no backwards moves", func(t *testing.T) {
		tk := &Ticket{Status: TicketPending, AIResponse: strPtr("x")}
		if err := CanTransition(tk, TicketOpen); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestParseTicketStatus(t *testing.T) {
	for _, in := range []string{"open", "PENDING", " resolved "} {
		if _, err := ParseTicketStatus(in); err != nil {
			t.Errorf("ParseTicketStatus(%q): %v", in, err)
		}
	}
	if _, err := ParseTicketStatus("closed"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for closed, got %v", err)
	}
}

func TestAwaitingResponse(t *testing.T) {
	tk := &Ticket{Status: TicketOpen}
	if !tk.AwaitingResponse() {
		t.Error("fresh open ticket should be awaiting a response")
	}
	tk.AIResponse = strPtr("done")
	if tk.AwaitingResponse() {
		t.Error("ticket with a response should not be awaiting")
	}
	tk = &Ticket{Status: TicketPending}
	if tk.AwaitingResponse() {
		t.Error("pending ticket should not be awaiting")
	}
}

func TestClone(t *testing.T) {
	tk := &Ticket{ID: "t1", AIResponse: strPtr("a")}
	c := tk.Clone()
	*c.AIResponse = "b"
	if *tk.AIResponse != "a" {
		t.Errorf("clone shares ai_response storage")
	}
}
