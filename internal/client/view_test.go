package client

import (
	"testing"
	"time"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func tk(id string, status protocol.TicketStatus, updated time.Duration) *protocol.Ticket {
	return &protocol.Ticket{
		ID: id, Title: "T " + id, Description: "d", Status: status, OwnerID: "alice",
		CreatedAt: base, UpdatedAt: base.Add(updated),
	}
}

func order(v *View) []string {
	var ids []string
	for _, t := range v.Tickets() {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestReconcile_PrependsNew(t *testing.T) {
	v := NewView()
	v.Reconcile(tk("a", protocol.TicketOpen, 0))
	v.Reconcile(tk("b", protocol.TicketOpen, 0))

	got := order(v)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("order = %v", got)
	}
}

func TestReconcile_ReplacesInPlace(t *testing.T) {
	v := NewView()
	v.Reconcile(tk("a", protocol.TicketOpen, 0))
	v.Reconcile(tk("b", protocol.TicketOpen, 0))

	resp := "Thank you for contacting SupportFlow"
	next := tk("a", protocol.TicketPending, time.Second)
	next.AIResponse = &resp
	if !v.Reconcile(next) {
		t.Fatal("expected change")
	}

	got := order(v)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("order = %v", got)
	}
	a, _ := v.Get("a")
	if a.Status != protocol.TicketPending || *a.AIResponse != resp {
		t.Errorf("a = %s %v", a.Status, a.AIResponse)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	v := NewView()
	x := tk("a", protocol.TicketOpen, 0)
	v.Reconcile(x)
	if v.Reconcile(x) {
		t.Error("second reconcile reported a change")
	}
	v.Apply(protocol.Event{Type: protocol.EventInsert, Ticket: x})
	if v.Len() != 1 {
		t.Errorf("len = %d", v.Len())
	}
}

func TestReconcile_LastArrivalWins(t *testing.T) {
	v := NewView()
	v.Reconcile(tk("a", protocol.TicketPending, 2*time.Second))

	// A later arrival replaces the held copy even when the server clock
	// stamped it earlier.
	if !v.Reconcile(tk("a", protocol.TicketResolved, time.Second)) {
		t.Fatal("later arrival not applied")
	}
	a, _ := v.Get("a")
	if a.Status != protocol.TicketResolved {
		t.Errorf("status = %q", a.Status)
	}
	if v.Len() != 1 {
		t.Errorf("len = %d", v.Len())
	}
}

func TestReconcileAll_KeepsListOrder(t *testing.T) {
	v := NewView()
	// Newest first, as the API returns them.
	n := v.ReconcileAll([]*protocol.Ticket{
		tk("c", protocol.TicketOpen, 0),
		tk("b", protocol.TicketPending, 0),
		tk("a", protocol.TicketResolved, 0),
	})
	if n != 3 {
		t.Errorf("changed = %d", n)
	}
	got := order(v)
	if len(got) != 3 || got[0] != "c" || got[2] != "a" {
		t.Errorf("order = %v", got)
	}

	// Merging the same list again together with a feed event is a union.
	v.Apply(protocol.Event{Type: protocol.EventInsert, Ticket: tk("d", protocol.TicketOpen, 0)})
	v.ReconcileAll([]*protocol.Ticket{tk("c", protocol.TicketOpen, 0)})
	if v.Len() != 4 || order(v)[0] != "d" {
		t.Errorf("order = %v", order(v))
	}

	c := v.Counts()
	if c.Open != 2 || c.Pending != 1 || c.Resolved != 1 || c.Total != 4 {
		t.Errorf("counts = %+v", c)
	}
}

func TestTickets_ReturnsCopies(t *testing.T) {
	v := NewView()
	v.Reconcile(tk("a", protocol.TicketOpen, 0))
	v.Tickets()[0].Title = "mutated"
	a, _ := v.Get("a")
	if a.Title == "mutated" {
		t.Error("view exposed internal ticket")
	}
}
