package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/supportflow-io/supportflow/pkg/protocol"
)

// stagedLister returns pages[i] on the i-th call and the last page after.
type stagedLister struct {
	mu    sync.Mutex
	calls int
	pages [][]*protocol.Ticket
	err   error
}

func (l *stagedLister) ListTickets(context.Context, string, int) ([]*protocol.Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil && l.calls > 1 {
		return nil, l.err
	}
	i := min(l.calls, len(l.pages)) - 1
	return l.pages[i], nil
}

type snapshot struct {
	ids    []string
	counts protocol.StatusCounts
}

func follow(t *testing.T, f *Follower) (chan snapshot, context.CancelFunc, chan error) {
	t.Helper()
	renders := make(chan snapshot, 32)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Follow(ctx, NewView(), func(v *View) {
			renders <- snapshot{ids: order(v), counts: v.Counts()}
		})
	}()
	return renders, cancel, done
}

func nextRender(t *testing.T, renders chan snapshot) snapshot {
	t.Helper()
	select {
	case s := <-renders:
		return s
	case <-time.After(time.Second):
		t.Fatal("no render")
		return snapshot{}
	}
}

func TestFollow_MergesFeedIntoList(t *testing.T) {
	lister := &stagedLister{pages: [][]*protocol.Ticket{{
		tk("b", protocol.TicketOpen, 0),
		tk("a", protocol.TicketResolved, 0),
	}}}
	feed := &fakeFeed{}
	renders, cancel, done := follow(t, NewFollower(lister, feed, time.Hour, nil))

	first := nextRender(t, renders)
	if len(first.ids) != 2 || first.ids[0] != "b" || first.counts.Resolved != 1 {
		t.Fatalf("initial = %+v", first)
	}

	deadline := time.Now().Add(time.Second)
	for {
		feed.mu.Lock()
		ready := feed.fn != nil
		feed.mu.Unlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("follower never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feed.deliver(protocol.Event{Type: protocol.EventInsert, Ticket: tk("c", protocol.TicketOpen, 0)})
	got := nextRender(t, renders)
	if len(got.ids) != 3 || got.ids[0] != "c" || got.counts.Open != 2 {
		t.Errorf("after insert = %+v", got)
	}

	feed.deliver(protocol.Event{Type: protocol.EventUpdate, Ticket: tk("b", protocol.TicketPending, time.Second)})
	got = nextRender(t, renders)
	if len(got.ids) != 3 || got.ids[1] != "b" || got.counts.Pending != 1 || got.counts.Open != 1 {
		t.Errorf("after update = %+v", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if !feed.sub.closed.Load() {
		t.Error("subscription not released")
	}
}

func TestFollow_RefreshRepairsDroppedEvent(t *testing.T) {
	resp := "Thank you for contacting SupportFlow"
	pending := tk("a", protocol.TicketPending, time.Second)
	pending.AIResponse = &resp
	lister := &stagedLister{pages: [][]*protocol.Ticket{
		{tk("a", protocol.TicketOpen, 0)},
		{pending},
	}}
	renders, cancel, done := follow(t, NewFollower(lister, nil, 10*time.Millisecond, nil))
	defer func() {
		cancel()
		<-done
	}()

	if s := nextRender(t, renders); s.counts.Open != 1 {
		t.Fatalf("initial = %+v", s)
	}
	if s := nextRender(t, renders); s.counts.Pending != 1 || s.counts.Total != 1 {
		t.Errorf("after refresh = %+v", s)
	}
}

func TestFollow_InitialListError(t *testing.T) {
	f := NewFollower(listerFunc(func() error { return protocol.ErrUnauthenticated }), nil, time.Hour, nil)
	err := f.Follow(context.Background(), NewView(), func(*View) { t.Error("rendered without a list") })
	if !errors.Is(err, protocol.ErrUnauthenticated) {
		t.Errorf("err = %v", err)
	}
}

type listerFunc func() error

func (fn listerFunc) ListTickets(context.Context, string, int) ([]*protocol.Ticket, error) {
	return nil, fn()
}
