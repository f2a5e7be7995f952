package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJob(t *testing.T) {
	var calls atomic.Int32

	sched := New(nil)
	err := sched.AddJob("sweep", "@every 1s", func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	// Start cron and wait for it to fire
	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	sched.cron.Stop()

	if calls.Load() == 0 {
		t.Error("expected at least one call")
	}
}

func TestAddJob_ReplacesByName(t *testing.T) {
	sched := New(nil)
	sched.AddJob("sweep", "@every 1h", func() {})
	sched.AddJob("sweep", "@every 2h", func() {})
	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
	if n := len(sched.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d", n)
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(nil)
	err := sched.AddJob("sweep", "invalid-cron", func() {})
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(nil)
	sched.AddJob("a", "@every 1h", func() {})
	sched.AddJob("b", "@every 2h", func() {})

	if sched.JobCount() != 2 {
		t.Fatalf("JobCount = %d before remove", sched.JobCount())
	}

	sched.RemoveJob("a")
	sched.RemoveJob("missing")
	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d after remove", sched.JobCount())
	}
}

func TestAfter(t *testing.T) {
	sched := New(nil)
	fired := make(chan time.Time, 1)
	start := time.Now()
	sched.After("once", 50*time.Millisecond, func() { fired <- time.Now() })

	if sched.Pending() != 1 {
		t.Errorf("Pending = %d", sched.Pending())
	}

	select {
	case at := <-fired:
		if at.Sub(start) < 50*time.Millisecond {
			t.Errorf("fired early after %v", at.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sched.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending = %d after completion", sched.Pending())
	}
}

func TestAfter_RecoversPanic(t *testing.T) {
	sched := New(nil)
	sched.After("boom", time.Millisecond, func() { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sched.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
