package session

import (
	"context"
	"testing"
	"time"

	"github.com/cbsinteractive/conversion-client/client"
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/pkg/errors"
)

func TestWatchUntilDone(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusRunning, 1)
	fc.inputs[0] = sbml("a.xml")
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}

	refreshes := 0
	fc.probeHook = func(int) {
		refreshes++
		if refreshes == 2 {
			fc.mu.Lock()
			fc.info.Status = job.StatusCompleted
			fc.mu.Unlock()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Watch(ctx, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.Status != job.StatusCompleted {
		t.Errorf("have %s want completed", s.Status)
	}
}

func TestWatchJobGone(t *testing.T) {
	ctx := context.Background()
	fc := newFake("42", job.StatusWaiting, 1)
	c := New(fc)
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	fc.mu.Lock()
	fc.missing = true
	fc.mu.Unlock()

	if err := c.Watch(ctx, time.Millisecond); !client.IsNotFound(err) {
		t.Errorf("have %v want not found", err)
	}
}

func TestWatchArgs(t *testing.T) {
	c := New(newFake("42", job.StatusWaiting, 0))
	if err := c.Watch(context.Background(), 0); err == nil {
		t.Error("expected an error for a zero interval")
	}
	if err := c.Watch(context.Background(), time.Millisecond); !errors.Is(err, ErrNoJob) {
		t.Errorf("have %v want ErrNoJob", err)
	}
}

func TestWatchCanceled(t *testing.T) {
	ctx := context.Background()
	c := New(newFake("42", job.StatusWaiting, 0))
	if err := c.LookupSession(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := c.Watch(ctx, time.Hour); err != context.Canceled {
		t.Errorf("have %v want context.Canceled", err)
	}
}
