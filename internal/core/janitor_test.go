package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	ages    []time.Duration
	removed int
	err     error
}

func (f *fakeSweeper) Sweep(_ context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ages = append(f.ages, olderThan)
	return f.removed, f.err
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestJanitor_RunOnce(t *testing.T) {
	sw := &fakeSweeper{removed: 4}
	j := NewJanitor(sw, JanitorConfig{Retention: time.Hour, Interval: time.Minute}, nil)

	if got := j.RunOnce(context.Background()); got != 4 {
		t.Errorf("RunOnce = %d, want 4", got)
	}
	if sw.ages[0] != time.Hour {
		t.Errorf("sweep cutoff = %v, want 1h", sw.ages[0])
	}
}

func TestJanitor_RunOnce_Error(t *testing.T) {
	sw := &fakeSweeper{removed: 1, err: errors.New("permission denied")}
	j := NewJanitor(sw, JanitorConfig{Retention: time.Hour, Interval: time.Minute}, nil)

	if got := j.RunOnce(context.Background()); got != 1 {
		t.Errorf("RunOnce = %d, want 1 even on error", got)
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	sw := &fakeSweeper{}
	j := NewJanitor(sw, JanitorConfig{Retention: time.Second, Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for sw.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d sweeps ran", sw.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewJanitor_DefaultInterval(t *testing.T) {
	j := NewJanitor(&fakeSweeper{}, JanitorConfig{}, nil)
	if j.cfg.Interval != 10*time.Minute {
		t.Errorf("Interval = %v, want 10m", j.cfg.Interval)
	}
}
