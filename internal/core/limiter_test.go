package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCalculationLimiter_AcquireRelease(t *testing.T) {
	l := NewCalculationLimiter(2, time.Second)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire #%d failed: %v", i, err)
		}
		if got := l.ActiveCount(); got != i {
			t.Errorf("after Acquire #%d, ActiveCount = %d, want %d", i, got, i)
		}
	}
	if got := l.Available(); got != 0 {
		t.Errorf("Available = %d, want 0", got)
	}

	l.Release()
	l.Release()
	if got := l.ActiveCount(); got != 0 {
		t.Errorf("final ActiveCount = %d, want 0", got)
	}
	if got := l.Available(); got != 2 {
		t.Errorf("final Available = %d, want 2", got)
	}
}

func TestCalculationLimiter_TimesOutWhenFull(t *testing.T) {
	l := NewCalculationLimiter(1, 80*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer l.Release()

	start := time.Now()
	err := l.Acquire(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyCalculations) {
		t.Errorf("Acquire = %v, want ErrTooManyCalculations", err)
	}
	if elapsed < 70*time.Millisecond {
		t.Errorf("returned after %v, before the wait timeout", elapsed)
	}
}

func TestCalculationLimiter_ContextCancelled(t *testing.T) {
	l := NewCalculationLimiter(1, 5*time.Second)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire on empty limiter failed")
	}
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Acquire(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestCalculationLimiter_TryAcquire(t *testing.T) {
	l := NewCalculationLimiter(1, time.Second)

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if l.TryAcquire() {
		t.Error("second TryAcquire should fail while the slot is held")
		l.Release()
	}
	l.Release()
	if !l.TryAcquire() {
		t.Error("TryAcquire after Release should succeed")
	}
	l.Release()
}

func TestCalculationLimiter_NeverExceedsMax(t *testing.T) {
	const max = 3
	l := NewCalculationLimiter(max, time.Second)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		observed int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer l.Release()

			mu.Lock()
			if n := l.ActiveCount(); n > observed {
				observed = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if observed > max {
		t.Errorf("observed %d concurrent calculations, max %d", observed, max)
	}
}

func TestCalculationLimiter_WaitForDrain(t *testing.T) {
	l := NewCalculationLimiter(2, time.Second)
	l.TryAcquire()

	done := make(chan error, 1)
	go func() { done <- l.WaitForDrain(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitForDrain returned while a calculation was active")
	case <-time.After(60 * time.Millisecond):
	}

	l.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForDrain = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForDrain did not return after release")
	}
}

func TestCalculationLimiter_WaitForDrain_Idle(t *testing.T) {
	l := NewCalculationLimiter(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain on idle limiter = %v, want nil", err)
	}
}

func TestCalculationLimiter_Status(t *testing.T) {
	l := NewCalculationLimiter(0, 0)
	l.TryAcquire()
	defer l.Release()

	got := l.Status()
	want := LimiterStatus{Active: 1, Available: DefaultMaxConcurrentCalculations - 1, MaxConcurrent: DefaultMaxConcurrentCalculations}
	if got != want {
		t.Errorf("Status() = %+v, want %+v", got, want)
	}
}

func TestCalculationLimiter_StatusCountsWaiters(t *testing.T) {
	l := NewCalculationLimiter(1, time.Second)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire on empty limiter failed")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.Acquire(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for l.Status().Waiting != 1 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never showed up in Status")
		}
		time.Sleep(5 * time.Millisecond)
	}

	l.Release()
	if err := <-errCh; err != nil {
		t.Fatalf("queued Acquire = %v", err)
	}
	if got := l.Status(); got.Waiting != 0 || got.Active != 1 {
		t.Errorf("Status() = %+v, want 1 active and no waiters", got)
	}
	l.Release()
}
