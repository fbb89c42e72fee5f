package core

// limiter.go caps parallel calculations. A request that finds every slot
// taken waits up to maxWait, then fails with ErrTooManyCalculations so the
// handler can answer 503. Shutdown uses WaitForDrain.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyCalculations is returned when all slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyCalculations = errors.New("too many calculations in progress")

// DefaultMaxConcurrentCalculations is the default limit for parallel calculations.
const DefaultMaxConcurrentCalculations = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// CalculationLimiter bounds concurrent calculations with a buffered channel
// used as a semaphore. Counters are atomic so Status never blocks a slot.
type CalculationLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	active  atomic.Int32
	waiting atomic.Int32
}

// NewCalculationLimiter creates a limiter that allows at most maxConcurrent
// simultaneous calculations. Non-positive arguments fall back to defaults.
func NewCalculationLimiter(maxConcurrent int, maxWait time.Duration) *CalculationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCalculations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &CalculationLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most the configured time. It returns
// ErrTooManyCalculations on timeout, or ctx.Err() if ctx ends first. Every
// successful Acquire must be paired with Release.
func (l *CalculationLimiter) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyCalculations
	}
}

// TryAcquire takes a slot only if one is free.
func (l *CalculationLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *CalculationLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of calculations holding a slot.
func (l *CalculationLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *CalculationLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain polls until no calculation holds a slot or ctx ends.
func (l *CalculationLimiter) WaitForDrain(ctx context.Context) error {
	const poll = 50 * time.Millisecond
	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	return nil
}

// LimiterStatus is a snapshot for the health endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current counters.
func (l *CalculationLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Waiting:       int(l.waiting.Load()),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
