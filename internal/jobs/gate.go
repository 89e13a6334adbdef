package jobs

import (
	"context"
	"sync"
	"time"

	"casework/internal/backoff"
)

// Gate serializes write transactions into a single logical writer and retries
// transiently-locked writes with bounded backoff.
//
// Admission is strictly first-come-first-served: callers take a ticket under
// the mutex and execute in ticket order, so concurrent submissions observe a
// deterministic write order regardless of how SQLite resolves its own locks.
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64

	attempts int
	strategy backoff.Strategy
}

// GatePolicy tunes the busy-retry loop applied to each admitted write.
type GatePolicy struct {
	Attempts int
	Strategy backoff.Strategy
}

// DefaultGatePolicy mirrors the repository defaults: five attempts with
// exponential backoff from 10ms capped at 200ms.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		Attempts: 5,
		Strategy: backoff.NewExponential(10*time.Millisecond, 200*time.Millisecond),
	}
}

// NewGate constructs a write gate with the given retry policy.
func NewGate(policy GatePolicy) *Gate {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultGatePolicy().Attempts
	}
	if policy.Strategy == nil {
		policy.Strategy = DefaultGatePolicy().Strategy
	}
	g := &Gate{attempts: policy.Attempts, strategy: policy.Strategy}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Do admits op for execution once all previously submitted writes finish,
// then runs fn inside the busy-retry loop. A transient lock error is retried
// up to the attempt ceiling; exhaustion surfaces a *LockedError. Context
// cancellation is honored only while waiting between retries, never once fn
// is committed to run, so uncancelable writes (terminal finalization) pass a
// context that is already detached from cancellation.
func (g *Gate) Do(ctx context.Context, op string, fn func() error) error {
	g.mu.Lock()
	ticket := g.next
	g.next++
	for ticket != g.serving {
		g.cond.Wait()
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.serving++
		g.cond.Broadcast()
		g.mu.Unlock()
	}()

	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !IsBusy(lastErr) {
			return lastErr
		}
		if attempt == g.attempts {
			break
		}
		select {
		case <-time.After(g.strategy.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &LockedError{Op: op, Attempts: g.attempts, Err: lastErr}
}
