package audit

import (
	"sync"
	"time"
)

// CircuitBreaker trips after threshold consecutive Critical events land
// within window, short-circuiting further instantiate/call attempts with
// ResourceLimitExceeded until cooldown elapses, per spec.md §2's
// data-flow summary naming a "C10: ... circuit-breaker hook" without
// detailing its trip/reset policy further — the consecutive-within-window
// rule and cooldown reset here are this module's resolution of that open
// question (recorded in DESIGN.md).
type CircuitBreaker struct {
	threshold int
	window    time.Duration
	cooldown  time.Duration

	mu         sync.Mutex
	consecutive int
	firstAt     time.Time
	trippedAt   time.Time
}

// NewCircuitBreaker constructs a breaker that trips after threshold
// consecutive Critical events observed within window of each other, and
// resets automatically cooldown after it trips.
func NewCircuitBreaker(threshold int, window, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{threshold: threshold, window: window, cooldown: cooldown}
}

// Observe feeds ev through the breaker. Non-Critical events reset the
// consecutive counter (only a run of Criticals trips it).
func (b *CircuitBreaker) Observe(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Severity != SeverityCritical {
		b.consecutive = 0
		return
	}

	now := ev.Timestamp
	if b.consecutive == 0 || now.Sub(b.firstAt) > b.window {
		b.firstAt = now
		b.consecutive = 1
		return
	}
	b.consecutive++
	if b.consecutive >= b.threshold {
		// Open measures the cooldown against the wall clock, so the trip
		// time is recorded on that clock too.
		b.trippedAt = time.Now()
	}
}

// Open reports whether the breaker is currently tripped, auto-resetting
// once cooldown has elapsed since it tripped.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.trippedAt.IsZero() {
		return false
	}
	if time.Since(b.trippedAt) >= b.cooldown {
		b.trippedAt = time.Time{}
		b.consecutive = 0
		return false
	}
	return true
}

// Reset clears the breaker's state unconditionally.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.firstAt = time.Time{}
	b.trippedAt = time.Time{}
}
