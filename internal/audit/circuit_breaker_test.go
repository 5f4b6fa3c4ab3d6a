package audit

import (
	"testing"
	"time"
)

func TestCircuitBreakerTripsAfterConsecutiveCriticals(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute, time.Hour)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		b.Observe(Event{Severity: SeverityCritical, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	if b.Open() {
		t.Fatal("expected breaker closed before reaching threshold")
	}

	b.Observe(Event{Severity: SeverityCritical, Timestamp: base.Add(3 * time.Second)})
	if !b.Open() {
		t.Fatal("expected breaker open after threshold consecutive Criticals")
	}
}

func TestCircuitBreakerResetsOnNonCriticalEvent(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute, time.Hour)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	b.Observe(Event{Severity: SeverityCritical, Timestamp: base})
	b.Observe(Event{Severity: SeverityInfo, Timestamp: base.Add(time.Second)})
	b.Observe(Event{Severity: SeverityCritical, Timestamp: base.Add(2 * time.Second)})
	b.Observe(Event{Severity: SeverityCritical, Timestamp: base.Add(3 * time.Second)})

	if b.Open() {
		t.Fatal("expected the intervening Info event to reset the consecutive-Critical streak")
	}
}

func TestCircuitBreakerClosesAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute, 50*time.Millisecond)
	b.Observe(Event{Severity: SeverityCritical, Timestamp: time.Now()})
	if !b.Open() {
		t.Fatal("expected breaker open immediately after trip")
	}
	time.Sleep(100 * time.Millisecond)
	if b.Open() {
		t.Fatal("expected breaker closed after cooldown elapsed")
	}
}
