package resource

import (
	"context"
	"testing"
	"time"
)

func u64p(v uint64) *uint64 { return &v }

func TestAccountMemoryExceedsCap(t *testing.T) {
	var events []Event
	g := NewGovernor(Quota{MemoryBytesMax: u64p(1 << 20)}, func(e Event) { events = append(events, e) })

	if err := g.AccountMemory(1 << 19); err != nil {
		t.Fatalf("unexpected error under cap: %v", err)
	}

	err := g.AccountMemory(2 << 20)
	var exceeded *ExceededError
	if err == nil {
		t.Fatal("expected ResourceLimitExceeded")
	}
	if ex, ok := err.(*ExceededError); !ok || ex.Axis != AxisMemory {
		t.Fatalf("got %v, want ExceededError{Axis: memory}", err)
	}
	_ = exceeded

	foundCritical := false
	for _, e := range events {
		if e.Kind == EventQuotaExceeded && e.Axis == AxisMemory {
			foundCritical = true
		}
	}
	if !foundCritical {
		t.Fatal("expected a QuotaExceeded event before the error returned")
	}
}

func TestFuelExhaustion(t *testing.T) {
	g := NewGovernor(Quota{FuelMax: u64p(1000)}, nil)

	if err := g.ConsumeFuel(500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.ConsumeFuel(600)
	if _, ok := err.(*FuelExhaustedError); !ok {
		t.Fatalf("got %v, want FuelExhaustedError", err)
	}
}

func TestResetZeroesAccounting(t *testing.T) {
	g := NewGovernor(Quota{FuelMax: u64p(1000)}, nil)
	_ = g.ConsumeFuel(900)

	g.Reset()

	snap := g.Snapshot()
	if snap.FuelConsumed != 0 {
		t.Fatalf("expected fuel reset to zero, got %d", snap.FuelConsumed)
	}

	if err := g.ConsumeFuel(900); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestQuotaApproachingThrottledPerSecond(t *testing.T) {
	var approaching int
	g := NewGovernor(Quota{FuelMax: u64p(100)}, func(e Event) {
		if e.Kind == EventQuotaApproaching {
			approaching++
		}
	})

	_ = g.ConsumeFuel(85)
	_ = g.ConsumeFuel(1)
	_ = g.ConsumeFuel(1)

	if approaching != 1 {
		t.Fatalf("expected exactly one QuotaApproaching within the same second, got %d", approaching)
	}
}

func TestAccountNetworkBytesRespectsCap(t *testing.T) {
	g := NewGovernor(Quota{MaxBytesSent: u64p(100)}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := g.AccountNetworkBytes(ctx, 50, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.AccountNetworkBytes(ctx, 60, 0)
	if _, ok := err.(*ExceededError); !ok {
		t.Fatalf("got %v, want ExceededError", err)
	}
}

func TestOpenFileCeiling(t *testing.T) {
	g := NewGovernor(Quota{MaxOpenFiles: u64p(2)}, nil)

	if err := g.OpenFile(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.OpenFile(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.OpenFile()
	if _, ok := err.(*ExceededError); !ok {
		t.Fatalf("got %v, want ExceededError", err)
	}

	g.CloseFile()
	if err := g.OpenFile(); err != nil {
		t.Fatalf("expected room after CloseFile, got %v", err)
	}
}
