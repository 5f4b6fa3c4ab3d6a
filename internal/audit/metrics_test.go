package audit

import "testing"

func TestMetricsSnapshotReflectsObservations(t *testing.T) {
	m := NewMetricsRegistry()

	m.ObserveCall(false, 0.01)
	m.ObserveCall(true, 0.02)
	m.ObserveCapabilityDenied()
	m.ObserveQuotaApproaching()
	m.ObserveQuotaExceeded()
	m.SetActiveInstances(5)

	snap := m.Snapshot()
	if snap.CallsTotal != 2 {
		t.Fatalf("got CallsTotal=%d, want 2", snap.CallsTotal)
	}
	if snap.CallErrorsTotal != 1 {
		t.Fatalf("got CallErrorsTotal=%d, want 1", snap.CallErrorsTotal)
	}
	if snap.CapabilityDeniedTotal != 1 {
		t.Fatalf("got CapabilityDeniedTotal=%d, want 1", snap.CapabilityDeniedTotal)
	}
	if snap.QuotaApproachingTotal != 1 {
		t.Fatalf("got QuotaApproachingTotal=%d, want 1", snap.QuotaApproachingTotal)
	}
	if snap.QuotaExceededTotal != 1 {
		t.Fatalf("got QuotaExceededTotal=%d, want 1", snap.QuotaExceededTotal)
	}
	if snap.ActiveInstances != 5 {
		t.Fatalf("got ActiveInstances=%d, want 5", snap.ActiveInstances)
	}
	if snap.CallLatencySeconds.SampleCount != 2 {
		t.Fatalf("got SampleCount=%d, want 2", snap.CallLatencySeconds.SampleCount)
	}
}
