package instance

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

type fakeInstance struct {
	closed bool
}

func (f *fakeInstance) ModuleID() uuid.UUID { return uuid.UUID{} }
func (f *fakeInstance) Call(ctx context.Context, name string, args []value.Value) ([]value.Value, error) {
	return nil, nil
}
func (f *fakeInstance) ReadMemory(offset, length uint32) ([]byte, error) { return nil, nil }
func (f *fakeInstance) WriteMemory(offset uint32, data []byte) error     { return nil }
func (f *fakeInstance) GrowMemory(delta uint32) (uint32, error)          { return 0, nil }
func (f *fakeInstance) MemorySize() uint64                               { return 0 }
func (f *fakeInstance) Interrupt(reason runtime.InterruptReason)         {}
func (f *fakeInstance) Close(ctx context.Context) error                  { f.closed = true; return nil }

type fakeRuntime struct {
	fail bool
}

func (r *fakeRuntime) Name() string                                           { return "fake" }
func (r *fakeRuntime) Compile(ctx context.Context, b []byte) (*runtime.Module, error) { return nil, nil }
func (r *fakeRuntime) Validate(ctx context.Context, b []byte) error                   { return nil }
func (r *fakeRuntime) Instantiate(ctx context.Context, m *runtime.Module, cfg runtime.InstanceConfig) (runtime.Instance, error) {
	if r.fail {
		return nil, errBoom
	}
	return &fakeInstance{}, nil
}
func (r *fakeRuntime) SnapshotCapabilities() runtime.Capabilities { return runtime.Capabilities{} }
func (r *fakeRuntime) Metrics() runtime.Metrics                   { return runtime.Metrics{} }

var errBoom = errors.New("boom")

func newTestManager(t *testing.T, rt *fakeRuntime) *Manager {
	t.Helper()
	caps, err := capability.NewSet(capability.Strict)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	gov := resource.NewGovernor(resource.Quota{}, nil)
	m, err := New(context.Background(), rt, &runtime.Module{}, runtime.InstanceConfig{}, caps, gov, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewInstanceStartsRunning(t *testing.T) {
	m := newTestManager(t, &fakeRuntime{})
	if m.State() != Running {
		t.Fatalf("got %s, want Running", m.State())
	}
}

func TestInstantiationFailureLandsInFailed(t *testing.T) {
	caps, _ := capability.NewSet(capability.Strict)
	gov := resource.NewGovernor(resource.Quota{}, nil)
	m, err := New(context.Background(), &fakeRuntime{fail: true}, &runtime.Module{}, runtime.InstanceConfig{}, caps, gov, nil)
	if err == nil {
		t.Fatal("expected instantiation error")
	}
	if m.State() != Failed {
		t.Fatalf("got %s, want Failed", m.State())
	}
}

func TestPauseResumeCycle(t *testing.T) {
	m := newTestManager(t, &fakeRuntime{})

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if m.State() != Paused {
		t.Fatalf("got %s, want Paused", m.State())
	}

	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if m.State() != Running {
		t.Fatalf("got %s, want Running", m.State())
	}
}

func TestTerminateIsTerminalAndRejectsFurtherTransitions(t *testing.T) {
	m := newTestManager(t, &fakeRuntime{})

	if err := m.Terminate(context.Background(), true); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if m.State() != Terminated {
		t.Fatalf("got %s, want Terminated", m.State())
	}

	if err := m.Pause(); err == nil {
		t.Fatal("expected transition error against terminated instance")
	}

	if _, err := m.Lock(); err == nil {
		t.Fatal("expected Lock to fail against terminated instance")
	}
}

func TestResetZeroesAccountingAndReturnsToRunning(t *testing.T) {
	m := newTestManager(t, &fakeRuntime{})
	_ = m.Governor().ConsumeFuel(500)

	if err := m.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.State() != Running {
		t.Fatalf("got %s, want Running", m.State())
	}
	if m.Governor().Snapshot().FuelConsumed != 0 {
		t.Fatal("expected fuel accounting zeroed after Reset")
	}
}

func TestUncleanTerminateLandsInFailed(t *testing.T) {
	m := newTestManager(t, &fakeRuntime{})

	if err := m.Terminate(context.Background(), false); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if m.State() != Failed {
		t.Fatalf("got %s, want Failed", m.State())
	}
}
