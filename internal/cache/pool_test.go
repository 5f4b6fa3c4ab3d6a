package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

type poolFakeInstance struct{ closed bool }

func (f *poolFakeInstance) ModuleID() uuid.UUID { return uuid.UUID{} }
func (f *poolFakeInstance) Call(ctx context.Context, name string, args []value.Value) ([]value.Value, error) {
	return nil, nil
}
func (f *poolFakeInstance) ReadMemory(offset, length uint32) ([]byte, error) { return nil, nil }
func (f *poolFakeInstance) WriteMemory(offset uint32, data []byte) error     { return nil }
func (f *poolFakeInstance) GrowMemory(delta uint32) (uint32, error)          { return 0, nil }
func (f *poolFakeInstance) MemorySize() uint64                               { return 0 }
func (f *poolFakeInstance) Interrupt(reason runtime.InterruptReason)         {}
func (f *poolFakeInstance) Close(ctx context.Context) error                  { f.closed = true; return nil }

type poolFakeRuntime struct{}

func (r *poolFakeRuntime) Name() string { return "pool-fake" }
func (r *poolFakeRuntime) Compile(ctx context.Context, b []byte) (*runtime.Module, error) {
	return &runtime.Module{}, nil
}
func (r *poolFakeRuntime) Validate(ctx context.Context, b []byte) error { return nil }
func (r *poolFakeRuntime) Instantiate(ctx context.Context, m *runtime.Module, cfg runtime.InstanceConfig) (runtime.Instance, error) {
	return &poolFakeInstance{}, nil
}
func (r *poolFakeRuntime) SnapshotCapabilities() runtime.Capabilities { return runtime.Capabilities{} }
func (r *poolFakeRuntime) Metrics() runtime.Metrics                   { return runtime.Metrics{} }

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	caps, err := capability.NewSet(capability.Strict)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	govFn := func() *resource.Governor { return resource.NewGovernor(resource.Quota{}, nil) }
	p, err := NewPool(context.Background(), &poolFakeRuntime{}, &runtime.Module{}, runtime.InstanceConfig{}, caps, govFn, nil, size)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestPoolAcquireReleaseRoundTrips(t *testing.T) {
	p := newTestPool(t, 2)
	if p.Size() != 2 {
		t.Fatalf("got size %d, want 2", p.Size())
	}

	mgr, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(context.Background(), mgr)

	mgr2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	p.Release(context.Background(), mgr2)
}

func TestPoolAcquireRespectsCancelledContextWhenAllBusy(t *testing.T) {
	p := newTestPool(t, 1)

	mgr1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Fatal("expected Acquire to respect a cancelled context while pool is exhausted")
	}

	p.Release(context.Background(), mgr1)
}

func TestPoolReleaseResetsDirtyInstanceBeforeReuse(t *testing.T) {
	p := newTestPool(t, 1)

	mgr, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mgr.MarkDirty()
	p.Release(context.Background(), mgr)

	mgr2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after dirty release: %v", err)
	}
	if mgr2.Dirty() {
		t.Fatal("expected instance to be clean after Reset-on-release")
	}
	p.Release(context.Background(), mgr2)
}

func TestPoolCloseTerminatesAllInstances(t *testing.T) {
	p := newTestPool(t, 2)
	p.Close(context.Background())
	if p.Size() != 0 {
		t.Fatalf("got size %d after Close, want 0", p.Size())
	}
}
