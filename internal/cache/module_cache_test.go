package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wasmsandbox/core/internal/runtime"
)

type countingRuntime struct {
	mu         sync.Mutex
	compiles   int32
	fail       bool
	gate       chan struct{} // if non-nil, Compile blocks until closed
}

func (r *countingRuntime) Name() string { return "counting" }

func (r *countingRuntime) Compile(ctx context.Context, b []byte) (*runtime.Module, error) {
	if r.gate != nil {
		<-r.gate
	}
	atomic.AddInt32(&r.compiles, 1)
	if r.fail {
		return nil, errors.New("bad module")
	}
	return &runtime.Module{ContentHash: ContentHash(b), ByteLength: len(b)}, nil
}

func (r *countingRuntime) Validate(ctx context.Context, b []byte) error { return nil }

func (r *countingRuntime) Instantiate(ctx context.Context, m *runtime.Module, cfg runtime.InstanceConfig) (runtime.Instance, error) {
	return nil, errors.New("not used")
}

func (r *countingRuntime) SnapshotCapabilities() runtime.Capabilities { return runtime.Capabilities{} }
func (r *countingRuntime) Metrics() runtime.Metrics                   { return runtime.Metrics{} }

func TestGetOrCompileCachesSecondCall(t *testing.T) {
	rt := &countingRuntime{}
	c, err := NewModuleCache(rt, 8, nil)
	if err != nil {
		t.Fatalf("NewModuleCache: %v", err)
	}

	b := []byte("\x00asm-fake-bytes")
	if _, err := c.GetOrCompile(context.Background(), b); err != nil {
		t.Fatalf("first GetOrCompile: %v", err)
	}
	if _, err := c.GetOrCompile(context.Background(), b); err != nil {
		t.Fatalf("second GetOrCompile: %v", err)
	}
	if got := atomic.LoadInt32(&rt.compiles); got != 1 {
		t.Fatalf("got %d compiles, want 1 (second call should hit cache)", got)
	}
}

func TestGetOrCompileCoalescesConcurrentCallers(t *testing.T) {
	rt := &countingRuntime{gate: make(chan struct{})}
	c, err := NewModuleCache(rt, 8, nil)
	if err != nil {
		t.Fatalf("NewModuleCache: %v", err)
	}
	b := []byte("\x00asm-concurrent")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrCompile(context.Background(), b)
		}(i)
	}
	close(rt.gate)
	wg.Wait()

	for i, e := range errs {
		if e != nil {
			t.Fatalf("caller %d: %v", i, e)
		}
	}
	if got := atomic.LoadInt32(&rt.compiles); got != 1 {
		t.Fatalf("got %d compiles, want 1 (concurrent callers should coalesce)", got)
	}
}

func TestGetOrCompileDoesNotCacheCompileFailure(t *testing.T) {
	rt := &countingRuntime{fail: true}
	c, err := NewModuleCache(rt, 8, nil)
	if err != nil {
		t.Fatalf("NewModuleCache: %v", err)
	}
	b := []byte("\x00asm-broken")

	if _, err := c.GetOrCompile(context.Background(), b); err == nil {
		t.Fatal("expected compile error")
	}
	var cf *CompileFailedError
	if _, err := c.GetOrCompile(context.Background(), b); err == nil {
		t.Fatal("expected compile error on retry")
	} else if !errors.As(err, &cf) {
		t.Fatalf("got %v, want CompileFailedError", err)
	}
	if c.Len() != 0 {
		t.Fatalf("got %d cached entries, want 0 after repeated failure", c.Len())
	}
}
