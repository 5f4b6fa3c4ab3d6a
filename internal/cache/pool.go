package cache

import (
	"context"
	"sync"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/instance"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
)

// Pool is a bounded warm pool of Manager instances bound to a single
// Module, near line-for-line generalized from opa/pool.go's available
// chan struct{} / vms []*vm / acquired []bool shape, but keyed per-Module
// instead of globally, and driving instance.Manager.Reset instead of
// SetPolicyData when a released instance is dirty (spec.md §3/§5).
type Pool struct {
	rt     runtime.Runtime
	module *runtime.Module
	cfg    runtime.InstanceConfig
	caps   capability.Set
	govFn  func() *resource.Governor
	obs    instance.TransitionObserver

	available chan struct{}

	mu       sync.Mutex
	closed   bool
	managers []*instance.Manager
	acquired []bool
}

// NewPool constructs a Pool of size warm instances, all instantiated
// eagerly against module so Acquire never pays a cold-instantiate latency
// on the hot path (spec.md §4.9's pooling intent, mirroring opa.New()'s
// poolSize-many initial VMs).
func NewPool(ctx context.Context, rt runtime.Runtime, module *runtime.Module, cfg runtime.InstanceConfig, caps capability.Set, govFn func() *resource.Governor, obs instance.TransitionObserver, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		rt:        rt,
		module:    module,
		cfg:       cfg,
		caps:      caps,
		govFn:     govFn,
		obs:       obs,
		available: make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		mgr, err := instance.New(ctx, rt, module, cfg, caps, govFn(), obs)
		if err != nil {
			p.closeAll(ctx)
			return nil, err
		}
		p.managers = append(p.managers, mgr)
		p.acquired = append(p.acquired, false)
		p.available <- struct{}{}
	}
	return p, nil
}

// Acquire blocks until a Manager is available or ctx is done, mirroring
// opa/pool.go's Acquire. While every Manager is acquired it waits; it does
// not grow the pool. A fresh Manager is instantiated only when a slot is
// free but no idle Manager exists, which happens after Release dropped one
// whose Reset failed.
func (p *Pool) Acquire(ctx context.Context) (*instance.Manager, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.available:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &PoolClosedError{}
	}
	for i, mgr := range p.managers {
		if !p.acquired[i] {
			p.acquired[i] = true
			p.mu.Unlock()
			return mgr, nil
		}
	}
	p.mu.Unlock()

	mgr, err := instance.New(ctx, p.rt, p.module, p.cfg, p.caps, p.govFn(), p.obs)
	if err != nil {
		p.available <- struct{}{}
		return nil, err
	}
	p.mu.Lock()
	p.managers = append(p.managers, mgr)
	p.acquired = append(p.acquired, true)
	p.mu.Unlock()
	return mgr, nil
}

// Release returns mgr to the pool. If mgr is dirty (spec.md §5's
// undefined-post-cancellation state) it is reset in place before being
// made available again, so no caller ever acquires a tainted instance.
func (p *Pool) Release(ctx context.Context, mgr *instance.Manager) {
	if mgr.Dirty() {
		if err := mgr.Reset(ctx); err != nil {
			p.remove(mgr)
			p.available <- struct{}{}
			return
		}
	}

	p.mu.Lock()
	for i, m := range p.managers {
		if m == mgr {
			p.acquired[i] = false
			p.mu.Unlock()
			p.available <- struct{}{}
			return
		}
	}
	p.mu.Unlock()
	// Not found: pool was shrunk or closed around this instance.
	p.available <- struct{}{}
}

func (p *Pool) remove(mgr *instance.Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, m := range p.managers {
		if m == mgr {
			p.managers = append(p.managers[:i], p.managers[i+1:]...)
			p.acquired = append(p.acquired[:i], p.acquired[i+1:]...)
			return
		}
	}
}

// Close terminates every instance in the pool after waiting for all
// outstanding acquisitions to be released, mirroring opa/pool.go's Close.
func (p *Pool) Close(ctx context.Context) {
	for range p.managers {
		<-p.available
	}
	p.closeAll(ctx)
}

func (p *Pool) closeAll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, mgr := range p.managers {
		_ = mgr.Terminate(ctx, true)
	}
	p.closed = true
	p.managers = nil
}

// Size reports the current number of live (acquired or idle) instances.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.managers)
}
