package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/wasmsandbox/core/internal/audit"
	"github.com/wasmsandbox/core/internal/cache"
	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/hostfn"
	"github.com/wasmsandbox/core/internal/instance"
	"github.com/wasmsandbox/core/internal/logging"
	"github.com/wasmsandbox/core/internal/marshal"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/runtime/wasmtimeengine"
	"github.com/wasmsandbox/core/internal/runtime/wazeroengine"
	"github.com/wasmsandbox/core/internal/value"
)

// defaultAllocExport / defaultDeallocExport name the conventional guest
// exports this package looks for when no explicit names are configured
// (spec.md §6's allocator/deallocator ABI pair).
const (
	defaultAllocExport   = "alloc"
	defaultDeallocExport = "dealloc"
	defaultSentinelOffset = 8
)

var (
	backendOnce sync.Once
	backendReg  *runtime.Registry
)

// backends lazily builds the process-wide backend Registry, mirroring
// opa.New()'s implicit wasm-engine selection but over the engine-neutral
// C2 Runtime trait with both the required (wazero) and optional
// (wasmtime) backends registered.
func backends() *runtime.Registry {
	backendOnce.Do(func() {
		// go.uber.org/automaxprocs, a teacher direct dependency, sets
		// GOMAXPROCS from the container's cgroup CPU quota so it reflects
		// real available concurrency rather than the host's full core
		// count. The default pool size is 1 (defaultOptions) and is not
		// derived from GOMAXPROCS.
		_, _ = maxprocs.Set()

		backendReg = runtime.NewRegistry()
		backendReg.Register(wazeroengine.New(context.Background()))
		backendReg.Register(wasmtimeengine.New())
	})
	return backendReg
}

// Sandbox is one capability-gated, resource-governed guest module
// instance, fronting the C1-C10 machinery behind the builder-style API
// spec.md §6 describes.
type Sandbox struct {
	rt    runtime.Runtime
	cache *cache.ModuleCache
	pool  *cache.Pool
	cfg   runtime.InstanceConfig

	// live guards module/mgr/caller, which reloadFrom swaps atomically
	// when a watched file changes underneath a running sandbox.
	live   sync.RWMutex
	module *runtime.Module
	mgr    *instance.Manager

	codecs  *marshal.Registry
	format  marshal.Format
	caller  *marshal.Caller

	caps     capability.Set
	governor *resource.Governor

	sink    *audit.Sink
	metrics *audit.MetricsRegistry
	breaker *audit.CircuitBreaker
	log     logging.Logger

	watcher *fsnotify.Watcher
	stopHotReload chan struct{}
}

// current returns the live Manager/Caller/Module triple under a read lock,
// stable for the duration of one Call even if a hot reload swaps them
// concurrently for the next one.
func (s *Sandbox) current() (*instance.Manager, *marshal.Caller, *runtime.Module) {
	s.live.RLock()
	defer s.live.RUnlock()
	return s.mgr, s.caller, s.module
}

// Build compiles (or accepts) a guest module and returns a running
// Sandbox: a Strict-base capability set and unbounded quotas unless
// overridden, one pre-instantiated primary instance, and a default JSON
// serialization codec (spec.md §6).
func Build(ref SourceRef, opts ...Option) (*Sandbox, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	rt, err := selectBackend(o.backendName)
	if err != nil {
		return nil, err
	}
	return buildWithRuntime(rt, ref, o)
}

// buildWithRuntime is Build's body over an already-resolved Runtime,
// factored out so tests can supply a fake Runtime without registering it
// in the process-wide backend Registry.
func buildWithRuntime(rt runtime.Runtime, ref SourceRef, o options) (*Sandbox, error) {
	if o.log == nil {
		o.log = logging.NewNoOp()
	}

	modCache, err := cache.NewModuleCache(rt, 256, nil)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	mod, err := resolveModule(ctx, ref, rt, modCache)
	if err != nil {
		return nil, err
	}

	caps := o.capSet
	if !o.hasCapSet {
		caps, err = capability.NewSet(capability.Strict)
		if err != nil {
			return nil, err
		}
	}

	hostReg := o.hostReg
	if hostReg == nil {
		hostReg = hostfn.NewRegistry()
	}

	sb := &Sandbox{
		rt:      rt,
		module:  mod,
		cache:   modCache,
		codecs:  buildCodecRegistry(o.format),
		format:  o.format,
		caps:    caps,
		sink:    audit.NewSink(64, nil, o.log),
		metrics: audit.NewMetricsRegistry(),
		breaker: audit.NewCircuitBreaker(3, 10*time.Second, 30*time.Second),
		log:     o.log,
	}

	quota := quotaFromOptions(o)
	sb.governor = resource.NewGovernor(quota, sb.governorObserver)

	binding := hostReg.Bind(caps, sb.governor, sb.capabilityDeniedObserver)

	cfg := runtime.InstanceConfig{
		MemoryBytesMax: o.memoryLimit,
		FuelMax:        o.fuelLimit,
		WallTimeout:    o.wallTimeout,
		AllowMissing:   true,
		Imports:        binding,
	}
	sb.cfg = cfg

	govFn := func() *resource.Governor { return sb.governor }
	pool, err := cache.NewPool(ctx, rt, mod, cfg, caps, govFn, sb.instanceStateObserver, o.poolSize)
	if err != nil {
		return nil, err
	}
	sb.pool = pool

	mgr, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close(ctx)
		return nil, err
	}
	sb.mgr = mgr
	sb.caller = marshal.NewCaller(mgr, sb.codecs, defaultAllocExport, defaultDeallocExport, defaultSentinelOffset, sb.log)

	if o.watchedFile != "" {
		if err := sb.startHotReload(o.watchedFile); err != nil {
			sb.log.Warn("hot reload watch failed to start", "path", o.watchedFile, "error", err.Error())
		}
	}

	return sb, nil
}

func selectBackend(name string) (runtime.Runtime, error) {
	reg := backends()
	if name != "" {
		rt, ok := reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("sandbox: unknown backend %q", name)
		}
		return rt, nil
	}
	return reg.Select(runtime.Requirements{})
}

func resolveModule(ctx context.Context, ref SourceRef, rt runtime.Runtime, modCache *cache.ModuleCache) (*runtime.Module, error) {
	if mr, ok := ref.(ModuleRef); ok {
		if mr.Module == nil {
			return nil, fmt.Errorf("sandbox: ModuleRef carries a nil Module")
		}
		return mr.Module, nil
	}
	wasmBytes, ok, err := resolveBytes(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sandbox: unrecognized SourceRef %T", ref)
	}
	return modCache.GetOrCompile(ctx, wasmBytes)
}

func buildCodecRegistry(def marshal.Format) *marshal.Registry {
	if def == "" {
		def = marshal.FormatJSON
	}
	return marshal.NewRegistry(def)
}

func quotaFromOptions(o options) resource.Quota {
	q := resource.Quota{}
	if o.memoryLimit > 0 {
		q.MemoryBytesMax = &o.memoryLimit
	}
	if o.fuelLimit > 0 {
		q.FuelMax = &o.fuelLimit
	}
	if o.wallTimeout > 0 {
		q.WallTimeout = &o.wallTimeout
	}
	return q
}

// governorObserver translates a resource.Event into an Audit Event and
// feeds it through the sink, metrics registry, and circuit breaker,
// keeping internal/resource decoupled from internal/audit per that
// package's own doc comment.
func (s *Sandbox) governorObserver(ev resource.Event) {
	kind := audit.KindQuotaApproaching
	sev := audit.SeverityWarning
	if ev.Kind == resource.EventQuotaExceeded {
		kind = audit.KindQuotaExceeded
		sev = audit.SeverityCritical
		s.metrics.ObserveQuotaExceeded()
	} else {
		s.metrics.ObserveQuotaApproaching()
	}

	instID := uuid.Nil
	if mgr, _, _ := s.current(); mgr != nil {
		instID = mgr.ID()
	}
	auditEv := audit.Event{
		Timestamp:  time.Now(),
		InstanceID: instID,
		Kind:       kind,
		Severity:   sev,
		Detail:     map[string]any{"axis": string(ev.Axis), "used": ev.Used, "limit": ev.Limit},
	}
	s.sink.Publish(auditEv)
	s.breaker.Observe(auditEv)
}

// capabilityDeniedObserver translates a hostfn.DeniedEvent into an Audit
// Event (spec.md §4.8: "on miss, ... C10 emits an audit event").
func (s *Sandbox) capabilityDeniedObserver(ev hostfn.DeniedEvent) {
	s.metrics.ObserveCapabilityDenied()
	instID := uuid.Nil
	if mgr, _, _ := s.current(); mgr != nil {
		instID = mgr.ID()
	}
	s.sink.Publish(audit.Event{
		Timestamp:  time.Now(),
		InstanceID: instID,
		Kind:       audit.KindCapabilityDenied,
		Severity:   audit.SeverityWarning,
		Detail:     map[string]any{"capability": ev.Requested.Kind.String(), "import": ev.Entry.Module + "." + ev.Entry.Name},
	})
}

// instanceStateObserver translates instance.Manager transitions into
// InstanceStateChanged Audit Events (spec.md §4.6).
func (s *Sandbox) instanceStateObserver(id uuid.UUID, from, to instance.State) {
	s.sink.Publish(audit.Event{
		Timestamp:  time.Now(),
		InstanceID: id,
		Kind:       audit.KindInstanceStateChanged,
		Severity:   audit.SeverityInfo,
		Detail:     map[string]any{"from": from.String(), "to": to.String()},
	})
}

// Call invokes a guest export by name. When args is a Scalars value, the
// call uses the raw scalar convention (spec.md §6's `(i32,i32)->i32`
// shape, no marshalling); otherwise args is encoded through the
// configured serialization codec and the call uses the ptr/len ABI
// (C7, spec.md §4.7).
func (s *Sandbox) Call(ctx context.Context, name string, args any, cancel marshal.CancelToken) (Result, error) {
	if s.breaker.Open() {
		return Result{}, &resource.ExceededError{Axis: resource.AxisFuel, Used: 0, Limit: 0}
	}

	started := time.Now()
	mgr, _, _ := s.current()
	var result Result
	var err error
	if scalars, ok := args.(Scalars); ok {
		result, err = s.callScalars(ctx, name, scalars)
	} else {
		result, err = s.callMarshalled(ctx, name, args, cancel)
	}

	s.metrics.ObserveCall(err != nil, time.Since(started).Seconds())
	s.sink.Publish(audit.Event{
		Timestamp:  time.Now(),
		InstanceID: mgr.ID(),
		Kind:       functionEventKind(err),
		Severity:   audit.SeverityInfo,
		Detail:     map[string]any{"function": name},
	})
	return result, err
}

func functionEventKind(err error) audit.Kind {
	if err != nil {
		return audit.KindFunctionCalled
	}
	return audit.KindFunctionReturned
}

func (s *Sandbox) callMarshalled(ctx context.Context, name string, args any, cancel marshal.CancelToken) (Result, error) {
	_, caller, _ := s.current()

	callCtx, cancelWall := s.governor.StartWallClock(cancel.context())
	defer cancelWall()

	var decoded any
	frame, err := caller.Call(ctx, name, args, &decoded, "", marshal.NewCancelToken(callCtx))
	if err != nil {
		return Result{Frame: frame}, err
	}
	codec, resolveErr := s.codecs.Resolve(s.format)
	if resolveErr != nil {
		return Result{Frame: frame}, resolveErr
	}
	return Result{Frame: frame, codec: codec, decoded: decoded}, nil
}

// CallWithFormat is Call with a per-call serialization format override,
// which wins over the sandbox-wide default (spec.md §9's resolved open
// question).
func (s *Sandbox) CallWithFormat(ctx context.Context, name string, args any, format marshal.Format, cancel marshal.CancelToken) (Result, error) {
	_, caller, _ := s.current()

	callCtx, cancelWall := s.governor.StartWallClock(cancel.context())
	defer cancelWall()

	var decoded any
	frame, err := caller.Call(ctx, name, args, &decoded, format, marshal.NewCancelToken(callCtx))
	if err != nil {
		return Result{Frame: frame}, err
	}
	codec, resolveErr := s.codecs.Resolve(format)
	if resolveErr != nil {
		return Result{Frame: frame}, resolveErr
	}
	return Result{Frame: frame, codec: codec, decoded: decoded}, nil
}

func (s *Sandbox) callScalars(ctx context.Context, name string, scalars Scalars) (Result, error) {
	mgr, _, mod := s.current()
	unlock, err := mgr.Lock()
	if err != nil {
		return Result{}, err
	}
	// release guards against a double-unlock: classifyRawCallError may need
	// to call Manager.Terminate, which takes the same lock Lock() just
	// took, so the call lock must be dropped before that happens.
	released := false
	release := func() {
		if !released {
			released = true
			unlock()
		}
	}
	defer release()

	sig, err := exportSignature(mod, name)
	if err != nil {
		return Result{}, err
	}
	if len(sig.Params) != len(scalars) {
		return Result{}, fmt.Errorf("sandbox: %s expects %d scalar argument(s), got %d", name, len(sig.Params), len(scalars))
	}

	args := make([]value.Value, len(scalars))
	for i, k := range sig.Params {
		switch k {
		case value.KindI32:
			args[i] = value.I32(int32(scalars[i]))
		case value.KindI64:
			args[i] = value.I64(scalars[i])
		default:
			return Result{}, fmt.Errorf("sandbox: scalar call does not support parameter kind %s", k)
		}
	}

	callCtx, cancel := s.governor.StartWallClock(ctx)
	defer cancel()

	backend := mgr.Backend()
	out, err := backend.Call(callCtx, name, args)
	if err != nil {
		release()
		return Result{}, s.classifyRawCallError(mgr, backend, callCtx, err)
	}

	// Same polling fallback as the marshalled path: a backend with no
	// native memory-limit hook only learns a guest's own memory.grow
	// happened after the call returns (spec.md §4.5).
	if memErr := mgr.Governor().AccountMemory(backend.MemorySize()); memErr != nil {
		return Result{}, memErr
	}

	results := make([]int64, len(out))
	for i, v := range out {
		n, convErr := int64FromValue(v)
		if convErr != nil {
			return Result{}, convErr
		}
		results[i] = n
	}
	return Result{Scalars: results}, nil
}

func int64FromValue(v value.Value) (int64, error) {
	switch v.Kind() {
	case value.KindI32:
		n, err := v.I32()
		return int64(n), err
	case value.KindI64:
		return v.I64()
	default:
		return 0, fmt.Errorf("sandbox: scalar result kind %s is not an integer", v.Kind())
	}
}

// classifyRawCallError applies the scalar path's own equivalent of
// marshal.Caller.classifyCallError: a Timeout or uncaught trap terminates
// the instance outright unless its Runtime advertises SafeUnwindOnTimeout,
// per spec.md's Failure Semantics Summary and its §9 Open Question
// resolution. Capability denials are the one failure mode left Running.
// The caller must not hold the instance's call lock.
func (s *Sandbox) classifyRawCallError(mgr *instance.Manager, backend runtime.Instance, callCtx context.Context, callErr error) error {
	switch callCtx.Err() {
	case context.Canceled:
		backend.Interrupt(runtime.InterruptCancelled)
		return &marshal.CancelledError{}
	case context.DeadlineExceeded:
		backend.Interrupt(runtime.InterruptTimeout)
		terminateUnlessSafeUnwind(s.log, mgr)
		return &marshal.TimeoutError{}
	default:
		var sv *hostfn.SecurityViolationError
		if errors.As(callErr, &sv) {
			return callErr
		}
		terminateUnlessSafeUnwind(s.log, mgr)
		return callErr
	}
}

func terminateUnlessSafeUnwind(log logging.Logger, mgr *instance.Manager) {
	if mgr.SafeUnwindOnTimeout() {
		return
	}
	mgr.MarkDirty()
	if err := mgr.Terminate(context.Background(), false); err != nil {
		log.Error(err, "failed to terminate instance after unsafe unwind")
	}
}

func exportSignature(mod *runtime.Module, name string) (value.Signature, error) {
	for _, exp := range mod.Exports {
		if exp.Name == name && exp.Kind == value.ExternFunc {
			return exp.Signature, nil
		}
	}
	return value.Signature{}, fmt.Errorf("sandbox: no such export %q", name)
}

// Pause suspends the sandbox's instance (spec.md §4.6: Running -> Paused).
func (s *Sandbox) Pause() error { mgr, _, _ := s.current(); return mgr.Pause() }

// Resume resumes a paused instance (Paused -> Running).
func (s *Sandbox) Resume() error { mgr, _, _ := s.current(); return mgr.Resume() }

// Reset atomically rebinds a fresh backend instance to the same module,
// zeroing all resource accounting (spec.md §3).
func (s *Sandbox) Reset(ctx context.Context) error {
	mgr, _, _ := s.current()
	return mgr.Reset(ctx)
}

// Terminate tears the sandbox down: closes every pooled instance and stops
// any hot-reload watcher. cleanUnwind distinguishes a graceful shutdown
// from one following an unclean trap (spec.md §4.6).
func (s *Sandbox) Terminate(ctx context.Context, cleanUnwind bool) error {
	s.stopHotReloadIfRunning()
	mgr, _, _ := s.current()
	err := mgr.Terminate(ctx, cleanUnwind)
	// Hand the primary Manager's slot back so Close does not wait on it.
	s.pool.Release(ctx, mgr)
	s.pool.Close(ctx)
	s.sink.Close()
	return err
}

// MetricsSnapshot returns a point-in-time copy of the sandbox's metrics.
func (s *Sandbox) MetricsSnapshot() audit.MetricsSnapshot { return s.metrics.Snapshot() }

// State reports the instance's current lifecycle state.
func (s *Sandbox) State() instance.State { mgr, _, _ := s.current(); return mgr.State() }

// Capabilities returns the sandbox's effective capability set.
func (s *Sandbox) Capabilities() capability.Set { return s.caps }

// Subscribe atomically replaces the audit event sink callback (spec.md
// §6). A nil sink detaches the subscriber.
func (s *Sandbox) Subscribe(sink func(audit.Event)) { s.sink.Subscribe(sink) }

// ResourceUsage returns a point-in-time copy of the instance's resource
// accounting (spec.md §3's Governor snapshot).
func (s *Sandbox) ResourceUsage() resource.Usage { return s.governor.Snapshot() }
