package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// EventKind classifies a governor-emitted notification, mirroring the
// relevant subset of spec.md §3's Audit Event kinds so callers can forward
// it straight into internal/audit without this package importing audit.
type EventKind int

const (
	EventQuotaApproaching EventKind = iota
	EventQuotaExceeded
)

// Event is the minimal notification the Governor emits on threshold
// crossings; the instance manager attaches instance identity and forwards
// it to the audit sink.
type Event struct {
	Kind  EventKind
	Axis  Axis
	Used  uint64
	Limit uint64
}

// Observer receives Governor events. Implemented by the audit package's
// adapter in the sandbox wiring layer.
type Observer func(Event)

// Usage is a point-in-time copy of a Governor's accounting.
type Usage struct {
	MemoryBytes      uint64
	FuelConsumed     uint64
	WallTime         time.Duration
	BytesSent        uint64
	BytesReceived    uint64
	OpenFiles        uint64
}

// Governor tracks live resource usage for exactly one instance lifetime.
// Accounting is monotonic non-decreasing while Running except on Reset,
// which zeros it atomically (spec.md §3 invariants).
type Governor struct {
	quota Quota

	memoryBytes   atomic.Uint64
	fuelConsumed  atomic.Uint64
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	openFiles     atomic.Int64

	wallStart atomic.Int64 // UnixNano; 0 means not started

	netLimiter *rate.Limiter
	ioLimiter  *rate.Limiter

	mu            sync.Mutex
	lastWarnAt    map[Axis]time.Time
	observer      Observer
}

// NewGovernor constructs a Governor for quota, reporting threshold and
// breach events to observer (observer may be nil).
func NewGovernor(quota Quota, observer Observer) *Governor {
	g := &Governor{
		quota:      quota,
		lastWarnAt: make(map[Axis]time.Time),
		observer:   observer,
	}
	if quota.IOOpsPerSecond != nil {
		limit := rate.Limit(*quota.IOOpsPerSecond)
		g.ioLimiter = rate.NewLimiter(limit, int(*quota.IOOpsPerSecond))
	}
	if quota.MaxBytesSent != nil || quota.MaxBytesReceived != nil {
		// The network limiter has an unlimited rate and is not consulted
		// by AccountNetworkBytes: network byte totals are bounded only by
		// the absolute caps enforced there, and the only token-bucket
		// smoothing is ioLimiter's.
		g.netLimiter = rate.NewLimiter(rate.Inf, 1)
	}
	return g
}

// emit forwards an event to the observer, if any.
func (g *Governor) emit(ev Event) {
	if g.observer != nil {
		g.observer(ev)
	}
}

// checkApproaching emits at most one QuotaApproaching per axis per second
// once usage crosses ApproachingThreshold of limit (spec.md §4.5).
func (g *Governor) checkApproaching(axis Axis, used, limit uint64) {
	if limit == 0 {
		return
	}
	if float64(used) < float64(limit)*ApproachingThreshold {
		return
	}

	g.mu.Lock()
	last, ok := g.lastWarnAt[axis]
	now := time.Now()
	if ok && now.Sub(last) < time.Second {
		g.mu.Unlock()
		return
	}
	g.lastWarnAt[axis] = now
	g.mu.Unlock()

	g.emit(Event{Kind: EventQuotaApproaching, Axis: axis, Used: used, Limit: limit})
}

// AccountMemory records a new observed memory size (bytes). If the backend
// cannot enforce the cap natively, callers invoke this on every grow event
// per spec.md §4.5's polling fallback.
func (g *Governor) AccountMemory(newSize uint64) error {
	g.memoryBytes.Store(newSize)
	limit := u64(g.quota.MemoryBytesMax)
	if limit != 0 && newSize > limit {
		g.emit(Event{Kind: EventQuotaExceeded, Axis: AxisMemory, Used: newSize, Limit: limit})
		return &ExceededError{Axis: AxisMemory, Used: newSize, Limit: limit}
	}
	g.checkApproaching(AxisMemory, newSize, limit)
	return nil
}

// ConsumeFuel decrements the fuel budget by n (software metering fallback,
// or a mirror of backend-reported consumption). Traps with
// FuelExhaustedError at zero.
func (g *Governor) ConsumeFuel(n uint64) error {
	used := g.fuelConsumed.Add(n)
	limit := u64(g.quota.FuelMax)
	if limit != 0 && used >= limit {
		g.emit(Event{Kind: EventQuotaExceeded, Axis: AxisFuel, Used: used, Limit: limit})
		return &FuelExhaustedError{}
	}
	g.checkApproaching(AxisFuel, used, limit)
	return nil
}

// StartWallClock installs the call deadline derived from WallTimeout and
// returns a context that is cancelled when it fires, plus a cancel func the
// caller must always invoke.
func (g *Governor) StartWallClock(ctx context.Context) (context.Context, context.CancelFunc) {
	g.wallStart.Store(time.Now().UnixNano())
	if g.quota.WallTimeout == nil {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, *g.quota.WallTimeout)
}

// WallTimeElapsed reports the elapsed wall time since StartWallClock.
func (g *Governor) WallTimeElapsed() time.Duration {
	start := g.wallStart.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// AccountNetworkBytes records n bytes transferred in direction sent/recv,
// blocking cooperatively on the token bucket until available or ctx is
// done, then enforcing the absolute lifetime cap (spec.md §4.5).
func (g *Governor) AccountNetworkBytes(ctx context.Context, sent, received uint64) error {
	if g.ioLimiter != nil {
		if err := g.ioLimiter.WaitN(ctx, 1); err != nil {
			return err
		}
	}

	if sent > 0 {
		used := g.bytesSent.Add(sent)
		limit := u64(g.quota.MaxBytesSent)
		if limit != 0 && used > limit {
			g.emit(Event{Kind: EventQuotaExceeded, Axis: AxisNetworkIO, Used: used, Limit: limit})
			return &ExceededError{Axis: AxisNetworkIO, Used: used, Limit: limit}
		}
		g.checkApproaching(AxisNetworkIO, used, limit)
	}
	if received > 0 {
		used := g.bytesReceived.Add(received)
		limit := u64(g.quota.MaxBytesReceived)
		if limit != 0 && used > limit {
			g.emit(Event{Kind: EventQuotaExceeded, Axis: AxisNetworkIO, Used: used, Limit: limit})
			return &ExceededError{Axis: AxisNetworkIO, Used: used, Limit: limit}
		}
		g.checkApproaching(AxisNetworkIO, used, limit)
	}
	return nil
}

// OpenFile increments the file-descriptor counter, failing with
// ResourceLimitExceeded{FileHandles} at the ceiling (spec.md §4.5).
func (g *Governor) OpenFile() error {
	limit := u64(g.quota.MaxOpenFiles)
	n := uint64(g.openFiles.Add(1))
	if limit != 0 && n > limit {
		g.openFiles.Add(-1)
		g.emit(Event{Kind: EventQuotaExceeded, Axis: AxisFileHandles, Used: n, Limit: limit})
		return &ExceededError{Axis: AxisFileHandles, Used: n, Limit: limit}
	}
	g.checkApproaching(AxisFileHandles, n, limit)
	return nil
}

// CloseFile decrements the file-descriptor counter.
func (g *Governor) CloseFile() {
	if g.openFiles.Add(-1) < 0 {
		g.openFiles.Store(0)
	}
}

// Reset zeros all accounting atomically, used by Instance Reset (spec.md §3:
// "Resource accounting is monotonic non-decreasing ... except on explicit
// Reset, which atomically rebinds a fresh instance ... and zeroes
// accounting").
func (g *Governor) Reset() {
	g.memoryBytes.Store(0)
	g.fuelConsumed.Store(0)
	g.bytesSent.Store(0)
	g.bytesReceived.Store(0)
	g.openFiles.Store(0)
	g.wallStart.Store(0)
	g.mu.Lock()
	g.lastWarnAt = make(map[Axis]time.Time)
	g.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the Governor's accounting.
func (g *Governor) Snapshot() Usage {
	return Usage{
		MemoryBytes:   g.memoryBytes.Load(),
		FuelConsumed:  g.fuelConsumed.Load(),
		WallTime:      g.WallTimeElapsed(),
		BytesSent:     g.bytesSent.Load(),
		BytesReceived: g.bytesReceived.Load(),
		OpenFiles:     uint64(g.openFiles.Load()),
	}
}
