package instance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
)

// TransitionObserver is notified of every state change, used by the
// sandbox wiring layer to emit InstanceStateChanged audit events without
// this package depending on internal/audit.
type TransitionObserver func(id uuid.UUID, from, to State)

// Manager owns exactly one live backend Instance bound to one Module,
// exclusively owned by the sandbox handle that created it (spec.md §3).
type Manager struct {
	id        uuid.UUID
	createdAt time.Time

	rt     runtime.Runtime
	module *runtime.Module
	cfg    runtime.InstanceConfig

	mu       sync.Mutex
	state    State
	backend  runtime.Instance
	dirty    bool // set after a cancellation left linear memory undefined
	caps     capability.Set
	governor *resource.Governor

	observer TransitionObserver
}

// New constructs a Manager and performs the initial instantiation. On
// success the Manager's state is Running; on failure it is Failed and the
// error is the backend's InstantiationError, per spec.md's Failure
// Semantics Summary.
func New(ctx context.Context, rt runtime.Runtime, module *runtime.Module, cfg runtime.InstanceConfig, caps capability.Set, governor *resource.Governor, observer TransitionObserver) (*Manager, error) {
	m := &Manager{
		id:        uuid.New(),
		createdAt: time.Now(),
		rt:        rt,
		module:    module,
		cfg:       cfg,
		state:     Initializing,
		caps:      caps,
		governor:  governor,
		observer:  observer,
	}

	backend, err := rt.Instantiate(ctx, module, cfg)
	if err != nil {
		m.state = Failed
		m.notify(Initializing, Failed)
		return m, fmt.Errorf("%v: %w", err, runtime.ErrInstantiation)
	}

	m.backend = backend
	m.state = Running
	m.notify(Initializing, Running)
	return m, nil
}

func (m *Manager) notify(from, to State) {
	if m.observer != nil {
		m.observer(m.id, from, to)
	}
}

// ID returns the instance's stable id.
func (m *Manager) ID() uuid.UUID { return m.id }

// CreatedAt returns the instance's creation timestamp.
func (m *Manager) CreatedAt() time.Time { return m.createdAt }

// State returns the current lifecycle state under the instance lock.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Capabilities returns the instance's capability set.
func (m *Manager) Capabilities() capability.Set { return m.caps }

// Governor returns the instance's resource governor.
func (m *Manager) Governor() *resource.Governor { return m.governor }

// SafeUnwindOnTimeout reports whether this instance's backend Runtime
// guarantees that an interrupted call leaves linear memory well-defined
// (runtime.Capabilities.SafeUnwindOnTimeout), the condition spec.md §9's
// Open Question resolution uses to decide whether a Timeout or an uncaught
// trap must terminate the instance outright or leaves it Running.
func (m *Manager) SafeUnwindOnTimeout() bool {
	return m.rt.SnapshotCapabilities().SafeUnwindOnTimeout
}

// Backend returns the underlying engine instance for use by the
// marshalling/RPC layer. Callers must hold no assumption about backend
// identity across a Reset.
func (m *Manager) Backend() runtime.Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}

// Lock acquires the instance's exclusive call lock and returns an unlock
// func, used by the marshalling layer to serialize typed calls per
// spec.md §4.7's ordering guarantee. Returns an error if the instance is
// already terminal.
func (m *Manager) Lock() (unlock func(), err error) {
	m.mu.Lock()
	if m.state.Terminal() {
		s := m.state
		m.mu.Unlock()
		return nil, &TerminalStateError{State: s}
	}
	return m.mu.Unlock, nil
}

// TerminalStateError is returned when a call is attempted against a
// Terminated or Failed instance (spec.md §3 invariant: "no further calls
// may succeed").
type TerminalStateError struct {
	State State
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("instance: call against terminal state %s", e.State)
}

// Pause transitions Running -> Paused.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(Paused)
}

// Resume transitions Paused -> Running.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(Running)
}

// Terminate transitions the instance to Terminated (clean stop) or, when
// cleanUnwind is false, to Failed (e.g. a trap left memory undefined).
func (m *Manager) Terminate(ctx context.Context, cleanUnwind bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := Terminated
	if !cleanUnwind {
		target = Failed
	}
	if err := m.transitionLocked(target); err != nil {
		return err
	}
	if m.backend != nil {
		return m.backend.Close(ctx)
	}
	return nil
}

// MarkDirty flags the instance as having undefined linear-memory state
// after a cancellation whose unwind the backend could not guarantee clean
// (spec.md §5). A dirty instance must be Reset before further use unless
// later calls themselves fail fast against it.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}

// Dirty reports whether the instance needs a Reset before reuse.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Reset atomically rebinds a fresh backend instance to the same module and
// zeros accounting (spec.md §3 invariant). It builds the replacement
// before touching any exposed state, mirroring opa/pool.go's
// "construct in advance, then swap in one exclusive step" pattern.
func (m *Manager) Reset(ctx context.Context) error {
	fresh, err := m.rt.Instantiate(ctx, m.module, m.cfg)
	if err != nil {
		m.mu.Lock()
		from := m.state
		if from.Terminal() {
			m.mu.Unlock()
			return fmt.Errorf("%v: %w", err, runtime.ErrInstantiation)
		}
		m.state = Failed
		m.mu.Unlock()
		m.notify(from, Failed)
		return fmt.Errorf("%v: %w", err, runtime.ErrInstantiation)
	}

	m.mu.Lock()
	old := m.backend
	from := m.state
	if err := checkEdge(from, Initializing); err != nil {
		m.mu.Unlock()
		_ = fresh.Close(ctx)
		return err
	}
	m.state = Initializing
	m.backend = fresh
	m.dirty = false
	m.mu.Unlock()
	m.notify(from, Initializing)

	m.governor.Reset()

	m.mu.Lock()
	m.state = Running
	m.mu.Unlock()
	m.notify(Initializing, Running)

	if old != nil {
		_ = old.Close(ctx)
	}
	return nil
}

// transitionLocked validates and applies from -> to. Caller must hold mu.
func (m *Manager) transitionLocked(to State) error {
	from := m.state
	if err := checkEdge(from, to); err != nil {
		return err
	}
	m.state = to
	m.notify(from, to)
	return nil
}
