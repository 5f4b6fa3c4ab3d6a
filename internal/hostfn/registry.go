// Package hostfn implements the Host Function Registry (C8): a named
// table of host-side callbacks exposed to guests, resolved by import name
// at instantiation and gated through the capability model on every call.
// Grounded on the teacher's opa_builtin0..4 C-dispatch table
// (internal/wazero/module.go's Call/C0..C4), generalized from a fixed
// builtin-id table to an arbitrary named-import table.
package hostfn

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

// Entry declares one host function exposed to guests.
type Entry struct {
	Module       string
	Name         string
	Signature    value.Signature
	RequiredCaps []capability.Capability // every entry must be granted
	MayBlock     bool
	// FileHandle marks an entry that opens a host file descriptor the
	// Resource Governor must count against max-open-files for the
	// duration of the call (spec.md §4.8's fs_open example).
	FileHandle bool
	Fn         runtime.HostFunc
}

func (e *Entry) key() string { return e.Module + "." + e.Name }

// Registry holds every host function a sandbox factory knows how to bind,
// shared read-only across instances; per-instance gating is applied by
// Bind, not by the Registry itself.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds or replaces an entry under its Module.Name key.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := e
	r.entries[cp.key()] = &cp
}

func (r *Registry) lookup(module, name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[module+"."+name]
	return e, ok
}

// DeniedEvent is reported to a Binding's onDenied callback when a gated
// call is refused, letting the sandbox wiring layer translate it into a
// CapabilityDenied audit event without this package depending on
// internal/audit.
type DeniedEvent struct {
	Entry     *Entry
	Requested capability.Capability
}

// Binding scopes the shared Registry to one instance's capability set and
// Resource Governor, implementing runtime.ImportResolver so it can be
// handed to Runtime.Instantiate as InstanceConfig.Imports.
type Binding struct {
	reg      *Registry
	caps     capability.Set
	gov      *resource.Governor
	onDenied func(DeniedEvent)
}

// Bind scopes reg to one instance. onDenied may be nil.
func (r *Registry) Bind(caps capability.Set, gov *resource.Governor, onDenied func(DeniedEvent)) *Binding {
	return &Binding{reg: r, caps: caps, gov: gov, onDenied: onDenied}
}

// Resolve implements runtime.ImportResolver: it looks the import up by
// Module.Name and, if found, returns a gated wrapper; engines fall back to
// an AllowMissing stub when Resolve reports false (spec.md §4.8).
func (b *Binding) Resolve(imp value.ImportDescriptor) (runtime.HostFunc, bool) {
	e, ok := b.reg.lookup(imp.Module, imp.Name)
	if !ok {
		return nil, false
	}
	return b.gated(e), true
}

// gated wraps e.Fn with the capability check and file-descriptor counting
// described in spec.md §4.8: "Before invocation, the registry consults C4
// ...; on grant, it increments any relevant C5 counters ...; on return,
// decrements live counters as appropriate."
func (b *Binding) gated(e *Entry) runtime.HostFunc {
	return func(ctx context.Context, args []value.Value) ([]value.Value, error) {
		for _, want := range e.RequiredCaps {
			allowed, err := b.caps.Allows(want)
			if err != nil {
				return nil, err
			}
			if !allowed {
				if b.onDenied != nil {
					b.onDenied(DeniedEvent{Entry: e, Requested: want})
				}
				return nil, &SecurityViolationError{Requested: want}
			}
		}

		if e.FileHandle {
			if err := b.gov.OpenFile(); err != nil {
				return nil, err
			}
			defer b.gov.CloseFile()
		}

		return e.Fn(ctx, args)
	}
}

// MustMatchSignature validates that imp's declared signature matches the
// registered entry, returning an error the caller can fold into
// InstantiationError when a guest's import declaration disagrees with the
// host's registered host function shape.
func (b *Binding) MustMatchSignature(imp value.ImportDescriptor) error {
	e, ok := b.reg.lookup(imp.Module, imp.Name)
	if !ok {
		return nil
	}
	if !e.Signature.Equal(imp.Signature) {
		return fmt.Errorf("hostfn: import %s.%s signature %v does not match registered %v", imp.Module, imp.Name, imp.Signature, e.Signature)
	}
	return nil
}
