package hostfn

import (
	"context"
	"errors"
	"testing"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/value"
)

func TestResolveMissingImportReportsNotFound(t *testing.T) {
	r := NewRegistry()
	caps, _ := capability.NewSet(capability.Strict)
	gov := resource.NewGovernor(resource.Quota{}, nil)
	b := r.Bind(caps, gov, nil)

	_, ok := b.Resolve(value.ImportDescriptor{Module: "env", Name: "missing"})
	if ok {
		t.Fatal("expected Resolve to report not found for an unregistered import")
	}
}

func TestResolveGrantedCapabilityInvokesFn(t *testing.T) {
	r := NewRegistry()
	r.Register(Entry{
		Module:       "env",
		Name:         "clock_now",
		RequiredCaps: []capability.Capability{capability.Clock()},
		Fn: func(ctx context.Context, args []value.Value) ([]value.Value, error) {
			return []value.Value{value.I64(42)}, nil
		},
	})

	caps, _ := capability.NewSet(capability.Moderate) // grants Clock
	gov := resource.NewGovernor(resource.Quota{}, nil)
	b := r.Bind(caps, gov, nil)

	fn, ok := b.Resolve(value.ImportDescriptor{Module: "env", Name: "clock_now"})
	if !ok {
		t.Fatal("expected clock_now to resolve")
	}
	out, err := fn(context.Background(), nil)
	if err != nil {
		t.Fatalf("fn: %v", err)
	}
	n, _ := out[0].I64()
	if n != 42 {
		t.Fatalf("got %d, want 42", n)
	}
}

func TestResolveDeniedCapabilityReturnsSecurityViolation(t *testing.T) {
	r := NewRegistry()
	r.Register(Entry{
		Module:       "env",
		Name:         "net_connect",
		RequiredCaps: []capability.Capability{capability.NetworkConnect(capability.NetworkRule{AllowHosts: []string{"example.com"}, AllowPorts: []int{443}})},
		Fn: func(ctx context.Context, args []value.Value) ([]value.Value, error) {
			return nil, errors.New("should never run")
		},
	})

	caps, _ := capability.NewSet(capability.Strict) // no network
	gov := resource.NewGovernor(resource.Quota{}, nil)

	var denied *DeniedEvent
	b := r.Bind(caps, gov, func(ev DeniedEvent) { denied = &ev })

	fn, ok := b.Resolve(value.ImportDescriptor{Module: "env", Name: "net_connect"})
	if !ok {
		t.Fatal("expected net_connect to resolve (gating happens at call time)")
	}
	_, err := fn(context.Background(), nil)
	var secErr *SecurityViolationError
	if !errors.As(err, &secErr) {
		t.Fatalf("got %v, want SecurityViolationError", err)
	}
	if denied == nil {
		t.Fatal("expected onDenied callback to fire")
	}
}

func TestFileHandleEntryCountsFileDescriptor(t *testing.T) {
	r := NewRegistry()
	r.Register(Entry{
		Module:     "env",
		Name:       "fs_open",
		FileHandle: true,
		Fn: func(ctx context.Context, args []value.Value) ([]value.Value, error) {
			return []value.Value{value.I32(3)}, nil
		},
	})

	caps, _ := capability.NewSet(capability.Trusted)
	max := uint64(1)
	gov := resource.NewGovernor(resource.Quota{MaxOpenFiles: &max}, nil)
	b := r.Bind(caps, gov, nil)

	fn, _ := b.Resolve(value.ImportDescriptor{Module: "env", Name: "fs_open"})
	if _, err := fn(context.Background(), nil); err != nil {
		t.Fatalf("first fs_open: %v", err)
	}
	if gov.Snapshot().OpenFiles != 0 {
		t.Fatalf("expected fd counter decremented after call returns, got %d", gov.Snapshot().OpenFiles)
	}
}
