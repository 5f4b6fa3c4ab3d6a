package wazeroengine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

type fakeResolver struct {
	fn runtime.HostFunc
	ok bool
}

func (r fakeResolver) Resolve(value.ImportDescriptor) (runtime.HostFunc, bool) { return r.fn, r.ok }

func TestResolveOrStubPrefersResolver(t *testing.T) {
	called := false
	cfg := runtime.InstanceConfig{
		Imports: fakeResolver{fn: func(ctx context.Context, args []value.Value) ([]value.Value, error) {
			called = true
			return nil, nil
		}, ok: true},
	}
	fn, ok := resolveOrStub(cfg, value.ImportDescriptor{Module: "env", Name: "log"})
	if !ok {
		t.Fatal("expected resolution")
	}
	if _, err := fn(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected resolver's HostFunc to be invoked")
	}
}

func TestResolveOrStubFallsBackWhenAllowMissing(t *testing.T) {
	cfg := runtime.InstanceConfig{AllowMissing: true}
	fn, ok := resolveOrStub(cfg, value.ImportDescriptor{
		Module: "env",
		Name:   "missing",
		Signature: value.Signature{
			Results: []value.Kind{value.KindI32},
		},
	})
	if !ok {
		t.Fatal("expected stub fallback to succeed")
	}
	out, err := fn(context.Background(), nil)
	if !errors.Is(err, runtime.ErrUnresolvedImport) {
		t.Fatalf("got error %v, want one wrapping ErrUnresolvedImport", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d results, want none from the stub", len(out))
	}
	if !strings.Contains(err.Error(), "env.missing") {
		t.Fatalf("error %q does not name the unresolved import", err)
	}
}

func TestResolveOrStubFailsWithoutAllowMissing(t *testing.T) {
	cfg := runtime.InstanceConfig{}
	_, ok := resolveOrStub(cfg, value.ImportDescriptor{Module: "env", Name: "missing"})
	if ok {
		t.Fatal("expected resolution to fail when no resolver and AllowMissing is false")
	}
}
