package wazeroengine

import (
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmsandbox/core/internal/value"
)

func TestKindRoundTrip(t *testing.T) {
	kinds := []value.Kind{value.KindI32, value.KindI64, value.KindF32, value.KindF64}
	apiKinds, err := toAPIKinds(kinds)
	if err != nil {
		t.Fatalf("toAPIKinds: %v", err)
	}
	back := fromAPIKinds(apiKinds)
	for i, k := range kinds {
		if back[i] != k {
			t.Fatalf("round trip mismatch at %d: got %s, want %s", i, back[i], k)
		}
	}
}

func TestToAPIKindRejectsUnknown(t *testing.T) {
	if _, err := toAPIKind(value.Kind(99)); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}

func TestFromAPIKindCoversAllValueTypes(t *testing.T) {
	cases := map[api.ValueType]value.Kind{
		api.ValueTypeI32:      value.KindI32,
		api.ValueTypeI64:      value.KindI64,
		api.ValueTypeF32:      value.KindF32,
		api.ValueTypeF64:      value.KindF64,
		api.ValueTypeFuncref:  value.KindFuncRef,
		api.ValueTypeExternref: value.KindExternRef,
	}
	for apiKind, want := range cases {
		if got := fromAPIKind(apiKind); got != want {
			t.Fatalf("fromAPIKind(%v) = %s, want %s", apiKind, got, want)
		}
	}
}
