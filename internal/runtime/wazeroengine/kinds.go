package wazeroengine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmsandbox/core/internal/value"
)

// toAPIKind converts an engine-neutral value.Kind to wazero's wire-level
// api.ValueType, used when building host function signatures and compiled
// module descriptors.
func toAPIKind(k value.Kind) (api.ValueType, error) {
	switch k {
	case value.KindI32:
		return api.ValueTypeI32, nil
	case value.KindI64:
		return api.ValueTypeI64, nil
	case value.KindF32:
		return api.ValueTypeF32, nil
	case value.KindF64:
		return api.ValueTypeF64, nil
	case value.KindFuncRef:
		return api.ValueTypeFuncref, nil
	case value.KindExternRef:
		return api.ValueTypeExternref, nil
	default:
		return 0, fmt.Errorf("wazeroengine: unsupported value kind %s", k)
	}
}

// fromAPIKind is the inverse of toAPIKind, used to label values read back
// off wazero's CompiledModule export/import metadata.
func fromAPIKind(t api.ValueType) value.Kind {
	switch t {
	case api.ValueTypeI32:
		return value.KindI32
	case api.ValueTypeI64:
		return value.KindI64
	case api.ValueTypeF32:
		return value.KindF32
	case api.ValueTypeF64:
		return value.KindF64
	case api.ValueTypeFuncref:
		return value.KindFuncRef
	case api.ValueTypeExternref:
		return value.KindExternRef
	default:
		return value.KindI32
	}
}

func toAPIKinds(ks []value.Kind) ([]api.ValueType, error) {
	out := make([]api.ValueType, len(ks))
	for i, k := range ks {
		v, err := toAPIKind(k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func fromAPIKinds(ts []api.ValueType) []value.Kind {
	out := make([]value.Kind, len(ts))
	for i, t := range ts {
		out[i] = fromAPIKind(t)
	}
	return out
}
