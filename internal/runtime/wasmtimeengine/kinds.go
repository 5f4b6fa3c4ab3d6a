package wasmtimeengine

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v3"

	"github.com/wasmsandbox/core/internal/value"
)

// toWasmtimeKind converts an engine-neutral value.Kind to wasmtime's
// wasmtime.ValKind, used when declaring host function signatures through
// the Linker.
func toWasmtimeKind(k value.Kind) (*wasmtime.ValType, error) {
	switch k {
	case value.KindI32:
		return wasmtime.NewValType(wasmtime.KindI32), nil
	case value.KindI64:
		return wasmtime.NewValType(wasmtime.KindI64), nil
	case value.KindF32:
		return wasmtime.NewValType(wasmtime.KindF32), nil
	case value.KindF64:
		return wasmtime.NewValType(wasmtime.KindF64), nil
	case value.KindFuncRef:
		return wasmtime.NewValType(wasmtime.KindFuncref), nil
	case value.KindExternRef:
		return wasmtime.NewValType(wasmtime.KindExternref), nil
	default:
		return nil, fmt.Errorf("wasmtimeengine: unsupported value kind %s", k)
	}
}

func fromValKind(k *wasmtime.ValType) value.Kind {
	switch k.Kind() {
	case wasmtime.KindI32:
		return value.KindI32
	case wasmtime.KindI64:
		return value.KindI64
	case wasmtime.KindF32:
		return value.KindF32
	case wasmtime.KindF64:
		return value.KindF64
	case wasmtime.KindFuncref:
		return value.KindFuncRef
	case wasmtime.KindExternref:
		return value.KindExternRef
	default:
		return value.KindI32
	}
}

// toWasmtimeVal converts an engine-neutral Value to the interface{} shape
// the wasmtime-go binding accepts for a Func.Call argument.
func toWasmtimeVal(v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindI32:
		n, _ := v.I32()
		return n, nil
	case value.KindI64:
		n, _ := v.I64()
		return n, nil
	case value.KindF32:
		n, _ := v.F32()
		return n, nil
	case value.KindF64:
		n, _ := v.F64()
		return n, nil
	default:
		ref, err := v.Ref()
		return ref, err
	}
}

// fromWasmtimeVal converts a raw Go value returned by wasmtime-go back to
// an engine-neutral Value, tagged with the result Kind the export declared.
func fromWasmtimeVal(kind value.Kind, raw any) (value.Value, error) {
	switch kind {
	case value.KindI32:
		return value.I32(raw.(int32)), nil
	case value.KindI64:
		return value.I64(raw.(int64)), nil
	case value.KindF32:
		return value.F32(raw.(float32)), nil
	case value.KindF64:
		return value.F64(raw.(float64)), nil
	case value.KindFuncRef:
		return value.FuncRef(raw), nil
	case value.KindExternRef:
		return value.ExternRef(raw), nil
	default:
		return value.Value{}, fmt.Errorf("wasmtimeengine: cannot convert raw result of kind %s", kind)
	}
}
