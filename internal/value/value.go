// Package value defines the engine-neutral WASM value model shared by every
// runtime backend: value kinds, export/import descriptors, and memory/table
// metadata. It holds no state and performs no I/O.
package value

import "fmt"

// Kind identifies the tag of a Value.
type Kind int

const (
	KindI32 Kind = iota
	KindI64
	KindF32
	KindF64
	KindFuncRef
	KindExternRef
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindFuncRef:
		return "funcref"
	case KindExternRef:
		return "externref"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TypeMismatchError is returned by any conversion that targets the wrong Kind.
type TypeMismatchError struct {
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: want %s, got %s", e.Want, e.Got)
}

// Value is a tagged union over the WASM scalar and reference value kinds.
// Only the field matching Kind is meaningful.
type Value struct {
	kind Kind
	i32  int32
	i64  int64
	f32  float32
	f64  float64
	ref  any // opaque FuncRef/ExternRef payload
}

func I32(v int32) Value     { return Value{kind: KindI32, i32: v} }
func I64(v int64) Value     { return Value{kind: KindI64, i64: v} }
func F32(v float32) Value   { return Value{kind: KindF32, f32: v} }
func F64(v float64) Value   { return Value{kind: KindF64, f64: v} }
func FuncRef(v any) Value   { return Value{kind: KindFuncRef, ref: v} }
func ExternRef(v any) Value { return Value{kind: KindExternRef, ref: v} }

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// I32 returns the wrapped int32, or TypeMismatchError if Kind() != KindI32.
func (v Value) I32() (int32, error) {
	if v.kind != KindI32 {
		return 0, &TypeMismatchError{Want: KindI32, Got: v.kind}
	}
	return v.i32, nil
}

// I64 returns the wrapped int64, or TypeMismatchError if Kind() != KindI64.
func (v Value) I64() (int64, error) {
	if v.kind != KindI64 {
		return 0, &TypeMismatchError{Want: KindI64, Got: v.kind}
	}
	return v.i64, nil
}

// F32 returns the wrapped float32, or TypeMismatchError if Kind() != KindF32.
func (v Value) F32() (float32, error) {
	if v.kind != KindF32 {
		return 0, &TypeMismatchError{Want: KindF32, Got: v.kind}
	}
	return v.f32, nil
}

// F64 returns the wrapped float64, or TypeMismatchError if Kind() != KindF64.
func (v Value) F64() (float64, error) {
	if v.kind != KindF64 {
		return 0, &TypeMismatchError{Want: KindF64, Got: v.kind}
	}
	return v.f64, nil
}

// Ref returns the opaque reference payload for FuncRef/ExternRef values.
func (v Value) Ref() (any, error) {
	if v.kind != KindFuncRef && v.kind != KindExternRef {
		return nil, &TypeMismatchError{Want: KindFuncRef, Got: v.kind}
	}
	return v.ref, nil
}

// AsUint64 reinterprets I32/I64/F32/F64 as the raw 64-bit lane used by the
// multi-value return ABI. Backends convert to/from their own native
// representations on top of this.
func (v Value) AsUint64() (uint64, error) {
	switch v.kind {
	case KindI32:
		return uint64(uint32(v.i32)), nil
	case KindI64:
		return uint64(v.i64), nil
	case KindF32:
		return uint64(f32bits(v.f32)), nil
	case KindF64:
		return f64bits(v.f64), nil
	default:
		return 0, &TypeMismatchError{Want: KindI64, Got: v.kind}
	}
}

// FromUint64 builds a Value of the given Kind from a raw 64-bit lane.
func FromUint64(k Kind, raw uint64) (Value, error) {
	switch k {
	case KindI32:
		return I32(int32(uint32(raw))), nil
	case KindI64:
		return I64(int64(raw)), nil
	case KindF32:
		return F32(f32frombits(uint32(raw))), nil
	case KindF64:
		return F64(f64frombits(raw)), nil
	default:
		return Value{}, fmt.Errorf("value: cannot construct %s from raw lane", k)
	}
}
