package value

import "fmt"

// FromGoValue converts a narrow set of Go scalar types into a Value of the
// requested Kind. It fails with TypeMismatchError when the Go value cannot
// be represented as that Kind without loss.
func FromGoValue(k Kind, v any) (Value, error) {
	switch k {
	case KindI32:
		switch n := v.(type) {
		case int32:
			return I32(n), nil
		case int:
			if n < -(1<<31) || n > (1<<31)-1 {
				return Value{}, &TypeMismatchError{Want: KindI32, Got: KindI64}
			}
			return I32(int32(n)), nil
		}
	case KindI64:
		switch n := v.(type) {
		case int64:
			return I64(n), nil
		case int:
			return I64(int64(n)), nil
		case int32:
			return I64(int64(n)), nil
		}
	case KindF32:
		if n, ok := v.(float32); ok {
			return F32(n), nil
		}
	case KindF64:
		switch n := v.(type) {
		case float64:
			return F64(n), nil
		case float32:
			return F64(float64(n)), nil
		}
	case KindFuncRef:
		return FuncRef(v), nil
	case KindExternRef:
		return ExternRef(v), nil
	}
	return Value{}, fmt.Errorf("value: cannot convert %T to %s: %w", v, k, &TypeMismatchError{Want: k})
}

// ToGoValue converts a Value back into its natural Go representation.
func ToGoValue(v Value) (any, error) {
	switch v.Kind() {
	case KindI32:
		return v.I32()
	case KindI64:
		return v.I64()
	case KindF32:
		return v.F32()
	case KindF64:
		return v.F64()
	case KindFuncRef, KindExternRef:
		return v.Ref()
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.Kind())
	}
}
