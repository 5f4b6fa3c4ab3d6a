package value

import (
	"errors"
	"testing"
)

func TestValueAccessorsRoundTrip(t *testing.T) {
	tests := []struct {
		Description string
		Value       Value
		Kind        Kind
	}{
		{"i32", I32(42), KindI32},
		{"i64", I64(-7), KindI64},
		{"f32", F32(1.5), KindF32},
		{"f64", F64(3.25), KindF64},
	}

	for _, test := range tests {
		t.Run(test.Description, func(t *testing.T) {
			if test.Value.Kind() != test.Kind {
				t.Fatalf("got kind %s, want %s", test.Value.Kind(), test.Kind)
			}

			raw, err := test.Value.AsUint64()
			if err != nil {
				t.Fatalf("AsUint64: %v", err)
			}

			back, err := FromUint64(test.Kind, raw)
			if err != nil {
				t.Fatalf("FromUint64: %v", err)
			}

			if back.Kind() != test.Kind {
				t.Fatalf("round-tripped kind mismatch: got %s", back.Kind())
			}
		})
	}
}

func TestValueAccessorWrongKindIsTypeMismatch(t *testing.T) {
	v := I32(1)

	_, err := v.I64()
	var mismatch *TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if mismatch.Want != KindI64 || mismatch.Got != KindI32 {
		t.Fatalf("unexpected mismatch fields: %+v", mismatch)
	}
}

func TestSignatureEqual(t *testing.T) {
	a := Signature{Params: []Kind{KindI32, KindI32}, Results: []Kind{KindI32}}
	b := Signature{Params: []Kind{KindI32, KindI32}, Results: []Kind{KindI32}}
	c := Signature{Params: []Kind{KindI32}, Results: []Kind{KindI32}}

	if !a.Equal(b) {
		t.Fatal("expected a == b")
	}
	if a.Equal(c) {
		t.Fatal("expected a != c")
	}
}

func TestFromGoValueOutOfRangeInt(t *testing.T) {
	_, err := FromGoValue(KindI32, int(1<<40))
	if err == nil {
		t.Fatal("expected error converting out-of-range int to i32")
	}
}
