package sandbox

import (
	"fmt"

	"github.com/wasmsandbox/core/internal/marshal"
)

// Scalars marks args as a direct scalar call: each element is converted to
// the export's declared parameter kind (I32/I64) with no marshalling ABI
// involved (spec.md §6's "scalar values (I32/I64/F32/F64)" export shape;
// seed test 1's `add(5, 3)` has no serialized payload at all).
type Scalars []int64

// Result is the engine-neutral outcome of a Call. Exactly one of Scalars
// or a decodable payload is populated, depending on whether the export was
// invoked through the raw scalar convention or the marshalling ABI.
type Result struct {
	Frame   marshal.CallFrame
	Scalars []int64

	codec   marshal.Codec
	decoded any
}

// Decode unmarshals a marshalled-ABI result into out. It fails if the call
// used the raw scalar convention (see Scalars).
func (r Result) Decode(out any) error {
	if r.codec == nil {
		return fmt.Errorf("sandbox: result carries no decodable payload (scalar call); read .Scalars instead")
	}
	blob, err := r.codec.Encode(r.decoded)
	if err != nil {
		return fmt.Errorf("sandbox: re-encode decoded result: %w", err)
	}
	return r.codec.Decode(blob, out)
}
