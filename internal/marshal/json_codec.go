package marshal

import "encoding/json"

// jsonCodec is the default codec (spec.md §4.7), backed by encoding/json
// exactly as the teacher's toRegoJSON/fromRegoJSON pair marshals Rego
// values, generalized to an arbitrary Go value.
type jsonCodec struct{}

func (jsonCodec) Format() Format { return FormatJSON }

func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }
