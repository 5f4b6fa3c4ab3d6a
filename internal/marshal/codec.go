// Package marshal implements typed host<->guest RPC layered over a minimal
// linear-memory ABI (C7): pluggable serialization codecs, the
// allocate/write/invoke/read/deallocate call sequence, and cancellation.
// Grounded on the teacher's internal/wazero/VM.go toRegoJSON/fromRegoJSON
// helpers and module.go's writeMem/readFrom pair, generalized from a single
// fixed Rego-JSON payload to any of the three serialization formats named
// in spec.md §4.7.
package marshal

import "fmt"

// Format names a serialization format, matching spec.md §4.7's recognized
// options. Format is also accepted as a per-call override; spec.md §9's
// open question is resolved as call-override-wins.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatBincode Format = "bincode"
)

// Codec encodes and decodes Go values to/from the wire bytes carried across
// linear memory.
type Codec interface {
	Format() Format
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

// Registry resolves a Format name to its Codec, with a configured default
// used when a call supplies no override.
type Registry struct {
	byFormat map[Format]Codec
	def      Format
}

// NewRegistry builds a Registry pre-populated with json, msgpack, and
// bincode codecs, defaulting to def (spec.md §4.7: "default JSON").
func NewRegistry(def Format) *Registry {
	r := &Registry{
		byFormat: map[Format]Codec{
			FormatJSON:    &jsonCodec{},
			FormatMsgpack: &msgpackCodec{},
			FormatBincode: &bincodeCodec{},
		},
		def: def,
	}
	return r
}

// Register overrides or adds a Codec under its own Format, used by callers
// wiring in a custom serialization format not covered by the three built-ins.
func (r *Registry) Register(c Codec) {
	r.byFormat[c.Format()] = c
}

// Resolve returns the Codec for override if non-empty, else the Registry's
// configured default. Per spec.md §9's open question, a non-empty per-call
// override always wins over the sandbox default.
func (r *Registry) Resolve(override Format) (Codec, error) {
	f := r.def
	if override != "" {
		f = override
	}
	c, ok := r.byFormat[f]
	if !ok {
		return nil, fmt.Errorf("marshal: unknown serialization format %q", f)
	}
	return c, nil
}
