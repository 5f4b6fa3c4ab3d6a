// Package sandbox wires C1-C10 into the public library surface (spec.md
// §6): Build a sandbox from WASM bytes, a file path, or a pre-compiled
// module handle, then Call its exports under capability and resource
// governance, observing audit events and metrics along the way. Grounded
// on the teacher's top-level opa.OPA type: a builder-style constructor
// (opa.New().WithPolicyBytes(...).Init()) fronting the same pool/VM/
// marshalling machinery this package wires up from internal/*.
package sandbox

import (
	"os"

	"github.com/wasmsandbox/core/internal/runtime"
)

// SourceRef names where a guest module's bytes come from (spec.md §6:
// "raw WASM bytes, a filesystem path to a WASM file, or a pre-compiled
// module handle").
type SourceRef interface {
	sourceRef()
}

// BytesRef supplies the guest module's bytes directly.
type BytesRef []byte

func (BytesRef) sourceRef() {}

// PathRef names a filesystem path to a WASM file, read lazily by Build.
type PathRef string

func (PathRef) sourceRef() {}

// ModuleRef supplies an already-compiled Module, skipping Compile/Validate
// entirely (e.g. a module retrieved from internal/cache by a caller that
// manages its own cache lifecycle).
type ModuleRef struct {
	Module *runtime.Module
}

func (ModuleRef) sourceRef() {}

// resolveBytes returns the raw WASM bytes behind ref, or ok=false for a
// ModuleRef (which carries no source bytes to re-read).
func resolveBytes(ref SourceRef) (wasmBytes []byte, ok bool, err error) {
	switch r := ref.(type) {
	case BytesRef:
		return r, true, nil
	case PathRef:
		b, err := os.ReadFile(string(r))
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	case ModuleRef:
		return nil, false, nil
	default:
		return nil, false, nil
	}
}
