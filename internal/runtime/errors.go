package runtime

import "fmt"

// These sentinels back the error taxonomy's compile/instantiate/memory axis
// (spec.md §6), wrapped with %w exactly as the teacher's opa/errors.go does.
var (
	ErrCompilation       = fmt.Errorf("compilation error")
	ErrValidation        = fmt.Errorf("validation error")
	ErrInstantiation     = fmt.Errorf("instantiation error")
	ErrUnresolvedImport  = fmt.Errorf("unresolved import")
)

// MemoryOutOfBoundsError is returned by ReadMemory/WriteMemory when the
// requested range falls outside the instance's current linear memory.
type MemoryOutOfBoundsError struct {
	Offset, Length, MemorySize uint32
}

func (e *MemoryOutOfBoundsError) Error() string {
	return fmt.Sprintf("memory out of bounds: offset=%d length=%d size=%d", e.Offset, e.Length, e.MemorySize)
}

// MemoryGrowFailedError is returned by GrowMemory when the requested growth
// cannot be satisfied (cap exceeded or backend allocation failure).
type MemoryGrowFailedError struct {
	DeltaPages, CurrentPages, MaxPages uint32
}

func (e *MemoryGrowFailedError) Error() string {
	return fmt.Sprintf("memory grow failed: delta=%d current=%d max=%d", e.DeltaPages, e.CurrentPages, e.MaxPages)
}

// RuntimeError wraps a backend trap (div-by-zero, unreachable, OOB table
// access, ...) that is not otherwise classified.
type RuntimeError struct {
	Detail string
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("runtime error: %s", e.Detail) }
