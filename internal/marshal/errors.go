package marshal

import "fmt"

// AllocationFailedError is raised when the guest's exported allocator
// returns 0 for a requested length (spec.md §6's WASM ABI: "Returning 0
// means allocation failure").
type AllocationFailedError struct {
	RequestedLength int
}

func (e *AllocationFailedError) Error() string {
	return fmt.Sprintf("marshal: guest allocator returned 0 for length %d", e.RequestedLength)
}

// DeallocationFailedError is logged but never masks the original call
// error, per spec.md §4.7: "failure to deallocate is logged but does not
// mask the original error."
type DeallocationFailedError struct {
	Cause error
}

func (e *DeallocationFailedError) Error() string {
	return fmt.Sprintf("marshal: guest deallocator failed: %v", e.Cause)
}

// CancelledError surfaces spec.md §6's Cancelled taxonomy value.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "cancelled" }

// TimeoutError surfaces spec.md §6's Timeout taxonomy value.
type TimeoutError struct{}

func (e *TimeoutError) Error() string { return "timeout" }
