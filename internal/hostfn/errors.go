package hostfn

import (
	"fmt"

	"github.com/wasmsandbox/core/internal/capability"
)

// SecurityViolationError is the surface error returned by a gated host
// function call when the instance's capability set does not grant the
// requested operation (spec.md §6: "SecurityViolation{capability?,
// resource?}").
type SecurityViolationError struct {
	Requested capability.Capability
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation: capability %s denied", e.Requested.Kind)
}
