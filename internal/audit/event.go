// Package audit implements the Audit Event stream and Metrics registry
// (C10): a non-blocking event sink per spec.md §4.10 and a
// Prometheus-backed internal metrics registry exposed through a neutral
// snapshot API, mirroring how the teacher's metrics package wraps an
// internal provider behind a neutral Metrics interface.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the audit event taxonomy from spec.md §3.
type Kind string

const (
	KindCapabilityRequested Kind = "CapabilityRequested"
	KindCapabilityDenied    Kind = "CapabilityDenied"
	KindQuotaApproaching    Kind = "QuotaApproaching"
	KindQuotaExceeded       Kind = "QuotaExceeded"
	KindFunctionCalled      Kind = "FunctionCalled"
	KindFunctionReturned    Kind = "FunctionReturned"
	KindInstanceStateChanged Kind = "InstanceStateChanged"
	KindHostError           Kind = "HostError"
)

// Severity enumerates spec.md §3's audit severities.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// Event is an immutable audit record (spec.md §3/§4.10). No engine-specific
// fields ever appear here: Detail carries anything backend-specific as
// plain values.
type Event struct {
	Timestamp  time.Time
	InstanceID uuid.UUID
	Kind       Kind
	Severity   Severity
	Detail     map[string]any
}
