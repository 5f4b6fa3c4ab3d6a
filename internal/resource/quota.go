// Package resource implements the Resource Governor (C5): live usage
// accounting across memory, fuel, wall time, I/O, network, and file
// descriptors, with token-bucket smoothing and threshold audit events.
// Grounded on spec.md §4.5.
package resource

import (
	"fmt"
	"time"
)

// Quota mirrors spec.md §3's Resource Quota map: every option is optional
// (nil means unbounded for that axis), and any option present must be
// positive.
type Quota struct {
	MemoryBytesMax         *uint64
	MemoryGrowthStepMax    *uint64
	FuelMax                *uint64
	WallTimeout            *time.Duration
	ConnectTimeout         *time.Duration
	MaxOpenFiles           *uint64
	MaxConcurrentConns     *uint64
	MaxBytesSent           *uint64
	MaxBytesReceived       *uint64
	MaxFileSize            *uint64
	IOOpsPerSecond         *uint64
}

// Validate checks spec.md §3's invariant: every present numeric option is
// positive.
func (q Quota) Validate() error {
	checks := []struct {
		name string
		val  *uint64
	}{
		{"memory-bytes-max", q.MemoryBytesMax},
		{"memory-growth-step-max", q.MemoryGrowthStepMax},
		{"fuel-max", q.FuelMax},
		{"max-open-files", q.MaxOpenFiles},
		{"max-concurrent-connections", q.MaxConcurrentConns},
		{"max-bytes-sent", q.MaxBytesSent},
		{"max-bytes-received", q.MaxBytesReceived},
		{"max-file-size", q.MaxFileSize},
		{"io-ops-per-second", q.IOOpsPerSecond},
	}
	for _, c := range checks {
		if c.val != nil && *c.val == 0 {
			return fmt.Errorf("resource: quota %q must be positive if set", c.name)
		}
	}
	if q.WallTimeout != nil && *q.WallTimeout <= 0 {
		return fmt.Errorf("resource: quota %q must be positive if set", "wall-timeout")
	}
	if q.ConnectTimeout != nil && *q.ConnectTimeout <= 0 {
		return fmt.Errorf("resource: quota %q must be positive if set", "connect-timeout")
	}
	return nil
}

// ApproachingThreshold is the default fraction of any cap that triggers a
// QuotaApproaching warning (spec.md §4.5: "default 80% of any cap").
const ApproachingThreshold = 0.8

func u64(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}
