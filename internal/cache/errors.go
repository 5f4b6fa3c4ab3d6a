package cache

import "fmt"

// CompileFailedError wraps a backend compile error that caused the
// offending content hash to be evicted rather than cached, per spec.md
// §3's "module cache never returns a stale or poisoned entry" invariant.
type CompileFailedError struct {
	Cause error
}

func (e *CompileFailedError) Error() string {
	return fmt.Sprintf("cache: compile failed, not cached: %v", e.Cause)
}

func (e *CompileFailedError) Unwrap() error { return e.Cause }

// PoolClosedError is returned by Pool.Acquire once the pool has been
// closed, mirroring opa/pool.go's ErrNotReady.
type PoolClosedError struct{}

func (e *PoolClosedError) Error() string { return "cache: pool closed" }

// PoolExhaustedError is returned by Pool.TryAcquire when no instance is
// immediately available and the caller asked not to wait.
type PoolExhaustedError struct{}

func (e *PoolExhaustedError) Error() string { return "cache: pool exhausted" }
