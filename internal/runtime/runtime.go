// Package runtime defines the engine-agnostic contract every WASM backend
// implements (C2), and the module/instance records that flow through it.
// It mirrors the shape of the teacher's internal/wasm/sdk, generalized from
// one fixed ABI (Rego-eval) to an arbitrary capability-gated guest export.
package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/value"
)

// Module is the immutable compiled artifact produced by Compile or returned
// by a cache hit. Never mutated after construction.
type Module struct {
	ID          uuid.UUID
	ContentHash [32]byte
	ByteLength  int
	CreatedAt   time.Time
	Exports     []value.ExportDescriptor
	Imports     []value.ImportDescriptor
	Memory      value.MemoryDescriptor
	Tables      []value.TableDescriptor

	// Native is the backend-specific compiled representation (e.g. a
	// *wazero.CompiledModule). Opaque to every caller outside the owning
	// backend.
	Native any
}

// InstanceConfig configures Instantiate. It carries only the axes a backend
// itself must enforce or fall back on (spec.md §4.3); the full Quota and
// Capability records live in internal/resource and internal/capability to
// keep this package decoupled from those layers.
type InstanceConfig struct {
	MemoryBytesMax uint64
	FuelMax        uint64
	WallTimeout    time.Duration
	AllowMissing   bool // bind unresolved imports to a stub instead of failing
	Imports        ImportResolver
}

// ImportResolver resolves a named import to a callable host function. It is
// implemented by internal/hostfn.Binding; defined here as an interface to
// avoid a cyclic dependency between runtime and hostfn.
type ImportResolver interface {
	Resolve(imp value.ImportDescriptor) (HostFunc, bool)
}

// HostFunc is the engine-neutral shape of a bound host function.
type HostFunc func(ctx context.Context, args []value.Value) ([]value.Value, error)

// Instance is a live execution context returned by Instantiate.
type Instance interface {
	// ModuleID reports the Module this instance is bound to.
	ModuleID() uuid.UUID

	// Call invokes an exported function by name with engine-neutral values.
	Call(ctx context.Context, name string, args []value.Value) ([]value.Value, error)

	// ReadMemory reads length bytes at offset from the named exported
	// memory (conventionally "memory"). Returns MemoryOutOfBoundsError.
	ReadMemory(offset, length uint32) ([]byte, error)

	// WriteMemory writes data at offset into the named exported memory.
	// Returns MemoryOutOfBoundsError.
	WriteMemory(offset uint32, data []byte) error

	// GrowMemory grows the memory by delta pages, returning the old page
	// count on success or MemoryGrowFailedError.
	GrowMemory(deltaPages uint32) (oldPages uint32, err error)

	// MemorySize reports the exported memory's current size in bytes, used
	// by the Governor's polling fallback (spec.md §4.5) on backends that
	// cannot enforce a cap natively at the point of a guest's own
	// memory.grow instruction.
	MemorySize() uint64

	// Interrupt unwinds any in-progress call with the given reason
	// ("cancelled" or "timeout"), callable from another goroutine.
	Interrupt(reason InterruptReason)

	// Close releases backend resources. Idempotent.
	Close(ctx context.Context) error
}

// InterruptReason distinguishes why Interrupt was invoked.
type InterruptReason int

const (
	InterruptCancelled InterruptReason = iota
	InterruptTimeout
)

// Capabilities advertises which WASM and runtime features a backend
// supports, per spec.md §4.2.
type Capabilities struct {
	BulkMemory           bool
	SIMD                 bool
	Threads              bool
	FuelMetering         bool
	EpochInterruption    bool
	NativeMemoryLimits   bool
	SafeUnwindOnTimeout  bool
	SupportedFormats     []string
}

// Metrics are monotonic counters a backend exposes about its own activity.
type Metrics struct {
	Compilations    uint64
	Instantiations  uint64
	ActiveInstances uint64
	BytesCompiled   uint64
}

// Requirements describes what a caller needs from a backend, used by the
// Registry to score candidates.
type Requirements struct {
	RequiredFeatures        []string // e.g. "bulk-memory", "simd", "threads"
	RequiredSecurityFeatures []string // e.g. "fuel-metering", "epoch-interruption", "native-memory-limits"
	RequiredDebugging        []string
}

// Runtime is the engine-agnostic contract every backend implements (C2).
type Runtime interface {
	Name() string

	// Compile validates and produces a Module. Deterministic given
	// identical bytes.
	Compile(ctx context.Context, wasmBytes []byte) (*Module, error)

	// Validate checks wasmBytes for structural errors without keeping a
	// Module. internal/cache does not call it; Compile validates as well.
	Validate(ctx context.Context, wasmBytes []byte) error

	// Instantiate binds imports, applies quotas, and returns a Running
	// instance.
	Instantiate(ctx context.Context, mod *Module, cfg InstanceConfig) (Instance, error)

	SnapshotCapabilities() Capabilities
	Metrics() Metrics
}
