package sandbox

import (
	"time"

	"github.com/wasmsandbox/core/internal/capability"
	"github.com/wasmsandbox/core/internal/hostfn"
	"github.com/wasmsandbox/core/internal/logging"
	"github.com/wasmsandbox/core/internal/marshal"
)

// options collects every Build-time configuration axis spec.md §6 names
// ("memory-limit, wall-timeout, fuel-limit, capability-set, serialization-
// format, backend-name, pool-size"), plus this expansion's supplemental
// axes (logger, watched-file hot-reload, host function registry).
type options struct {
	memoryLimit uint64
	wallTimeout time.Duration
	fuelLimit   uint64

	capSet    capability.Set
	hasCapSet bool

	format      marshal.Format
	backendName string
	poolSize    int

	log      logging.Logger
	hostReg  *hostfn.Registry
	watchedFile string
}

func defaultOptions() options {
	return options{
		format:   marshal.FormatJSON,
		poolSize: 1,
	}
}

// Option configures Build, mirroring the teacher's builder-style
// With*-option API (opa/config.go).
type Option func(*options)

// WithMemoryLimit caps linear memory growth at maxBytes (spec.md §4.5).
func WithMemoryLimit(maxBytes uint64) Option {
	return func(o *options) { o.memoryLimit = maxBytes }
}

// WithWallTimeout caps a single call's wall-clock duration.
func WithWallTimeout(d time.Duration) Option {
	return func(o *options) { o.wallTimeout = d }
}

// WithFuelLimit caps the fuel budget consumed per instance lifetime
// (spec.md §4.5; enforced natively on backends that report FuelMetering;
// a backend without fuel metering, such as wazero, does not enforce it).
func WithFuelLimit(units uint64) Option {
	return func(o *options) { o.fuelLimit = units }
}

// WithCapabilitySet installs a fully-formed capability.Set, overriding the
// Strict-base default (spec.md §4.4).
func WithCapabilitySet(caps capability.Set) Option {
	return func(o *options) { o.capSet = caps; o.hasCapSet = true }
}

// WithSerializationFormat sets the sandbox-wide default codec (spec.md
// §4.7); a per-Call override (not exposed here; see Sandbox.CallWithFormat)
// always wins over this default.
func WithSerializationFormat(f marshal.Format) Option {
	return func(o *options) { o.format = f }
}

// WithBackendName pins the engine backend by name ("wazero" or
// "wasmtime"), skipping the Registry.Select scoring pass.
func WithBackendName(name string) Option {
	return func(o *options) { o.backendName = name }
}

// WithPoolSize sets the number of warm instances Build pre-instantiates
// (spec.md §6: "pool-size (optional)"), mirroring opa.New()'s poolSize
// option.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithErrorLogger installs the Logger used for internal diagnostics (e.g.
// deallocation failures) that must never mask a call's primary error.
func WithErrorLogger(log logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithHostFunctions installs the Host Function Registry (C8) imports are
// resolved against; without one, a guest still instantiates, and each of
// its imported functions is bound to a stub that fails UnresolvedImport
// when called.
func WithHostFunctions(reg *hostfn.Registry) Option {
	return func(o *options) { o.hostReg = reg }
}

// WithWatchedFile enables fsnotify-driven hot reload of a module tracked
// at path: when the file changes on disk, the new bytes are compiled and a
// fresh instance is built from them and swapped in, and the old instance is
// terminated. Supplemental feature (not in spec.md's distillation), grounded on
// opa/loader/file/loader.go's periodic bundle reloader.
func WithWatchedFile(path string) Option {
	return func(o *options) { o.watchedFile = path }
}
