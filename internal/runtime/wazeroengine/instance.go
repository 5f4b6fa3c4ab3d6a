package wazeroengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

// Instance is a live wazero guest module bound to exactly one host-side
// capability set via cfg.Imports, mirroring the Module wrapper in the
// teacher's internal/wazero/module.go but generalized beyond a single "env"
// import module to however many distinct import module names the guest
// declares.
type Instance struct {
	engine      *Engine
	module      *runtime.Module
	guest       api.Module
	hostModules []api.Module
	memCap      uint64
}

func (i *Instance) ModuleID() uuid.UUID { return i.module.ID }

// bindImports groups mod.Imports by their declaring module name and
// instantiates one host module per group, resolving each function through
// cfg.Imports (an internal/hostfn.Binding in production wiring).
func (e *Engine) bindImports(ctx context.Context, mod *runtime.Module, cfg runtime.InstanceConfig) ([]api.Module, error) {
	byModule := map[string][]value.ImportDescriptor{}
	for _, imp := range mod.Imports {
		if imp.Kind != value.ExternFunc {
			continue
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp)
	}

	var hostModules []api.Module
	for moduleName, descs := range byModule {
		builder := e.rt.NewHostModuleBuilder(moduleName)
		for _, imp := range descs {
			fn, ok := resolveOrStub(cfg, imp)
			if !ok {
				closeAll(ctx, hostModules)
				return nil, fmt.Errorf("wazeroengine: unresolved import %s.%s", imp.Module, imp.Name)
			}
			params, err := toAPIKinds(imp.Signature.Params)
			if err != nil {
				closeAll(ctx, hostModules)
				return nil, err
			}
			results, err := toAPIKinds(imp.Signature.Results)
			if err != nil {
				closeAll(ctx, hostModules)
				return nil, err
			}
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(goModuleFunc(fn, imp.Signature), params, results).
				Export(imp.Name)
		}
		hm, err := builder.Instantiate(ctx)
		if err != nil {
			closeAll(ctx, hostModules)
			return nil, err
		}
		hostModules = append(hostModules, hm)
	}
	return hostModules, nil
}

// resolveOrStub resolves imp through cfg.Imports, falling back to a stub
// that raises UnresolvedImport only if actually called when cfg.AllowMissing
// permits binding unresolved imports (spec.md §4.8's degraded-capability
// instantiation mode).
func resolveOrStub(cfg runtime.InstanceConfig, imp value.ImportDescriptor) (runtime.HostFunc, bool) {
	if cfg.Imports != nil {
		if fn, ok := cfg.Imports.Resolve(imp); ok {
			return fn, true
		}
	}
	if !cfg.AllowMissing {
		return nil, false
	}
	name := imp.Module + "." + imp.Name
	return func(ctx context.Context, args []value.Value) ([]value.Value, error) {
		return nil, fmt.Errorf("wazeroengine: call to unresolved import %s: %w", name, runtime.ErrUnresolvedImport)
	}, true
}

// goModuleFunc adapts an engine-neutral HostFunc to wazero's raw
// api.GoModuleFunction calling convention.
func goModuleFunc(fn runtime.HostFunc, sig value.Signature) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]value.Value, len(sig.Params))
		for i, k := range sig.Params {
			v, _ := value.FromUint64(k, stack[i])
			args[i] = v
		}
		results, err := fn(ctx, args)
		if err != nil {
			panic(err)
		}
		for i, r := range results {
			raw, convErr := r.AsUint64()
			if convErr != nil {
				panic(convErr)
			}
			stack[i] = raw
		}
	})
}

func closeAll(ctx context.Context, mods []api.Module) {
	for _, m := range mods {
		_ = m.Close(ctx)
	}
}

// Call invokes a guest export by name, translating value.Value arguments to
// wazero's uint64 stack convention and back using the export's declared
// signature.
func (i *Instance) Call(ctx context.Context, name string, args []value.Value) ([]value.Value, error) {
	fn := i.guest.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("wazeroengine: no such export %q", name)
	}

	raw := make([]uint64, len(args))
	for idx, a := range args {
		v, err := a.AsUint64()
		if err != nil {
			return nil, err
		}
		raw[idx] = v
	}

	out, err := fn.Call(ctx, raw...)
	if err != nil {
		return nil, &runtime.RuntimeError{Detail: err.Error()}
	}

	def := fn.Definition()
	resultKinds := fromAPIKinds(def.ResultTypes())
	results := make([]value.Value, len(out))
	for idx, r := range out {
		kind := value.KindI64
		if idx < len(resultKinds) {
			kind = resultKinds[idx]
		}
		v, err := value.FromUint64(kind, r)
		if err != nil {
			return nil, err
		}
		results[idx] = v
	}
	return results, nil
}

func (i *Instance) memory() (api.Memory, error) {
	mem := i.guest.Memory()
	if mem == nil {
		return nil, fmt.Errorf("wazeroengine: module exports no memory")
	}
	return mem, nil
}

func (i *Instance) ReadMemory(offset, length uint32) ([]byte, error) {
	mem, err := i.memory()
	if err != nil {
		return nil, err
	}
	data, ok := mem.Read(offset, length)
	if !ok {
		return nil, &runtime.MemoryOutOfBoundsError{Offset: offset, Length: length, MemorySize: mem.Size()}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (i *Instance) WriteMemory(offset uint32, data []byte) error {
	mem, err := i.memory()
	if err != nil {
		return err
	}
	if !mem.Write(offset, data) {
		return &runtime.MemoryOutOfBoundsError{Offset: offset, Length: uint32(len(data)), MemorySize: mem.Size()}
	}
	return nil
}

// GrowMemory grows linear memory by delta pages, rejecting growth that
// would exceed i.memCap (spec.md §4.5's native-enforcement path). The
// Governor's polling of MemorySize after each call runs regardless of
// NativeMemoryLimits.
func (i *Instance) GrowMemory(delta uint32) (uint32, error) {
	mem, err := i.memory()
	if err != nil {
		return 0, err
	}
	current := mem.Size()
	if i.memCap != 0 {
		projected := uint64(current) + uint64(delta)*wasmPageSize
		if projected > i.memCap {
			return 0, &runtime.MemoryGrowFailedError{
				DeltaPages:   delta,
				CurrentPages: current / wasmPageSize,
				MaxPages:     uint32(i.memCap / wasmPageSize),
			}
		}
	}
	old, ok := mem.Grow(delta)
	if !ok {
		return 0, &runtime.MemoryGrowFailedError{DeltaPages: delta, CurrentPages: current / wasmPageSize}
	}
	return old, nil
}

// MemorySize reports the exported memory's current size in bytes, 0 if the
// module exports none.
func (i *Instance) MemorySize() uint64 {
	mem, err := i.memory()
	if err != nil {
		return 0
	}
	return uint64(mem.Size())
}

const wasmPageSize = 65536

// Interrupt aborts any in-flight call by closing the guest module from
// another goroutine; wazero propagates this as a context-cancellation style
// unwind to every builtin and memory access mid-flight.
func (i *Instance) Interrupt(reason runtime.InterruptReason) {
	code := uint32(1)
	if reason == runtime.InterruptTimeout {
		code = 2
	}
	_ = i.guest.CloseWithExitCode(context.Background(), code)
}

func (i *Instance) Close(ctx context.Context) error {
	defer i.engine.instanceClosed()
	err := i.guest.Close(ctx)
	closeAll(ctx, i.hostModules)
	return err
}
