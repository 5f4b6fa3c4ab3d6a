package wasmtimeengine

import (
	"context"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v3"
	"github.com/google/uuid"

	"github.com/wasmsandbox/core/internal/resource"
	"github.com/wasmsandbox/core/internal/runtime"
	"github.com/wasmsandbox/core/internal/value"
)

// Instance is a live wasmtime guest bound to exactly one host-side
// capability set via cfg.Imports, mirroring wazeroengine.Instance's shape
// so the sandbox wiring layer treats both backends identically.
type Instance struct {
	engine *Engine
	module *runtime.Module
	store  *wasmtime.Store
	inst   *wasmtime.Instance
	memCap uint64
}

func (i *Instance) ModuleID() uuid.UUID { return i.module.ID }

// bindImports groups mod.Imports by their declaring module name and defines
// each through the Linker, resolving every function through cfg.Imports
// (an internal/hostfn.Binding in production wiring), mirroring
// wazeroengine.bindImports's grouping but against wasmtime's Linker API.
func bindImports(linker *wasmtime.Linker, mod *runtime.Module, cfg runtime.InstanceConfig) error {
	for _, imp := range mod.Imports {
		if imp.Kind != value.ExternFunc {
			continue
		}
		fn, ok := resolveOrStub(cfg, imp)
		if !ok {
			return fmt.Errorf("wasmtimeengine: unresolved import %s.%s", imp.Module, imp.Name)
		}
		sig := imp.Signature
		wfn := func(caller *wasmtime.Caller, raw []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
			args := make([]value.Value, len(raw))
			for idx, r := range raw {
				v, err := fromWasmtimeValRaw(sig.Params[idx], r)
				if err != nil {
					return nil, wasmtime.NewTrap(err.Error())
				}
				args[idx] = v
			}
			results, err := fn(context.Background(), args)
			if err != nil {
				return nil, wasmtime.NewTrap(err.Error())
			}
			out := make([]wasmtime.Val, len(results))
			for idx, r := range results {
				out[idx] = toWasmtimeValRaw(r)
			}
			return out, nil
		}
		if err := linker.FuncNew(imp.Module, imp.Name, toFuncType(sig), wfn); err != nil {
			return err
		}
	}
	return nil
}

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
		return nil, fmt.Errorf("wasmtimeengine: call to unresolved import %s: %w", name, runtime.ErrUnresolvedImport)
	}, true
}

func toFuncType(sig value.Signature) *wasmtime.FuncType {
	params := make([]*wasmtime.ValType, len(sig.Params))
	for i, k := range sig.Params {
		t, _ := toWasmtimeKind(k)
		params[i] = t
	}
	results := make([]*wasmtime.ValType, len(sig.Results))
	for i, k := range sig.Results {
		t, _ := toWasmtimeKind(k)
		results[i] = t
	}
	return wasmtime.NewFuncType(params, results)
}

func toWasmtimeValRaw(v value.Value) wasmtime.Val {
	switch v.Kind() {
	case value.KindI32:
		n, _ := v.I32()
		return wasmtime.ValI32(n)
	case value.KindI64:
		n, _ := v.I64()
		return wasmtime.ValI64(n)
	case value.KindF32:
		n, _ := v.F32()
		return wasmtime.ValF32(n)
	case value.KindF64:
		n, _ := v.F64()
		return wasmtime.ValF64(n)
	default:
		return wasmtime.ValI64(0)
	}
}

func fromWasmtimeValRaw(kind value.Kind, v wasmtime.Val) (value.Value, error) {
	switch kind {
	case value.KindI32:
		return value.I32(v.I32()), nil
	case value.KindI64:
		return value.I64(v.I64()), nil
	case value.KindF32:
		return value.F32(v.F32()), nil
	case value.KindF64:
		return value.F64(v.F64()), nil
	default:
		return value.Value{}, fmt.Errorf("wasmtimeengine: unsupported host-call argument kind %s", kind)
	}
}

// Call invokes a guest export by name, translating value.Value arguments to
// wasmtime-go's interface{} calling convention and back using the export's
// declared signature.
func (i *Instance) Call(ctx context.Context, name string, args []value.Value) ([]value.Value, error) {
	fn := i.inst.GetFunc(i.store, name)
	if fn == nil {
		return nil, fmt.Errorf("wasmtimeengine: no such export %q", name)
	}

	raw := make([]any, len(args))
	for idx, a := range args {
		v, err := toWasmtimeVal(a)
		if err != nil {
			return nil, err
		}
		raw[idx] = v
	}

	out, err := fn.Call(i.store, raw...)
	if err != nil {
		if trap, ok := err.(*wasmtime.Trap); ok && isOutOfFuel(trap) {
			return nil, &resource.FuelExhaustedError{}
		}
		return nil, &runtime.RuntimeError{Detail: err.Error()}
	}

	resultKinds := i.exportResultKinds(name)
	results, err := toValueSlice(out, resultKinds)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func isOutOfFuel(t *wasmtime.Trap) bool {
	code := t.Code()
	return code != nil && *code == wasmtime.OutOfFuel
}

func (i *Instance) exportResultKinds(name string) []value.Kind {
	for _, exp := range i.module.Exports {
		if exp.Name == name {
			return exp.Signature.Results
		}
	}
	return nil
}

// toValueSlice normalizes fn.Call's return (nil, a single value, or
// []wasmtime.Val depending on arity) into a tagged []value.Value using the
// export's declared result kinds.
func toValueSlice(out any, kinds []value.Kind) ([]value.Value, error) {
	if out == nil {
		return nil, nil
	}
	var raws []any
	if s, ok := out.([]any); ok {
		raws = s
	} else {
		raws = []any{out}
	}
	results := make([]value.Value, len(raws))
	for idx, r := range raws {
		kind := value.KindI64
		if idx < len(kinds) {
			kind = kinds[idx]
		}
		v, err := fromWasmtimeVal(kind, r)
		if err != nil {
			return nil, err
		}
		results[idx] = v
	}
	return results, nil
}

func (i *Instance) memory() (*wasmtime.Memory, error) {
	mem := i.inst.GetExport(i.store, "memory")
	if mem == nil || mem.Memory() == nil {
		return nil, fmt.Errorf("wasmtimeengine: module exports no memory")
	}
	return mem.Memory(), nil
}

func (i *Instance) ReadMemory(offset, length uint32) ([]byte, error) {
	mem, err := i.memory()
	if err != nil {
		return nil, err
	}
	data := mem.UnsafeData(i.store)
	if uint64(offset)+uint64(length) > uint64(len(data)) {
		return nil, &runtime.MemoryOutOfBoundsError{Offset: offset, Length: length, MemorySize: uint32(len(data)) / wasmPageSize}
	}
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, nil
}

func (i *Instance) WriteMemory(offset uint32, data []byte) error {
	mem, err := i.memory()
	if err != nil {
		return err
	}
	buf := mem.UnsafeData(i.store)
	if uint64(offset)+uint64(len(data)) > uint64(len(buf)) {
		return &runtime.MemoryOutOfBoundsError{Offset: offset, Length: uint32(len(data)), MemorySize: uint32(len(buf)) / wasmPageSize}
	}
	copy(buf[offset:], data)
	return nil
}

// GrowMemory grows linear memory by delta pages, rejecting growth that
// would exceed i.memCap (spec.md §4.5's native-enforcement path).
func (i *Instance) GrowMemory(delta uint32) (uint32, error) {
	mem, err := i.memory()
	if err != nil {
		return 0, err
	}
	current := mem.Size(i.store)
	if i.memCap != 0 {
		projected := (current + uint64(delta)) * wasmPageSize
		if projected > i.memCap {
			return 0, &runtime.MemoryGrowFailedError{
				DeltaPages:   delta,
				CurrentPages: uint32(current),
				MaxPages:     uint32(i.memCap / wasmPageSize),
			}
		}
	}
	old, err := mem.Grow(i.store, uint64(delta))
	if err != nil {
		return 0, &runtime.MemoryGrowFailedError{DeltaPages: delta, CurrentPages: uint32(current)}
	}
	return uint32(old), nil
}

// MemorySize reports the exported memory's current size in bytes, 0 if the
// module exports none.
func (i *Instance) MemorySize() uint64 {
	mem, err := i.memory()
	if err != nil {
		return 0
	}
	return mem.Size(i.store) * wasmPageSize
}

const wasmPageSize = 65536

// Interrupt aborts any in-flight call by advancing the shared engine's
// epoch counter past the Store's deadline, the wasmtime-native analogue of
// wazeroengine's CloseWithExitCode unwind.
func (i *Instance) Interrupt(reason runtime.InterruptReason) {
	i.engine.engine.IncrementEpoch()
}

func (i *Instance) Close(ctx context.Context) error {
	defer i.engine.instanceClosed()
	return nil
}
