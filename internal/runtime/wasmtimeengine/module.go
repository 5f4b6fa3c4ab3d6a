package wasmtimeengine

import (
	"github.com/bytecodealliance/wasmtime-go/v3"

	"github.com/wasmsandbox/core/internal/value"
)

// describeModule walks a wasmtime.Module's export/import tables the same
// way describeModule does for the wazero backend, so both engines produce
// identically-shaped runtime.Module descriptors regardless of which native
// library compiled the bytes.
func describeModule(mod *wasmtime.Module) ([]value.ExportDescriptor, []value.ImportDescriptor, value.MemoryDescriptor) {
	var exports []value.ExportDescriptor
	var mem value.MemoryDescriptor

	for _, exp := range mod.Exports() {
		t := exp.Type()
		switch {
		case t.FuncType() != nil:
			ft := t.FuncType()
			exports = append(exports, value.ExportDescriptor{
				Name: exp.Name(),
				Kind: value.ExternFunc,
				Signature: value.Signature{
					Params:  fromValKinds(ft.Params()),
					Results: fromValKinds(ft.Results()),
				},
			})
		case t.MemoryType() != nil:
			mt := t.MemoryType()
			exports = append(exports, value.ExportDescriptor{Name: exp.Name(), Kind: value.ExternMemory})
			mem.InitialPages = uint32(mt.Minimum())
			if max, ok := mt.Maximum(); ok {
				m := uint32(max)
				mem.MaximumPages = &m
			}
		case t.TableType() != nil:
			exports = append(exports, value.ExportDescriptor{Name: exp.Name(), Kind: value.ExternTable})
		case t.GlobalType() != nil:
			exports = append(exports, value.ExportDescriptor{Name: exp.Name(), Kind: value.ExternGlobal})
		}
	}

	var imports []value.ImportDescriptor
	for _, imp := range mod.Imports() {
		name := ""
		if imp.Name() != nil {
			name = *imp.Name()
		}
		t := imp.Type()
		switch {
		case t.FuncType() != nil:
			ft := t.FuncType()
			imports = append(imports, value.ImportDescriptor{
				Module: imp.Module(),
				Name:   name,
				Kind:   value.ExternFunc,
				Signature: value.Signature{
					Params:  fromValKinds(ft.Params()),
					Results: fromValKinds(ft.Results()),
				},
			})
		case t.MemoryType() != nil:
			imports = append(imports, value.ImportDescriptor{Module: imp.Module(), Name: name, Kind: value.ExternMemory})
		}
	}

	return exports, imports, mem
}

func fromValKinds(ts []*wasmtime.ValType) []value.Kind {
	out := make([]value.Kind, len(ts))
	for i, t := range ts {
		out[i] = fromValKind(t)
	}
	return out
}
