package wazeroengine

import (
	"github.com/tetratelabs/wazero"

	"github.com/wasmsandbox/core/internal/value"
)

// describeModule walks a wazero.CompiledModule's export and import tables
// and builds the engine-neutral descriptors runtime.Module carries,
// mirroring the teacher's GetEntrypoints() introspection in
// internal/wazero/module.go but generalized from a single fixed "entrypoints"
// export to the whole export surface.
func describeModule(compiled wazero.CompiledModule) ([]value.ExportDescriptor, []value.ImportDescriptor, value.MemoryDescriptor) {
	var exports []value.ExportDescriptor
	for name, fn := range compiled.ExportedFunctions() {
		exports = append(exports, value.ExportDescriptor{
			Name: name,
			Kind: value.ExternFunc,
			Signature: value.Signature{
				Params:  fromAPIKinds(fn.ParamTypes()),
				Results: fromAPIKinds(fn.ResultTypes()),
			},
		})
	}

	var mem value.MemoryDescriptor
	for name, def := range compiled.ExportedMemories() {
		exports = append(exports, value.ExportDescriptor{Name: name, Kind: value.ExternMemory})
		mem.InitialPages = def.Min()
		if max, ok := def.Max(); ok {
			m := max
			mem.MaximumPages = &m
		}
	}

	var imports []value.ImportDescriptor
	for _, fn := range compiled.ImportedFunctions() {
		moduleName, name, ok := fn.Import()
		if !ok {
			continue
		}
		imports = append(imports, value.ImportDescriptor{
			Module: moduleName,
			Name:   name,
			Kind:   value.ExternFunc,
			Signature: value.Signature{
				Params:  fromAPIKinds(fn.ParamTypes()),
				Results: fromAPIKinds(fn.ResultTypes()),
			},
		})
	}
	for _, def := range compiled.ImportedMemories() {
		moduleName, name, ok := def.Import()
		if !ok {
			continue
		}
		imports = append(imports, value.ImportDescriptor{Module: moduleName, Name: name, Kind: value.ExternMemory})
	}

	return exports, imports, mem
}
