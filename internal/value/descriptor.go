package value

// ExternKind classifies the kind of a module export or import.
type ExternKind int

const (
	ExternFunc ExternKind = iota
	ExternMemory
	ExternTable
	ExternGlobal
)

// Signature is an engine-neutral function type: parameter kinds in, result
// kinds out.
type Signature struct {
	Params  []Kind
	Results []Kind
}

// Equal reports whether two signatures describe the same shape.
func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// ExportDescriptor describes one export surfaced by a compiled Module.
type ExportDescriptor struct {
	Name      string
	Kind      ExternKind
	Signature Signature // meaningful only when Kind == ExternFunc
}

// ImportDescriptor describes one import a Module requires to instantiate.
type ImportDescriptor struct {
	Module    string
	Name      string
	Kind      ExternKind
	Signature Signature // meaningful only when Kind == ExternFunc
}

// MemoryDescriptor describes a WASM linear memory's shape.
type MemoryDescriptor struct {
	InitialPages uint32
	MaximumPages *uint32 // nil means no declared maximum
	Shared       bool
}

// TableDescriptor describes a WASM table's shape.
type TableDescriptor struct {
	ElementKind Kind
	InitialSize uint32
	MaximumSize *uint32
}
