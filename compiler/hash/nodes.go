package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// Stripped-down parallels of compiler/ast.go with no positions and with
// de Bruijn indices instead of names. Two programs that differ only in the
// names of their variables and functions produce identical hashing ASTs.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

// ---------------------------------------------------------------------------
// Literals and references
// ---------------------------------------------------------------------------

type HIntLiteral struct{ Value int32 }
type HFloatLiteral struct{ Value float32 }
type HStringLiteral struct{ Value string }
type HBoolLiteral struct{ Value bool }

// HLocalRef references a declaration by de Bruijn indices.
// ScopeDepth 0 = innermost frame, 1 = one frame up, etc.
// SlotIndex is the declaration's position within that frame.
type HLocalRef struct {
	ScopeDepth uint16
	SlotIndex  uint16
}

// HBuiltinRef references a built-in by name.
type HBuiltinRef struct{ Name string }

// HFreeRef references a name that resolves to nothing. Such programs do
// not compile, but they still get a fingerprint.
type HFreeRef struct{ Name string }

func (*HIntLiteral) hnode()    {}
func (*HFloatLiteral) hnode()  {}
func (*HStringLiteral) hnode() {}
func (*HBoolLiteral) hnode()   {}
func (*HLocalRef) hnode()      {}
func (*HBuiltinRef) hnode()    {}
func (*HFreeRef) hnode()       {}

// ---------------------------------------------------------------------------
// Calls and statements
// ---------------------------------------------------------------------------

type HCall struct {
	Callee    HNode
	Arguments []HNode
}

// HDeclare introduces the next slot of the current frame.
type HDeclare struct {
	Mutable bool
	Value   HNode
}

type HAssign struct {
	Target HNode
	Value  HNode
}

// HFunction introduces the next slot of the current frame and opens a
// frame whose first Arity slots are the parameters.
type HFunction struct {
	Arity int
	Entry bool // top-level function named main
	Body  []HNode
}

type HArm struct {
	Condition HNode
	Body      []HNode
}

type HConditional struct {
	Arms        []HArm
	Fallback    []HNode
	HasFallback bool
}

type HReturn struct{ Value HNode }

type HProgram struct{ Statements []HNode }

func (*HCall) hnode()        {}
func (*HDeclare) hnode()     {}
func (*HAssign) hnode()      {}
func (*HFunction) hnode()    {}
func (*HConditional) hnode() {}
func (*HReturn) hnode()      {}
func (*HProgram) hnode()     {}
