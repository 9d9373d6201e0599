package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for msq
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents a 32-bit integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int32
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a 32-bit floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float32
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// Variable represents a bare identifier in expression position.
type Variable struct {
	SpanVal Span
	Name    string
}

func (n *Variable) Span() Span { return n.SpanVal }
func (n *Variable) node()      {}
func (n *Variable) expr()      {}

// Call represents a function call. It is an expression when used as a
// value and a statement when used on its own.
type Call struct {
	SpanVal   Span
	Name      string
	Arguments []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}
func (n *Call) stmt()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Assignment binds a value to a name. Declare is set for let/var
// declarations; plain `x = v` reassigns an existing mutable binding.
type Assignment struct {
	SpanVal Span
	Name    string
	NamePos Position
	Declare bool
	Mutable bool
	Value   Expr
}

func (n *Assignment) Span() Span { return n.SpanVal }
func (n *Assignment) node()      {}
func (n *Assignment) stmt()      {}

// FunctionDecl represents `name a, b -> body end`.
type FunctionDecl struct {
	SpanVal    Span
	Name       string
	Parameters []string
	ParamPos   []Position // position of each parameter name
	Body       []Stmt
}

func (n *FunctionDecl) Span() Span { return n.SpanVal }
func (n *FunctionDecl) node()      {}
func (n *FunctionDecl) stmt()      {}

// ConditionalArm is one `cond -> body` arm of a conditional.
type ConditionalArm struct {
	SpanVal   Span
	Condition Expr
	Body      []Stmt
}

// Conditional represents if / else if / else.
type Conditional struct {
	SpanVal     Span
	Main        ConditionalArm
	Alternates  []ConditionalArm
	Fallback    []Stmt
	HasFallback bool
}

func (n *Conditional) Span() Span { return n.SpanVal }
func (n *Conditional) node()      {}
func (n *Conditional) stmt()      {}

// Return represents `return expr`.
type Return struct {
	SpanVal Span
	Value   Expr
}

func (n *Return) Span() Span { return n.SpanVal }
func (n *Return) node()      {}
func (n *Return) stmt()      {}

// ---------------------------------------------------------------------------
// Top-level structure
// ---------------------------------------------------------------------------

// EntryPoint is the name of the function a program starts in.
const EntryPoint = "main"

// Program represents a complete source file.
type Program struct {
	SpanVal    Span
	Main       string // name of the top-level entry function, "" if absent
	Statements []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
