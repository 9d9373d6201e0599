package compiler

import (
	"strings"

	"github.com/msq-lang/msq/vm"
)

// ---------------------------------------------------------------------------
// Symbol index: declarations and uses, for editor tooling
// ---------------------------------------------------------------------------

// SymbolKind classifies a declaration.
type SymbolKind int

const (
	SymbolBuiltin SymbolKind = iota + 1
	SymbolFunction
	SymbolConstant // let
	SymbolVariable // var
	SymbolParameter
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolBuiltin:
		return "builtin"
	case SymbolFunction:
		return "function"
	case SymbolConstant:
		return "let"
	case SymbolVariable:
		return "var"
	case SymbolParameter:
		return "parameter"
	}
	return "symbol"
}

// Symbol is one declaration and every place that refers to it.
type Symbol struct {
	Name   string
	Kind   SymbolKind
	Params []string   // for functions
	Pos    Position   // zero for built-ins
	Refs   []Position // uses, not including the declaration
}

// Signature renders the symbol the way it is declared.
func (s *Symbol) Signature() string {
	switch s.Kind {
	case SymbolFunction, SymbolBuiltin:
		if len(s.Params) == 0 {
			return s.Name + " _"
		}
		return s.Name + " " + strings.Join(s.Params, ", ")
	case SymbolConstant:
		return "let " + s.Name
	case SymbolVariable:
		return "var " + s.Name
	}
	return s.Name
}

// occurrence is a name in the source and the symbol it resolves to.
type occurrence struct {
	pos Position
	len int
	sym *Symbol
}

// SymbolIndex maps source positions to declarations. Names resolve with the
// same scoping rules the compiler uses; names that don't resolve are left
// out.
type SymbolIndex struct {
	Symbols []*Symbol

	occurrences []occurrence
	frames      []map[string]*Symbol
}

// builtinParams documents the built-ins' argument lists.
var builtinParams = map[vm.Builtin][]string{
	vm.BuiltinPrint:   {"values..."},
	vm.BuiltinAdd:     {"numbers..."},
	vm.BuiltinEquals:  {"a", "b"},
	vm.BuiltinSmaller: {"a", "b"},
}

// IndexSymbols builds the symbol index of a parsed program.
func IndexSymbols(prog *Program) *SymbolIndex {
	ix := &SymbolIndex{}
	ix.push()
	for _, b := range vm.Builtins() {
		ix.declare(&Symbol{Name: b.String(), Kind: SymbolBuiltin, Params: builtinParams[b]})
	}
	ix.push()
	ix.block(prog.Statements)
	return ix
}

// At returns the symbol whose declaration or use covers pos, or nil.
// Only Line and Column of pos are consulted.
func (ix *SymbolIndex) At(pos Position) *Symbol {
	for _, o := range ix.occurrences {
		if o.pos.Line == pos.Line && pos.Column >= o.pos.Column && pos.Column < o.pos.Column+o.len {
			return o.sym
		}
	}
	return nil
}

// Lookup returns the last declaration of name, or nil.
func (ix *SymbolIndex) Lookup(name string) *Symbol {
	for i := len(ix.Symbols) - 1; i >= 0; i-- {
		if ix.Symbols[i].Name == name {
			return ix.Symbols[i]
		}
	}
	return nil
}

func (ix *SymbolIndex) push() {
	ix.frames = append(ix.frames, make(map[string]*Symbol))
}

func (ix *SymbolIndex) pop() {
	ix.frames = ix.frames[:len(ix.frames)-1]
}

func (ix *SymbolIndex) declare(sym *Symbol) {
	ix.frames[len(ix.frames)-1][sym.Name] = sym
	ix.Symbols = append(ix.Symbols, sym)
	if sym.Kind != SymbolBuiltin {
		ix.occurrences = append(ix.occurrences, occurrence{pos: sym.Pos, len: len(sym.Name), sym: sym})
	}
}

func (ix *SymbolIndex) use(name string, pos Position) {
	for i := len(ix.frames) - 1; i >= 0; i-- {
		if sym, ok := ix.frames[i][name]; ok {
			sym.Refs = append(sym.Refs, pos)
			ix.occurrences = append(ix.occurrences, occurrence{pos: pos, len: len(name), sym: sym})
			return
		}
	}
}

func (ix *SymbolIndex) block(stmts []Stmt) {
	for _, stmt := range stmts {
		ix.stmt(stmt)
	}
}

func (ix *SymbolIndex) scoped(stmts []Stmt) {
	ix.push()
	defer ix.pop()
	ix.block(stmts)
}

func (ix *SymbolIndex) stmt(stmt Stmt) {
	switch n := stmt.(type) {
	case *FunctionDecl:
		ix.declare(&Symbol{Name: n.Name, Kind: SymbolFunction, Params: n.Parameters, Pos: n.SpanVal.Start})
		ix.push()
		for i, p := range n.Parameters {
			sym := &Symbol{Name: p, Kind: SymbolParameter}
			if i < len(n.ParamPos) {
				sym.Pos = n.ParamPos[i]
			}
			ix.declare(sym)
		}
		ix.block(n.Body)
		ix.pop()
	case *Assignment:
		ix.expr(n.Value)
		if n.Declare {
			kind := SymbolConstant
			if n.Mutable {
				kind = SymbolVariable
			}
			ix.declare(&Symbol{Name: n.Name, Kind: kind, Pos: n.NamePos})
		} else {
			ix.use(n.Name, n.NamePos)
		}
	case *Call:
		ix.expr(n)
	case *Conditional:
		for _, arm := range append([]ConditionalArm{n.Main}, n.Alternates...) {
			ix.expr(arm.Condition)
			ix.scoped(arm.Body)
		}
		if n.HasFallback {
			ix.scoped(n.Fallback)
		}
	case *Return:
		ix.expr(n.Value)
	}
}

func (ix *SymbolIndex) expr(expr Expr) {
	switch n := expr.(type) {
	case *Variable:
		ix.use(n.Name, n.SpanVal.Start)
	case *Call:
		ix.use(n.Name, n.SpanVal.Start)
		for _, arg := range n.Arguments {
			ix.expr(arg)
		}
	}
}
