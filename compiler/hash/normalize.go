package hash

import (
	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/vm"
)

// ---------------------------------------------------------------------------
// AST Normalization: compiler AST → frozen hashing AST
//
// Walks the parsed program with the same scoping rules the compiler uses
// and replaces every name with the de Bruijn position of the declaration
// it resolves to.
// ---------------------------------------------------------------------------

// scope tracks declarations at one nesting level.
type scope struct {
	vars map[string]uint16 // name → slot index
	next uint16
}

func (s *scope) declare(name string) {
	s.vars[name] = s.next
	s.next++
}

// normalizer holds state for the normalization walk.
type normalizer struct {
	scopes   []scope // [0] = top level
	builtins map[string]bool
}

// NormalizeProgram transforms a parsed program into a frozen HProgram.
func NormalizeProgram(prog *compiler.Program) *HProgram {
	n := &normalizer{builtins: make(map[string]bool)}
	for _, b := range vm.Builtins() {
		n.builtins[b.String()] = true
	}

	n.push()
	stmts := n.normalizeBlock(prog.Statements, true)
	n.pop()
	return &HProgram{Statements: stmts}
}

func (n *normalizer) push() {
	n.scopes = append(n.scopes, scope{vars: make(map[string]uint16)})
}

func (n *normalizer) pop() {
	n.scopes = n.scopes[:len(n.scopes)-1]
}

func (n *normalizer) top() *scope {
	return &n.scopes[len(n.scopes)-1]
}

// ---------------------------------------------------------------------------
// Statement normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeBlock(stmts []compiler.Stmt, topLevel bool) []HNode {
	out := make([]HNode, len(stmts))
	for i, s := range stmts {
		out[i] = n.normalizeStmt(s, topLevel)
	}
	return out
}

func (n *normalizer) scoped(stmts []compiler.Stmt) []HNode {
	n.push()
	defer n.pop()
	return n.normalizeBlock(stmts, false)
}

func (n *normalizer) normalizeStmt(stmt compiler.Stmt, topLevel bool) HNode {
	switch s := stmt.(type) {
	case *compiler.FunctionDecl:
		n.top().declare(s.Name)
		n.push()
		for _, p := range s.Parameters {
			n.top().declare(p)
		}
		body := n.normalizeBlock(s.Body, false)
		n.pop()
		return &HFunction{
			Arity: len(s.Parameters),
			Entry: topLevel && s.Name == compiler.EntryPoint,
			Body:  body,
		}

	case *compiler.Assignment:
		if s.Declare {
			value := n.normalizeExpr(s.Value)
			n.top().declare(s.Name)
			return &HDeclare{Mutable: s.Mutable, Value: value}
		}
		return &HAssign{Target: n.resolve(s.Name), Value: n.normalizeExpr(s.Value)}

	case *compiler.Call:
		return n.normalizeCall(s)

	case *compiler.Conditional:
		h := &HConditional{HasFallback: s.HasFallback}
		arms := append([]compiler.ConditionalArm{s.Main}, s.Alternates...)
		for _, arm := range arms {
			cond := n.normalizeExpr(arm.Condition)
			h.Arms = append(h.Arms, HArm{Condition: cond, Body: n.scoped(arm.Body)})
		}
		if s.HasFallback {
			h.Fallback = n.scoped(s.Fallback)
		}
		return h

	case *compiler.Return:
		return &HReturn{Value: n.normalizeExpr(s.Value)}
	}
	// Unknown statement type: should not happen
	return &HFreeRef{}
}

// ---------------------------------------------------------------------------
// Expression normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeExpr(expr compiler.Expr) HNode {
	switch e := expr.(type) {
	case *compiler.IntLiteral:
		return &HIntLiteral{Value: e.Value}
	case *compiler.FloatLiteral:
		return &HFloatLiteral{Value: e.Value}
	case *compiler.StringLiteral:
		return &HStringLiteral{Value: e.Value}
	case *compiler.BoolLiteral:
		return &HBoolLiteral{Value: e.Value}
	case *compiler.Variable:
		return n.resolve(e.Name)
	case *compiler.Call:
		return n.normalizeCall(e)
	}
	return &HFreeRef{}
}

func (n *normalizer) normalizeCall(c *compiler.Call) HNode {
	args := make([]HNode, len(c.Arguments))
	for i, a := range c.Arguments {
		args[i] = n.normalizeExpr(a)
	}
	return &HCall{Callee: n.resolve(c.Name), Arguments: args}
}

// resolve searches innermost-first, then the built-ins.
func (n *normalizer) resolve(name string) HNode {
	for depth := 0; depth < len(n.scopes); depth++ {
		sc := n.scopes[len(n.scopes)-1-depth]
		if slot, ok := sc.vars[name]; ok {
			return &HLocalRef{ScopeDepth: uint16(depth), SlotIndex: slot}
		}
	}
	if n.builtins[name] {
		return &HBuiltinRef{Name: name}
	}
	return &HFreeRef{Name: name}
}
