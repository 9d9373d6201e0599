package compiler

import (
	"github.com/tliron/commonlog"

	"github.com/msq-lang/msq/vm"
)

// ---------------------------------------------------------------------------
// Codegen: lower the AST to flat instructions
// ---------------------------------------------------------------------------

// Compiler resolves names and lowers a Program into a vm.Program.
// A Compiler may be reused; each Compile call starts from a fresh scope.
type Compiler struct {
	scope *Scope
	newID func(name string) string
	log   commonlog.Logger

	// top-level functions by source name, for the entry point
	topLevel map[string]string
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithIDGenerator replaces the fresh-id generator. Tests use it to get
// stable storage ids.
func WithIDGenerator(gen func(name string) string) CompilerOption {
	return func(c *Compiler) { c.newID = gen }
}

// WithCompilerLogger overrides the compiler's logger.
func WithCompilerLogger(l commonlog.Logger) CompilerOption {
	return func(c *Compiler) { c.log = l }
}

// NewCompiler creates a new compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		newID: freshID,
		log:   commonlog.GetLogger("msq.compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile lowers prog with a default compiler.
func Compile(prog *Program) (*vm.Program, error) {
	return NewCompiler().Compile(prog)
}

// CompileSource parses and compiles src. A *ParseError is returned unchanged.
func CompileSource(src string) (*vm.Program, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Compile(prog)
}

// Compile lowers prog. Lowering stops at the first error and no partial
// program is returned.
func (c *Compiler) Compile(prog *Program) (*vm.Program, error) {
	c.scope = NewScopeWithIDs(c.newID)
	c.topLevel = make(map[string]string)

	instrs := c.prelude()

	// User top-level declarations live one frame inside the built-ins.
	c.scope.Enter()
	body, err := c.lowerBlock(prog.Statements, true)
	if err != nil {
		return nil, err
	}
	c.scope.Exit()
	c.scope.Exit()
	instrs = append(instrs, body...)

	name := prog.Main
	if name == "" {
		name = EntryPoint
	}
	entry, ok := c.topLevel[name]
	if !ok {
		return nil, &CompileError{Kind: MissingEntryPoint, Name: name, Pos: prog.Span().End}
	}
	instrs = append(instrs, vm.Invoke(entry, nil))

	if c.log.AllowLevel(commonlog.Debug) {
		c.log.Debugf("compiled %d top-level instructions, entry %s", len(instrs), entry)
	}
	return &vm.Program{Instructions: instrs, Entry: entry}, nil
}

// prelude binds every built-in in its own frame and emits the declarations
// that put their closures into memory.
func (c *Compiler) prelude() []vm.Instruction {
	c.scope.Enter()
	builtins := vm.Builtins()
	instrs := make([]vm.Instruction, 0, len(builtins))
	for _, b := range builtins {
		c.scope.Bind(b.String(), b.ID(), false)
		instrs = append(instrs, vm.Declare(b.ID(), false, vm.Lit(vm.ClosureValue(b.Closure()))))
	}
	return instrs
}

func (c *Compiler) lowerBlock(stmts []Stmt, topLevel bool) ([]vm.Instruction, error) {
	var out []vm.Instruction
	for _, stmt := range stmts {
		in, err := c.lowerStmt(stmt, topLevel)
		if err != nil {
			return nil, err
		}
		out = append(out, in.At(stmt.Span().Start.Line))
	}
	return out, nil
}

// lowerScoped lowers a block inside its own scope frame.
func (c *Compiler) lowerScoped(stmts []Stmt) ([]vm.Instruction, error) {
	c.scope.Enter()
	defer c.scope.Exit()
	return c.lowerBlock(stmts, false)
}

func (c *Compiler) lowerStmt(stmt Stmt, topLevel bool) (vm.Instruction, error) {
	switch s := stmt.(type) {
	case *FunctionDecl:
		return c.lowerFunction(s, topLevel)
	case *Assignment:
		return c.lowerAssignment(s)
	case *Call:
		b, err := c.resolve(s.Name, s.SpanVal.Start)
		if err != nil {
			return vm.Instruction{}, err
		}
		args, err := c.lowerArgs(s.Arguments)
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.Invoke(b.ID, args), nil
	case *Conditional:
		return c.lowerConditional(s)
	case *Return:
		v, err := c.lowerExpr(s.Value)
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.Return(v), nil
	}
	panic("compiler: unknown statement type")
}

// lowerFunction declares the function in the enclosing frame before
// lowering its body, so the body can call itself.
func (c *Compiler) lowerFunction(fn *FunctionDecl, topLevel bool) (vm.Instruction, error) {
	id := c.scope.Declare(fn.Name, false)
	if topLevel {
		c.topLevel[fn.Name] = id
	}
	if c.log.AllowLevel(commonlog.Debug) {
		c.log.Debugf("function %s -> %s (%d params)", fn.Name, id, len(fn.Parameters))
	}

	c.scope.Enter()
	for i, p := range fn.Parameters {
		c.scope.Bind(p, vm.ParamSlot(id, i), false)
	}
	body, err := c.lowerBlock(fn.Body, false)
	c.scope.Exit()
	if err != nil {
		return vm.Instruction{}, err
	}

	closure := &vm.Closure{Owner: id, Params: len(fn.Parameters), Body: body}
	return vm.Declare(id, false, vm.Lit(vm.ClosureValue(closure))), nil
}

// lowerAssignment lowers the initializer before declaring, so
// `let x = add(x, 1)` reads the outer x.
func (c *Compiler) lowerAssignment(a *Assignment) (vm.Instruction, error) {
	if a.Declare {
		v, err := c.lowerExpr(a.Value)
		if err != nil {
			return vm.Instruction{}, err
		}
		id := c.scope.Declare(a.Name, a.Mutable)
		if c.log.AllowLevel(commonlog.Debug) {
			c.log.Debugf("declare %s -> %s (mutable=%t)", a.Name, id, a.Mutable)
		}
		return vm.Declare(id, a.Mutable, v), nil
	}

	b, err := c.resolve(a.Name, a.SpanVal.Start)
	if err != nil {
		return vm.Instruction{}, err
	}
	if !b.Mutable {
		return vm.Instruction{}, &CompileError{Kind: ReassignImmutable, Name: a.Name, Pos: a.SpanVal.Start}
	}
	v, err := c.lowerExpr(a.Value)
	if err != nil {
		return vm.Instruction{}, err
	}
	return vm.Assign(b.ID, v), nil
}

// lowerConditional lowers every arm. Conditions are lowered in the
// enclosing scope; each body gets its own frame.
func (c *Compiler) lowerConditional(cond *Conditional) (vm.Instruction, error) {
	main, err := c.lowerArm(cond.Main)
	if err != nil {
		return vm.Instruction{}, err
	}

	var elseIfs []vm.Arm
	for _, alt := range cond.Alternates {
		arm, err := c.lowerArm(alt)
		if err != nil {
			return vm.Instruction{}, err
		}
		elseIfs = append(elseIfs, arm)
	}

	var fallback []vm.Instruction
	if cond.HasFallback {
		fallback, err = c.lowerScoped(cond.Fallback)
		if err != nil {
			return vm.Instruction{}, err
		}
	}
	return vm.BranchOn(main, elseIfs, fallback, cond.HasFallback), nil
}

func (c *Compiler) lowerArm(arm ConditionalArm) (vm.Arm, error) {
	cv, err := c.lowerExpr(arm.Condition)
	if err != nil {
		return vm.Arm{}, err
	}
	body, err := c.lowerScoped(arm.Body)
	if err != nil {
		return vm.Arm{}, err
	}
	return vm.Arm{Cond: cv, Body: body}, nil
}

// lowerExpr turns an expression into an operand. Calls are not performed
// here; they become deferred calls forced by the engine.
func (c *Compiler) lowerExpr(expr Expr) (vm.Operand, error) {
	switch e := expr.(type) {
	case *IntLiteral:
		return vm.Lit(vm.IntValue(e.Value)), nil
	case *FloatLiteral:
		return vm.Lit(vm.FloatValue(e.Value)), nil
	case *StringLiteral:
		return vm.Lit(vm.StringValue(e.Value)), nil
	case *BoolLiteral:
		return vm.Lit(vm.BoolValue(e.Value)), nil
	case *Variable:
		b, err := c.resolve(e.Name, e.SpanVal.Start)
		if err != nil {
			return vm.Operand{}, err
		}
		return vm.SlotRef(b.ID), nil
	case *Call:
		b, err := c.resolve(e.Name, e.SpanVal.Start)
		if err != nil {
			return vm.Operand{}, err
		}
		args, err := c.lowerArgs(e.Arguments)
		if err != nil {
			return vm.Operand{}, err
		}
		return vm.Deferred(b.ID, args), nil
	}
	panic("compiler: unknown expression type")
}

func (c *Compiler) lowerArgs(exprs []Expr) ([]vm.Operand, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	args := make([]vm.Operand, len(exprs))
	for i, e := range exprs {
		o, err := c.lowerExpr(e)
		if err != nil {
			return nil, err
		}
		args[i] = o
	}
	return args, nil
}

func (c *Compiler) resolve(name string, pos Position) (Binding, error) {
	b, ok := c.scope.Resolve(name)
	if !ok {
		return Binding{}, &CompileError{Kind: UnresolvedIdentifier, Name: name, Pos: pos}
	}
	return b, nil
}
