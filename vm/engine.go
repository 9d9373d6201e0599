package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Engine: executes flat instruction sequences
// ---------------------------------------------------------------------------

const (
	// DefaultMaxDepth bounds nested user-function activations.
	DefaultMaxDepth = 10000

	// MaxDepthLimit is the largest depth WithMaxDepth accepts. Each
	// activation costs several Go frames, and a deeper limit lets runaway
	// recursion exhaust the goroutine stack, which cannot be recovered.
	MaxDepthLimit = 50000
)

// Engine interprets instruction sequences against a Store.
//
// Storage ids are flat and shared by every activation of a function, so the
// engine keeps one activation record per user-function call. The first time
// a call declares an id, the slot's previous contents are saved; when the
// call ends they are put back. A recursive call therefore cannot clobber
// the caller's parameters or locals.
type Engine struct {
	store    *Store
	stdout   io.Writer
	stdin    *bufio.Reader
	clock    func() time.Time
	maxDepth int
	log      commonlog.Logger

	frames []*activation

	keepEntry bool
	entryRows []DumpRow
}

// activation is the saved state of one user-function call.
type activation struct {
	fn    string
	saved map[string]savedEntry
}

type savedEntry struct {
	entry   Entry
	existed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStdout sets where print writes.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// WithStdin sets where input reads from.
func WithStdin(r io.Reader) Option {
	return func(e *Engine) { e.stdin = bufio.NewReader(r) }
}

// WithClock sets the time source used by date.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithMaxDepth bounds the activation depth. Values <= 0 keep the default;
// values above MaxDepthLimit are clamped to it.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		switch {
		case n > MaxDepthLimit:
			e.maxDepth = MaxDepthLimit
		case n > 0:
			e.maxDepth = n
		}
	}
}

// WithEntryDump makes the engine capture memory as the outermost
// activation ends, before its slots are released. See EntryDump.
func WithEntryDump() Option {
	return func(e *Engine) { e.keepEntry = true }
}

// WithStore runs the engine against an existing store.
func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger overrides the engine's logger.
func WithLogger(l commonlog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine with an empty store, wired to the process's
// standard streams unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		store:    NewStore(),
		stdout:   os.Stdout,
		stdin:    bufio.NewReader(os.Stdin),
		clock:    time.Now,
		maxDepth: DefaultMaxDepth,
		log:      commonlog.GetLogger("msq.vm"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's memory.
func (e *Engine) Store() *Store {
	return e.store
}

// Depth returns the number of live user-function activations.
func (e *Engine) Depth() int {
	return len(e.frames)
}

// Execute runs a compiled program. The result is the value of a top-level
// Return, or else the value produced by the program's final instruction
// (the entry-point call). ok is false when there is no such value.
func (e *Engine) Execute(prog *Program) (Value, bool, error) {
	return e.ExecuteInstructions(prog.Instructions)
}

// ExecuteInstructions runs a top-level instruction sequence.
func (e *Engine) ExecuteInstructions(instrs []Instruction) (Value, bool, error) {
	for i, in := range instrs {
		if in.Op == OpInvoke && i == len(instrs)-1 {
			v, ok, err := e.invoke(in.Slot, in.Args)
			if err != nil {
				return Value{}, false, atLine(err, in.Line)
			}
			return v, ok, nil
		}

		v, returned, err := e.step(in)
		if err != nil {
			return Value{}, false, err
		}
		if returned {
			return v, true, nil
		}
	}
	return Value{}, false, nil
}

// exec runs a body. returned is true when a Return ended it early.
func (e *Engine) exec(instrs []Instruction) (v Value, returned bool, err error) {
	for _, in := range instrs {
		v, returned, err = e.step(in)
		if err != nil || returned {
			return v, returned, err
		}
	}
	return Value{}, false, nil
}

// step executes one instruction.
func (e *Engine) step(in Instruction) (Value, bool, error) {
	switch in.Op {
	case OpDeclare:
		v, err := e.Force(in.Value)
		if err != nil {
			return Value{}, false, atLine(err, in.Line)
		}
		e.declare(in.Slot, in.Mutable, v)

	case OpAssign:
		v, err := e.Force(in.Value)
		if err != nil {
			return Value{}, false, atLine(err, in.Line)
		}
		if err := e.store.Assign(in.Slot, v); err != nil {
			return Value{}, false, atLine(err, in.Line)
		}

	case OpRelease:
		e.store.Release(in.Slot)

	case OpInvoke:
		// Statement-position call: any result is discarded.
		if _, _, err := e.invoke(in.Slot, in.Args); err != nil {
			return Value{}, false, atLine(err, in.Line)
		}

	case OpReturn:
		v, err := e.Force(in.Value)
		if err != nil {
			return Value{}, false, atLine(err, in.Line)
		}
		return v, true, nil

	case OpBranch:
		v, returned, err := e.branch(in.Branch)
		if err != nil {
			return Value{}, false, atLine(err, in.Line)
		}
		return v, returned, nil

	default:
		return Value{}, false, fmt.Errorf("vm: unknown opcode %s", in.Op)
	}
	return Value{}, false, nil
}

// branch tries the main arm, then each else-if arm in order, then the
// fallback. A Return inside the chosen body propagates outward.
func (e *Engine) branch(b *Branch) (Value, bool, error) {
	if b == nil {
		return Value{}, false, fmt.Errorf("vm: branch instruction without arms")
	}

	taken, err := e.condition(b.Main.Cond)
	if err != nil {
		return Value{}, false, err
	}
	if taken {
		return e.exec(b.Main.Body)
	}

	for _, arm := range b.ElseIfs {
		taken, err := e.condition(arm.Cond)
		if err != nil {
			return Value{}, false, err
		}
		if taken {
			return e.exec(arm.Body)
		}
	}

	if b.HasFallback {
		return e.exec(b.Fallback)
	}
	return Value{}, false, nil
}

func (e *Engine) condition(o Operand) (bool, error) {
	v, err := e.Force(o)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, typeMismatch("if", KindBool.String(), v.Kind.String())
	}
	return v.Bool, nil
}

// Force turns an operand into a runtime value: slot references read the
// slot's current value, deferred calls run.
func (e *Engine) Force(o Operand) (Value, error) {
	switch o.Kind {
	case OperandLiteral:
		return o.Literal, nil

	case OperandSlot:
		return e.store.Read(o.Slot)

	case OperandCall:
		if o.Call == nil || o.Call.Op != OpInvoke {
			return Value{}, fmt.Errorf("vm: malformed deferred call")
		}
		v, ok, err := e.invoke(o.Call.Slot, o.Call.Args)
		if err != nil {
			return Value{}, err
		}
		if !ok {
			return Value{}, &RuntimeError{Kind: NoValue, Op: o.Call.Slot}
		}
		return v, nil
	}
	return Value{}, fmt.Errorf("vm: invalid operand kind %d", o.Kind)
}

// invoke calls the closure stored under id.
func (e *Engine) invoke(id string, args []Operand) (Value, bool, error) {
	fn, err := e.store.Read(id)
	if err != nil {
		return Value{}, false, err
	}
	if fn.Kind != KindClosure || fn.Closure == nil {
		return Value{}, false, notCallable(id)
	}

	forced := make([]Value, len(args))
	for i, arg := range args {
		v, err := e.Force(arg)
		if err != nil {
			return Value{}, false, err
		}
		forced[i] = v
	}

	return e.Call(fn.Closure, forced)
}

// Call applies a closure to already forced arguments.
func (e *Engine) Call(c *Closure, args []Value) (Value, bool, error) {
	if c.IsNative() {
		fn, ok := nativeTable[c.Native]
		if !ok {
			return Value{}, false, notCallable(c.Owner)
		}
		if e.log.AllowLevel(commonlog.Debug) {
			e.log.Debugf("native %s (%d args)", c.Native, len(args))
		}
		return fn(e, args)
	}

	if len(args) != c.Params {
		return Value{}, false, arityMismatch(c.Owner, c.Params, len(args))
	}
	if len(e.frames) >= e.maxDepth {
		return Value{}, false, &RuntimeError{Kind: StackOverflow, Op: c.Owner}
	}

	if e.log.AllowLevel(commonlog.Debug) {
		e.log.Debugf("call %s (%d args, depth %d)", c.Owner, len(args), len(e.frames)+1)
	}

	e.pushFrame(c.Owner)
	defer e.popFrame()

	for i, arg := range args {
		e.declare(ParamSlot(c.Owner, i), false, arg)
	}

	v, returned, err := e.exec(c.Body)
	if err != nil {
		return Value{}, false, err
	}
	return v, returned, nil
}

// declare writes a slot, saving its previous contents in the current
// activation the first time that activation touches it.
func (e *Engine) declare(id string, mutable bool, v Value) {
	if n := len(e.frames); n > 0 {
		f := e.frames[n-1]
		if _, seen := f.saved[id]; !seen {
			prev, existed := e.store.Lookup(id)
			f.saved[id] = savedEntry{entry: prev, existed: existed}
		}
	}
	e.store.Declare(id, mutable, v)
}

func (e *Engine) pushFrame(fn string) {
	e.frames = append(e.frames, &activation{fn: fn, saved: make(map[string]savedEntry)})
}

// popFrame ends the innermost activation and releases or restores every
// slot it declared.
func (e *Engine) popFrame() {
	n := len(e.frames)
	if n == 1 && e.keepEntry {
		e.entryRows = DumpStore(e.store)
	}
	f := e.frames[n-1]
	e.frames[n-1] = nil
	e.frames = e.frames[:n-1]

	for id, s := range f.saved {
		e.store.restore(id, s.entry, s.existed)
	}
}
