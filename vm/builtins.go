package vm

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Built-in functions
// ---------------------------------------------------------------------------

// Builtin is the stable identifier of a native function.
type Builtin uint8

const (
	BuiltinNone Builtin = iota
	BuiltinPrint
	BuiltinAdd
	BuiltinEquals
	BuiltinSmaller
	BuiltinDate
	BuiltinInput
)

// StdPrefix prefixes the storage ids of every built-in.
const StdPrefix = "msq_std::"

var builtinNames = map[Builtin]string{
	BuiltinPrint:   "print",
	BuiltinAdd:     "add",
	BuiltinEquals:  "equals",
	BuiltinSmaller: "smaller",
	BuiltinDate:    "date",
	BuiltinInput:   "input",
}

func (b Builtin) String() string {
	if name, ok := builtinNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Builtin(%d)", b)
}

// ID returns the well-known storage id the built-in is bound to.
func (b Builtin) ID() string {
	return StdPrefix + b.String() + "()"
}

// Builtins returns every built-in in declaration order.
func Builtins() []Builtin {
	return []Builtin{BuiltinPrint, BuiltinAdd, BuiltinEquals, BuiltinSmaller, BuiltinDate, BuiltinInput}
}

// Closure returns the closure value the built-in is stored as.
func (b Builtin) Closure() *Closure {
	return &Closure{Owner: b.ID(), Native: b}
}

// nativeFunc receives fully forced arguments. ok is false when the
// function produces no value.
type nativeFunc func(e *Engine, args []Value) (v Value, ok bool, err error)

var nativeTable = map[Builtin]nativeFunc{
	BuiltinPrint:   nativePrint,
	BuiltinAdd:     nativeAdd,
	BuiltinEquals:  nativeEquals,
	BuiltinSmaller: nativeSmaller,
	BuiltinDate:    nativeDate,
	BuiltinInput:   nativeInput,
}

// nativePrint writes every argument with no separator, then a newline.
func nativePrint(e *Engine, args []Value) (Value, bool, error) {
	var sb strings.Builder
	for _, arg := range args {
		sb.WriteString(arg.String())
	}
	sb.WriteByte('\n')

	if _, err := io.WriteString(e.stdout, sb.String()); err != nil {
		return Value{}, false, &RuntimeError{Kind: IOFailure, Op: "print", Err: err}
	}
	return Value{}, false, nil
}

// nativeAdd sums a homogeneous list of Int32 or Float32 values.
func nativeAdd(_ *Engine, args []Value) (Value, bool, error) {
	if len(args) == 0 {
		return Value{}, false, arityMismatch("add", 1, 0)
	}

	switch args[0].Kind {
	case KindInt:
		var sum int32
		for _, arg := range args {
			if arg.Kind != KindInt {
				return Value{}, false, typeMismatch("add", KindInt.String(), arg.Kind.String())
			}
			sum += arg.Int
		}
		return IntValue(sum), true, nil

	case KindFloat:
		var sum float32
		for _, arg := range args {
			if arg.Kind != KindFloat {
				return Value{}, false, typeMismatch("add", KindFloat.String(), arg.Kind.String())
			}
			sum += arg.Float
		}
		return FloatValue(sum), true, nil
	}

	return Value{}, false, typeMismatch("add", "Int32 or Float32", args[0].Kind.String())
}

// nativeEquals compares two scalars of the same kind.
func nativeEquals(_ *Engine, args []Value) (Value, bool, error) {
	if len(args) != 2 {
		return Value{}, false, arityMismatch("equals", 2, len(args))
	}
	eq, err := args[0].Equal(args[1])
	if err != nil {
		return Value{}, false, err
	}
	return BoolValue(eq), true, nil
}

// nativeSmaller is numeric less-than. Mixed Int32/Float32 operands compare
// after widening the integer.
func nativeSmaller(_ *Engine, args []Value) (Value, bool, error) {
	if len(args) != 2 {
		return Value{}, false, arityMismatch("smaller", 2, len(args))
	}
	a, b := args[0], args[1]

	if a.Kind == KindInt && b.Kind == KindInt {
		return BoolValue(a.Int < b.Int), true, nil
	}

	x, err := widen("smaller", a)
	if err != nil {
		return Value{}, false, err
	}
	y, err := widen("smaller", b)
	if err != nil {
		return Value{}, false, err
	}
	return BoolValue(x < y), true, nil
}

func widen(op string, v Value) (float64, error) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), nil
	case KindFloat:
		return float64(v.Float), nil
	}
	return 0, typeMismatch(op, "Int32 or Float32", v.Kind.String())
}

// nativeDate returns milliseconds since the epoch, truncated to 32 bits.
func nativeDate(e *Engine, _ []Value) (Value, bool, error) {
	return IntValue(int32(e.clock().UnixMilli())), true, nil
}

// nativeInput blocks until a line is available on stdin. The trailing
// newline is kept; at end of input whatever was read is returned.
func nativeInput(e *Engine, _ []Value) (Value, bool, error) {
	line, err := e.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Value{}, false, &RuntimeError{Kind: IOFailure, Op: "input", Err: err}
	}
	return StringValue(line), true, nil
}
