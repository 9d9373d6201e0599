package vm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies runtime failures.
type ErrorKind int

const (
	UndefinedSlot ErrorKind = iota + 1
	NotCallable
	TypeMismatch
	ArityMismatch
	ReassignImmutable
	NoValue
	StackOverflow
	IOFailure
)

var errorKindNames = map[ErrorKind]string{
	UndefinedSlot:     "undefined slot",
	NotCallable:       "not callable",
	TypeMismatch:      "type mismatch",
	ArityMismatch:     "arity mismatch",
	ReassignImmutable: "cannot reassign immutable slot",
	NoValue:           "call produced no value",
	StackOverflow:     "stack overflow",
	IOFailure:         "i/o failure",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is.
var (
	ErrUndefinedSlot     = errors.New("undefined slot")
	ErrNotCallable       = errors.New("not callable")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrArityMismatch     = errors.New("arity mismatch")
	ErrReassignImmutable = errors.New("cannot reassign immutable slot")
	ErrNoValue           = errors.New("call produced no value")
	ErrStackOverflow     = errors.New("stack overflow")
	ErrIO                = errors.New("i/o failure")
)

var kindSentinels = map[ErrorKind]error{
	UndefinedSlot:     ErrUndefinedSlot,
	NotCallable:       ErrNotCallable,
	TypeMismatch:      ErrTypeMismatch,
	ArityMismatch:     ErrArityMismatch,
	ReassignImmutable: ErrReassignImmutable,
	NoValue:           ErrNoValue,
	StackOverflow:     ErrStackOverflow,
	IOFailure:         ErrIO,
}

// RuntimeError terminates a run. Execution is not resumable after one.
type RuntimeError struct {
	Kind     ErrorKind
	Op       string // operation or function involved
	Slot     string // storage id involved, if any
	Expected string
	Found    string
	Line     int   // source line of the failing instruction, 0 if unknown
	Err      error // underlying cause for IOFailure
}

func (e *RuntimeError) Error() string {
	var msg string
	switch e.Kind {
	case UndefinedSlot, NotCallable, ReassignImmutable:
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Slot)
	case TypeMismatch, ArityMismatch:
		msg = fmt.Sprintf("%s in %s: expected %s, found %s", e.Kind, e.Op, e.Expected, e.Found)
	case NoValue, StackOverflow:
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case IOFailure:
		msg = fmt.Sprintf("%s in %s: %v", e.Kind, e.Op, e.Err)
	default:
		msg = e.Kind.String()
	}
	if e.Line > 0 {
		return fmt.Sprintf("runtime error at line %d: %s", e.Line, msg)
	}
	return "runtime error: " + msg
}

// Is matches the sentinel for the error's kind.
func (e *RuntimeError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func undefinedSlot(id string) *RuntimeError {
	return &RuntimeError{Kind: UndefinedSlot, Slot: id}
}

func notCallable(id string) *RuntimeError {
	return &RuntimeError{Kind: NotCallable, Slot: id}
}

func reassignImmutable(id string) *RuntimeError {
	return &RuntimeError{Kind: ReassignImmutable, Slot: id}
}

func typeMismatch(op, expected, found string) *RuntimeError {
	return &RuntimeError{Kind: TypeMismatch, Op: op, Expected: expected, Found: found}
}

func arityMismatch(op string, expected, found int) *RuntimeError {
	return &RuntimeError{Kind: ArityMismatch, Op: op, Expected: fmt.Sprint(expected), Found: fmt.Sprint(found)}
}

// atLine stamps err with a source line if it is a RuntimeError without one.
func atLine(err error, line int) error {
	var rerr *RuntimeError
	if line > 0 && errors.As(err, &rerr) && rerr.Line == 0 {
		rerr.Line = line
	}
	return err
}
