package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports malformed source. Context lists the constructs being
// parsed when the error occurred, outermost first.
type ParseError struct {
	Pos     Position
	Context []string
	Message string

	// Incomplete is set when the input ended before the construct did.
	Incomplete bool
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Pos.String())
	sb.WriteString(": ")
	for _, c := range e.Context {
		sb.WriteString("in ")
		sb.WriteString(c)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// IsIncomplete reports whether err is a ParseError caused by input that
// stopped short. The REPL keeps reading when it sees one.
func IsIncomplete(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr) && perr.Incomplete
}

// CompileErrorKind classifies lowering failures.
type CompileErrorKind int

const (
	UnresolvedIdentifier CompileErrorKind = iota + 1
	ReassignImmutable
	MissingEntryPoint
)

func (k CompileErrorKind) String() string {
	switch k {
	case UnresolvedIdentifier:
		return "unresolved identifier"
	case ReassignImmutable:
		return "cannot reassign immutable binding"
	case MissingEntryPoint:
		return "missing entry point"
	}
	return fmt.Sprintf("CompileErrorKind(%d)", int(k))
}

// Sentinel errors matched by CompileError.Is.
var (
	ErrUnresolvedIdentifier = errors.New("unresolved identifier")
	ErrReassignImmutable    = errors.New("cannot reassign immutable binding")
	ErrMissingEntryPoint    = errors.New("missing entry point")
)

// CompileError is returned by Compile. Lowering stops at the first one.
type CompileError struct {
	Kind CompileErrorKind
	Name string
	Pos  Position
}

func (e *CompileError) Error() string {
	if e.Kind == MissingEntryPoint {
		return fmt.Sprintf("%s: no top-level function named %q", e.Kind, EntryPoint)
	}
	return fmt.Sprintf("%s: %s %q", e.Pos, e.Kind, e.Name)
}

// Is lets errors.Is match a CompileError against the sentinel for its kind.
func (e *CompileError) Is(target error) bool {
	switch e.Kind {
	case UnresolvedIdentifier:
		return target == ErrUnresolvedIdentifier
	case ReassignImmutable:
		return target == ErrReassignImmutable
	case MissingEntryPoint:
		return target == ErrMissingEntryPoint
	}
	return false
}
