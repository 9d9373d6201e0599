package compiler

import (
	"github.com/msq-lang/msq/vm"
)

// Session lowers a program piece by piece against one long-lived scope.
// The REPL uses it: each chunk of input sees the declarations of earlier
// chunks, and no entry point is required.
type Session struct {
	c       *Compiler
	prelude []vm.Instruction
}

// NewSession creates a session with the built-ins bound.
func NewSession(opts ...CompilerOption) *Session {
	c := NewCompiler(opts...)
	c.scope = NewScopeWithIDs(c.newID)
	c.topLevel = make(map[string]string)

	s := &Session{c: c, prelude: c.prelude()}
	c.scope.Enter()
	return s
}

// Prelude returns the built-in declarations. Run them once before the
// first chunk.
func (s *Session) Prelude() []vm.Instruction {
	return s.prelude
}

// Lower compiles the statements of prog. On error the session's bindings
// are left as they were before the call.
func (s *Session) Lower(prog *Program) ([]vm.Instruction, error) {
	saved := s.c.scope.saveTop()
	body, err := s.c.lowerBlock(prog.Statements, true)
	if err != nil {
		s.c.scope.restoreTop(saved)
		return nil, err
	}
	return body, nil
}

// Resolve looks a name up in the session's scope.
func (s *Session) Resolve(name string) (Binding, bool) {
	return s.c.scope.Resolve(name)
}

// Names lists every visible name.
func (s *Session) Names() []string {
	return s.c.scope.Names()
}
