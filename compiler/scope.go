package compiler

import (
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Scope: compile-time name resolution
// ---------------------------------------------------------------------------

// Binding is what a source name resolves to.
type Binding struct {
	ID      string
	Mutable bool
}

// scopeFrame maps source names to bindings for one lexical block.
type scopeFrame map[string]Binding

// Scope is a stack of lexical frames. Lookups search innermost first, so
// inner declarations shadow outer ones until their frame is exited.
type Scope struct {
	frames []scopeFrame
	newID  func(name string) string
}

// NewScope creates an empty scope stack that mints fresh ids as
// name_<uuid>.
func NewScope() *Scope {
	return &Scope{newID: freshID}
}

// NewScopeWithIDs creates a scope stack with a custom id generator.
func NewScopeWithIDs(gen func(name string) string) *Scope {
	return &Scope{newID: gen}
}

func freshID(name string) string {
	return name + "_" + uuid.New().String()
}

// Enter pushes an empty frame.
func (s *Scope) Enter() {
	s.frames = append(s.frames, scopeFrame{})
}

// Exit pops the innermost frame.
func (s *Scope) Exit() {
	if len(s.frames) == 0 {
		panic("compiler: scope exit with no open frame")
	}
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
}

// Depth returns the number of open frames.
func (s *Scope) Depth() int {
	return len(s.frames)
}

// Declare binds name to a fresh id in the innermost frame and returns the
// id. Redeclaring a name in the same frame replaces the binding.
func (s *Scope) Declare(name string, mutable bool) string {
	id := s.newID(name)
	s.Bind(name, id, mutable)
	return id
}

// Bind binds name to a known id in the innermost frame.
func (s *Scope) Bind(name, id string, mutable bool) {
	if len(s.frames) == 0 {
		panic("compiler: declaration with no open frame")
	}
	s.frames[len(s.frames)-1][name] = Binding{ID: id, Mutable: mutable}
}

// Resolve finds the innermost binding for name.
func (s *Scope) Resolve(name string) (Binding, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if b, ok := s.frames[i][name]; ok {
			return b, true
		}
	}
	return Binding{}, false
}

// saveTop copies the innermost frame.
func (s *Scope) saveTop() scopeFrame {
	top := s.frames[len(s.frames)-1]
	saved := make(scopeFrame, len(top))
	for k, v := range top {
		saved[k] = v
	}
	return saved
}

// restoreTop replaces the innermost frame with a saved copy.
func (s *Scope) restoreTop(saved scopeFrame) {
	s.frames[len(s.frames)-1] = saved
}

// Names returns every visible name, innermost binding first. Used for
// editor completion.
func (s *Scope) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for i := len(s.frames) - 1; i >= 0; i-- {
		for name := range s.frames[i] {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
