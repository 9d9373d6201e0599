package server

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/vm"
)

// Session is a long-lived workspace. Each chunk evaluated in it sees the
// declarations and memory left by earlier chunks, the way the REPL does.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	lastUsed time.Time

	compiler *compiler.Session
	engine   *vm.Engine
	stdout   bytes.Buffer
	stdin    bytes.Buffer
}

// newSession builds a session and declares the built-ins in its store.
// Must be called on the worker goroutine.
func newSession(name string, maxDepth int) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:       uuid.New().String(),
		Name:     name,
		Created:  now,
		lastUsed: now,
		compiler: compiler.NewSession(),
	}
	s.engine = vm.NewEngine(
		vm.WithStdout(&s.stdout),
		vm.WithStdin(&s.stdin),
		vm.WithMaxDepth(maxDepth),
	)
	if _, _, err := s.engine.ExecuteInstructions(s.compiler.Prelude()); err != nil {
		return nil, fmt.Errorf("server: session prelude: %w", err)
	}
	return s, nil
}

// Eval compiles and runs one chunk of source. input is appended to what the
// session's input built-in reads from. Must be called on the worker
// goroutine.
func (s *Session) Eval(source, input string, dump bool) *RunResponse {
	s.stdout.Reset()
	s.stdin.WriteString(input)

	resp := &RunResponse{}
	prog, err := compiler.Parse(source)
	if err != nil {
		resp.fail(err)
		return resp
	}
	instrs, err := s.compiler.Lower(prog)
	if err != nil {
		resp.fail(err)
		return resp
	}

	v, ok, err := s.engine.ExecuteInstructions(instrs)
	resp.Output = s.stdout.String()
	if dump {
		resp.Memory = s.engine.Dump()
	}
	if err != nil {
		resp.fail(err)
		return resp
	}
	resp.Success = true
	if ok {
		resp.Value = v.String()
		resp.HasValue = true
	}
	return resp
}

// Memory returns the session's store contents. Must be called on the
// worker goroutine.
func (s *Session) Memory() []vm.DumpRow {
	return s.engine.Dump()
}

// Names lists the names visible to the next chunk.
func (s *Session) Names() []string {
	return s.compiler.Names()
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxDepth int
}

// NewSessionStore creates a new session store.
func NewSessionStore(maxDepth int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		maxDepth: maxDepth,
	}
}

// Create creates a new session with an optional name. Must be called on the
// worker goroutine.
func (s *SessionStore) Create(name string) (*Session, error) {
	session, err := newSession(name, s.maxDepth)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if ok {
		session.lastUsed = time.Now()
	}
	return session, ok
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, session := range s.sessions {
		if session.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
