package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/msq-lang/msq/history"
	"github.com/msq-lang/msq/vm"
)

// Server exposes program evaluation over Connect (HTTP/JSON).
type Server struct {
	worker   *Worker
	sessions *SessionStore
	mux      *http.ServeMux
	http     *http.Server
	log      commonlog.Logger

	stopSweeper func()
	stopOnce    sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxDepth      int
	history       *history.Store
	sessionTTL    time.Duration
	sweepInterval time.Duration
}

// WithMaxDepth bounds call depth for every run and session.
func WithMaxDepth(n int) ServerOption {
	return func(c *serverConfig) { c.maxDepth = n }
}

// WithHistory records every run made through the evaluation service.
func WithHistory(h *history.Store) ServerOption {
	return func(c *serverConfig) { c.history = h }
}

// WithSessionTTL sets how long an unused session survives, and how often
// idle sessions are looked for.
func WithSessionTTL(ttl, interval time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sessionTTL = ttl
		c.sweepInterval = interval
	}
}

// New creates a Server and starts its worker.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		maxDepth:      vm.DefaultMaxDepth,
		sessionTTL:    30 * time.Minute,
		sweepInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker()
	sessions := NewSessionStore(cfg.maxDepth)

	s := &Server{
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
		log:      commonlog.GetLogger("msq.server"),
	}

	evalSvc := NewEvalService(worker, cfg.history, cfg.maxDepth)
	sessionSvc := NewSessionService(worker, sessions)
	opt := handlerOptions()

	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, evalSvc.Run, opt...))
	s.mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, evalSvc.Check, opt...))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, evalSvc.Disassemble, opt...))

	s.mux.Handle(OpenSessionProcedure, connect.NewUnaryHandler(OpenSessionProcedure, sessionSvc.Open, opt...))
	s.mux.Handle(EvalProcedure, connect.NewUnaryHandler(EvalProcedure, sessionSvc.Eval, opt...))
	s.mux.Handle(MemoryProcedure, connect.NewUnaryHandler(MemoryProcedure, sessionSvc.Memory, opt...))
	s.mux.Handle(CompleteProcedure, connect.NewUnaryHandler(CompleteProcedure, sessionSvc.Complete, opt...))
	s.mux.Handle(CloseSessionProcedure, connect.NewUnaryHandler(CloseSessionProcedure, sessionSvc.Close, opt...))

	if cfg.sessionTTL > 0 && cfg.sweepInterval > 0 {
		s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)
	}

	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("msq server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, RunProcedure)
	s.log.Noticef("listening on %s", addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones, and stops
// the worker.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Stop shuts down the worker and the session sweeper.
// Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.stopSweeper != nil {
			s.stopSweeper()
		}
		s.worker.Stop()
	})
}
