package server

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"connectrpc.com/connect"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/vm"
)

// Procedure paths of the session service.
const (
	SessionServiceName    = "msq.v1.SessionService"
	OpenSessionProcedure  = "/" + SessionServiceName + "/Open"
	EvalProcedure         = "/" + SessionServiceName + "/Eval"
	MemoryProcedure       = "/" + SessionServiceName + "/Memory"
	CompleteProcedure     = "/" + SessionServiceName + "/Complete"
	CloseSessionProcedure = "/" + SessionServiceName + "/Close"
)

// OpenSessionRequest creates a session.
type OpenSessionRequest struct {
	Name string `json:"name,omitempty"`
}

// OpenSessionResponse carries the new session's id.
type OpenSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// EvalRequest runs one chunk of source in a session.
type EvalRequest struct {
	SessionID string `json:"sessionId"`
	Source    string `json:"source"`
	Input     string `json:"input,omitempty"`
	Dump      bool   `json:"dump,omitempty"`
}

// SessionRequest names a session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// MemoryResponse lists a session's memory and visible names.
type MemoryResponse struct {
	Memory []vm.DumpRow `json:"memory"`
	Names  []string     `json:"names"`
}

// CompleteRequest asks for names starting with Prefix.
type CompleteRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Prefix    string `json:"prefix"`
}

// CompleteResponse lists completion candidates in sorted order.
type CompleteResponse struct {
	Completions []string `json:"completions"`
}

// CloseSessionResponse is empty.
type CloseSessionResponse struct{}

// SessionService implements incremental evaluation against long-lived
// sessions.
type SessionService struct {
	worker   *Worker
	sessions *SessionStore
}

// NewSessionService creates a SessionService.
func NewSessionService(worker *Worker, sessions *SessionStore) *SessionService {
	return &SessionService{
		worker:   worker,
		sessions: sessions,
	}
}

// Open creates a new session.
func (s *SessionService) Open(
	ctx context.Context,
	req *connect.Request[OpenSessionRequest],
) (*connect.Response[OpenSessionResponse], error) {
	result, err := s.worker.Do(ctx, func() (any, error) {
		return s.sessions.Create(req.Msg.Name)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&OpenSessionResponse{
		SessionID: result.(*Session).ID,
	}), nil
}

// Eval runs one chunk of source in a session.
func (s *SessionService) Eval(
	ctx context.Context,
	req *connect.Request[EvalRequest],
) (*connect.Response[RunResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Msg.Source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	result, err := s.worker.Do(ctx, func() (any, error) {
		return session.Eval(req.Msg.Source, req.Msg.Input, req.Msg.Dump), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(result.(*RunResponse)), nil
}

// Memory returns a session's store contents.
func (s *SessionService) Memory(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[MemoryResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.worker.Do(ctx, func() (any, error) {
		names := session.Names()
		sort.Strings(names)
		return &MemoryResponse{Memory: session.Memory(), Names: names}, nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(result.(*MemoryResponse)), nil
}

// Complete returns keywords and, when a session is named, the names visible
// in it that start with the prefix.
func (s *SessionService) Complete(
	ctx context.Context,
	req *connect.Request[CompleteRequest],
) (*connect.Response[CompleteResponse], error) {
	candidates := compiler.Keywords()
	for _, b := range vm.Builtins() {
		candidates = append(candidates, b.String())
	}

	if req.Msg.SessionID != "" {
		session, err := s.lookup(req.Msg.SessionID)
		if err != nil {
			return nil, err
		}
		result, err := s.worker.Do(ctx, func() (any, error) {
			return session.Names(), nil
		})
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		candidates = append(candidates, result.([]string)...)
	}

	return connect.NewResponse(&CompleteResponse{
		Completions: filterPrefix(candidates, req.Msg.Prefix),
	}), nil
}

// Close destroys a session.
func (s *SessionService) Close(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[CloseSessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("sessionId is required"))
	}
	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&CloseSessionResponse{}), nil
}

func (s *SessionService) lookup(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("sessionId is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

// filterPrefix returns the distinct candidates starting with prefix, sorted.
func filterPrefix(candidates []string, prefix string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
