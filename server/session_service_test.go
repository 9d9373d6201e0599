package server

import (
	"fmt"
	"testing"
	"time"

	"connectrpc.com/connect"
)

// openSession creates a session and registers its cleanup.
func openSession(t *testing.T, svc *SessionService) string {
	t.Helper()
	resp, err := svc.Open(bg(), connectReq(&OpenSessionRequest{Name: t.Name()}))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if resp.Msg.SessionID == "" {
		t.Fatal("Open returned an empty session id")
	}
	t.Cleanup(func() { testSessions.Destroy(resp.Msg.SessionID) })
	return resp.Msg.SessionID
}

func eval(t *testing.T, svc *SessionService, id, src string) *RunResponse {
	t.Helper()
	resp, err := svc.Eval(bg(), connectReq(&EvalRequest{SessionID: id, Source: src}))
	if err != nil {
		t.Fatalf("Eval(%q) returned error: %v", src, err)
	}
	return resp.Msg
}

// ---------------------------------------------------------------------------
// Open / Close
// ---------------------------------------------------------------------------

func TestOpenSession_WithName(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)

	session, ok := testSessions.Get(id)
	if !ok {
		t.Fatal("session should be retrievable after creation")
	}
	if session.Name != t.Name() {
		t.Errorf("Session.Name = %q, want %q", session.Name, t.Name())
	}
}

func TestCloseSession(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)

	if _, err := svc.Close(bg(), connectReq(&SessionRequest{SessionID: id})); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, ok := testSessions.Get(id); ok {
		t.Error("session still present after Close")
	}

	_, err := svc.Close(bg(), connectReq(&SessionRequest{SessionID: id}))
	assertCode(t, err, connect.CodeNotFound)

	_, err = svc.Close(bg(), connectReq(&SessionRequest{}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

// ---------------------------------------------------------------------------
// Eval
// ---------------------------------------------------------------------------

func TestEval_StatePersistsAcrossChunks(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)

	if r := eval(t, svc, id, "var total = 1"); !r.Success {
		t.Fatalf("declare: %+v", r.Error)
	}
	if r := eval(t, svc, id, "double n -> return add(n, n) end"); !r.Success {
		t.Fatalf("function: %+v", r.Error)
	}
	if r := eval(t, svc, id, "total = double(add(total, 4))"); !r.Success {
		t.Fatalf("assign: %+v", r.Error)
	}

	r := eval(t, svc, id, "print(total)")
	if !r.Success || r.Output != "10\n" {
		t.Errorf("print(total) = %+v", r)
	}

	r = eval(t, svc, id, "add(total, 1)")
	if !r.HasValue || r.Value != "11" {
		t.Errorf("add(total, 1) = %+v, want value 11", r)
	}
}

func TestEval_FailedChunkLeavesScopeUntouched(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)

	r := eval(t, svc, id, "let a = 1\nprint(ghost)")
	if r.Success || r.Error == nil || r.Error.Kind != KindCompile {
		t.Fatalf("Eval = %+v, want compile error", r)
	}

	r = eval(t, svc, id, "print(a)")
	if r.Success || r.Error == nil || r.Error.Kind != KindCompile {
		t.Errorf("a leaked out of a failed chunk: %+v", r)
	}
}

func TestEval_InputAccumulates(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)

	resp, err := svc.Eval(bg(), connectReq(&EvalRequest{
		SessionID: id,
		Source:    "print(input())",
		Input:     "one\ntwo\n",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Msg.Output != "one\n\n" {
		t.Errorf("first read = %q", resp.Msg.Output)
	}

	r := eval(t, svc, id, "print(input())")
	if r.Output != "two\n\n" {
		t.Errorf("second read = %q", r.Output)
	}
}

func TestEval_UnknownSession(t *testing.T) {
	svc := newTestSessionService()

	_, err := svc.Eval(bg(), connectReq(&EvalRequest{SessionID: "nope", Source: "print(1)"}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestEval_EmptySource(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)

	_, err := svc.Eval(bg(), connectReq(&EvalRequest{SessionID: id}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

// ---------------------------------------------------------------------------
// Memory and Complete
// ---------------------------------------------------------------------------

func TestMemory(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)
	eval(t, svc, id, "let greeting = \"hi\"")

	resp, err := svc.Memory(bg(), connectReq(&SessionRequest{SessionID: id}))
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, row := range resp.Msg.Memory {
		if row.Value == "hi" && !row.Mutable {
			found = true
		}
	}
	if !found {
		t.Errorf("memory = %+v, want the greeting slot", resp.Msg.Memory)
	}

	var named bool
	for _, n := range resp.Msg.Names {
		if n == "greeting" {
			named = true
		}
	}
	if !named {
		t.Errorf("names = %v", resp.Msg.Names)
	}
}

func TestComplete(t *testing.T) {
	svc := newTestSessionService()
	id := openSession(t, svc)
	eval(t, svc, id, "let elapsed = 1")

	resp, err := svc.Complete(bg(), connectReq(&CompleteRequest{SessionID: id, Prefix: "e"}))
	if err != nil {
		t.Fatal(err)
	}
	got := fmt.Sprint(resp.Msg.Completions)
	if got != "[elapsed else end equals]" {
		t.Errorf("Completions = %s", got)
	}

	resp, err = svc.Complete(bg(), connectReq(&CompleteRequest{Prefix: "e"}))
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(resp.Msg.Completions); got != "[else end equals]" {
		t.Errorf("Completions without session = %s", got)
	}
}

// ---------------------------------------------------------------------------
// Session expiry
// ---------------------------------------------------------------------------

func TestSessionSweep(t *testing.T) {
	store := NewSessionStore(100)
	result, err := testWorker.Do(bg(), func() (any, error) {
		return store.Create("old")
	})
	if err != nil {
		t.Fatal(err)
	}
	old := result.(*Session)
	old.lastUsed = time.Now().Add(-time.Hour)

	result, err = testWorker.Do(bg(), func() (any, error) {
		return store.Create("fresh")
	})
	if err != nil {
		t.Fatal(err)
	}
	fresh := result.(*Session)

	if n := store.Sweep(30 * time.Minute); n != 1 {
		t.Errorf("Sweep removed %d sessions, want 1", n)
	}
	if _, ok := store.Get(old.ID); ok {
		t.Error("idle session survived the sweep")
	}
	if _, ok := store.Get(fresh.ID); !ok {
		t.Error("fresh session was swept")
	}
}
