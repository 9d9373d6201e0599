package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	json "github.com/goccy/go-json"
)

func newHTTPTestServer(t *testing.T, opts ...ServerOption) *httptest.Server {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts
}

func TestServer_ConnectClient(t *testing.T) {
	ts := newHTTPTestServer(t)

	client := connect.NewClient[RunRequest, RunResponse](ts.Client(), ts.URL+RunProcedure, ClientOptions()...)
	resp, err := client.CallUnary(bg(), connect.NewRequest(&RunRequest{Source: factSource}))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if resp.Msg.Value != "15" {
		t.Errorf("Value = %q, want 15", resp.Msg.Value)
	}

	_, err = client.CallUnary(bg(), connect.NewRequest(&RunRequest{}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestServer_PlainJSON(t *testing.T) {
	ts := newHTTPTestServer(t)

	body := strings.NewReader(`{"source": "main _ -> print(\"hello\") end"}`)
	httpResp, err := ts.Client().Post(ts.URL+RunProcedure, "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", httpResp.StatusCode)
	}
	var out RunResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.Output != "hello\n" {
		t.Errorf("response = %+v", out)
	}
}

func TestServer_SessionRoundTrip(t *testing.T) {
	ts := newHTTPTestServer(t, WithMaxDepth(100))
	opts := ClientOptions()

	open := connect.NewClient[OpenSessionRequest, OpenSessionResponse](ts.Client(), ts.URL+OpenSessionProcedure, opts...)
	evalc := connect.NewClient[EvalRequest, RunResponse](ts.Client(), ts.URL+EvalProcedure, opts...)
	closec := connect.NewClient[SessionRequest, CloseSessionResponse](ts.Client(), ts.URL+CloseSessionProcedure, opts...)

	opened, err := open.CallUnary(bg(), connect.NewRequest(&OpenSessionRequest{}))
	if err != nil {
		t.Fatal(err)
	}
	id := opened.Msg.SessionID

	for _, src := range []string{"let x = 20", "add(x, 22)"} {
		resp, err := evalc.CallUnary(bg(), connect.NewRequest(&EvalRequest{SessionID: id, Source: src}))
		if err != nil {
			t.Fatal(err)
		}
		if !resp.Msg.Success {
			t.Fatalf("Eval(%q): %+v", src, resp.Msg.Error)
		}
		if src == "add(x, 22)" && resp.Msg.Value != "42" {
			t.Errorf("Value = %q, want 42", resp.Msg.Value)
		}
	}

	if _, err := closec.CallUnary(bg(), connect.NewRequest(&SessionRequest{SessionID: id})); err != nil {
		t.Fatal(err)
	}
	_, err = evalc.CallUnary(bg(), connect.NewRequest(&EvalRequest{SessionID: id, Source: "print(x)"}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestCodecRoundTrip(t *testing.T) {
	data, err := jsonCodec{}.Marshal(&RunRequest{Source: "x", MaxDepth: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"maxDepth":3`)) {
		t.Errorf("encoded = %s", data)
	}
	var req RunRequest
	if err := (jsonCodec{}).Unmarshal(data, &req); err != nil {
		t.Fatal(err)
	}
	if req.Source != "x" || req.MaxDepth != 3 {
		t.Errorf("decoded = %+v", req)
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestWorker_SerializesJobs(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	counter := 0
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			w.Do(bg(), func() (any, error) {
				counter++
				return nil, nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}

	v, err := w.Do(bg(), func() (any, error) { return counter, nil })
	if err != nil {
		t.Fatal(err)
	}
	if v.(int) != 50 {
		t.Errorf("counter = %d, want 50", v)
	}
}

func TestWorker_RecoversPanics(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	_, err := w.Do(bg(), func() (any, error) { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want the panic value", err)
	}

	v, err := w.Do(bg(), func() (any, error) { return "still alive", nil })
	if err != nil || v != "still alive" {
		t.Errorf("after panic: %v, %v", v, err)
	}
}

func TestWorker_Stopped(t *testing.T) {
	w := NewWorker()
	w.Stop()
	w.Stop()

	_, err := w.Do(bg(), func() (any, error) { return nil, nil })
	if !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("error = %v, want ErrWorkerStopped", err)
	}
}

func TestWorker_ContextCancelled(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	go w.Do(bg(), func() (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(bg(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Do(ctx, func() (any, error) { return nil, nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
