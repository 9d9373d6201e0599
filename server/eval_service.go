package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/compiler/hash"
	"github.com/msq-lang/msq/history"
	"github.com/msq-lang/msq/vm"
)

// Procedure paths of the evaluation service.
const (
	EvalServiceName      = "msq.v1.EvalService"
	RunProcedure         = "/" + EvalServiceName + "/Run"
	CheckProcedure       = "/" + EvalServiceName + "/Check"
	DisassembleProcedure = "/" + EvalServiceName + "/Disassemble"
)

// evalPath stands in for a file path when a run arrives over the network.
const evalPath = "<eval>"

// Error kinds reported in responses and diagnostics.
const (
	KindParse   = "parse"
	KindCompile = "compile"
	KindRuntime = "runtime"
)

// Diagnostic is one problem found in a program.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// RunRequest asks for a program to be compiled and executed.
type RunRequest struct {
	Source   string `json:"source"`
	Input    string `json:"input,omitempty"`
	MaxDepth int    `json:"maxDepth,omitempty"`
	Dump     bool   `json:"dump,omitempty"`
}

// RunResponse is the outcome of a run. Script failures are reported here,
// not as RPC errors.
type RunResponse struct {
	Success     bool         `json:"success"`
	Output      string       `json:"output"`
	Value       string       `json:"value,omitempty"`
	HasValue    bool         `json:"hasValue,omitempty"`
	Error       *Diagnostic  `json:"error,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	RunID       string       `json:"runId,omitempty"`
	DurationMS  float64      `json:"durationMs"`
	Memory      []vm.DumpRow `json:"memory,omitempty"`
}

// CheckRequest asks for a program to be parsed and compiled only.
type CheckRequest struct {
	Source string `json:"source"`
}

// CheckResponse lists what is wrong with a program, if anything.
type CheckResponse struct {
	Valid       bool         `json:"valid"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// DisassembleRequest asks for the instruction listing of a program.
type DisassembleRequest struct {
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
}

// DisassembleResponse carries the listing, or the diagnostic that
// prevented compilation.
type DisassembleResponse struct {
	Listing string      `json:"listing,omitempty"`
	Error   *Diagnostic `json:"error,omitempty"`
}

// EvalService runs whole programs. Every run gets a fresh engine.
type EvalService struct {
	worker   *Worker
	history  *history.Store
	maxDepth int
	log      commonlog.Logger
}

// NewEvalService creates an EvalService. hist may be nil. maxDepth is the
// largest depth a request may ask for, clamped to vm.MaxDepthLimit.
func NewEvalService(worker *Worker, hist *history.Store, maxDepth int) *EvalService {
	switch {
	case maxDepth <= 0:
		maxDepth = vm.DefaultMaxDepth
	case maxDepth > vm.MaxDepthLimit:
		maxDepth = vm.MaxDepthLimit
	}
	return &EvalService{
		worker:   worker,
		history:  hist,
		maxDepth: maxDepth,
		log:      commonlog.GetLogger("msq.server"),
	}
}

// Run compiles and executes a program.
func (s *EvalService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	msg := req.Msg
	if strings.TrimSpace(msg.Source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	if msg.MaxDepth < 0 || msg.MaxDepth > s.maxDepth {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("maxDepth must be between 1 and %d", s.maxDepth))
	}
	if msg.MaxDepth == 0 {
		msg.MaxDepth = s.maxDepth
	}

	started := time.Now()
	result, err := s.worker.Do(ctx, func() (any, error) {
		return runProgram(msg), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	resp := result.(*RunResponse)
	resp.DurationMS = float64(time.Since(started).Microseconds()) / 1000

	if s.history != nil {
		run := historyRun(resp, started)
		if err := s.history.Record(ctx, run); err != nil {
			s.log.Errorf("recording run: %s", err.Error())
		} else {
			resp.RunID = run.ID
		}
	}

	return connect.NewResponse(resp), nil
}

// Check parses and compiles a program without running it.
func (s *EvalService) Check(
	ctx context.Context,
	req *connect.Request[CheckRequest],
) (*connect.Response[CheckResponse], error) {
	if strings.TrimSpace(req.Msg.Source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	resp := &CheckResponse{}
	prog, err := compiler.Parse(req.Msg.Source)
	if err == nil {
		resp.Fingerprint = hash.Hex(hash.HashProgram(prog))
		_, err = compiler.Compile(prog)
	}
	if err != nil {
		resp.Diagnostics = []Diagnostic{Diagnose(err)}
	} else {
		resp.Valid = true
	}
	return connect.NewResponse(resp), nil
}

// Disassemble compiles a program and returns its instruction listing.
func (s *EvalService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	if strings.TrimSpace(req.Msg.Source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	prog, err := compiler.CompileSource(req.Msg.Source)
	if err != nil {
		d := Diagnose(err)
		return connect.NewResponse(&DisassembleResponse{Error: &d}), nil
	}
	name := req.Msg.Name
	if name == "" {
		name = "program"
	}
	return connect.NewResponse(&DisassembleResponse{Listing: prog.DisassembleWithName(name)}), nil
}

// runProgram compiles and executes msg.Source on a fresh engine.
// Must be called on the worker goroutine.
func runProgram(msg *RunRequest) *RunResponse {
	resp := &RunResponse{}

	ast, err := compiler.Parse(msg.Source)
	if err != nil {
		resp.fail(err)
		return resp
	}
	resp.Fingerprint = hash.Hex(hash.HashProgram(ast))

	prog, err := compiler.Compile(ast)
	if err != nil {
		resp.fail(err)
		return resp
	}

	var out bytes.Buffer
	e := vm.NewEngine(
		vm.WithStdout(&out),
		vm.WithStdin(strings.NewReader(msg.Input)),
		vm.WithMaxDepth(msg.MaxDepth),
		vm.WithEntryDump(),
	)
	v, ok, err := e.Execute(prog)
	resp.Output = out.String()
	if msg.Dump {
		resp.Memory = e.EntryDump()
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

func (r *RunResponse) fail(err error) {
	d := Diagnose(err)
	r.Success = false
	r.Error = &d
}

// Diagnose classifies an error returned by the parser, the compiler or the
// engine.
func Diagnose(err error) Diagnostic {
	var (
		perr *compiler.ParseError
		cerr *compiler.CompileError
		rerr *vm.RuntimeError
	)
	switch {
	case errors.As(err, &perr):
		return Diagnostic{Kind: KindParse, Line: perr.Pos.Line, Column: perr.Pos.Column, Message: err.Error()}
	case errors.As(err, &cerr):
		return Diagnostic{Kind: KindCompile, Line: cerr.Pos.Line, Column: cerr.Pos.Column, Message: err.Error()}
	case errors.As(err, &rerr):
		return Diagnostic{Kind: KindRuntime, Line: rerr.Line, Message: err.Error()}
	}
	return Diagnostic{Kind: KindRuntime, Message: err.Error()}
}

func historyRun(resp *RunResponse, started time.Time) *history.Run {
	run := &history.Run{
		Path:        evalPath,
		Fingerprint: resp.Fingerprint,
		Status:      history.StatusOK,
		Value:       resp.Value,
		HasValue:    resp.HasValue,
		StartedAt:   started,
		Duration:    time.Since(started),
		Memory:      resp.Memory,
	}
	if resp.Error != nil {
		run.Error = resp.Error.Message
		switch resp.Error.Kind {
		case KindParse:
			run.Status = history.StatusParseError
		case KindCompile:
			run.Status = history.StatusCompileError
		default:
			run.Status = history.StatusRuntimeError
		}
	}
	return run
}
