package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/vm"
)

func newTestRepl(t *testing.T, input string) (*repl, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := newRepl(&out, strings.NewReader(input), 100)
	if err != nil {
		t.Fatalf("newRepl: %v", err)
	}
	return r, &out
}

func TestReplStatePersists(t *testing.T) {
	r, out := newTestRepl(t, "")

	steps := []struct {
		src      string
		value    string
		hasValue bool
	}{
		{"var total = 1", "", false},
		{"double n -> return add(n, n) end", "", false},
		{"total = double(add(total, 4))", "", false},
		{"print(total)", "", false},
		{"add(total, 1)", "11", true},
	}
	for _, s := range steps {
		v, ok, err := r.eval(s.src)
		if err != nil {
			t.Fatalf("eval(%q): %v", s.src, err)
		}
		if ok != s.hasValue || (ok && v.String() != s.value) {
			t.Errorf("eval(%q) = %v, %v; want %q, %v", s.src, v, ok, s.value, s.hasValue)
		}
	}
	if out.String() != "10\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestReplErrorsKeepSession(t *testing.T) {
	r, _ := newTestRepl(t, "")

	if _, _, err := r.eval("let a = 1\nprint(ghost)"); !errors.Is(err, compiler.ErrUnresolvedIdentifier) {
		t.Fatalf("err = %v, want unresolved identifier", err)
	}
	if _, _, err := r.eval("print(a)"); !errors.Is(err, compiler.ErrUnresolvedIdentifier) {
		t.Errorf("a survived a failed chunk: %v", err)
	}

	if _, _, err := r.eval("let b = 2"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.eval("b = 3"); !errors.Is(err, compiler.ErrReassignImmutable) {
		t.Errorf("err = %v, want reassign immutable", err)
	}

	v, ok, err := r.eval("add(b, 1)")
	if err != nil || !ok || v.String() != "3" {
		t.Errorf("add(b, 1) = %v, %v, %v", v, ok, err)
	}
}

func TestReplIncompleteInput(t *testing.T) {
	_, err := compiler.Parse("f n ->\n  return n")
	if !compiler.IsIncomplete(err) {
		t.Errorf("open function body not reported incomplete: %v", err)
	}
}

func TestReplCommands(t *testing.T) {
	r, out := newTestRepl(t, "")
	if _, _, err := r.eval("let elapsed = 1"); err != nil {
		t.Fatal(err)
	}

	if r.command(":names") {
		t.Fatal(":names exited")
	}
	if !strings.Contains(out.String(), "elapsed") {
		t.Errorf(":names output = %q", out.String())
	}

	out.Reset()
	r.command(":memory")
	if !strings.Contains(out.String(), "Not Mutable") {
		t.Errorf(":memory output = %q", out.String())
	}

	out.Reset()
	r.command(":bogus")
	if !strings.HasPrefix(out.String(), "Unknown command") {
		t.Errorf(":bogus output = %q", out.String())
	}

	if !r.command(":quit") || !r.command(" :Q ") {
		t.Error(":quit did not exit")
	}
}

func TestReplComplete(t *testing.T) {
	r, _ := newTestRepl(t, "")
	if _, _, err := r.eval("let elapsed = 1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		line string
		want string
	}{
		{"print(el", "print(elapsed print(else"},
		{"sma", "smaller"},
		{"print(", ""},
		{"zzz", ""},
	}
	for _, tc := range tests {
		if got := strings.Join(r.complete(tc.line), " "); got != tc.want {
			t.Errorf("complete(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    vm.Value
		want string
	}{
		{vm.StringValue("1"), `"1"`},
		{vm.IntValue(1), "1"},
		{vm.FloatValue(1.5), "1.5"},
		{vm.BoolValue(true), "true"},
	}
	for _, tc := range tests {
		if got := formatValue(tc.v); got != tc.want {
			t.Errorf("formatValue(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}
