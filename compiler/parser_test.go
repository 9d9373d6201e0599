package compiler

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return prog
}

func TestParseFunctionDecl(t *testing.T) {
	tests := []struct {
		src    string
		name   string
		params []string
		body   int
	}{
		{"main _ -> end", "main", nil, 0},
		{"main -> end", "main", nil, 0},
		{"add3 a, b, c -> return add(a, b, c) end", "add3", []string{"a", "b", "c"}, 1},
		{"fact n ->\n  print(n)\n  return n\nend", "fact", []string{"n"}, 2},
	}

	for _, tc := range tests {
		prog := mustParse(t, tc.src)
		if len(prog.Statements) != 1 {
			t.Fatalf("Parse(%q): %d statements, want 1", tc.src, len(prog.Statements))
		}
		fn, ok := prog.Statements[0].(*FunctionDecl)
		if !ok {
			t.Fatalf("Parse(%q): got %T, want *FunctionDecl", tc.src, prog.Statements[0])
		}
		if fn.Name != tc.name {
			t.Errorf("Parse(%q): name = %q, want %q", tc.src, fn.Name, tc.name)
		}
		if strings.Join(fn.Parameters, ",") != strings.Join(tc.params, ",") {
			t.Errorf("Parse(%q): params = %v, want %v", tc.src, fn.Parameters, tc.params)
		}
		if len(fn.Body) != tc.body {
			t.Errorf("Parse(%q): body has %d statements, want %d", tc.src, len(fn.Body), tc.body)
		}
	}
}

func TestParseMainDetected(t *testing.T) {
	prog := mustParse(t, "helper -> end\nmain _ -> helper() end")
	if prog.Main != "main" {
		t.Errorf("Main = %q, want main", prog.Main)
	}

	prog = mustParse(t, "helper -> end")
	if prog.Main != "" {
		t.Errorf("Main = %q, want empty", prog.Main)
	}

	// A nested main is not an entry point.
	prog = mustParse(t, "outer -> main -> end end")
	if prog.Main != "" {
		t.Errorf("Main = %q, want empty for nested main", prog.Main)
	}
}

func TestParseDeclarationsAndAssignment(t *testing.T) {
	prog := mustParse(t, `let a = 1
var b = "two"
b = 3.5`)

	if len(prog.Statements) != 3 {
		t.Fatalf("got %d statements, want 3", len(prog.Statements))
	}

	a := prog.Statements[0].(*Assignment)
	if !a.Declare || a.Mutable || a.Name != "a" {
		t.Errorf("let a: %+v", a)
	}
	if lit, ok := a.Value.(*IntLiteral); !ok || lit.Value != 1 {
		t.Errorf("let a value = %#v", a.Value)
	}

	b := prog.Statements[1].(*Assignment)
	if !b.Declare || !b.Mutable {
		t.Errorf("var b: %+v", b)
	}
	if lit, ok := b.Value.(*StringLiteral); !ok || lit.Value != "two" {
		t.Errorf("var b value = %#v", b.Value)
	}

	re := prog.Statements[2].(*Assignment)
	if re.Declare {
		t.Errorf("b = 3.5 parsed as a declaration")
	}
	if lit, ok := re.Value.(*FloatLiteral); !ok || lit.Value != 3.5 {
		t.Errorf("b = value %#v", re.Value)
	}
}

func TestParseCallArguments(t *testing.T) {
	tests := []struct {
		src  string
		args int
	}{
		{"f()", 0},
		{"f(_)", 0},
		{"f(1)", 1},
		{`f(1, "x", y, g(2), true)`, 5},
	}

	for _, tc := range tests {
		prog := mustParse(t, tc.src)
		call, ok := prog.Statements[0].(*Call)
		if !ok {
			t.Fatalf("Parse(%q): got %T, want *Call", tc.src, prog.Statements[0])
		}
		if len(call.Arguments) != tc.args {
			t.Errorf("Parse(%q): %d args, want %d", tc.src, len(call.Arguments), tc.args)
		}
	}

	prog := mustParse(t, "f(g(h(1)))")
	outer := prog.Statements[0].(*Call)
	inner, ok := outer.Arguments[0].(*Call)
	if !ok || inner.Name != "g" {
		t.Fatalf("nested call = %#v", outer.Arguments[0])
	}
	if innermost, ok := inner.Arguments[0].(*Call); !ok || innermost.Name != "h" {
		t.Errorf("innermost call = %#v", inner.Arguments[0])
	}
}

func TestParseConditional(t *testing.T) {
	src := `if equals(x, 1) ->
  print("one")
else if equals(x, 2) ->
  print("two")
else if equals(x, 3) ->
  print("three")
else
  print("many")
  print("!")
end`
	prog := mustParse(t, src)
	cond, ok := prog.Statements[0].(*Conditional)
	if !ok {
		t.Fatalf("got %T, want *Conditional", prog.Statements[0])
	}
	if len(cond.Main.Body) != 1 {
		t.Errorf("main body = %d statements, want 1", len(cond.Main.Body))
	}
	if len(cond.Alternates) != 2 {
		t.Errorf("alternates = %d, want 2", len(cond.Alternates))
	}
	if !cond.HasFallback || len(cond.Fallback) != 2 {
		t.Errorf("fallback = %v (%d statements), want 2", cond.HasFallback, len(cond.Fallback))
	}
}

func TestParseConditionalWithoutElse(t *testing.T) {
	prog := mustParse(t, "if true -> return 1 end")
	cond := prog.Statements[0].(*Conditional)
	if cond.HasFallback {
		t.Error("HasFallback = true, want false")
	}
	if _, ok := cond.Main.Body[0].(*Return); !ok {
		t.Errorf("body[0] = %T, want *Return", cond.Main.Body[0])
	}
}

func TestParseEmptyElse(t *testing.T) {
	prog := mustParse(t, "if true -> print(1) else end")
	cond := prog.Statements[0].(*Conditional)
	if !cond.HasFallback || len(cond.Fallback) != 0 {
		t.Errorf("fallback = %v (%d), want present and empty", cond.HasFallback, len(cond.Fallback))
	}
}

func TestParseIntegerRange(t *testing.T) {
	mustParse(t, "let a = 2147483647")
	mustParse(t, "let a = -2147483648")

	_, err := Parse("let a = 2147483648")
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("error = %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src     string
		line    int
		context string
	}{
		{"main _ -> print(1)", 1, `function "main"`},
		{"main _ ->\n  print(1,\nend", 3, `call to "print"`},
		{"let = 1", 1, ""},
		{"if true print(1) end", 1, "if"},
		{"foo", 1, ""},
		{"end", 1, ""},
		{`let s = "open`, 1, `declaration of "s"`},
	}

	for _, tc := range tests {
		_, err := Parse(tc.src)
		if err == nil {
			t.Errorf("Parse(%q): expected error", tc.src)
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q): error %T is not *ParseError", tc.src, err)
			continue
		}
		if pe.Pos.Line != tc.line {
			t.Errorf("Parse(%q): line = %d, want %d (%v)", tc.src, pe.Pos.Line, tc.line, pe)
		}
		if tc.context != "" && !strings.Contains(strings.Join(pe.Context, "; "), tc.context) {
			t.Errorf("Parse(%q): context = %v, want it to contain %q", tc.src, pe.Context, tc.context)
		}
	}
}

func TestParseErrorMessage(t *testing.T) {
	_, err := Parse("main _ ->\n  print(1\nend")
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "line 3, column 1: ") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, `in function "main": in call to "print": `) {
		t.Errorf("message = %q, want context chain", msg)
	}
}

func TestParseIncomplete(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"main _ -> print(1)", true},
		{"if true ->", true},
		{"main _ ->\n  print(1\nend", false},
		{"end", false},
	}
	for _, tc := range tests {
		_, err := Parse(tc.src)
		if err == nil {
			t.Fatalf("Parse(%q): expected error", tc.src)
		}
		if got := IsIncomplete(err); got != tc.want {
			t.Errorf("IsIncomplete(%q) = %v, want %v (%v)", tc.src, got, tc.want, err)
		}
	}
}
