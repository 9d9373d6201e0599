package compiler

import (
	"strings"
	"testing"

	"github.com/msq-lang/msq/vm"
)

var fuzzSeeds = []string{
	// Tokens
	`( ) , -> = _`, `42`, `-5`, `3.14`, `-0.5`, `"hello"`, `"esc\"aped\n"`, `""`,
	`foo`, `foo_1`, `let`, `var`, `if`, `else`, `end`, `return`, `true`, `false`,
	// Comments
	"// a comment\nmain _ -> end", `main _ -> end // trailing`,
	// Declarations and assignment
	`let x = 1`, `var y = "s"`, `y = add(y, 1)`,
	// Functions
	`main _ -> end`, `main -> print(1) end`,
	"fact n ->\n  if smaller(n, 2) ->\n    return 1\n  end\n  return add(n, fact(add(n, -1)))\nend\nmain _ -> return fact(5) end",
	// Conditionals
	"main _ ->\n  if true -> print(1) else if false -> print(2) else -> print(3) end\nend",
	// Nested closures
	"main _ ->\n  outer a ->\n    inner b -> return add(a, b) end\n    return inner(1)\n  end\n  print(outer(2))\nend",
	// Broken input
	`main _ ->`, `if true ->`, `print(1`, `"unterminated`, `let = 1`, `-> end`, `end end end`,
	// Unicode and whitespace
	`"こんにちは"`, `café`, ``, `   `, "\t\n\r",
}

// ---------------------------------------------------------------------------
// FuzzLexer: the lexer terminates and never panics.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data)
		for i := 0; i < len(data)+100; i++ {
			tok := l.NextToken()
			if tok.Type == TokenEOF || tok.Type == TokenError {
				return
			}
		}
		t.Fatalf("lexer did not reach EOF on input %q", data)
	})
}

// ---------------------------------------------------------------------------
// FuzzParse: parse errors are fine, panics are not. Every error is a
// *ParseError with a position inside the input.
// ---------------------------------------------------------------------------

func FuzzParse(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()

		_, err := Parse(data)
		if err == nil {
			return
		}
		perr, ok := err.(*ParseError)
		if !ok {
			t.Fatalf("Parse(%q) returned %T, want *ParseError", data, err)
		}
		if lines := strings.Count(data, "\n") + 1; perr.Pos.Line < 1 || perr.Pos.Line > lines {
			t.Fatalf("Parse(%q) error at line %d, input has %d lines", data, perr.Pos.Line, lines)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: anything that parses either lowers or fails with a
// *CompileError, and lowered programs end with the entry-point call.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		prog, err := Parse(data)
		if err != nil {
			return
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		out, err := Compile(prog)
		if err != nil {
			if _, ok := err.(*CompileError); !ok {
				t.Fatalf("Compile(%q) returned %T, want *CompileError", data, err)
			}
			return
		}
		last := out.Instructions[len(out.Instructions)-1]
		if last.Op != vm.OpInvoke || last.Slot != out.Entry {
			t.Fatalf("Compile(%q) ends with %s, want INVOKE %s", data, last, out.Entry)
		}
	})
}
