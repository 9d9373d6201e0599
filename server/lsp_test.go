package server

import (
	"strings"
	"sync"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const lspDoc = protocol.DocumentUri("file:///tmp/fact.msq")

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"print(tot", protocol.Position{Line: 0, Character: 9}, "tot"},
		{"fact", protocol.Position{Line: 0, Character: 4}, "fact"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"first\nsecond\nmy_va", protocol.Position{Line: 2, Character: 5}, "my_va"},
		{"add(n, ", protocol.Position{Line: 0, Character: 7}, ""},
		{"short", protocol.Position{Line: 0, Character: 99}, "short"},
		{"one line", protocol.Position{Line: 4, Character: 0}, ""},
	}
	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestLSPDiagnostics(t *testing.T) {
	s := NewLSP()

	if diags := s.update(lspDoc, factSource); len(diags) != 0 {
		t.Errorf("clean document has diagnostics: %+v", diags)
	}

	diags := s.update(lspDoc, "main _ ->\n  print(ghost)\nend")
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.Range.Start.Line != 1 || d.Range.Start.Character != 8 {
		t.Errorf("range = %+v, want 1:8", d.Range)
	}
	if !strings.Contains(d.Message, "ghost") {
		t.Errorf("message = %q", d.Message)
	}

	diags = s.update(lspDoc, "main _ ->\n  print(1\nend")
	if len(diags) != 1 || diags[0].Range.Start.Line != 2 {
		t.Errorf("parse diagnostics = %+v", diags)
	}
}

func TestLSPKeepsLastIndexWhileBroken(t *testing.T) {
	s := NewLSP()
	s.update(lspDoc, factSource)
	s.update(lspDoc, factSource+"\nbroken ->")

	if h := s.hover(lspDoc, protocol.Position{Line: 0, Character: 0}); h == nil {
		t.Error("hover lost after a parse error")
	}
}

func TestLSPConcurrentEditsAndQueries(t *testing.T) {
	s := NewLSP()
	s.update(lspDoc, factSource)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				s.update(lspDoc, factSource+"\nbroken ->")
			} else {
				s.update(lspDoc, "s"+factSource[1:])
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.complete(lspDoc, protocol.Position{Line: 1, Character: 6})
			s.hover(lspDoc, protocol.Position{Line: 0, Character: 2})
			s.references(lspDoc, protocol.Position{Line: 0, Character: 2}, true)
		}
	}()
	wg.Wait()

	s.update(lspDoc, factSource)
	if h := s.hover(lspDoc, protocol.Position{Line: 0, Character: 2}); h == nil {
		t.Error("no hover after concurrent edits")
	}
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

func TestLSPHover(t *testing.T) {
	s := NewLSP()
	s.update(lspDoc, factSource)

	h := s.hover(lspDoc, protocol.Position{Line: 0, Character: 2})
	if h == nil {
		t.Fatal("no hover for fact")
	}
	content := h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(content, "fact n") || !strings.Contains(content, "function") {
		t.Errorf("hover = %q", content)
	}

	// smaller( on line 2
	h = s.hover(lspDoc, protocol.Position{Line: 1, Character: 6})
	if h == nil || !strings.Contains(h.Contents.(protocol.MarkupContent).Value, "built-in") {
		t.Errorf("hover for smaller = %+v", h)
	}

	if h := s.hover(lspDoc, protocol.Position{Line: 2, Character: 4}); h != nil {
		t.Errorf("hover on a keyword = %+v", h)
	}
	if h := s.hover("file:///unknown.msq", protocol.Position{}); h != nil {
		t.Error("hover on an unopened document")
	}
}

func TestLSPDefinitionAndReferences(t *testing.T) {
	s := NewLSP()
	s.update(lspDoc, factSource)

	// fact( inside main, line 9
	use := protocol.Position{Line: 8, Character: 10}
	loc := s.definition(lspDoc, use)
	if loc == nil {
		t.Fatal("no definition")
	}
	if loc.Range.Start.Line != 0 || loc.Range.Start.Character != 0 || loc.Range.End.Character != 4 {
		t.Errorf("definition range = %+v", loc.Range)
	}

	refs := s.references(lspDoc, use, false)
	if len(refs) != 2 {
		t.Errorf("got %d references, want 2", len(refs))
	}
	refs = s.references(lspDoc, use, true)
	if len(refs) != 3 {
		t.Errorf("got %d references with declaration, want 3", len(refs))
	}

	if loc := s.definition(lspDoc, protocol.Position{Line: 1, Character: 6}); loc != nil {
		t.Errorf("built-in has a definition: %+v", loc)
	}
}

func TestLSPCompletion(t *testing.T) {
	s := NewLSP()
	s.update(lspDoc, "main _ ->\n  let sum = 1\n  print(s\nend")

	// The document doesn't parse, so only built-ins are offered.
	items := s.complete(lspDoc, protocol.Position{Line: 2, Character: 9})
	if got := labels(items); got != "smaller" {
		t.Errorf("completion = %q, want %q", got, "smaller")
	}

	s.update(lspDoc, "main _ ->\n  let sum = 1\n  print(sum)\nend")
	s.update(lspDoc, "main _ ->\n  let sum = 1\n  print(s\nend")
	items = s.complete(lspDoc, protocol.Position{Line: 2, Character: 9})
	if got := labels(items); got != "smaller sum" {
		t.Errorf("completion = %q, want %q", got, "smaller sum")
	}

	items = s.complete(lspDoc, protocol.Position{Line: 1, Character: 3})
	if got := labels(items); got != "let" {
		t.Errorf("completion = %q, want %q", got, "let")
	}
}

func labels(items []protocol.CompletionItem) string {
	var out []string
	for _, it := range items {
		out = append(out, it.Label)
	}
	return strings.Join(out, " ")
}
