package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "msq-lsp"

// document is an open editor buffer.
type document struct {
	text string

	// index is from the last version that parsed, so navigation keeps
	// working while the user is mid-edit.
	index *compiler.SymbolIndex
}

// LspServer provides diagnostics, completion, hover and navigation for msq
// source files.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → document

	handler protocol.Handler
	server  *glspserver.Server
	version string
	log     commonlog.Logger
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: "0.1.0",
		log:     commonlog.GetLogger("msq.lsp"),
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	diags := s.update(uri, params.TextDocument.Text)
	s.publish(ctx, uri, diags)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			diags := s.update(uri, whole.Text)
			s.publish(ctx, uri, diags)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	s.publish(ctx, uri, []protocol.Diagnostic{})
	return nil
}

func (s *LspServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, diags []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
}

// update stores new document text and returns its diagnostics.
func (s *LspServer) update(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}

	prog, err := compiler.Parse(text)
	var index *compiler.SymbolIndex
	if err == nil {
		index = compiler.IndexSymbols(prog)
		_, err = compiler.Compile(prog)
	}
	if err != nil {
		diags = append(diags, toLSPDiagnostic(Diagnose(err)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		doc = &document{}
		s.docs[string(uri)] = doc
	}
	doc.text = text
	if index != nil {
		doc.index = index
	}
	return diags
}

// document returns a copy of the buffer for uri, taken under the lock.
// Symbol indexes are never modified once built, so the copy may be read
// while update replaces the stored one.
func (s *LspServer) document(uri protocol.DocumentUri) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		return document{}, false
	}
	return *doc, true
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	return s.complete(params.TextDocument.URI, params.Position), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	return s.hover(params.TextDocument.URI, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	loc := s.definition(params.TextDocument.URI, params.Position)
	if loc == nil {
		return nil, nil
	}
	return *loc, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	return s.references(params.TextDocument.URI, params.Position, params.Context.IncludeDeclaration), nil
}

func (s *LspServer) complete(uri protocol.DocumentUri, pos protocol.Position) []protocol.CompletionItem {
	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	prefix := extractPrefix(doc.text, pos)
	if prefix == "" {
		return nil
	}

	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:  label,
			Kind:   &kind,
			Detail: &detail,
		})
	}

	if doc.index != nil {
		for i := len(doc.index.Symbols) - 1; i >= 0; i-- {
			sym := doc.index.Symbols[i]
			add(sym.Name, sym.Signature(), completionKind(sym.Kind))
		}
	} else {
		for _, b := range vm.Builtins() {
			add(b.String(), "built-in", protocol.CompletionItemKindFunction)
		}
	}
	for _, kw := range compiler.Keywords() {
		add(kw, "keyword", protocol.CompletionItemKindKeyword)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func (s *LspServer) hover(uri protocol.DocumentUri, pos protocol.Position) *protocol.Hover {
	sym, _ := s.symbolAt(uri, pos)
	if sym == nil {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "```msq\n%s\n```\n", sym.Signature())
	switch sym.Kind {
	case compiler.SymbolBuiltin:
		sb.WriteString("built-in")
	case compiler.SymbolParameter:
		fmt.Fprintf(&sb, "parameter, declared at %s", sym.Pos)
	default:
		fmt.Fprintf(&sb, "%s, declared at %s", sym.Kind, sym.Pos)
	}
	fmt.Fprintf(&sb, "; %d reference(s)", len(sym.Refs))

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: sb.String(),
		},
	}
}

func (s *LspServer) definition(uri protocol.DocumentUri, pos protocol.Position) *protocol.Location {
	sym, _ := s.symbolAt(uri, pos)
	if sym == nil || sym.Kind == compiler.SymbolBuiltin {
		return nil
	}
	return &protocol.Location{URI: uri, Range: nameRange(sym.Pos, sym.Name)}
}

func (s *LspServer) references(uri protocol.DocumentUri, pos protocol.Position, includeDecl bool) []protocol.Location {
	sym, _ := s.symbolAt(uri, pos)
	if sym == nil {
		return nil
	}

	var locs []protocol.Location
	if includeDecl && sym.Kind != compiler.SymbolBuiltin {
		locs = append(locs, protocol.Location{URI: uri, Range: nameRange(sym.Pos, sym.Name)})
	}
	for _, ref := range sym.Refs {
		locs = append(locs, protocol.Location{URI: uri, Range: nameRange(ref, sym.Name)})
	}
	return locs
}

func (s *LspServer) symbolAt(uri protocol.DocumentUri, pos protocol.Position) (*compiler.Symbol, bool) {
	doc, ok := s.document(uri)
	if !ok || doc.index == nil {
		return nil, false
	}
	sym := doc.index.At(compiler.Position{Line: int(pos.Line) + 1, Column: int(pos.Character) + 1})
	return sym, sym != nil
}

// --- Conversions ---

func completionKind(k compiler.SymbolKind) protocol.CompletionItemKind {
	switch k {
	case compiler.SymbolFunction, compiler.SymbolBuiltin:
		return protocol.CompletionItemKindFunction
	case compiler.SymbolConstant:
		return protocol.CompletionItemKindConstant
	}
	return protocol.CompletionItemKindVariable
}

// nameRange covers name starting at the 1-based source position p.
func nameRange(p compiler.Position, name string) protocol.Range {
	start := toLSPPosition(p.Line, p.Column)
	end := start
	end.Character += protocol.UInteger(len(name))
	return protocol.Range{Start: start, End: end}
}

func toLSPPosition(line, column int) protocol.Position {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	return protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(column - 1)}
}

func toLSPDiagnostic(d Diagnostic) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	start := toLSPPosition(d.Line, d.Column)
	end := start
	end.Character++
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Source:   &source,
		Message:  d.Message,
	}
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
