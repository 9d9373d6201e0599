package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for msq syntax
// ---------------------------------------------------------------------------

// Parser parses msq source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []*ParseError
	context   []string // constructs currently being parsed, outermost first
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete program and returns the first parse error, if any.
func Parse(input string) (*Program, error) {
	p := NewParser(input)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	return prog, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.describe(p.curToken))
	return false
}

// describe renders a token for error messages.
func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TokenError:
		return tok.Literal
	case TokenEOF:
		return "end of input"
	}
	return fmt.Sprintf("%q", tok.Literal)
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	ctx := make([]string, len(p.context))
	copy(ctx, p.context)
	p.errors = append(p.errors, &ParseError{
		Pos:        p.curToken.Pos,
		Context:    ctx,
		Message:    fmt.Sprintf(format, args...),
		Incomplete: p.curTokenIs(TokenEOF),
	})
}

// failed reports whether an error has been recorded. Parsing is fail-fast.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

func (p *Parser) enter(format string, args ...interface{}) {
	p.context = append(p.context, fmt.Sprintf(format, args...))
}

func (p *Parser) leave() {
	p.context = p.context[:len(p.context)-1]
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*ParseError {
	return p.errors
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses the whole input as a program.
func (p *Parser) ParseProgram() *Program {
	startPos := p.curToken.Pos
	prog := &Program{}

	prog.Statements = p.parseBlock()
	if !p.failed() && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s at top level", p.describe(p.curToken))
	}

	for _, stmt := range prog.Statements {
		if fn, ok := stmt.(*FunctionDecl); ok && fn.Name == EntryPoint {
			prog.Main = fn.Name
		}
	}

	prog.SpanVal = MakeSpan(startPos, p.curToken.Pos)
	return prog
}

// parseBlock parses statements until end, else, or EOF.
func (p *Parser) parseBlock() []Stmt {
	var stmts []Stmt
	for !p.failed() && !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenEnd) && !p.curTokenIs(TokenElse) {
		stmt := p.ParseStatement()
		if stmt == nil {
			break
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	switch {
	case p.curTokenIs(TokenIf):
		return p.parseConditional()
	case p.curTokenIs(TokenReturn):
		return p.parseReturn()
	case p.curTokenIs(TokenLet), p.curTokenIs(TokenVar):
		return p.parseDeclaration()
	case p.curTokenIs(TokenIdentifier):
		switch p.peekToken.Type {
		case TokenLParen:
			call := p.parseCall()
			if call == nil {
				return nil
			}
			return call
		case TokenAssign:
			return p.parseAssignment()
		case TokenIdentifier, TokenUnderscore, TokenArrow:
			return p.parseFunctionDecl()
		}
		p.nextToken()
		p.errorf("expected '(', '=' or '->' after identifier, got %s", p.describe(p.curToken))
		return nil
	}
	p.errorf("expected statement, got %s", p.describe(p.curToken))
	return nil
}

// parseFunctionDecl parses `name params -> body end`.
func (p *Parser) parseFunctionDecl() Stmt {
	startPos := p.curToken.Pos
	name := p.curToken.Literal
	p.nextToken()

	p.enter("function %q", name)
	defer p.leave()

	params, paramPos := p.parseParameters()
	if p.failed() {
		return nil
	}
	if !p.expect(TokenArrow) {
		return nil
	}

	body := p.parseBlock()
	if p.failed() {
		return nil
	}
	endPos := p.curToken.Pos
	if !p.expect(TokenEnd) {
		return nil
	}

	return &FunctionDecl{
		SpanVal:    MakeSpan(startPos, endPos),
		Name:       name,
		Parameters: params,
		ParamPos:   paramPos,
		Body:       body,
	}
}

// parseParameters parses `_`, `a, b, c`, or nothing.
func (p *Parser) parseParameters() ([]string, []Position) {
	if p.curTokenIs(TokenUnderscore) {
		p.nextToken()
		return nil, nil
	}

	var (
		params []string
		pos    []Position
	)
	for p.curTokenIs(TokenIdentifier) {
		params = append(params, p.curToken.Literal)
		pos = append(pos, p.curToken.Pos)
		p.nextToken()
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken() // consume ,
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name after ',', got %s", p.describe(p.curToken))
			return nil, nil
		}
	}
	return params, pos
}

// parseDeclaration parses `let x = v` and `var x = v`.
func (p *Parser) parseDeclaration() Stmt {
	startPos := p.curToken.Pos
	mutable := p.curTokenIs(TokenVar)
	p.nextToken()

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected name after declaration keyword, got %s", p.describe(p.curToken))
		return nil
	}
	name := p.curToken.Literal
	namePos := p.curToken.Pos
	p.nextToken()

	p.enter("declaration of %q", name)
	defer p.leave()

	if !p.expect(TokenAssign) {
		return nil
	}
	value := p.parseExpr()
	if value == nil {
		return nil
	}

	return &Assignment{
		SpanVal: MakeSpan(startPos, value.Span().End),
		Name:    name,
		NamePos: namePos,
		Declare: true,
		Mutable: mutable,
		Value:   value,
	}
}

// parseAssignment parses `x = v`.
func (p *Parser) parseAssignment() Stmt {
	startPos := p.curToken.Pos
	name := p.curToken.Literal
	p.nextToken() // name
	p.nextToken() // =

	p.enter("assignment to %q", name)
	defer p.leave()

	value := p.parseExpr()
	if value == nil {
		return nil
	}

	return &Assignment{
		SpanVal: MakeSpan(startPos, value.Span().End),
		Name:    name,
		NamePos: startPos,
		Value:   value,
	}
}

// parseConditional parses if / else if / else / end.
func (p *Parser) parseConditional() Stmt {
	startPos := p.curToken.Pos
	p.enter("if")
	defer p.leave()

	main := p.parseArm()
	if p.failed() {
		return nil
	}

	cond := &Conditional{Main: main}
	for p.curTokenIs(TokenElse) {
		p.nextToken() // consume else
		if p.curTokenIs(TokenIf) {
			arm := p.parseArm()
			if p.failed() {
				return nil
			}
			cond.Alternates = append(cond.Alternates, arm)
			continue
		}
		p.enter("else")
		cond.Fallback = p.parseBlock()
		cond.HasFallback = true
		p.leave()
		if p.failed() {
			return nil
		}
		break
	}

	endPos := p.curToken.Pos
	if !p.expect(TokenEnd) {
		return nil
	}
	cond.SpanVal = MakeSpan(startPos, endPos)
	return cond
}

// parseArm parses `if cond -> body`. The current token is `if`.
func (p *Parser) parseArm() ConditionalArm {
	startPos := p.curToken.Pos
	p.nextToken() // consume if

	condition := p.parseExpr()
	if condition == nil {
		return ConditionalArm{}
	}
	if !p.expect(TokenArrow) {
		return ConditionalArm{}
	}
	body := p.parseBlock()

	return ConditionalArm{
		SpanVal:   MakeSpan(startPos, p.curToken.Pos),
		Condition: condition,
		Body:      body,
	}
}

// parseReturn parses `return expr`.
func (p *Parser) parseReturn() Stmt {
	startPos := p.curToken.Pos
	p.nextToken() // consume return

	p.enter("return")
	defer p.leave()

	value := p.parseExpr()
	if value == nil {
		return nil
	}

	return &Return{
		SpanVal: MakeSpan(startPos, value.Span().End),
		Value:   value,
	}
}

// ---------------------------------------------------------------------------
// Expression parsing
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseExpr()
}

func (p *Parser) parseExpr() Expr {
	tok := p.curToken
	span := MakeSpan(tok.Pos, tok.Pos)

	switch tok.Type {
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: span, Value: tok.Literal}

	case TokenInteger:
		n, err := strconv.ParseInt(tok.Literal, 10, 32)
		if err != nil {
			p.errorf("integer literal %s out of range", tok.Literal)
			return nil
		}
		p.nextToken()
		return &IntLiteral{SpanVal: span, Value: int32(n)}

	case TokenFloat:
		f, err := strconv.ParseFloat(tok.Literal, 32)
		if err != nil {
			p.errorf("invalid float literal %s", tok.Literal)
			return nil
		}
		p.nextToken()
		return &FloatLiteral{SpanVal: span, Value: float32(f)}

	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: span, Value: tok.Type == TokenTrue}

	case TokenIdentifier:
		if p.peekTokenIs(TokenLParen) {
			call := p.parseCall()
			if call == nil {
				return nil
			}
			return call
		}
		p.nextToken()
		return &Variable{SpanVal: span, Name: tok.Literal}
	}

	p.errorf("expected value, got %s", p.describe(tok))
	return nil
}

// parseCall parses `name(args)`. Returns nil on error.
func (p *Parser) parseCall() *Call {
	startPos := p.curToken.Pos
	name := p.curToken.Literal
	p.nextToken() // name
	p.nextToken() // (

	p.enter("call to %q", name)
	defer p.leave()

	var args []Expr
	switch {
	case p.curTokenIs(TokenRParen):
	case p.curTokenIs(TokenUnderscore):
		p.nextToken()
	default:
		for {
			arg := p.parseExpr()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken() // consume ,
		}
	}

	endPos := p.curToken.Pos
	if !p.expect(TokenRParen) {
		return nil
	}

	return &Call{
		SpanVal:   MakeSpan(startPos, endPos),
		Name:      name,
		Arguments: args,
	}
}
