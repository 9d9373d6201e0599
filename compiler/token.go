package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types for the msq lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, -7
	TokenFloat      // 3.14, -0.5
	TokenString     // "hello"
	TokenIdentifier // foo, fact_n

	// Delimiters and operators
	TokenLParen     // (
	TokenRParen     // )
	TokenComma      // ,
	TokenArrow      // ->
	TokenAssign     // =
	TokenUnderscore // _

	// Reserved words
	TokenLet
	TokenVar
	TokenIf
	TokenElse
	TokenEnd
	TokenReturn
	TokenTrue
	TokenFalse
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenComma:      ",",
	TokenArrow:      "->",
	TokenAssign:     "=",
	TokenUnderscore: "_",
	TokenLet:        "let",
	TokenVar:        "var",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenEnd:        "end",
	TokenReturn:     "return",
	TokenTrue:       "true",
	TokenFalse:      "false",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (unescaped for strings)
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"let":    TokenLet,
	"var":    TokenVar,
	"if":     TokenIf,
	"else":   TokenElse,
	"end":    TokenEnd,
	"return": TokenReturn,
	"true":   TokenTrue,
	"false":  TokenFalse,
}

// IsReserved reports whether name is a reserved word.
func IsReserved(name string) bool {
	_, ok := reservedWords[name]
	return ok
}

// Keywords returns the reserved words in sorted order.
func Keywords() []string {
	words := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
