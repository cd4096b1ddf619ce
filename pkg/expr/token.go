// Package expr implements the Axiom language front end and evaluator:
// tokenizer, recursive descent parser, type checker and expression
// evaluation.
package expr

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Keywords
	TokenLet TokenType = iota // let

	// Identifiers and literals
	TokenIdent // identifier (variable name, or the clock "now")
	TokenInt   // integer literal

	// Operators
	TokenPlus   // +
	TokenMinus  // -
	TokenStar   // *
	TokenSlash  // /
	TokenAssign // =

	// Special
	TokenEOF // end of input
)

// Token represents a single lexical token.
type Token struct {
	Type   TokenType
	Value  string // raw spelling
	IntVal int64  // parsed value (for TokenInt)
	Pos    int    // byte offset in source
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenLet:
		return "LET"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenStar:
		return "STAR"
	case TokenSlash:
		return "SLASH"
	case TokenAssign:
		return "ASSIGN"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// String renders the token as TYPE or TYPE(spelling).
func (t Token) String() string {
	switch t.Type {
	case TokenIdent, TokenInt:
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	default:
		return t.Type.String()
	}
}

// describe names the token for error messages.
func (t Token) describe() string {
	if t.Type == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.Type, t.Value)
}
