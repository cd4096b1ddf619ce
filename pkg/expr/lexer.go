package expr

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Lexer tokenizes Axiom source on demand. Its position only advances.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the remaining input and returns all tokens, ending
// with TokenEOF. On a fault it returns the tokens read before it.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// NextToken returns the next token from the input. Once the input is
// exhausted every call returns TokenEOF.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: len(l.input)}, nil
	}

	ch := l.input[l.pos]

	if ch >= '0' && ch <= '9' {
		return l.readNumber()
	}

	switch ch {
	case '+':
		l.pos++
		return Token{Type: TokenPlus, Value: "+", Pos: l.pos - 1}, nil
	case '-':
		l.pos++
		return Token{Type: TokenMinus, Value: "-", Pos: l.pos - 1}, nil
	case '*':
		l.pos++
		return Token{Type: TokenStar, Value: "*", Pos: l.pos - 1}, nil
	case '/':
		l.pos++
		return Token{Type: TokenSlash, Value: "/", Pos: l.pos - 1}, nil
	case '=':
		l.pos++
		return Token{Type: TokenAssign, Value: "=", Pos: l.pos - 1}, nil
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	if isIdentStart(r) {
		return l.readIdentifier(), nil
	}

	return Token{}, types.NewUnexpectedCharacter(r, l.pos)
}

// readNumber reads a maximal run of ASCII digits.
func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] >= '0' && l.input[l.pos] <= '9' {
		l.pos++
	}

	raw := l.input[start:l.pos]
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Token{}, types.NewNumberOverflow(raw, start)
	}
	return Token{Type: TokenInt, Value: raw, IntVal: i, Pos: start}, nil
}

// readIdentifier reads an identifier or the let keyword.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}

	word := l.input[start:l.pos]
	if word == "let" {
		return Token{Type: TokenLet, Value: word, Pos: start}
	}
	return Token{Type: TokenIdent, Value: word, Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

// isAlphabetic reports whether r has the Unicode Alphabetic property.
func isAlphabetic(r rune) bool {
	return unicode.IsLetter(r) || unicode.In(r, unicode.Nl, unicode.Other_Alphabetic)
}

func isIdentStart(r rune) bool {
	return isAlphabetic(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsNumber(r)
}
