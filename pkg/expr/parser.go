package expr

import (
	"fmt"

	"github.com/lemonberrylabs/axiom/pkg/types"
)

// nowIdent is the identifier that resolves to the clock primitive.
const nowIdent = "now"

// Parser is a recursive descent parser over a lexer it owns exclusively.
type Parser struct {
	lexer   *Lexer
	current Token
}

// NewParser creates a parser and pulls the first token.
func NewParser(lexer *Lexer) (*Parser, error) {
	p := &Parser{lexer: lexer}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseProgram tokenizes and parses a complete source text.
func ParseProgram(source string) (*Program, error) {
	p, err := NewParser(NewLexer(source))
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// Parse consumes the token stream and returns the program.
//
//	Program := Stmt* End
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{}
	for p.current.Type != TokenEOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
	}
	return prog, nil
}

// advance discards the current token and pulls the next one.
func (p *Parser) advance() error {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

// expect consumes a token of the expected type or returns a fault naming
// what was wanted.
func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.current
	if tok.Type != tt {
		return tok, p.unexpected(fmt.Sprintf("expected %s", what))
	}
	if err := p.advance(); err != nil {
		return tok, err
	}
	return tok, nil
}

// unexpected builds the fault for the current token.
func (p *Parser) unexpected(want string) error {
	tok := p.current
	msg := fmt.Sprintf("%s, got %s", want, tok.describe())
	if tok.Type == TokenEOF {
		return types.NewUnexpectedEndOfInput(msg, tok.Pos)
	}
	return types.NewUnexpectedToken(msg, tok.Pos)
}

//	Stmt := "let" Ident "=" Expr | Expr
func (p *Parser) parseStmt() (Stmt, error) {
	if p.current.Type == TokenLet {
		return p.parseLet()
	}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{Expr: node}, nil
}

func (p *Parser) parseLet() (Stmt, error) {
	start := p.current.Pos
	if err := p.advance(); err != nil { // let
		return nil, err
	}

	name, err := p.expect(TokenIdent, "identifier after 'let'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAssign, fmt.Sprintf("'=' after '%s'", name.Value)); err != nil {
		return nil, err
	}

	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &LetStmt{Name: name.Value, Value: value, Offset: start}, nil
}

// parseExpression is the entry point for expressions.
// Precedence (low to high):
//
//	+, -
//	*, /
//	number, identifier
func (p *Parser) parseExpression() (Node, error) {
	return p.parseAddition()
}

func (p *Parser) parseAddition() (Node, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenPlus || p.current.Type == TokenMinus {
		op, pos := OpAdd, p.current.Pos
		if p.current.Type == TokenMinus {
			op = OpSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right, Offset: pos}
	}
	return left, nil
}

func (p *Parser) parseMultiplication() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenStar || p.current.Type == TokenSlash {
		op, pos := OpMul, p.current.Pos
		if p.current.Type == TokenSlash {
			op = OpDiv
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right, Offset: pos}
	}
	return left, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.current

	switch tok.Type {
	case TokenInt:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &NumberNode{Value: tok.IntVal, Offset: tok.Pos}, nil
	case TokenIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if tok.Value == nowIdent {
			return &NowNode{Offset: tok.Pos}, nil
		}
		return &IdentNode{Name: tok.Value, Offset: tok.Pos}, nil
	default:
		return nil, p.unexpected("expected a number or identifier")
	}
}
