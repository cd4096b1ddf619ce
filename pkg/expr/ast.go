package expr

import (
	"strconv"
	"strings"
)

// BinOp is an arithmetic operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
)

// String returns the operator's source spelling.
func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	default:
		return "?"
	}
}

// Node is the interface for all expression AST nodes. The set of
// implementations is closed: NumberNode, IdentNode, NowNode, BinaryNode.
type Node interface {
	// Pos returns the byte offset of the node in the source.
	Pos() int
	String() string
	exprNode()
}

// NumberNode represents an integer literal.
type NumberNode struct {
	Value  int64
	Offset int
}

func (n *NumberNode) Pos() int       { return n.Offset }
func (n *NumberNode) String() string { return strconv.FormatInt(n.Value, 10) }
func (n *NumberNode) exprNode()      {}

// IdentNode represents a variable reference.
type IdentNode struct {
	Name   string
	Offset int
}

func (n *IdentNode) Pos() int       { return n.Offset }
func (n *IdentNode) String() string { return n.Name }
func (n *IdentNode) exprNode()      {}

// NowNode represents the logical-clock primitive.
type NowNode struct {
	Offset int
}

func (n *NowNode) Pos() int       { return n.Offset }
func (n *NowNode) String() string { return "now" }
func (n *NowNode) exprNode()      {}

// BinaryNode represents a binary operation (e.g., a + b). Offset is the
// position of the operator.
type BinaryNode struct {
	Op     BinOp
	Left   Node
	Right  Node
	Offset int
}

func (n *BinaryNode) Pos() int { return n.Offset }
func (n *BinaryNode) String() string {
	return "(" + n.Op.String() + " " + n.Left.String() + " " + n.Right.String() + ")"
}
func (n *BinaryNode) exprNode() {}

// Stmt is a top-level statement: LetStmt or ExprStmt.
type Stmt interface {
	String() string
	stmtNode()
}

// LetStmt binds (or rebinds) Name to the value of Value.
type LetStmt struct {
	Name   string
	Value  Node
	Offset int
}

func (s *LetStmt) String() string { return "(let " + s.Name + " " + s.Value.String() + ")" }
func (s *LetStmt) stmtNode()      {}

// ExprStmt is a bare expression evaluated for its value.
type ExprStmt struct {
	Expr Node
}

func (s *ExprStmt) String() string { return s.Expr.String() }
func (s *ExprStmt) stmtNode()      {}

// Program is an ordered sequence of statements.
type Program struct {
	Stmts []Stmt
}

// String renders one statement per line.
func (p *Program) String() string {
	lines := make([]string, len(p.Stmts))
	for i, s := range p.Stmts {
		lines[i] = s.String()
	}
	return strings.Join(lines, "\n")
}
