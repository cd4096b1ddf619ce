package expr

import (
	"fmt"

	"github.com/lemonberrylabs/axiom/pkg/types"
)

// TypeEnv maps variable names to their static types for one checking pass.
type TypeEnv struct {
	vars map[string]types.Type
}

// NewTypeEnv creates an empty type environment.
func NewTypeEnv() *TypeEnv {
	return &TypeEnv{vars: make(map[string]types.Type)}
}

// Get returns the recorded type for name.
func (e *TypeEnv) Get(name string) (types.Type, bool) {
	t, ok := e.vars[name]
	return t, ok
}

// Set records or overwrites the type for name.
func (e *TypeEnv) Set(name string, t types.Type) {
	e.vars[name] = t
}

// Checker verifies that a program is type-correct in one forward pass.
// A program it accepts never faults at run time with TypeMismatch or
// UndefinedVariable.
type Checker struct {
	env *TypeEnv
}

// NewChecker creates a checker with an empty environment.
func NewChecker() *Checker {
	return &Checker{env: NewTypeEnv()}
}

// Declare predeclares a name, as if a binding of type t preceded the
// program.
func (c *Checker) Declare(name string, t types.Type) {
	c.env.Set(name, t)
}

// Check walks the statements in order and stops at the first failure.
// The returned error is always a *types.Diagnostic.
func (c *Checker) Check(prog *Program) error {
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *LetStmt:
			t, err := c.CheckExpr(s.Value)
			if err != nil {
				return err
			}
			c.env.Set(s.Name, t)
		case *ExprStmt:
			if _, err := c.CheckExpr(s.Expr); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported statement type: %T", stmt)
		}
	}
	return nil
}

// CheckExpr returns the type of node under the current environment.
func (c *Checker) CheckExpr(node Node) (types.Type, error) {
	switch n := node.(type) {
	case *NumberNode:
		return types.TypeInt, nil
	case *NowNode:
		return types.TypeTime, nil
	case *IdentNode:
		t, ok := c.env.Get(n.Name)
		if !ok {
			return 0, types.NewUnprovenVariable(n.Name, n.Offset)
		}
		return t, nil
	case *BinaryNode:
		left, err := c.CheckExpr(n.Left)
		if err != nil {
			return 0, err
		}
		right, err := c.CheckExpr(n.Right)
		if err != nil {
			return 0, err
		}
		// Time has no arithmetic, not even with another Time.
		if left == types.TypeInt && right == types.TypeInt {
			return types.TypeInt, nil
		}
		return 0, types.NewTypeMismatch(n.Offset)
	default:
		return 0, fmt.Errorf("unsupported expression node type: %T", node)
	}
}
