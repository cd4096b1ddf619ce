package expr

import (
	"fmt"

	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Scope provides variable lookup and the logical clock for evaluation.
type Scope interface {
	// GetVariable returns the value of a variable by name.
	GetVariable(name string) (types.Value, error)

	// Tick returns the current clock value and advances the clock by one.
	Tick() int64
}

// Evaluate evaluates an expression node within the given scope. Operands
// of a binary node are evaluated left to right.
func Evaluate(node Node, scope Scope) (types.Value, error) {
	switch n := node.(type) {
	case *NumberNode:
		return types.NewInt(n.Value), nil
	case *NowNode:
		return types.NewTime(scope.Tick()), nil
	case *IdentNode:
		return scope.GetVariable(n.Name)
	case *BinaryNode:
		return evalBinary(n, scope)
	default:
		return types.Value{}, fmt.Errorf("unsupported expression node type: %T", node)
	}
}

func evalBinary(n *BinaryNode, scope Scope) (types.Value, error) {
	left, err := Evaluate(n.Left, scope)
	if err != nil {
		return types.Value{}, err
	}
	right, err := Evaluate(n.Right, scope)
	if err != nil {
		return types.Value{}, err
	}

	if left.Type() != types.TypeInt || right.Type() != types.TypeInt {
		return types.Value{}, types.NewTypeError(
			fmt.Sprintf("unsupported operand types for %s: %s and %s", n.Op, left.Type(), right.Type()), n.Offset)
	}

	a, b := left.AsInt(), right.AsInt()
	switch n.Op {
	case OpAdd:
		return types.NewInt(a + b), nil
	case OpSub:
		return types.NewInt(a - b), nil
	case OpMul:
		return types.NewInt(a * b), nil
	case OpDiv:
		if b == 0 {
			return types.Value{}, types.NewDivisionByZero(n.Offset)
		}
		return types.NewInt(a / b), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported binary operator: %s", n.Op)
	}
}
