package runtime

import (
	"context"
	"fmt"

	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Result is the outcome of a successful run.
type Result struct {
	// Value is the value of the last bare-expression statement.
	Value types.Value
	// HasValue is false when the program has no bare-expression statement.
	HasValue bool
	// Ticks is the logical clock after the run.
	Ticks int64
}

// String renders the result as shown by the CLI.
func (r Result) String() string {
	if !r.HasValue {
		return "none"
	}
	return r.Value.String()
}

// Engine runs one program once. It must only be given programs that
// passed type checking with the same bindings.
type Engine struct {
	program *expr.Program
	env     *Env
	time    int64
}

// NewEngine creates an engine for prog, seeding the environment with
// bindings.
func NewEngine(prog *expr.Program, bindings map[string]types.Value) *Engine {
	env := NewEnv()
	for name, v := range bindings {
		env.Set(name, v)
	}
	return &Engine{program: prog, env: env}
}

// Execute runs the statements in order. Only the last bare expression's
// value is kept; earlier ones still advance the clock.
func (e *Engine) Execute(ctx context.Context) (Result, error) {
	scope := scopeAdapter{env: e.env, clock: &e.time}

	var result Result
	for _, stmt := range e.program.Stmts {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		switch s := stmt.(type) {
		case *expr.LetStmt:
			v, err := expr.Evaluate(s.Value, scope)
			if err != nil {
				return Result{}, err
			}
			e.env.Set(s.Name, v)
		case *expr.ExprStmt:
			v, err := expr.Evaluate(s.Expr, scope)
			if err != nil {
				return Result{}, err
			}
			result.Value = v
			result.HasValue = true
		default:
			return Result{}, fmt.Errorf("unsupported statement type: %T", stmt)
		}
	}

	result.Ticks = e.time
	return result, nil
}

// Env exposes the engine's environment (useful for testing).
func (e *Engine) Env() *Env {
	return e.env
}
