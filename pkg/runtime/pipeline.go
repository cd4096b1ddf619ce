package runtime

import (
	"context"

	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Check type-checks a parsed program. Names in bindings are treated as
// defined before the first statement.
func Check(prog *expr.Program, bindings map[string]types.Value) error {
	checker := expr.NewChecker()
	for name, v := range bindings {
		checker.Declare(name, v.Type())
	}
	return checker.Check(prog)
}

// Compile parses and type-checks source.
func Compile(source string, bindings map[string]types.Value) (*expr.Program, error) {
	prog, err := expr.ParseProgram(source)
	if err != nil {
		return nil, err
	}
	if err := Check(prog, bindings); err != nil {
		return nil, err
	}
	return prog, nil
}

// RunProgram type-checks a parsed program against bindings and, only if
// that succeeds, executes it.
func RunProgram(ctx context.Context, prog *expr.Program, bindings map[string]types.Value) (Result, error) {
	if err := Check(prog, bindings); err != nil {
		return Result{}, err
	}
	return NewEngine(prog, bindings).Execute(ctx)
}

// Run compiles and executes source. A returned error is a lexing,
// parsing, checking or runtime fault; use types.ToDiagnostic to report it.
func Run(ctx context.Context, source string, bindings map[string]types.Value) (Result, error) {
	prog, err := expr.ParseProgram(source)
	if err != nil {
		return Result{}, err
	}
	return RunProgram(ctx, prog, bindings)
}
