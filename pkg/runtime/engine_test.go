package runtime

import (
	"context"
	"testing"

	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

func runProgram(t *testing.T, source string) Result {
	t.Helper()

	result, err := Run(context.Background(), source, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return result
}

func runProgramExpectError(t *testing.T, source string) error {
	t.Helper()

	_, err := Run(context.Background(), source, nil)
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	return err
}

func TestPrecedence(t *testing.T) {
	result := runProgram(t, "1 + 2 * 3")
	if !result.HasValue || !result.Value.Equal(types.NewInt(7)) {
		t.Errorf("got %v, want Int(7)", result)
	}
}

func TestLetThenUse(t *testing.T) {
	result := runProgram(t, `
let a = 10
a
`)
	if !result.HasValue || !result.Value.Equal(types.NewInt(10)) {
		t.Errorf("got %v, want Int(10)", result)
	}
}

func TestNoResultWithoutBareExpression(t *testing.T) {
	result := runProgram(t, "let a = 10")
	if result.HasValue {
		t.Errorf("expected no result, got %v", result.Value)
	}
	if result.String() != "none" {
		t.Errorf("got %q, want none", result.String())
	}
}

func TestEmptyProgram(t *testing.T) {
	result := runProgram(t, "")
	if result.HasValue || result.Ticks != 0 {
		t.Errorf("got %+v, want empty result", result)
	}
}

func TestLastBareExpressionWins(t *testing.T) {
	result := runProgram(t, `
1
2
let x = 3
x * 10
let y = 4
`)
	if !result.Value.Equal(types.NewInt(30)) {
		t.Errorf("got %v, want Int(30)", result.Value)
	}
}

func TestClockMonotonicity(t *testing.T) {
	source := "now\nnow"
	prog, err := Compile(source, nil)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	engine := NewEngine(prog, nil)
	scope := scopeAdapter{env: engine.env, clock: &engine.time}

	first, err := expr.Evaluate(prog.Stmts[0].(*expr.ExprStmt).Expr, scope)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	second, err := expr.Evaluate(prog.Stmts[1].(*expr.ExprStmt).Expr, scope)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if !first.Equal(types.NewTime(0)) || !second.Equal(types.NewTime(1)) {
		t.Errorf("got %v then %v, want Time(0) then Time(1)", first, second)
	}

	result := runProgram(t, source)
	if !result.Value.Equal(types.NewTime(1)) || result.Ticks != 2 {
		t.Errorf("got %+v, want Time(1) after 2 ticks", result)
	}
}

func TestDiscardedStatementsStillTick(t *testing.T) {
	result := runProgram(t, `
now
let t = now
now
`)
	if !result.Value.Equal(types.NewTime(2)) {
		t.Errorf("got %v, want Time(2)", result.Value)
	}
}

func TestRebindingAcrossKinds(t *testing.T) {
	prog, err := Compile("let x = 1\nlet x = now", nil)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	engine := NewEngine(prog, nil)
	if _, err := engine.Execute(context.Background()); err != nil {
		t.Fatalf("execute error: %v", err)
	}
	v, err := engine.Env().Get("x")
	if err != nil {
		t.Fatalf("x not bound: %v", err)
	}
	if !v.Equal(types.NewTime(0)) {
		t.Errorf("got %v, want Time(0)", v)
	}
}

func TestNowMinusNowIsTypeMismatch(t *testing.T) {
	err := runProgramExpectError(t, "now - now")
	d, ok := err.(*types.Diagnostic)
	if !ok {
		t.Fatalf("expected checker diagnostic, got %T", err)
	}
	if d.Title != "Type Mismatch" {
		t.Errorf("got title %q", d.Title)
	}
}

func TestDivisionByZeroIsRuntimeFault(t *testing.T) {
	if _, err := Compile("5 / 0", nil); err != nil {
		t.Fatalf("5 / 0 should type-check: %v", err)
	}
	err := runProgramExpectError(t, "5 / 0")
	if types.KindOf(err) != types.FaultDivisionByZero {
		t.Errorf("got %v, want DivisionByZero", err)
	}
	if d := types.ToDiagnostic(err); d.Title != "Division By Zero" {
		t.Errorf("got diagnostic title %q", d.Title)
	}
}

func TestTypeErrorStopsBeforeExecution(t *testing.T) {
	// The division by zero is never reached: checking fails first.
	err := runProgramExpectError(t, "1 / 0\nundefinedName")
	if types.KindOf(err) != types.FaultUndefinedVariable {
		t.Errorf("got %v, want the checker's Unproven Variable", err)
	}
	if _, ok := err.(*types.Diagnostic); !ok {
		t.Errorf("expected *types.Diagnostic, got %T", err)
	}
}

func TestBindings(t *testing.T) {
	bindings := map[string]types.Value{
		"base":  types.NewInt(40),
		"stamp": types.NewTime(9),
	}

	result, err := Run(context.Background(), "base + 2", bindings)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.Value.Equal(types.NewInt(42)) {
		t.Errorf("got %v, want Int(42)", result.Value)
	}

	result, err = Run(context.Background(), "stamp", bindings)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.Value.Equal(types.NewTime(9)) {
		t.Errorf("got %v, want Time(9)", result.Value)
	}

	if _, err := Run(context.Background(), "stamp + 1", bindings); types.KindOf(err) != types.FaultTypeMismatch {
		t.Errorf("got %v, want Type Mismatch", err)
	}
}

func TestUncheckedProgramFaultsInsteadOfPanicking(t *testing.T) {
	prog, err := expr.ParseProgram("ghost\nnow * 2")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = NewEngine(prog, nil).Execute(context.Background())
	if types.KindOf(err) != types.FaultUndefinedVariable {
		t.Errorf("got %v, want UndefinedVariable", err)
	}

	prog, _ = expr.ParseProgram("now * 2")
	_, err = NewEngine(prog, nil).Execute(context.Background())
	if types.KindOf(err) != types.FaultTypeMismatch {
		t.Errorf("got %v, want TypeMismatch", err)
	}
}

func TestSoundness(t *testing.T) {
	programs := []string{
		"let a = 1 let b = a * 2 b - a",
		"let t = now let t = 3 t + t",
		"let x = now let y = now y",
		"let n = 9223372036854775807 n * n",
		"let a = 4 let b = a / 2 let a = now b",
	}

	for _, src := range programs {
		t.Run(src, func(t *testing.T) {
			if _, err := Compile(src, nil); err != nil {
				t.Fatalf("compile error: %v", err)
			}
			_, err := Run(context.Background(), src, nil)
			switch types.KindOf(err) {
			case types.FaultTypeMismatch, types.FaultUndefinedVariable:
				t.Errorf("checked program faulted: %v", err)
			}
		})
	}
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	prog, _ := Compile("1", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewEngine(prog, nil).Execute(ctx); err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
