// Package runtime executes type-checked Axiom programs and exposes the
// front-to-back pipeline entry points.
package runtime

import (
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Env maps variable names to values for one interpretation run.
// Rebinding a name overwrites its value, whatever its previous kind.
type Env struct {
	vars map[string]types.Value
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{vars: make(map[string]types.Value)}
}

// Get retrieves a variable value.
func (e *Env) Get(name string) (types.Value, error) {
	v, ok := e.vars[name]
	if !ok {
		return types.Value{}, types.NewUndefinedVariable(name)
	}
	return v, nil
}

// Set binds or rebinds a variable.
func (e *Env) Set(name string, value types.Value) {
	e.vars[name] = value
}

// Exists checks if a variable is bound.
func (e *Env) Exists(name string) bool {
	_, ok := e.vars[name]
	return ok
}

// scopeAdapter adapts an Env and the engine clock to expr.Scope.
type scopeAdapter struct {
	env   *Env
	clock *int64
}

// GetVariable implements expr.Scope.
func (a scopeAdapter) GetVariable(name string) (types.Value, error) {
	return a.env.Get(name)
}

// Tick implements expr.Scope.
func (a scopeAdapter) Tick() int64 {
	t := *a.clock
	*a.clock++
	return t
}
