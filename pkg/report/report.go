// Package report renders pipeline outcomes for the console.
package report

import (
	"fmt"
	"io"

	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/types"
)

// Diagnostic writes d as a title line followed by optional message and
// help lines, preceded by a blank line.
func Diagnostic(w io.Writer, d *types.Diagnostic) {
	fmt.Fprintf(w, "\n❌ %s\n", d.Title)
	if d.Message != "" {
		fmt.Fprintf(w, "→ %s\n", d.Message)
	}
	if d.HasHelp() {
		fmt.Fprintf(w, "💡 %s\n", d.Help)
	}
}

// Error converts err to a diagnostic and writes it.
func Error(w io.Writer, err error) {
	Diagnostic(w, types.ToDiagnostic(err))
}

// Result writes the program result line.
func Result(w io.Writer, r runtime.Result) {
	fmt.Fprintf(w, "Result: %s\n", r)
}
