package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/axiom/pkg/api"
	"github.com/lemonberrylabs/axiom/pkg/expr"
	"github.com/lemonberrylabs/axiom/pkg/report"
	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/suite"
	"github.com/lemonberrylabs/axiom/pkg/types"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file.axi>",
		Short: "Check and run a program, printing its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringArray("arg")
			bindings, err := parseArgs(raw)
			if err != nil {
				return err
			}
			return runFile(cmd, args[0], bindings)
		},
	}
	cmd.Flags().StringArray("arg", nil, "Bind an Int variable before the program runs (name=value, repeatable)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.axi>",
		Short: "Parse and type-check a program without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := runtime.Compile(source, nil); err != nil {
				report.Error(cmd.OutOrStdout(), err)
				return errReported
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func newTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <file.axi>",
		Short: "Print the token stream of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			toks, err := expr.NewLexer(source).Tokenize()
			for _, tok := range toks {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", tok.Pos, tok)
			}
			if err != nil {
				report.Error(cmd.OutOrStdout(), err)
				return errReported
			}
			return nil
		},
	}
}

func newASTCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ast <file.axi>",
		Short: "Print the parsed program, one statement per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			prog, err := expr.ParseProgram(source)
			if err != nil {
				report.Error(cmd.OutOrStdout(), err)
				return errReported
			}
			for _, stmt := range prog.Stmts {
				fmt.Fprintln(cmd.OutOrStdout(), stmt)
			}
			return nil
		},
	}
}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <suite.yaml>",
		Short: "Run a YAML suite of programs and expected outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading suite: %w", err)
			}
			s, err := suite.Parse(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, o := range s.Run(cmd.Context()) {
				if o.Passed {
					fmt.Fprintf(out, "PASS  %s\n", o.Name)
					continue
				}
				failed++
				fmt.Fprintf(out, "FAIL  %s: %s\n", o.Name, o.Detail)
			}

			fmt.Fprintf(out, "\n%d passed, %d failed\n", len(s.Cases)-failed, failed)
			if failed > 0 {
				return errReported
			}
			return nil
		},
	}
}

// runFile reads, checks and runs the program at path, printing the result
// or the diagnostic that stopped it.
func runFile(cmd *cobra.Command, path string, bindings map[string]types.Value) error {
	source, err := readSource(cmd, path)
	if err != nil {
		return err
	}

	result, err := runtime.Run(cmd.Context(), source, bindings)
	if err != nil {
		report.Error(cmd.OutOrStdout(), err)
		return errReported
	}
	report.Result(cmd.OutOrStdout(), result)
	return nil
}

// readSource loads a program file. Failures are reported on stderr.
func readSource(cmd *cobra.Command, path string) (string, error) {
	if filepath.Ext(path) != api.SourceExt {
		report.Diagnostic(cmd.ErrOrStderr(), &types.Diagnostic{
			Title: "Invalid file type",
			Help:  "Axiom programs must use the .axi extension",
			Pos:   types.NoPos,
		})
		return "", errReported
	}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Diagnostic(cmd.ErrOrStderr(), &types.Diagnostic{
			Title:   "Failed to read file",
			Message: err.Error(),
			Pos:     types.NoPos,
		})
		return "", errReported
	}
	return string(data), nil
}

// parseArgs turns name=value flags into Int bindings.
func parseArgs(raw []string) (map[string]types.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	bindings := make(map[string]types.Value, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q: want name=value", kv)
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --arg %q: %s is not a 64-bit integer", kv, value)
		}
		bindings[name] = types.NewInt(n)
	}
	return bindings, nil
}
