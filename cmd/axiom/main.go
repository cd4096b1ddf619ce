// Package main is the entry point for the axiom command.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errReported signals a failure whose diagnostic has already been printed.
var errReported = errors.New("failure reported")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "axiom <file.axi>",
		Short:         "Axiom, a tiny typed expression language",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runFile(cmd, args[0], nil)
		},
	}

	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("axiom version {{.Version}}\n")

	root.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newTokensCmd(),
		newASTCmd(),
		newTestCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
