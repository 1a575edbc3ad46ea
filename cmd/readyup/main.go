package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/readyup"
)

// Exit codes. Readiness failures and graph failures are distinct so
// wrapper scripts can tell "services never came up" from "the file is
// wrong".
const (
	exitReady    = 0
	exitNotReady = 1
	exitBadGraph = 2
)

// exitError carries a specific process exit code through cobra's RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		if errors.Is(err, readyup.ErrCyclicDependency) || errors.Is(err, readyup.ErrInvalidSpec) {
			os.Exit(exitBadGraph)
		}
		os.Exit(exitNotReady)
	}
}

// buildRoot creates the root command and wires subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "readyup",
		Short: "Deployment readiness orchestrator",
		Long: `Readyup probes a dependency-ordered graph of services until every one
of them is ready, crashed, or out of time, and reports the outcome.

Examples:
  readyup run --config=services.toml
  readyup run --config=services.toml --output=json
  readyup validate --config=services.toml
  readyup serve --config=daemon.toml         # Start daemon
  readyup history --store=sqlite://runs.db   # Inspect past runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file")

	root.AddCommand(
		createRunCommand(globalFlags),
		createValidateCommand(globalFlags),
		createServeCommand(globalFlags),
		createHistoryCommand(),
	)
	return root
}
