package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// ExitError carries a process exit code out of command execution. Code 1
// means validation or drift, code 2 means a partial apply failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "odrift",
		Short: "odrift - declarative record-state management for Odoo-style servers",
		Long: `odrift keeps ERP records in the state you declare.

You describe the records you want in YAML, CUE, or Starlark; odrift reads
the live server over JSON-RPC, diffs it against your declaration, builds an
ordered execution plan, and applies it with per-operation outcomes.

Connection settings come from flags, a config file, or the environment
(ODRIFT_URL, ODRIFT_DB, ODRIFT_USER, ODRIFT_PASSWORD).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "connection config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newModelsCommand())
	rootCmd.AddCommand(newFieldsCommand())
	rootCmd.AddCommand(newCallCommand())

	return rootCmd
}

// cliLogger returns the logger commands hand to engine components.
func cliLogger() zerolog.Logger {
	return log.Logger
}
