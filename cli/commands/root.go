// Package commands provides the CLI command implementations for ledger.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
	"github.com/AshkanYarmoradi/go-ledger/cli/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command for the ledger CLI
func NewRootCommand() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Event-sourced persistence toolkit",
		Long: ui.Banner() + `

ledger stores aggregates as append-only event streams, keeps their
current state and snapshots next to the log, and maintains read models.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("ledger init") + `                 Write ledger.yaml
  ` + styles.Code.Render("ledger migrate") + `              Create tables
  ` + styles.Code.Render("ledger projection status") + `    Show read model lag
  ` + styles.Code.Render("ledger aggregate show") + `       Inspect an aggregate`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("config", "", "Path to ledger.yaml (default: search upward from the working directory)")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewSchemaCommand())
	rootCmd.AddCommand(NewEventsCommand())
	rootCmd.AddCommand(NewAggregateCommand())
	rootCmd.AddCommand(NewSnapshotCommand())
	rootCmd.AddCommand(NewProjectionCommand())
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}

// withEnvironment opens the configured environment, runs fn and closes it.
func withEnvironment(cmd *cobra.Command, fn func(env *environment) error) (err error) {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(env)
}
