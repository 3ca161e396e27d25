package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain"
)

// NewAggregateCommand creates the aggregate command
func NewAggregateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Inspect aggregates",
	}

	cmd.AddCommand(newAggregateShowCommand())
	cmd.AddCommand(newAggregateTypesCommand())

	return cmd
}

func newAggregateShowCommand() *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:   "show <type> <id>",
		Short: "Hydrate an aggregate and print its state",
		Long: `Hydrate an aggregate from its snapshot and events and print its state.

Examples:
  ledger aggregate show car 2f1c...
  ledger aggregate show order 8a0e... --at=3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				repo, err := env.repository(args[0])
				if err != nil {
					return err
				}

				agg, err := repo.Load(cmd.Context(), args[1], at)
				if err != nil {
					return err
				}
				if err := ledger.RequireExists(agg); err != nil {
					return err
				}

				state, err := json.MarshalIndent(agg, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode %s state: %w", args[0], err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, styles.FormatKeyValue("Aggregate", agg.AggregateType()+"/"+agg.AggregateID()))
				fmt.Fprintln(out, styles.FormatKeyValue("Version", strconv.FormatInt(agg.Version(), 10)))
				fmt.Fprintln(out, string(state))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&at, "at", 0, "Hydrate at this version instead of the latest")

	return cmd
}

func newAggregateTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List aggregate types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(domain.AggregateTypes, "\n"))
			return nil
		},
	}
}

// NewSnapshotCommand creates the snapshot command
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage aggregate snapshots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "take <type> <id>",
		Short: "Snapshot the current state of an aggregate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				repo, err := env.repository(args[0])
				if err != nil {
					return err
				}

				version, err := repo.TakeSnapshot(cmd.Context(), args[1])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(
					fmt.Sprintf("%s Snapshot of %s/%s at version %d", styles.IconCamera, args[0], args[1], version)))
				return nil
			})
		},
	})

	return cmd
}
