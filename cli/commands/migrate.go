package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the event log, state, snapshot and read model tables",
		Long: `Create every table the configured domain needs. Existing tables are
left untouched, so migrate can run on every deploy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				repos := env.sortedRepositories()
				models := env.projections.All()
				total := 1 + len(repos) + len(models)
				step := 1

				if err := env.store.Initialize(ctx); err != nil {
					return fmt.Errorf("failed to create event log: %w", err)
				}
				fmt.Fprintln(out, styles.FormatStep(step, total, "event log "+env.cfg.EventStore.TableName))

				for _, repo := range repos {
					step++
					if err := repo.Initialize(ctx); err != nil {
						return fmt.Errorf("failed to create %s tables: %w", repo.AggregateType(), err)
					}
					fmt.Fprintln(out, styles.FormatStep(step, total, "aggregate "+repo.AggregateType()))
				}

				for _, m := range models {
					step++
					if err := m.Initialize(ctx); err != nil {
						return fmt.Errorf("failed to create %s: %w", m.Table(), err)
					}
					fmt.Fprintln(out, styles.FormatStep(step, total, "read model "+m.Table()))
				}

				fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Migrated %s database", env.cfg.Database.Driver)))
				return nil
			})
		},
	}
}
