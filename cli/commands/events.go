package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
	"github.com/AshkanYarmoradi/go-ledger/cli/ui"
)

// NewEventsCommand creates the events command
func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the event log",
	}

	cmd.AddCommand(newEventsListCommand())
	cmd.AddCommand(newEventsHeadCommand())

	return cmd
}

func newEventsListCommand() *cobra.Command {
	var (
		names []string
		after int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events in store order",
		Long: `List events in store order, optionally filtered by event name.

Examples:
  ledger events list --limit=20
  ledger events list --names=CarRegistered,CarSold --after=1500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				out := cmd.OutOrStdout()

				events, err := env.store.ReadByEventNames(cmd.Context(), names, after, limit)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Fprintln(out, styles.FormatInfo("No events"))
					return nil
				}

				table := ui.NewTable("ID", "Event", "Aggregate", "Version", "Recorded")
				for _, e := range events {
					table.AddRow(
						strconv.FormatInt(e.ID, 10),
						fmt.Sprintf("%s v%d", e.Name, e.SchemaVersion),
						e.AggregateID,
						strconv.FormatInt(e.AggregateVersion, 10),
						e.RecordedAt.UTC().Format("2006-01-02 15:04:05"),
					)
				}
				fmt.Fprintln(out, table.Render())

				last := events[len(events)-1].ID
				fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("%d events, continue with --after=%d", len(events), last)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&names, "names", nil, "Only events with these names (comma-separated)")
	cmd.Flags().Int64Var(&after, "after", 0, "Only events with an id greater than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")

	return cmd
}

func newEventsHeadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "Print the id of the newest event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				head, err := env.store.LastEventID(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), head)
				return nil
			})
		},
	}
}
