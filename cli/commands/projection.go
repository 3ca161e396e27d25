package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
	"github.com/AshkanYarmoradi/go-ledger/cli/ui"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain"
)

// NewProjectionCommand creates the projection command
func NewProjectionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projection",
		Aliases: []string{"proj"},
		Short:   "Manage read model projections",
		Long: `Inspect, catch up, snapshot, restore and rebuild read models.

Examples:
  ledger projection list
  ledger projection status car_view
  ledger projection catchup --all
  ledger projection rebuild car_view --yes`,
	}

	cmd.AddCommand(newProjectionListCommand())
	cmd.AddCommand(newProjectionStatusCommand())
	cmd.AddCommand(newProjectionCatchUpCommand())
	cmd.AddCommand(newProjectionSnapshotCommand())
	cmd.AddCommand(newProjectionRestoreCommand())
	cmd.AddCommand(newProjectionRebuildCommand())

	return cmd
}

func lagStatus(s ledger.ProjectorStatus) string {
	if s.Lag == 0 {
		return "current"
	}
	return "behind"
}

func newProjectionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all projections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				fmt.Fprintln(out, styles.Title.Render(styles.IconList+" Projections"))
				fmt.Fprintln(out)

				table := ui.NewTable("Name", "Rows", "Position", "Lag", "Status")
				for _, m := range env.projections.All() {
					status, err := env.projector(m).Status(ctx)
					if err != nil {
						return err
					}
					rows, err := m.Count(ctx)
					if err != nil {
						return err
					}
					if env.metrics != nil {
						env.metrics.RecordProjectionStatus(status)
					}
					table.AddRow(m.Name(),
						strconv.FormatInt(rows, 10),
						strconv.FormatInt(status.Position, 10),
						strconv.FormatInt(status.Lag, 10),
						ui.StatusBadge(lagStatus(status)))
				}

				fmt.Fprintln(out, table.Render())
				return nil
			})
		},
	}
}

func newProjectionStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show detailed projection status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				m, err := env.projections.ByName(args[0])
				if err != nil {
					return err
				}
				status, err := env.projector(m).Status(ctx)
				if err != nil {
					return err
				}
				rows, err := m.Count(ctx)
				if err != nil {
					return err
				}
				snap, err := m.Snapshot(ctx)
				if err != nil {
					return err
				}

				fmt.Fprintln(out, styles.Title.Render(styles.IconInfo+" Projection: "+m.Name()))
				fmt.Fprintln(out)
				fmt.Fprintln(out, styles.FormatKeyValue("Status", ui.StatusBadge(lagStatus(status))))
				fmt.Fprintln(out, styles.FormatKeyValue("Table", m.Table()))
				fmt.Fprintln(out, styles.FormatKeyValue("Rows", strconv.FormatInt(rows, 10)))
				fmt.Fprintln(out, styles.FormatKeyValue("Position", fmt.Sprintf("%d / %d", status.Position, status.Head)))
				fmt.Fprintln(out, styles.FormatKeyValue("Progress", ui.ProgressBar(status.Position, status.Head)))
				if snap != nil {
					fmt.Fprintln(out, styles.FormatKeyValue("Snapshot", fmt.Sprintf("%d rows at event %d (%s)",
						snap.Rows, snap.LastEventID, snap.CreatedAt.UTC().Format(time.RFC3339))))
				} else {
					fmt.Fprintln(out, styles.FormatKeyValue("Snapshot", "none"))
				}
				fmt.Fprintln(out)

				if status.Lag > 0 {
					fmt.Fprintln(out, styles.FormatWarning(fmt.Sprintf("%d events behind", status.Lag)))
				} else {
					fmt.Fprintln(out, styles.FormatSuccess("Up to date"))
				}
				return nil
			})
		},
	}
}

// selectProjections resolves a single name argument or --all.
func selectProjections(env *environment, args []string, all bool) ([]domain.ReadModel, error) {
	switch {
	case all && len(args) > 0:
		return nil, errors.New("give a projection name or --all, not both")
	case all:
		return env.projections.All(), nil
	case len(args) == 1:
		m, err := env.projections.ByName(args[0])
		if err != nil {
			return nil, err
		}
		return []domain.ReadModel{m}, nil
	default:
		return nil, fmt.Errorf("give a projection name or --all (known: %v)", env.projections.Names())
	}
}

func newProjectionCatchUpCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "catchup [name]",
		Short: "Deliver new events to projections",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				models, err := selectProjections(env, args, all)
				if err != nil {
					return err
				}

				for _, m := range models {
					projector := env.projector(m)
					err := ui.RunWithSpinner(cmd.OutOrStdout(), "Catching up "+m.Name(), func() (string, error) {
						n, err := projector.CatchUp(cmd.Context())
						if err != nil {
							return "", err
						}
						return fmt.Sprintf("%s: %d events delivered", m.Name(), n), nil
					})
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Catch up every projection")

	return cmd
}

func newProjectionSnapshotCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "snapshot [name]",
		Short: "Copy a read model into its snapshot table",
		Long: `Copy the live read model table into its snapshot twin, tagged with the
projection's checkpoint. Stop delivery to the projection while this runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				models, err := selectProjections(env, args, all)
				if err != nil {
					return err
				}

				for _, m := range models {
					pos, err := env.projector(m).Position(cmd.Context())
					if err != nil {
						return err
					}
					snap, err := m.CreateSnapshot(cmd.Context(), pos)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(
						fmt.Sprintf("%s %s: %d rows at event %d", styles.IconCamera, m.Name(), snap.Rows, snap.LastEventID)))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Snapshot every projection")

	return cmd
}

// confirm asks before a destructive action. Without a terminal it refuses
// unless yes is set.
func confirm(cmd *cobra.Command, yes bool, title, description string) error {
	if yes {
		return nil
	}
	if !ui.IsTerminal(cmd.OutOrStdout()) {
		return errors.New("refusing to continue without confirmation, pass --yes")
	}
	ok, err := ui.Confirm(title, description)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("cancelled")
	}
	return nil
}

func newProjectionRestoreCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace a read model with its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				ctx := cmd.Context()

				m, err := env.projections.ByName(args[0])
				if err != nil {
					return err
				}
				if err := confirm(cmd, yes,
					fmt.Sprintf("Restore projection '%s'?", m.Name()),
					"The live table is replaced by the snapshot copy"); err != nil {
					return err
				}

				pos, err := m.ApplySnapshot(ctx)
				if errors.Is(err, ledger.ErrNoProjectionSnapshot) {
					return fmt.Errorf("%s has no snapshot, run 'ledger projection snapshot %s' first", m.Name(), m.Name())
				}
				if err != nil {
					return err
				}
				if err := env.backend.SetCheckpoint(ctx, m.Name(), pos); err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess(
					fmt.Sprintf("Restored %s at event %d", m.Name(), pos)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

func newProjectionRebuildCommand() *cobra.Command {
	var (
		all bool
		yes bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild [name]",
		Short: "Rebuild projections from their snapshot or from scratch",
		Long: `Rebuild restores a projection from its snapshot when one exists, otherwise
it clears the table and replays the whole log. Stop every other consumer of
the projection first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, func(env *environment) error {
				models, err := selectProjections(env, args, all)
				if err != nil {
					return err
				}
				if err := confirm(cmd, yes,
					fmt.Sprintf("Rebuild %d projection(s)?", len(models)),
					"Projected data is replaced and the log is replayed"); err != nil {
					return err
				}

				rebuildables := make([]ledger.Rebuildable, len(models))
				for i, m := range models {
					rebuildables[i] = m
				}

				var results []ledger.RebuildResult
				err = ui.RunWithSpinner(cmd.OutOrStdout(), "Rebuilding", func() (string, error) {
					var err error
					results, err = env.rebuilder().RebuildAll(cmd.Context(), rebuildables...)
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Rebuilt %d projection(s)", len(results)), nil
				})
				if err != nil {
					return err
				}

				table := ui.NewTable("Name", "Source", "Events", "Position", "Duration")
				for _, r := range results {
					source := "log"
					if r.FromSnapshot {
						source = "snapshot@" + strconv.FormatInt(r.StartPosition, 10)
					}
					table.AddRow(r.Projection, source,
						strconv.Itoa(r.Processed),
						strconv.FormatInt(r.Position, 10),
						r.Duration.Round(time.Millisecond).String())
				}
				fmt.Fprintln(cmd.OutOrStdout(), table.Render())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Rebuild every projection")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}
