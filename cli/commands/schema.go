package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
	"github.com/AshkanYarmoradi/go-ledger/cli/config"
	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	var (
		driver string
		output string
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the SQL schema for the configured driver",
		Long: `Print the CREATE statements migrate would run, for review or for use
with an external migration tool.

Examples:
  ledger schema
  ledger schema --driver=postgres --output=schema.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := schemaConfig(cmd, driver)
			if err != nil {
				return err
			}

			ddl, err := generateSchema(cfg)
			if err != nil {
				return err
			}

			if output == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), ddl)
				return err
			}
			if err := os.WriteFile(output, []byte(ddl), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess("Schema written to "+output))
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Generate for this driver instead of the configured one")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the schema to a file")

	return cmd
}

// schemaConfig uses ledger.yaml when present and falls back to defaults,
// so schema works before init.
func schemaConfig(cmd *cobra.Command, driver string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		if driver == "" {
			return nil, err
		}
		cfg = config.DefaultConfig()
	}
	if driver != "" {
		cfg.Database.Driver = driver
	}
	return cfg, nil
}

func generateSchema(cfg *config.Config) (string, error) {
	d, err := dialectFor(cfg.Database.Driver)
	if err != nil {
		return "", err
	}
	schema := cfg.Database.Schema

	projections, err := domain.Projections(memory.NewAdapter())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	section := func(title string, statements []string) {
		sb.WriteString("-- " + title + "\n")
		for _, s := range statements {
			sb.WriteString(strings.TrimSpace(s))
			sb.WriteString(";\n")
		}
		sb.WriteString("\n")
	}

	section("Event log and projection bookkeeping", sqlstore.BaseDDL(d, schema, cfg.EventStore.TableName))
	for _, t := range domain.AggregateTypes {
		section("Aggregate "+t,
			append(sqlstore.StateDDL(d, schema, t+ledger.StateTableSuffix),
				sqlstore.SnapshotDDL(d, schema, t+ledger.SnapshotTableSuffix)...))
	}
	for _, m := range projections.All() {
		section("Read model "+m.Name(), sqlstore.ReadModelDDL(d, schema, m.Table()))
	}
	return sb.String(), nil
}
