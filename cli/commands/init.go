package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-ledger/cli/config"
	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
)

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	var (
		driver string
		url    string
		schema string
		cache  string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a ledger.yaml configuration",
		Long: `Write a ledger.yaml configuration file with defaults for the chosen driver.

Examples:
  ledger init                                   # sqlite file ledger.db
  ledger init --driver=postgres --url='$DATABASE_URL'
  ledger init services/cars --driver=memory`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			if config.Exists(absDir) && !force {
				fmt.Fprintln(out, styles.FormatWarning(config.ConfigFileName+" already exists, use --force to overwrite"))
				return nil
			}
			if err := os.MkdirAll(absDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", absDir, err)
			}

			cfg := config.DefaultConfig()
			cfg.Database.Driver = strings.ToLower(driver)
			switch {
			case url != "":
				cfg.Database.URL = url
			case cfg.Database.Driver == config.DriverPostgres:
				cfg.Database.URL = "${DATABASE_URL}"
			case cfg.Database.Driver == config.DriverMySQL:
				cfg.Database.URL = "${MYSQL_DSN}"
			case cfg.Database.Driver == config.DriverMemory:
				cfg.Database.URL = ""
			}
			cfg.Database.Schema = schema
			if cache != "" {
				cfg.Cache.Kind = cache
			}

			if problems := cfg.Validate(); len(problems) > 0 {
				return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
			}
			if err := cfg.Save(absDir); err != nil {
				return fmt.Errorf("failed to write %s: %w", config.ConfigFileName, err)
			}

			fmt.Fprintln(out, styles.FormatSuccess("Created "+filepath.Join(absDir, config.ConfigFileName)))
			fmt.Fprintln(out, styles.FormatKeyValue("Driver", cfg.Database.Driver))
			if cfg.Database.URL != "" {
				fmt.Fprintln(out, styles.FormatKeyValue("Database", cfg.Database.URL))
			}
			fmt.Fprintln(out, styles.FormatKeyValue("Cache", cfg.Cache.Kind))
			fmt.Fprintln(out)
			fmt.Fprintln(out, styles.FormatInfo("Next: run "+styles.Code.Render("ledger migrate")))
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", config.DriverSQLite, "Database driver (postgres, sqlite, mysql, memory)")
	cmd.Flags().StringVar(&url, "url", "", "Database URL or DSN; ${VAR} references are expanded at runtime")
	cmd.Flags().StringVar(&schema, "schema", "", "Postgres schema")
	cmd.Flags().StringVar(&cache, "cache", "", "Aggregate cache (none, lru, redis)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing ledger.yaml")

	return cmd
}
