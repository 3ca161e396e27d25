package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlite"
	"github.com/AshkanYarmoradi/go-ledger/cli/config"
	"github.com/AshkanYarmoradi/go-ledger/cli/styles"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/car"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain/order"
)

func init() {
	styles.DisableColors()
}

// testEnv is a temporary directory holding ledger.yaml and a sqlite file.
type testEnv struct {
	t      *testing.T
	dir    string
	config string
	dbPath string
}

func setupTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Database.URL = filepath.Join(dir, "ledger.db")
	cfg.Log.Level = "error"
	for _, opt := range opts {
		opt(cfg)
	}
	require.NoError(t, cfg.Save(dir))

	return &testEnv{
		t:      t,
		dir:    dir,
		config: filepath.Join(dir, config.ConfigFileName),
		dbPath: cfg.Database.URL,
	}
}

// run executes the CLI with --config pointing at the test file.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return execute(append(args, "--config", e.config)...)
}

func execute(args ...string) (string, error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seedCars registers cars through a repository on the same sqlite file.
func (e *testEnv) seedCars(plates ...string) []string {
	e.t.Helper()
	ctx := context.Background()

	adapter, err := sqlite.NewAdapter(e.dbPath)
	require.NoError(e.t, err)
	defer adapter.Close()

	registry, err := domain.NewRegistry()
	require.NoError(e.t, err)
	store := ledger.New(adapter, ledger.WithRegistry(registry))
	repo, err := ledger.NewRepository(store, car.New)
	require.NoError(e.t, err)

	ids := make([]string, len(plates))
	for i, plate := range plates {
		c := car.New("")
		_, err := c.Register(car.Register{Plate: plate, Make: "Volvo", Model: "V70", Year: 2012, Mileage: 1000})
		require.NoError(e.t, err)
		require.NoError(e.t, repo.Save(ctx, c, nil))
		ids[i] = c.AggregateID()
	}
	return ids
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "ledger", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"init", "migrate", "schema", "events", "aggregate", "snapshot", "projection", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("no-color"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version")
	assert.Contains(t, out, Version)
}

func TestInitCommand(t *testing.T) {
	t.Run("writes config", func(t *testing.T) {
		dir := t.TempDir()
		out, err := execute("init", dir, "--driver", "memory")
		require.NoError(t, err)
		assert.Contains(t, out, "Created")

		cfg, err := config.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
		assert.Empty(t, cfg.Database.URL)
	})

	t.Run("postgres defaults to DATABASE_URL", func(t *testing.T) {
		dir := t.TempDir()
		_, err := execute("init", dir, "--driver", "postgres", "--schema", "fleet")
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, config.ConfigFileName))
		require.NoError(t, err)
		assert.Contains(t, string(data), "${DATABASE_URL}")
		assert.Contains(t, string(data), "fleet")
	})

	t.Run("keeps existing config without force", func(t *testing.T) {
		dir := t.TempDir()
		_, err := execute("init", dir, "--driver", "memory")
		require.NoError(t, err)

		out, err := execute("init", dir, "--driver", "sqlite")
		require.NoError(t, err)
		assert.Contains(t, out, "already exists")

		cfg, err := config.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, config.DriverMemory, cfg.Database.Driver)

		_, err = execute("init", dir, "--driver", "sqlite", "--force")
		require.NoError(t, err)
		cfg, err = config.Load(dir)
		require.NoError(t, err)
		assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	})

	t.Run("rejects invalid settings", func(t *testing.T) {
		_, err := execute("init", t.TempDir(), "--driver", "oracle")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")

		_, err = execute("init", t.TempDir(), "--driver", "sqlite", "--schema", "fleet")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.schema")
	})
}

func TestSchemaCommand(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite", "mysql"} {
		t.Run(driver, func(t *testing.T) {
			env := setupTestEnv(t)
			out, err := env.run("schema", "--driver", driver)
			require.NoError(t, err)

			assert.Contains(t, out, "-- Event log and projection bookkeeping")
			assert.Contains(t, out, "events")
			assert.Contains(t, out, "car_state")
			assert.Contains(t, out, "car_snapshots")
			assert.Contains(t, out, "car_view")
			assert.Contains(t, out, "car_view_snapshot")
			assert.Contains(t, out, "projection_checkpoints")
		})
	}

	t.Run("memory has no schema", func(t *testing.T) {
		env := setupTestEnv(t)
		_, err := env.run("schema", "--driver", "memory")
		require.Error(t, err)
	})

	t.Run("output file", func(t *testing.T) {
		env := setupTestEnv(t)
		path := filepath.Join(env.dir, "schema.sql")
		out, err := env.run("schema", "-o", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Schema written")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "CREATE TABLE")
	})
}

func TestMigrateCommand(t *testing.T) {
	env := setupTestEnv(t)

	out, err := env.run("migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "event log events")
	for _, typ := range domain.AggregateTypes {
		assert.Contains(t, out, "aggregate "+typ)
	}
	assert.Contains(t, out, "read model "+car.ViewTable)
	assert.Contains(t, out, "Migrated sqlite database")

	// Running twice is harmless.
	_, err = env.run("migrate")
	require.NoError(t, err)
}

func TestMissingConfig(t *testing.T) {
	_, err := execute("migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEventsCommands(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.run("migrate")
	require.NoError(t, err)

	out, err := env.run("events", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No events")

	ids := env.seedCars("KA-1", "KA-2", "KA-3")

	out, err = env.run("events", "list", "--names", "CarRegistered", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, ids[0])
	assert.Contains(t, out, ids[1])
	assert.NotContains(t, out, ids[2])
	assert.Contains(t, out, "--after=2")

	out, err = env.run("events", "list", "--after", "2")
	require.NoError(t, err)
	assert.Contains(t, out, ids[2])

	out, err = env.run("events", "list", "--names", "CarDeleted")
	require.NoError(t, err)
	assert.Contains(t, out, "No events")

	out, err = env.run("events", "head")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestAggregateCommands(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.run("migrate")
	require.NoError(t, err)
	ids := env.seedCars("KA-42")

	t.Run("show", func(t *testing.T) {
		out, err := env.run("aggregate", "show", "car", ids[0])
		require.NoError(t, err)
		assert.Contains(t, out, "car/"+ids[0])
		assert.Contains(t, out, `"plate": "KA-42"`)
		assert.Contains(t, out, `"mileage": 1000`)
	})

	t.Run("show at version", func(t *testing.T) {
		out, err := env.run("aggregate", "show", "car", ids[0], "--at", "1")
		require.NoError(t, err)
		assert.Contains(t, out, `"plate": "KA-42"`)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := env.run("aggregate", "show", "car", "no-such-car")
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := env.run("aggregate", "show", "boat", ids[0])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown aggregate type")
	})

	t.Run("types", func(t *testing.T) {
		out, err := execute("aggregate", "types")
		require.NoError(t, err)
		for _, typ := range domain.AggregateTypes {
			assert.Contains(t, out, typ)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		out, err := env.run("snapshot", "take", "car", ids[0])
		require.NoError(t, err)
		assert.Contains(t, out, "at version 1")

		_, err = env.run("snapshot", "take", "car", "no-such-car")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestProjectionCommands(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.run("migrate")
	require.NoError(t, err)
	env.seedCars("KA-1", "KA-2")

	out, err := env.run("projection", "status", car.ViewTable)
	require.NoError(t, err)
	assert.Contains(t, out, "0 / 2")
	assert.Contains(t, out, "2 events behind")

	out, err = env.run("projection", "catchup", car.ViewTable)
	require.NoError(t, err)
	assert.Contains(t, out, "car_view: 2 events delivered")

	out, err = env.run("projection", "status", car.ViewTable)
	require.NoError(t, err)
	assert.Contains(t, out, "2 / 2")
	assert.Contains(t, out, "Up to date")

	out, err = env.run("projection", "list")
	require.NoError(t, err)
	assert.Contains(t, out, car.ViewTable)
	assert.Contains(t, out, "current")

	out, err = env.run("projection", "snapshot", car.ViewTable)
	require.NoError(t, err)
	assert.Contains(t, out, "car_view: 2 rows at event 2")

	t.Run("restore needs confirmation", func(t *testing.T) {
		_, err := env.run("projection", "restore", car.ViewTable)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--yes")
	})

	t.Run("restore", func(t *testing.T) {
		out, err := env.run("projection", "restore", car.ViewTable, "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Restored car_view at event 2")
	})

	t.Run("rebuild from snapshot", func(t *testing.T) {
		env.seedCars("KA-3")

		out, err := env.run("projection", "rebuild", car.ViewTable, "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "snapshot@2")

		out, err = env.run("projection", "status", car.ViewTable)
		require.NoError(t, err)
		assert.Contains(t, out, "3 / 3")
	})

	t.Run("rebuild all", func(t *testing.T) {
		out, err := env.run("projection", "rebuild", "--all", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Rebuilt")
		assert.Contains(t, out, order.ViewTable)
	})

	t.Run("name or all", func(t *testing.T) {
		_, err := env.run("projection", "rebuild", car.ViewTable, "--all", "--yes")
		require.Error(t, err)

		_, err = env.run("projection", "catchup")
		require.Error(t, err)

		_, err = env.run("projection", "status", "no_view")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestProjectionRestoreWithoutSnapshot(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.run("migrate")
	require.NoError(t, err)

	_, err = env.run("projection", "restore", car.ViewTable, "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no snapshot")
}

func TestMetricsAreDumpedOnClose(t *testing.T) {
	env := setupTestEnv(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		cfg.Cache.Kind = config.CacheNone
	})
	_, err := env.run("migrate")
	require.NoError(t, err)
	env.seedCars("KA-1")

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"projection", "catchup", "--all", "--config", env.config})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "ledger_projection_events_total")
	assert.Contains(t, errOut.String(), "ledger_adapter_operations_total")
}
