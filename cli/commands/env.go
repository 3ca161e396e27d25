package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
	"github.com/AshkanYarmoradi/go-ledger/adapters/mysql"
	"github.com/AshkanYarmoradi/go-ledger/adapters/postgres"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlite"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
	"github.com/AshkanYarmoradi/go-ledger/cache"
	rediscache "github.com/AshkanYarmoradi/go-ledger/cache/redis"
	"github.com/AshkanYarmoradi/go-ledger/cli/config"
	"github.com/AshkanYarmoradi/go-ledger/internal/domain"
	"github.com/AshkanYarmoradi/go-ledger/logging"
	"github.com/AshkanYarmoradi/go-ledger/middleware/metrics"
	"github.com/AshkanYarmoradi/go-ledger/middleware/tracing"
)

// environment is everything a command needs, built from ledger.yaml.
type environment struct {
	cfg         *config.Config
	backend     adapters.Backend
	store       *ledger.EventStore
	repos       map[string]domain.Repository
	projections *domain.ProjectionSet
	logger      *logging.Zap
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	tracer      *sdktrace.TracerProvider
	closers     []func() error
	stderr      io.Writer
}

// loadConfig reads the file named by --config, or searches upward from the
// working directory for ledger.yaml.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFile(path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	_, cfg, err := config.FindConfig(cwd)
	if config.IsNotFound(err) {
		return nil, fmt.Errorf("no %s found, run 'ledger init' first", config.ConfigFileName)
	}
	return cfg, err
}

// openBackend connects to the configured database.
func openBackend(cfg *config.Config) (adapters.Backend, error) {
	url := os.ExpandEnv(cfg.Database.URL)
	opts := []sqlstore.Option{
		sqlstore.WithEventsTable(cfg.EventStore.TableName),
		sqlstore.WithMaxConnections(cfg.Database.MaxOpenConns),
		sqlstore.WithMaxIdleConnections(cfg.Database.MaxIdleConns),
		sqlstore.WithConnectionMaxLifetime(cfg.Database.ConnMaxLifetime),
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if cfg.Database.Schema != "" {
			opts = append(opts, sqlstore.WithSchema(cfg.Database.Schema))
		}
		return postgres.NewAdapter(url, opts...)
	case config.DriverSQLite:
		return sqlite.NewAdapter(url, opts...)
	case config.DriverMySQL:
		return mysql.NewAdapter(url, opts...)
	case config.DriverMemory:
		return memory.NewAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}

// dialectFor returns the SQL dialect of a driver.
func dialectFor(driver string) (sqlstore.Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return postgres.Dialect{}, nil
	case config.DriverSQLite:
		return sqlite.Dialect{}, nil
	case config.DriverMySQL:
		return mysql.Dialect{}, nil
	default:
		return nil, fmt.Errorf("driver %q has no SQL schema", driver)
	}
}

// openEnvironment wires storage, cache, logging, metrics and tracing.
// The caller must call close.
func openEnvironment(cmd *cobra.Command) (_ *environment, err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid %s: %v", config.ConfigFileName, problems)
	}

	env := &environment{cfg: cfg, stderr: cmd.ErrOrStderr()}
	defer func() {
		if err != nil {
			_ = env.close()
		}
	}()

	env.logger, err = logging.NewZap(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, func() error {
		_ = env.logger.Sync()
		return nil
	})

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}
	env.closers = append(env.closers, backend.Close)

	if cfg.Metrics.Enabled {
		env.metrics = metrics.New(metrics.WithNamespace(cfg.Metrics.Namespace), metrics.WithServiceName("ledger-cli"))
		env.registry = prometheus.NewRegistry()
		if err := env.metrics.Register(env.registry); err != nil {
			return nil, err
		}
		backend = env.metrics.WrapBackend(backend)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "stdout" {
		env.tracer, err = tracing.NewStdoutProvider(env.stderr)
		if err != nil {
			return nil, err
		}
		backend = tracing.WrapBackend(backend, tracing.NewTracer(tracing.WithTracerProvider(env.tracer)))
	}
	env.backend = backend

	registry, err := domain.NewRegistry()
	if err != nil {
		return nil, err
	}
	env.store = ledger.New(backend, ledger.WithRegistry(registry), ledger.WithLogger(env.logger))

	repoOpts := []ledger.RepositoryOption{
		ledger.WithRepositoryLogger(env.logger),
		ledger.WithSnapshotEvery(cfg.Snapshots.Every),
	}
	projOpts := []ledger.ReadModelOption{
		ledger.WithPageSize(cfg.Projections.PageSize),
		ledger.WithProjectionLogger(env.logger),
	}
	if env.metrics != nil {
		repoOpts = append(repoOpts, ledger.WithObserver(env.metrics))
		projOpts = append(projOpts, ledger.WithProjectionObserver(env.metrics))
	}

	c, err := openCache(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if c != nil {
		repoOpts = append(repoOpts, ledger.WithCache(c))
		if closer, ok := c.(io.Closer); ok {
			env.closers = append(env.closers, closer.Close)
		}
	}

	if env.repos, err = domain.Repositories(env.store, repoOpts...); err != nil {
		return nil, err
	}
	if env.projections, err = domain.Projections(backend, projOpts...); err != nil {
		return nil, err
	}
	return env, nil
}

func openCache(ctx context.Context, cfg *config.Config) (ledger.Cache, error) {
	switch cfg.Cache.Kind {
	case config.CacheLRU:
		return cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), nil
	case config.CacheRedis:
		c, err := rediscache.Dial(ctx, cfg.Cache.RedisAddr, rediscache.WithTTL(cfg.Cache.TTL))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}

// repository returns the repository of one aggregate type.
func (e *environment) repository(aggregateType string) (domain.Repository, error) {
	repo, ok := e.repos[aggregateType]
	if !ok {
		return nil, fmt.Errorf("unknown aggregate type %q (known: %v)", aggregateType, domain.AggregateTypes)
	}
	return repo, nil
}

// sortedRepositories returns the repositories ordered by aggregate type.
func (e *environment) sortedRepositories() []domain.Repository {
	types := make([]string, 0, len(e.repos))
	for t := range e.repos {
		types = append(types, t)
	}
	sort.Strings(types)

	out := make([]domain.Repository, len(types))
	for i, t := range types {
		out[i] = e.repos[t]
	}
	return out
}

func (e *environment) projector(p ledger.Projection) *ledger.Projector {
	opts := []ledger.ProjectorOption{
		ledger.WithBatchSize(e.cfg.Projections.PageSize),
		ledger.WithPollInterval(e.cfg.Projections.PollInterval),
		ledger.WithProjectorLogger(e.logger),
	}
	if e.metrics != nil {
		opts = append(opts, ledger.WithProjectorObserver(e.metrics))
	}
	return ledger.NewProjector(e.store, e.backend, p, opts...)
}

func (e *environment) rebuilder() *ledger.Rebuilder {
	opts := []ledger.RebuilderOption{
		ledger.WithRebuilderBatchSize(e.cfg.Projections.PageSize),
		ledger.WithRebuilderLogger(e.logger),
	}
	if e.metrics != nil {
		opts = append(opts, ledger.WithRebuilderObserver(e.metrics))
	}
	return ledger.NewRebuilder(e.store, e.backend, opts...)
}

// close flushes metrics and traces and releases the database.
func (e *environment) close() error {
	var errs []error
	if e.registry != nil {
		families, err := e.registry.Gather()
		errs = append(errs, err)
		for _, mf := range families {
			_, err := expfmt.MetricFamilyToText(e.stderr, mf)
			errs = append(errs, err)
		}
	}
	if e.tracer != nil {
		errs = append(errs, e.tracer.Shutdown(context.Background()))
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}
