// Package sqlstore implements the ledger storage adapters on top of database/sql.
//
// The store is engine-agnostic: a Dialect supplies quoting, column types,
// upsert syntax and unique-violation detection. The postgres, sqlite and
// mysql packages provide the dialects and open the connections.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// Ensure Store implements required interfaces.
var (
	_ adapters.Backend       = (*Store)(nil)
	_ adapters.HealthChecker = (*Store)(nil)
)

// Default table names.
const (
	DefaultEventsTable      = "events"
	DefaultCheckpointsTable = "projection_checkpoints"
	DefaultCursorsTable     = "projection_snapshots"
)

// Store is a SQL implementation of adapters.Backend.
type Store struct {
	db          *sqlx.DB
	dialect     Dialect
	schema      string
	events      string
	checkpoints string
	cursors     string
	now         func() time.Time
	closed      atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithSchema qualifies every table with schema. Ignored by engines without schemas.
func WithSchema(schema string) Option {
	return func(s *Store) {
		s.schema = schema
	}
}

// WithEventsTable sets the name of the event table.
func WithEventsTable(name string) Option {
	return func(s *Store) {
		s.events = name
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(s *Store) {
		s.db.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) Option {
	return func(s *Store) {
		s.db.SetMaxIdleConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(s *Store) {
		s.db.SetConnMaxLifetime(d)
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens a connection with the dialect's driver and wraps it in a Store.
func Open(dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/%s: failed to open database: %w", dialect.Name(), err)
	}

	s, err := New(db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing *sql.DB.
func NewWithDB(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	return New(sqlx.NewDb(db, dialect.DriverName()), dialect, opts...)
}

// New wraps an existing *sqlx.DB.
func New(db *sqlx.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{
		db:          db,
		dialect:     dialect,
		events:      DefaultEventsTable,
		checkpoints: DefaultCheckpointsTable,
		cursors:     DefaultCursorsTable,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	if !dialect.SupportsSchemas() {
		s.schema = ""
	}
	if s.schema != "" {
		if err := adapters.ValidateIdentifier(s.schema); err != nil {
			return nil, err
		}
	}
	if err := adapters.ValidateIdentifier(s.events); err != nil {
		return nil, err
	}

	return s, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Schema returns the schema tables are created in, or "" for none.
func (s *Store) Schema() string {
	return s.schema
}

// EventsTable returns the unqualified event table name.
func (s *Store) EventsTable() string {
	return s.events
}

// Initialize creates the schema, the event table and the projection bookkeeping tables.
func (s *Store) Initialize(ctx context.Context) error {
	if s.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return s.exec(ctx, "initialize", BaseDDL(s.dialect, s.schema, s.events))
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return adapters.ErrAdapterClosed
	}
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, what string, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ledger/%s: failed to %s: %w", s.dialect.Name(), what, err)
		}
	}
	return nil
}

// table qualifies and quotes a table name.
func (s *Store) table(name string) string {
	return qualify(s.dialect, s.schema, name)
}

func (s *Store) rebind(query string) string {
	return sqlx.Rebind(s.dialect.BindType(), query)
}

func (s *Store) errorf(format string, err error) error {
	return fmt.Errorf("ledger/%s: "+format+": %w", s.dialect.Name(), err)
}

func qualify(d Dialect, schema, name string) string {
	if schema == "" {
		return d.Quote(name)
	}
	return d.Quote(schema) + "." + d.Quote(name)
}
