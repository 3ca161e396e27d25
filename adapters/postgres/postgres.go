// Package postgres provides a PostgreSQL implementation of the ledger storage adapters.
package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
)

// DefaultSchema is the schema tables are created in unless WithSchema says otherwise.
const DefaultSchema = "ledger"

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Ensure PostgresAdapter implements required interfaces.
var (
	_ adapters.Backend       = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker = (*PostgresAdapter)(nil)
	_ sqlstore.Dialect       = Dialect{}
)

// PostgresAdapter is a PostgreSQL implementation of adapters.Backend.
type PostgresAdapter struct {
	*sqlstore.Store
}

// Options re-exported for convenience.
var (
	WithSchema                = sqlstore.WithSchema
	WithEventsTable           = sqlstore.WithEventsTable
	WithMaxConnections        = sqlstore.WithMaxConnections
	WithMaxIdleConnections    = sqlstore.WithMaxIdleConnections
	WithConnectionMaxLifetime = sqlstore.WithConnectionMaxLifetime
)

// NewAdapter opens a PostgreSQL connection through the pgx stdlib driver.
func NewAdapter(connStr string, opts ...sqlstore.Option) (*PostgresAdapter, error) {
	opts = append([]sqlstore.Option{sqlstore.WithSchema(DefaultSchema)}, opts...)
	store, err := sqlstore.Open(Dialect{}, connStr, opts...)
	if err != nil {
		return nil, err
	}
	return &PostgresAdapter{Store: store}, nil
}

// NewAdapterWithDB creates an adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...sqlstore.Option) (*PostgresAdapter, error) {
	opts = append([]sqlstore.Option{sqlstore.WithSchema(DefaultSchema)}, opts...)
	store, err := sqlstore.NewWithDB(db, Dialect{}, opts...)
	if err != nil {
		return nil, err
	}
	return &PostgresAdapter{Store: store}, nil
}

// Dialect is the PostgreSQL dialect.
type Dialect struct{}

// Name returns "postgres".
func (Dialect) Name() string { return "postgres" }

// DriverName returns the pgx stdlib driver name.
func (Dialect) DriverName() string { return "pgx" }

// BindType returns sqlx.DOLLAR.
func (Dialect) BindType() int { return sqlx.DOLLAR }

// Quote quotes an identifier.
func (Dialect) Quote(name string) string { return pq.QuoteIdentifier(name) }

// Types returns the PostgreSQL column types.
func (Dialect) Types() sqlstore.ColumnTypes {
	return sqlstore.ColumnTypes{
		Serial: "BIGSERIAL PRIMARY KEY",
		Key:    "VARCHAR(255)",
		BigInt: "BIGINT",
		Int:    "INTEGER",
		JSON:   "JSONB",
		Time:   "TIMESTAMPTZ",
	}
}

// SupportsReturning reports true.
func (Dialect) SupportsReturning() bool { return true }

// SupportsSchemas reports true.
func (Dialect) SupportsSchemas() bool { return true }

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func (Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Upsert builds an ON CONFLICT DO UPDATE statement.
func (d Dialect) Upsert(table, key string, cols []string) string {
	return sqlstore.OnConflictUpsert(d.Quote, table, key, cols)
}

// UpsertIfNewer builds a version-guarded ON CONFLICT DO UPDATE statement.
func (d Dialect) UpsertIfNewer(table, bareTable, key, version string, cols []string) string {
	return sqlstore.OnConflictUpsertIfNewer(d.Quote, table, bareTable, key, version, cols)
}

// InsertIgnore builds an ON CONFLICT DO NOTHING statement.
func (d Dialect) InsertIgnore(table string, cols []string) string {
	return sqlstore.OnConflictIgnore(d.Quote, table, cols)
}

// CreateIndex builds CREATE INDEX IF NOT EXISTS.
func (d Dialect) CreateIndex(name, table string, cols ...string) string {
	return sqlstore.CreateIndexIfNotExists(d.Quote, name, table, cols)
}
