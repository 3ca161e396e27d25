// Package sqlite provides a pure-Go SQLite implementation of the ledger storage adapters.
//
// SQLite allows a single writer, so the adapter keeps one open connection;
// concurrent transactions queue on the pool instead of failing with SQLITE_BUSY.
package sqlite

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
)

// Ensure SQLiteAdapter implements required interfaces.
var (
	_ adapters.Backend       = (*SQLiteAdapter)(nil)
	_ adapters.HealthChecker = (*SQLiteAdapter)(nil)
	_ sqlstore.Dialect       = Dialect{}
)

// SQLiteAdapter is a SQLite implementation of adapters.Backend.
type SQLiteAdapter struct {
	*sqlstore.Store
}

// NewAdapter opens the database file at path, creating it if needed.
// A path of ":memory:" opens a private in-memory database.
func NewAdapter(path string, opts ...sqlstore.Option) (*SQLiteAdapter, error) {
	store, err := sqlstore.Open(Dialect{}, DSN(path), opts...)
	if err != nil {
		return nil, err
	}
	store.DB().SetMaxOpenConns(1)
	return &SQLiteAdapter{Store: store}, nil
}

// DSN builds a modernc connection string with WAL, a busy timeout and
// immediate transactions. Strings that already carry a query are returned as is.
func DSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		path = filepath.Clean(path)
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Dialect is the SQLite dialect.
type Dialect struct{}

// Name returns "sqlite".
func (Dialect) Name() string { return "sqlite" }

// DriverName returns the modernc driver name.
func (Dialect) DriverName() string { return "sqlite" }

// BindType returns sqlx.QUESTION.
func (Dialect) BindType() int { return sqlx.QUESTION }

// Quote quotes an identifier with double quotes.
func (Dialect) Quote(name string) string { return sqlstore.QuoteDouble(name) }

// Types returns the SQLite column types.
func (Dialect) Types() sqlstore.ColumnTypes {
	return sqlstore.ColumnTypes{
		Serial: "INTEGER PRIMARY KEY AUTOINCREMENT",
		Key:    "TEXT",
		BigInt: "INTEGER",
		Int:    "INTEGER",
		JSON:   "TEXT",
		Time:   "TIMESTAMP",
	}
}

// SupportsReturning reports true; RETURNING exists since SQLite 3.35.
func (Dialect) SupportsReturning() bool { return true }

// SupportsSchemas reports false.
func (Dialect) SupportsSchemas() bool { return false }

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func (Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
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
