// Package mysql provides a MySQL implementation of the ledger storage adapters.
package mysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
)

// errDuplicateEntry is ER_DUP_ENTRY.
const errDuplicateEntry = 1062

// Ensure MySQLAdapter implements required interfaces.
var (
	_ adapters.Backend       = (*MySQLAdapter)(nil)
	_ adapters.HealthChecker = (*MySQLAdapter)(nil)
	_ sqlstore.Dialect       = Dialect{}
)

// MySQLAdapter is a MySQL implementation of adapters.Backend.
type MySQLAdapter struct {
	*sqlstore.Store
}

// NewAdapter opens a MySQL connection. parseTime is forced on so timestamps scan into time.Time.
func NewAdapter(dsn string, opts ...sqlstore.Option) (*MySQLAdapter, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/mysql: invalid dsn: %w", err)
	}
	cfg.ParseTime = true

	store, err := sqlstore.Open(Dialect{}, cfg.FormatDSN(), opts...)
	if err != nil {
		return nil, err
	}
	return &MySQLAdapter{Store: store}, nil
}

// Dialect is the MySQL dialect.
type Dialect struct{}

// Name returns "mysql".
func (Dialect) Name() string { return "mysql" }

// DriverName returns the go-sql-driver name.
func (Dialect) DriverName() string { return "mysql" }

// BindType returns sqlx.QUESTION.
func (Dialect) BindType() int { return sqlx.QUESTION }

// Quote quotes an identifier with backticks.
func (Dialect) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Types returns the MySQL column types.
func (Dialect) Types() sqlstore.ColumnTypes {
	return sqlstore.ColumnTypes{
		Serial: "BIGINT AUTO_INCREMENT PRIMARY KEY",
		Key:    "VARCHAR(255)",
		BigInt: "BIGINT",
		Int:    "INT",
		JSON:   "JSON",
		Time:   "DATETIME(6)",
	}
}

// SupportsReturning reports false; ids come from LastInsertId.
func (Dialect) SupportsReturning() bool { return false }

// SupportsSchemas reports false; the database in the DSN is used.
func (Dialect) SupportsSchemas() bool { return false }

// IsUniqueViolation reports whether err is ER_DUP_ENTRY.
func (Dialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateEntry
}

// Upsert builds an ON DUPLICATE KEY UPDATE statement.
func (d Dialect) Upsert(table, key string, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c)))
	}
	return sqlstore.InsertStatement(d.Quote, table, cols) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// UpsertIfNewer builds a guarded ON DUPLICATE KEY UPDATE. MySQL evaluates the
// assignments left to right, so the version column is assigned last.
func (d Dialect) UpsertIfNewer(table, bareTable, key, version string, cols []string) string {
	v := d.Quote(version)
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == key || c == version {
			continue
		}
		q := d.Quote(c)
		sets = append(sets, fmt.Sprintf("%s = IF(VALUES(%s) > %s, VALUES(%s), %s)", q, v, v, q, q))
	}
	sets = append(sets, fmt.Sprintf("%s = IF(VALUES(%s) > %s, VALUES(%s), %s)", v, v, v, v, v))
	return sqlstore.InsertStatement(d.Quote, table, cols) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// InsertIgnore builds an INSERT IGNORE statement.
func (d Dialect) InsertIgnore(table string, cols []string) string {
	return strings.Replace(sqlstore.InsertStatement(d.Quote, table, cols), "INSERT INTO", "INSERT IGNORE INTO", 1)
}

// CreateIndex returns "": MySQL has no CREATE INDEX IF NOT EXISTS and the
// unique key on (aggregate_id, aggregate_version) already serves aggregate reads.
func (Dialect) CreateIndex(name, table string, cols ...string) string {
	return ""
}
