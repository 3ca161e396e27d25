package sqlstore

import (
	"fmt"
	"strings"
)

// ColumnTypes are the SQL types a dialect uses for ledger tables.
type ColumnTypes struct {
	// Serial is the auto-increment primary key column definition.
	Serial string
	// Key is the type of aggregate ids and table names.
	Key string
	// BigInt is the type of versions and event ids.
	BigInt string
	// Int is the type of schema versions.
	Int string
	// JSON is the type of event bodies and serialized state.
	JSON string
	// Time is the timestamp type.
	Time string
}

// Dialect captures the differences between SQL engines. Statements built by
// a dialect use '?' placeholders; the store rebinds them for the driver.
type Dialect interface {
	// Name is the short dialect name, e.g. "postgres".
	Name() string

	// DriverName is the database/sql driver name.
	DriverName() string

	// BindType is the sqlx bind type used to rebind '?' placeholders.
	BindType() int

	// Quote quotes a single identifier.
	Quote(name string) string

	// Types returns the column types for this engine.
	Types() ColumnTypes

	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool

	// SupportsSchemas reports whether tables can be qualified with a schema.
	SupportsSchemas() bool

	// IsUniqueViolation reports whether err is a unique or primary key violation.
	IsUniqueViolation(err error) bool

	// Upsert builds an insert that replaces cols when key conflicts.
	Upsert(table, key string, cols []string) string

	// UpsertIfNewer builds an insert that replaces cols when key conflicts and
	// the incoming version column is greater than the stored one.
	UpsertIfNewer(table, bareTable, key, version string, cols []string) string

	// InsertIgnore builds an insert that does nothing on conflict.
	InsertIgnore(table string, cols []string) string

	// CreateIndex builds an idempotent CREATE INDEX statement, or "" when the
	// engine cannot express one.
	CreateIndex(name, table string, cols ...string) string
}

// InsertStatement builds "INSERT INTO table (cols) VALUES (?, ...)".
func InsertStatement(quote func(string) string, table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// OnConflictUpsert builds the ANSI-style upsert shared by PostgreSQL and SQLite.
func OnConflictUpsert(quote func(string) string, table, key string, cols []string) string {
	return InsertStatement(quote, table, cols) +
		fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", quote(key), excludedSet(quote, key, cols))
}

// OnConflictUpsertIfNewer is OnConflictUpsert guarded by a version comparison.
func OnConflictUpsertIfNewer(quote func(string) string, table, bareTable, key, version string, cols []string) string {
	return OnConflictUpsert(quote, table, key, cols) +
		fmt.Sprintf(" WHERE %s.%s < excluded.%s", quote(bareTable), quote(version), quote(version))
}

// OnConflictIgnore builds an insert that skips conflicting rows.
func OnConflictIgnore(quote func(string) string, table string, cols []string) string {
	return InsertStatement(quote, table, cols) + " ON CONFLICT DO NOTHING"
}

func excludedSet(quote func(string) string, key string, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
	}
	return strings.Join(sets, ", ")
}

// QuoteDouble quotes an identifier with double quotes.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateIndexIfNotExists builds the CREATE INDEX IF NOT EXISTS statement shared
// by PostgreSQL and SQLite.
func CreateIndexIfNotExists(quote func(string) string, name, table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", quote(name), table, strings.Join(quoted, ", "))
}
