// Package testutil provides backends and fixtures for integration testing.
//
// SQL backends other than SQLite need a running server. Set TEST_DATABASE_URL
// to a PostgreSQL URL and TEST_MYSQL_URL to a MySQL DSN to enable them; tests
// asking for an unset backend are skipped.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
	"github.com/AshkanYarmoradi/go-ledger/adapters/mysql"
	"github.com/AshkanYarmoradi/go-ledger/adapters/postgres"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlite"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
)

// Environment variables naming integration databases.
const (
	EnvPostgresURL = "TEST_DATABASE_URL"
	EnvMySQLURL    = "TEST_MYSQL_URL"
)

var seq atomic.Int64

// UniqueName returns an identifier unique within the test binary.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%1_000_000_000, seq.Add(1))
}

// requireEnv returns the variable or skips the test.
func requireEnv(t testing.TB, key string) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set, skipping integration test", key)
	}
	return v
}

// Memory returns an initialized in-memory backend.
func Memory(t testing.TB) *memory.MemoryAdapter {
	t.Helper()

	adapter := memory.NewAdapter()
	require.NoError(t, adapter.Initialize(context.Background()))
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

// SQLite returns an initialized backend on a file in the test's temp dir.
func SQLite(t testing.TB) *sqlite.SQLiteAdapter {
	t.Helper()

	adapter, err := sqlite.NewAdapter(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	require.NoError(t, adapter.Initialize(context.Background()))
	return adapter
}

// Postgres returns an initialized backend in a throwaway schema, dropped on cleanup.
func Postgres(t testing.TB) *postgres.PostgresAdapter {
	t.Helper()

	url := requireEnv(t, EnvPostgresURL)
	schema := UniqueName("test")

	adapter, err := postgres.NewAdapter(url, sqlstore.WithSchema(schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = adapter.DB().Exec("DROP SCHEMA IF EXISTS " + postgres.Dialect{}.Quote(schema) + " CASCADE")
		_ = adapter.Close()
	})
	require.NoError(t, adapter.Initialize(context.Background()))
	return adapter
}

// MySQL returns an initialized backend with its own event table. MySQL has
// no schemas, so tests sharing a database must use distinct table names.
func MySQL(t testing.TB) *mysql.MySQLAdapter {
	t.Helper()

	dsn := requireEnv(t, EnvMySQLURL)
	events := UniqueName("events")

	adapter, err := mysql.NewAdapter(dsn, sqlstore.WithEventsTable(events))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = adapter.DB().Exec("DROP TABLE IF EXISTS " + mysql.Dialect{}.Quote(events))
		_ = adapter.Close()
	})
	require.NoError(t, adapter.Initialize(context.Background()))
	return adapter
}

// BackendFactory creates a fresh backend for one test.
type BackendFactory struct {
	Name string
	New  func(t testing.TB) adapters.Backend
}

// Backends lists every backend. Server-backed ones skip when unconfigured.
func Backends() []BackendFactory {
	return []BackendFactory{
		{Name: "memory", New: func(t testing.TB) adapters.Backend { return Memory(t) }},
		{Name: "sqlite", New: func(t testing.TB) adapters.Backend { return SQLite(t) }},
		{Name: "postgres", New: func(t testing.TB) adapters.Backend { return Postgres(t) }},
		{Name: "mysql", New: func(t testing.TB) adapters.Backend { return MySQL(t) }},
	}
}

// ForEachBackend runs fn as a subtest against every backend.
func ForEachBackend(t *testing.T, fn func(t *testing.T, backend adapters.Backend)) {
	for _, b := range Backends() {
		b := b
		t.Run(b.Name, func(t *testing.T) {
			fn(t, b.New(t))
		})
	}
}
