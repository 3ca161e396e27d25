package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
	"github.com/AshkanYarmoradi/go-ledger/adapters/adaptertest"
	"github.com/AshkanYarmoradi/go-ledger/adapters/sqlstore"
)

func newTestAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()

	adapter, err := NewAdapter(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	require.NoError(t, adapter.Initialize(context.Background()))
	return adapter
}

func TestSQLiteAdapter_Conformance(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) adapters.Backend {
		return newTestAdapter(t)
	})
}

func TestSQLiteAdapter_Initialize(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		assert.NoError(t, adapter.Initialize(ctx))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, adapter.Ping(ctx))
	})

	t.Run("schema option is ignored", func(t *testing.T) {
		other, err := NewAdapter(filepath.Join(t.TempDir(), "other.db"), sqlstore.WithSchema("ledger"))
		require.NoError(t, err)
		defer other.Close()

		assert.Empty(t, other.Schema())
		assert.NoError(t, other.Initialize(ctx))
	})

	t.Run("rejects invalid table name", func(t *testing.T) {
		_, err := NewAdapter(filepath.Join(t.TempDir(), "bad.db"), sqlstore.WithEventsTable("events; DROP"))
		assert.ErrorIs(t, err, adapters.ErrInvalidIdentifier)
	})
}

func TestSQLiteAdapter_ConcurrencyConflict(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	adaptertest.Commit(t, adapter, adaptertest.Records("order-1", 1, "OrderPlaced"))

	tx, err := adapter.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.AppendEvents(ctx, adaptertest.Records("order-1", 1, "OrderApproved"))
	assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), `"order-1"`)
}

func TestSQLiteAdapter_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	first, err := NewAdapter(path)
	require.NoError(t, err)
	require.NoError(t, first.Initialize(ctx))
	adaptertest.Commit(t, first, adaptertest.Records("car-1", 1, "CarRegistered", "MileageRecorded"))
	require.NoError(t, first.Close())

	second, err := NewAdapter(path)
	require.NoError(t, err)
	defer second.Close()

	events, err := second.Load(ctx, "car-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "MileageRecorded", events[1].Name)
	assert.JSONEq(t, `{"n":1}`, string(events[1].Body))
	assert.False(t, events[1].RecordedAt.IsZero())
}

func TestDialect_IsUniqueViolation(t *testing.T) {
	d := Dialect{}

	assert.False(t, d.IsUniqueViolation(nil))
	assert.False(t, d.IsUniqueViolation(errors.New("disk I/O error")))
	assert.True(t, d.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: events.aggregate_id")))
}

func TestDialect_Statements(t *testing.T) {
	d := Dialect{}

	assert.Equal(t,
		`INSERT INTO "cars" ("aggregate_id", "state") VALUES (?, ?) ON CONFLICT ("aggregate_id") DO UPDATE SET "state" = excluded."state"`,
		d.Upsert(`"cars"`, "aggregate_id", []string{"aggregate_id", "state"}))
	assert.Equal(t,
		`INSERT INTO "orders" ("id", "version") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "version" = excluded."version" WHERE "orders"."version" < excluded."version"`,
		d.UpsertIfNewer(`"orders"`, "orders", "id", "version", []string{"id", "version"}))
	assert.Equal(t,
		`INSERT INTO "cars_snapshots" ("aggregate_id") VALUES (?) ON CONFLICT DO NOTHING`,
		d.InsertIgnore(`"cars_snapshots"`, []string{"aggregate_id"}))
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/ledger.db")
	assert.True(t, strings.HasPrefix(dsn, "/tmp/ledger.db?"))
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
	assert.Contains(t, dsn, "_txlock=immediate")

	assert.NotContains(t, DSN(":memory:"), "journal_mode")
	assert.Equal(t, "file:x.db?mode=ro", DSN("file:x.db?mode=ro"))
}

func TestDDL_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	d := Dialect{}

	g.Assert(t, "base_ddl", script(sqlstore.BaseDDL(d, "", sqlstore.DefaultEventsTable)))
	g.Assert(t, "read_model_ddl", script(sqlstore.ReadModelDDL(d, "", "orders")))
	g.Assert(t, "state_ddl", script(append(
		sqlstore.StateDDL(d, "", "cars"),
		sqlstore.SnapshotDDL(d, "", "cars_snapshots")...,
	)))
}

func script(stmts []string) []byte {
	return []byte(strings.Join(stmts, ";\n\n") + ";\n")
}
