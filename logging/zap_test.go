package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AshkanYarmoradi/go-ledger"
	"github.com/AshkanYarmoradi/go-ledger/adapters/memory"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		"INFO":    zap.InfoLevel,
		"warn":    zap.WarnLevel,
		"warning": zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"bogus":   zap.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewZap(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := NewZap("debug", format)
		require.NoError(t, err)
		l.Debug("Started", "format", format)
	}
}

func TestZap_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core)).With("component", "test")

	l.Debug("Appended events", "aggregate_id", "car-1", "count", 2)
	l.Info("Rebuilt projection", "projection", "car_view")
	l.Warn("Concurrency conflict on append", "version", int64(3))
	l.Error("Failed to save aggregate", "error", "boom")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[3].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "car-1", fields["aggregate_id"])
	assert.Equal(t, int64(2), fields["count"])
	assert.Equal(t, "test", fields["component"])
}

func TestZap_WithEventStore(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := ledger.New(memory.NewAdapter(), ledger.WithLogger(New(zap.New(core))))
	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))

	write := func() error {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()
		if _, err := store.Append(ctx, tx, "a-1", []ledger.Event{
			{Name: "Opened", AggregateVersion: 1, Payload: map[string]string{}},
		}); err != nil {
			return err
		}
		return tx.Commit()
	}
	require.NoError(t, write())
	require.ErrorIs(t, write(), ledger.ErrConcurrencyConflict)

	conflicts := logs.FilterMessage("Concurrency conflict on append").All()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "a-1", conflicts[0].ContextMap()["aggregate_id"])
}
