package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

var eventColumns = []string{"aggregate_id", "aggregate_version", "name", "schema_version", "body", "recorded_at"}

type eventRow struct {
	ID               int64     `db:"id"`
	AggregateID      string    `db:"aggregate_id"`
	AggregateVersion int64     `db:"aggregate_version"`
	Name             string    `db:"name"`
	SchemaVersion    int       `db:"schema_version"`
	Body             []byte    `db:"body"`
	RecordedAt       time.Time `db:"recorded_at"`
}

func (r eventRow) stored() adapters.StoredEvent {
	return adapters.StoredEvent{
		ID:               r.ID,
		Name:             r.Name,
		SchemaVersion:    r.SchemaVersion,
		AggregateID:      r.AggregateID,
		AggregateVersion: r.AggregateVersion,
		Body:             r.Body,
		RecordedAt:       r.RecordedAt,
	}
}

func toStored(rows []eventRow) []adapters.StoredEvent {
	events := make([]adapters.StoredEvent, len(rows))
	for i, r := range rows {
		events[i] = r.stored()
	}
	return events
}

func (s *Store) selectEvents() string {
	return fmt.Sprintf(`SELECT id, aggregate_id, aggregate_version, name, schema_version, body, recorded_at FROM %s`,
		s.table(s.events))
}

// Load retrieves the events of one aggregate after afterVersion.
func (s *Store) Load(ctx context.Context, aggregateID string, afterVersion int64) ([]adapters.StoredEvent, error) {
	if s.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	if aggregateID == "" {
		return nil, adapters.ErrEmptyAggregateID
	}

	var rows []eventRow
	query := s.rebind(s.selectEvents() + ` WHERE aggregate_id = ? AND aggregate_version > ? ORDER BY aggregate_version`)
	if err := s.db.SelectContext(ctx, &rows, query, aggregateID, afterVersion); err != nil {
		return nil, s.errorf("failed to load events", err)
	}
	return toStored(rows), nil
}

// LoadByNames pages through the event log by id, filtered by event name.
func (s *Store) LoadByNames(ctx context.Context, names []string, afterID int64, limit int) ([]adapters.StoredEvent, error) {
	if s.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}
	limit = adapters.NormalizeLimit(limit)

	var (
		query string
		args  []interface{}
		err   error
	)
	if len(names) == 0 {
		query = s.selectEvents() + ` WHERE id > ? ORDER BY id LIMIT ?`
		args = []interface{}{afterID, limit}
	} else {
		query, args, err = sqlx.In(s.selectEvents()+` WHERE id > ? AND name IN (?) ORDER BY id LIMIT ?`, afterID, names, limit)
		if err != nil {
			return nil, s.errorf("failed to build event query", err)
		}
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, s.errorf("failed to load events by name", err)
	}
	return toStored(rows), nil
}

// LastEventID returns the highest event id.
func (s *Store) LastEventID(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, adapters.ErrAdapterClosed
	}

	var id sql.NullInt64
	if err := s.db.GetContext(ctx, &id, fmt.Sprintf(`SELECT MAX(id) FROM %s`, s.table(s.events))); err != nil {
		return 0, s.errorf("failed to get last event id", err)
	}
	return id.Int64, nil
}

// BeginTx starts a database transaction.
func (s *Store) BeginTx(ctx context.Context) (adapters.Tx, error) {
	if s.closed.Load() {
		return nil, adapters.ErrAdapterClosed
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, s.errorf("failed to begin transaction", err)
	}
	return &sqlTx{store: s, tx: tx}, nil
}

type sqlTx struct {
	store *Store
	tx    *sqlx.Tx
}

func (t *sqlTx) AppendEvents(ctx context.Context, records []adapters.EventRecord) ([]adapters.StoredEvent, error) {
	if len(records) == 0 {
		return nil, adapters.ErrNoEvents
	}
	if err := adapters.ValidateRecords(records[0].AggregateID, records); err != nil {
		return nil, err
	}

	s := t.store
	insert := InsertStatement(s.dialect.Quote, s.table(s.events), eventColumns)
	if s.dialect.SupportsReturning() {
		insert += " RETURNING " + s.dialect.Quote("id")
	}
	insert = s.rebind(insert)

	stored := make([]adapters.StoredEvent, len(records))
	for i, r := range records {
		recordedAt := s.now()
		args := []interface{}{r.AggregateID, r.AggregateVersion, r.Name, r.SchemaVersion, string(r.Body), recordedAt}

		id, err := t.insert(ctx, insert, args)
		if err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return nil, fmt.Errorf("%w: aggregate %q version %d",
					adapters.ErrConcurrencyConflict, r.AggregateID, r.AggregateVersion)
			}
			return nil, s.errorf("failed to insert event", err)
		}

		stored[i] = adapters.StoredEvent{
			ID:               id,
			Name:             r.Name,
			SchemaVersion:    r.SchemaVersion,
			AggregateID:      r.AggregateID,
			AggregateVersion: r.AggregateVersion,
			Body:             r.Body,
			RecordedAt:       recordedAt,
		}
	}
	return stored, nil
}

func (t *sqlTx) insert(ctx context.Context, query string, args []interface{}) (int64, error) {
	if t.store.dialect.SupportsReturning() {
		var id int64
		err := t.tx.QueryRowxContext(ctx, query, args...).Scan(&id)
		return id, err
	}

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqlTx) UpsertState(ctx context.Context, table string, record adapters.StateRecord) error {
	if record.AggregateID == "" {
		return adapters.ErrEmptyAggregateID
	}
	if err := adapters.ValidateIdentifier(table); err != nil {
		return err
	}

	s := t.store
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.now()
	}
	query := s.rebind(s.dialect.Upsert(s.table(table), "aggregate_id", stateColumns))
	_, err := t.tx.ExecContext(ctx, query,
		record.AggregateID, record.AggregateVersion, string(record.State), record.UpdatedAt)
	if err != nil {
		return s.errorf("failed to upsert state", err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return adapters.ErrTxDone
		}
		if t.store.dialect.IsUniqueViolation(err) {
			return adapters.ErrConcurrencyConflict
		}
		return t.store.errorf("failed to commit transaction", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return t.store.errorf("failed to roll back transaction", err)
	}
	return nil
}
