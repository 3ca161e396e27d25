package sqlstore

import (
	"fmt"
	"strings"

	"github.com/AshkanYarmoradi/go-ledger/adapters"
)

// BaseDDL returns the statements that create the event table and the
// projection bookkeeping tables.
func BaseDDL(d Dialect, schema, events string) []string {
	t := d.Types()
	q := d.Quote
	var stmts []string

	if schema != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", q(schema)))
	}

	stmts = append(stmts, createTable(qualify(d, schema, events),
		fmt.Sprintf("%s %s", q("id"), t.Serial),
		fmt.Sprintf("%s %s NOT NULL", q("aggregate_id"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("aggregate_version"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("name"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("schema_version"), t.Int),
		fmt.Sprintf("%s %s NOT NULL", q("body"), t.JSON),
		fmt.Sprintf("%s %s NOT NULL", q("recorded_at"), t.Time),
		fmt.Sprintf("UNIQUE (%s, %s)", q("aggregate_id"), q("aggregate_version")),
	))
	if idx := d.CreateIndex("idx_"+events+"_name", qualify(d, schema, events), "name", "id"); idx != "" {
		stmts = append(stmts, idx)
	}

	stmts = append(stmts, createTable(qualify(d, schema, DefaultCheckpointsTable),
		fmt.Sprintf("%s %s PRIMARY KEY", q("projection_name"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("position"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("updated_at"), t.Time),
	))

	stmts = append(stmts, createTable(qualify(d, schema, DefaultCursorsTable),
		fmt.Sprintf("%s %s PRIMARY KEY", q("table_name"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("last_event_id"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("row_count"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("created_at"), t.Time),
	))

	return stmts
}

// StateDDL returns the statement creating an aggregate state table.
func StateDDL(d Dialect, schema, table string) []string {
	t := d.Types()
	q := d.Quote
	return []string{createTable(qualify(d, schema, table),
		fmt.Sprintf("%s %s PRIMARY KEY", q("aggregate_id"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("aggregate_version"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("state"), t.JSON),
		fmt.Sprintf("%s %s NOT NULL", q("updated_at"), t.Time),
	)}
}

// SnapshotDDL returns the statement creating an aggregate snapshot table.
func SnapshotDDL(d Dialect, schema, table string) []string {
	t := d.Types()
	q := d.Quote
	return []string{createTable(qualify(d, schema, table),
		fmt.Sprintf("%s %s NOT NULL", q("aggregate_id"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("aggregate_version"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("state"), t.JSON),
		fmt.Sprintf("%s %s NOT NULL", q("created_at"), t.Time),
		fmt.Sprintf("PRIMARY KEY (%s, %s)", q("aggregate_id"), q("aggregate_version")),
	)}
}

// ReadModelDDL returns the statements creating a read-model table and its snapshot twin.
func ReadModelDDL(d Dialect, schema, table string) []string {
	t := d.Types()
	q := d.Quote
	columns := []string{
		fmt.Sprintf("%s %s PRIMARY KEY", q("id"), t.Key),
		fmt.Sprintf("%s %s NOT NULL", q("version"), t.BigInt),
		fmt.Sprintf("%s %s NOT NULL", q("data"), t.JSON),
		fmt.Sprintf("%s %s NOT NULL", q("updated_at"), t.Time),
	}
	return []string{
		createTable(qualify(d, schema, table), columns...),
		createTable(qualify(d, schema, adapters.SnapshotTable(table)), columns...),
	}
}

func createTable(name string, columns ...string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", name, strings.Join(columns, ",\n    "))
}
