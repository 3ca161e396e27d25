// ledger is the command-line interface for the go-ledger persistence engine.
//
// Usage:
//
//	ledger <command> [flags]
//
// Commands:
//
//	init        Write a ledger.yaml configuration
//	migrate     Create the event log, state, snapshot and read model tables
//	schema      Print the SQL schema for the configured driver
//	events      Inspect the event log
//	aggregate   Hydrate and print aggregates
//	snapshot    Take aggregate snapshots
//	projection  Inspect, catch up, snapshot, restore and rebuild read models
//	version     Show version information
//
// Examples:
//
//	# Configure a PostgreSQL database and create its tables
//	ledger init --driver=postgres --url='${DATABASE_URL}'
//	ledger migrate
//
//	# Inspect a car as it was after its third event
//	ledger aggregate show car 2f1c8e0a --at=3
//
//	# Replay the log into every read model
//	ledger projection rebuild --all --yes
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-ledger/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
