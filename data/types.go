// Package data provides storage access for the directory: connections,
// SQL dialects, row scanning and schema bootstrap.
package data

import (
	"context"
	"database/sql"
)

// Table names of the directory schema.
const (
	TableEntries           = "entries"
	TableAddresses         = "entry_addresses"
	TablePhones            = "entry_phones"
	TableEmails            = "entry_emails"
	TableDates             = "entry_dates"
	TableMeta              = "entry_meta"
	TableTerms             = "terms"
	TableTermTaxonomy      = "term_taxonomy"
	TableTermRelationships = "term_relationships"

	// FTSSuffix names the SQLite full-text index of a table ({table}_fts).
	FTSSuffix = "_fts"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "pgx"
)

// Executor is an interface that both *sql.DB and *sql.Tx implement.
// This allows query methods to work with either a direct connection or a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Database is an open directory store.
type Database struct {
	Client  *sql.DB  // SQL database connection
	Exec    Executor // Executor used for queries (defaults to Client)
	Dialect Dialect  // SQL flavor of the connected store
}

// Row is one result row keyed by column name.
type Row = map[string]any

// Scored is an entry id with an optional relevance score.
type Scored struct {
	ID    int64
	Score *float64
}
