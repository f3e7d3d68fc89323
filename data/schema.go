package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/atomicbase/directory/tools"
)

// schemaStatements bootstraps an empty store. It is not a migration system:
// every statement is idempotent and existing tables are left untouched.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY,
		ts TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		date_added INTEGER NOT NULL DEFAULT 0,
		entry_type TEXT NOT NULL DEFAULT 'individual',
		visibility TEXT NOT NULL DEFAULT 'public',
		status TEXT NOT NULL DEFAULT 'approved',
		slug TEXT NOT NULL DEFAULT '',
		family_name TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		middle_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		organization TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		contact_first_name TEXT NOT NULL DEFAULT '',
		contact_last_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_slug ON entries(slug)`,
	`CREATE TABLE IF NOT EXISTS entry_addresses (
		id INTEGER PRIMARY KEY,
		entry_id INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		line_1 TEXT NOT NULL DEFAULT '',
		line_2 TEXT NOT NULL DEFAULT '',
		line_3 TEXT NOT NULL DEFAULT '',
		line_4 TEXT NOT NULL DEFAULT '',
		district TEXT NOT NULL DEFAULT '',
		county TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zipcode TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		latitude REAL,
		longitude REAL,
		visibility TEXT NOT NULL DEFAULT 'public'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_addresses_entry ON entry_addresses(entry_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_addresses_coords ON entry_addresses(latitude, longitude)`,
	`CREATE TABLE IF NOT EXISTS entry_phones (
		id INTEGER PRIMARY KEY,
		entry_id INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		number TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_phones_entry ON entry_phones(entry_id)`,
	`CREATE TABLE IF NOT EXISTS entry_emails (
		id INTEGER PRIMARY KEY,
		entry_id INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_emails_address ON entry_emails(address)`,
	`CREATE TABLE IF NOT EXISTS entry_dates (
		id INTEGER PRIMARY KEY,
		entry_id INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_dates_type ON entry_dates(type)`,
	`CREATE TABLE IF NOT EXISTS entry_meta (
		meta_id INTEGER PRIMARY KEY,
		entry_id INTEGER NOT NULL,
		meta_key TEXT NOT NULL DEFAULT '',
		meta_value TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entry_meta_key ON entry_meta(meta_key)`,
	`CREATE TABLE IF NOT EXISTS terms (
		term_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		slug TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS term_taxonomy (
		term_taxonomy_id INTEGER PRIMARY KEY,
		term_id INTEGER NOT NULL,
		taxonomy TEXT NOT NULL,
		parent INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_term_taxonomy_term ON term_taxonomy(term_id, taxonomy)`,
	`CREATE TABLE IF NOT EXISTS term_relationships (
		entry_id INTEGER NOT NULL,
		term_taxonomy_id INTEGER NOT NULL,
		PRIMARY KEY (entry_id, term_taxonomy_id)
	)`,
}

// EnsureSchema creates the directory tables when they are missing.
func (dao *Database) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := ExecContextWithRetry(ctx, dao.Client, dao.Dialect.DDL(stmt)); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// CreateFullTextIndex creates an FTS5 virtual table for full-text search on the specified columns.
// The FTS table is named {table}_fts and uses external content mode to sync with the source table.
// PostgreSQL computes its tsvector inline, so only SQLite stores need the index.
func (dao *Database) CreateFullTextIndex(ctx context.Context, table string, columns []string) error {
	if dao.Dialect != SQLite {
		return nil
	}
	if len(columns) == 0 {
		return fmt.Errorf("at least one column is required for FTS index")
	}
	if err := tools.ValidateIdentifier(table); err != nil {
		return err
	}
	for _, c := range columns {
		if err := tools.ValidateColumnName(c); err != nil {
			return err
		}
	}

	ftsTable := table + FTSSuffix
	columnList := strings.Join(columns, ", ")
	quotedColumns := "[" + strings.Join(columns, "], [") + "]"

	// Build new. and old. prefixed column lists for triggers
	newColumns := "new.[" + strings.Join(columns, "], new.[") + "]"
	oldColumns := "old.[" + strings.Join(columns, "], old.[") + "]"

	stmts := []string{
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS [%s] USING fts5(%s, content='%s', content_rowid='rowid')`,
			ftsTable, columnList, table),
		fmt.Sprintf(`INSERT INTO [%s](rowid, %s) SELECT rowid, %s FROM [%s]`,
			ftsTable, quotedColumns, quotedColumns, table),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS [%s_fts_insert] AFTER INSERT ON [%s] BEGIN
			INSERT INTO [%s](rowid, %s) VALUES (new.rowid, %s);
		END`, table, table, ftsTable, quotedColumns, newColumns),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS [%s_fts_delete] AFTER DELETE ON [%s] BEGIN
			INSERT INTO [%s]([%s], rowid, %s) VALUES('delete', old.rowid, %s);
		END`, table, table, ftsTable, ftsTable, quotedColumns, oldColumns),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS [%s_fts_update] AFTER UPDATE ON [%s] BEGIN
			INSERT INTO [%s]([%s], rowid, %s) VALUES('delete', old.rowid, %s);
			INSERT INTO [%s](rowid, %s) VALUES (new.rowid, %s);
		END`, table, table, ftsTable, ftsTable, quotedColumns, oldColumns, ftsTable, quotedColumns, newColumns),
	}

	for _, stmt := range stmts {
		if _, err := ExecContextWithRetry(ctx, dao.Client, stmt); err != nil {
			return fmt.Errorf("failed to create FTS index on %s: %w", table, err)
		}
	}
	return nil
}
