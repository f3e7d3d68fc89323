//go:build sqlite_fts5

package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Full-Text Tests - Require FTS5 compiled into go-sqlite3
//
// Run with: go test -tags sqlite_fts5 ./data/... ./search/... -v
// =============================================================================

func openFTSDB(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecStatement(ctx, `INSERT INTO entries (id, first_name, last_name) VALUES
		(1, 'John', 'Smith'), (2, 'Joanna', 'Reyes'), (3, 'Bob', 'Jones')`)
	require.NoError(t, err)
	require.NoError(t, db.CreateFullTextIndex(ctx, TableEntries, []string{"first_name", "last_name"}))
	return db
}

func matchIDs(t *testing.T, db *Database, expr string) []int64 {
	t.Helper()
	query, args, err := SQLite.FullTextSelect(TableEntries, "id", []string{"first_name", "last_name"}, expr).ToSql()
	require.NoError(t, err)

	rows, err := db.QueryScored(context.Background(), query, args...)
	require.NoError(t, err)

	ids := make([]int64, len(rows))
	for i, r := range rows {
		require.NotNil(t, r.Score)
		ids[i] = r.ID
	}
	return ids
}

func TestCreateFullTextIndex(t *testing.T) {
	db := openFTSDB(t)

	// Rows written after the index exists reach it through the triggers
	_, err := db.ExecStatement(context.Background(),
		"INSERT INTO entries (id, first_name, last_name) VALUES (4, 'Ann', 'Bobson')")
	require.NoError(t, err)

	assert.Equal(t, []int64{4}, matchIDs(t, db, SQLite.FullTextQuery([]string{"Bobson"})))
}

func TestFullTextQuery_MatchesAcrossColumns(t *testing.T) {
	db := openFTSDB(t)

	tests := []struct {
		name  string
		terms []string
		want  []int64
	}{
		{"first then last", []string{"John Smith", "John", "Smith"}, []int64{1}},
		{"last then first", []string{"Smith John", "Smith", "John"}, []int64{1}},
		{"one column", []string{"Jones"}, []int64{3}},
		{"no entry has both", []string{"John Reyes", "John", "Reyes"}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchIDs(t, db, SQLite.FullTextQuery(tt.terms)))
		})
	}
}
