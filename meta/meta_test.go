package meta

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, q Query) (joins []string, where string, args []any, aliases []string) {
	t.Helper()
	frag, err := NewBuilder(data.SQLite).Compile(q, "entries", "id")
	require.NoError(t, err)

	for _, j := range frag.Joins {
		s, a, err := j.ToSql()
		require.NoError(t, err)
		joins = append(joins, s)
		args = append(args, a...)
	}
	if frag.Where != nil {
		s, a, err := frag.Where.ToSql()
		require.NoError(t, err)
		where = s
		args = append(args, a...)
	}
	return joins, where, args, frag.Aliases
}

func TestCompile_Empty(t *testing.T) {
	frag, err := NewBuilder(data.SQLite).Compile(Query{}, "entries", "id")
	require.NoError(t, err)
	assert.Nil(t, frag.Where)
	assert.Empty(t, frag.Joins)
}

func TestCompile_AndAliases(t *testing.T) {
	joins, where, args, aliases := compile(t, Query{Clauses: []Clause{
		{Key: "color"},
		{Key: "size", Value: "10", Type: TypeNumeric, Compare: ">="},
		{Key: "shift", Value: []string{"am", "pm"}},
	}})

	assert.Equal(t, []string{
		"INNER JOIN entry_meta ON (entries.id = entry_meta.entry_id)",
		"INNER JOIN entry_meta AS mt1 ON (entries.id = mt1.entry_id)",
		"INNER JOIN entry_meta AS mt2 ON (entries.id = mt2.entry_id)",
	}, joins)
	assert.Equal(t, []string{"entry_meta", "mt1", "mt2"}, aliases)
	assert.Equal(t,
		"((entry_meta.meta_key = ?) AND (mt1.meta_key = ? AND CAST(mt1.meta_value AS REAL) >= ?) AND (mt2.meta_key = ? AND mt2.meta_value IN (?,?)))",
		where)
	assert.Equal(t, []any{"color", "size", "10", "shift", "am", "pm"}, args)
}

func TestCompile_OrSharesJoin(t *testing.T) {
	joins, where, args, aliases := compile(t, Query{Relation: "or", Clauses: []Clause{
		{Key: "nickname", Value: "jo", Compare: Like},
		{Key: "pet", Value: "jo", Compare: Like},
	}})

	assert.Len(t, joins, 1)
	assert.Equal(t, []string{"entry_meta", "entry_meta"}, aliases)
	assert.Equal(t,
		`((entry_meta.meta_key = ? AND entry_meta.meta_value LIKE ? ESCAPE '\') OR (entry_meta.meta_key = ? AND entry_meta.meta_value LIKE ? ESCAPE '\'))`,
		where)
	assert.Equal(t, []any{"nickname", "%jo%", "pet", "%jo%"}, args)
}

func TestCompile_NotExists(t *testing.T) {
	joins, where, args, _ := compile(t, Query{Clauses: []Clause{{Key: "deceased", Compare: NotExists}}})

	assert.Equal(t, []string{"LEFT JOIN entry_meta ON (entries.id = entry_meta.entry_id AND entry_meta.meta_key = ?)"}, joins)
	assert.Equal(t, "(entry_meta.entry_id IS NULL)", where)
	assert.Equal(t, []any{"deceased"}, args)
}

func TestCompile_Errors(t *testing.T) {
	_, err := NewBuilder(data.SQLite).Compile(Query{Clauses: []Clause{{}}}, "entries", "id")
	assert.Error(t, err)

	_, err = NewBuilder(data.SQLite).Compile(Query{Clauses: []Clause{{Key: "k", Value: 1, Compare: "REGEXP"}}}, "entries", "id")
	assert.Error(t, err)
}

func TestCompile_Executes(t *testing.T) {
	ctx := context.Background()
	db, err := data.Open(ctx, data.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))

	for _, stmt := range []string{
		"INSERT INTO entries (id, first_name) VALUES (1, 'a'), (2, 'b'), (3, 'c')",
		"INSERT INTO entry_meta (entry_id, meta_key, meta_value) VALUES (1, 'color', 'red'), (2, 'color', 'blue'), (2, 'size', '12')",
	} {
		_, err := db.ExecStatement(ctx, stmt)
		require.NoError(t, err)
	}

	frag, err := NewBuilder(db.Dialect).Compile(Query{Clauses: []Clause{
		{Key: "color"},
		{Key: "size", Value: 10, Type: TypeNumeric, Compare: Greater},
	}}, "entries", "id")
	require.NoError(t, err)

	qb := sq.Select("entries.id").From("entries").Where(frag.Where)
	for _, j := range frag.Joins {
		qb = qb.JoinClause(j)
	}
	query, args, err := qb.ToSql()
	require.NoError(t, err)

	got, err := db.QueryScored(ctx, query, args...)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestCompile_Prefix(t *testing.T) {
	b := NewBuilder(data.SQLite)
	b.Prefix = "om"
	frag, err := b.Compile(Query{Clauses: []Clause{{Key: "floor"}, {Key: "room"}}}, "entries", "id")
	require.NoError(t, err)

	assert.Equal(t, []string{"om1", "om2"}, frag.Aliases)
	sql, _, err := frag.Joins[0].ToSql()
	require.NoError(t, err)
	assert.Equal(t, "INNER JOIN entry_meta AS om1 ON (entries.id = om1.entry_id)", sql)
}
