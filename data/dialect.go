package data

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect isolates the SQL differences between the supported stores.
// Statements are built with '?' placeholders and rebound at execution time.
type Dialect interface {
	Name() string
	// Rebind rewrites '?' placeholders into the store's format.
	Rebind(query string) (string, error)
	// Distinct reports whether grouped list queries may also use SELECT DISTINCT.
	Distinct() bool
	// Grouped wraps a projected or ordered expression that is not functionally
	// dependent on the grouped entry id.
	Grouped(expr string) string
	Numeric(expr string) string
	// Like is the case-insensitive pattern operator.
	Like() string
	// RandomOrder returns a seeded pseudo-random ordering key over column.
	RandomOrder(column string, seed int64) sq.Sqlizer
	// FullTextQuery joins terms into an all-required match expression.
	FullTextQuery(terms []string) string
	// FullTextSelect selects (id, score) rows of table matching expr over columns,
	// best match first.
	FullTextSelect(table, idColumn string, columns []string, expr string) sq.SelectBuilder
	// DDL adapts the bootstrap schema statements.
	DDL(stmt string) string
}

var (
	// SQLite serves both the local go-sqlite3 driver and remote libSQL databases.
	SQLite Dialect = sqliteDialect{}
	// Postgres serves the pgx driver.
	Postgres Dialect = postgresDialect{}
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Rebind(query string) (string, error) { return query, nil }

func (sqliteDialect) Distinct() bool { return true }

func (sqliteDialect) Grouped(expr string) string { return expr }

func (sqliteDialect) Numeric(expr string) string { return "CAST(" + expr + " AS REAL)" }

func (sqliteDialect) Like() string { return "LIKE" }

func (sqliteDialect) RandomOrder(column string, seed int64) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("ABS((%s * 2654435761 + ?) %% 4294967291)", column), seed)
}

// FTS5 phrases never span columns, so a multi-word term matches either as a
// phrase or as all of its words.
func (sqliteDialect) FullTextQuery(terms []string) string {
	quote := func(t string) string { return `"` + strings.ReplaceAll(t, `"`, `""`) + `"` }
	return fullTextQuery(terms, quote, " AND ", " OR ")
}

func (sqliteDialect) FullTextSelect(table, idColumn string, columns []string, expr string) sq.SelectBuilder {
	fts := table + FTSSuffix
	match := fmt.Sprintf("{%s} : (%s)", strings.Join(columns, " "), expr)
	return sq.Select(
		fmt.Sprintf("src.%s AS id", idColumn),
		fmt.Sprintf("-bm25(%s) AS score", fts),
	).
		From(fts).
		Join(fmt.Sprintf("%s AS src ON src.rowid = %s.rowid", table, fts)).
		Where(fts+" MATCH ?", match).
		OrderBy("score DESC")
}

func (sqliteDialect) DDL(stmt string) string { return stmt }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rebind(query string) (string, error) {
	return sq.Dollar.ReplacePlaceholders(query)
}

// Postgres rejects ORDER BY expressions missing from a DISTINCT select list;
// GROUP BY on the primary key already collapses duplicates.
func (postgresDialect) Distinct() bool { return false }

func (postgresDialect) Grouped(expr string) string { return "MIN(" + expr + ")" }

func (postgresDialect) Numeric(expr string) string {
	return fmt.Sprintf("CAST(NULLIF(regexp_replace((%s)::text, '[^0-9.-]', '', 'g'), '') AS NUMERIC)", expr)
}

func (postgresDialect) Like() string { return "ILIKE" }

func (postgresDialect) RandomOrder(column string, seed int64) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("md5((%s)::text || ?)", column), strconv.FormatInt(seed, 10))
}

func (postgresDialect) FullTextQuery(terms []string) string {
	quote := func(t string) string { return "'" + strings.ReplaceAll(t, "'", "''") + "'" }
	return fullTextQuery(terms, quote, " & ", " | ")
}

func (postgresDialect) FullTextSelect(table, idColumn string, columns []string, expr string) sq.SelectBuilder {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = "src." + c
	}
	doc := fmt.Sprintf("to_tsvector('simple', concat_ws(' ', %s))", strings.Join(cols, ", "))
	return sq.Select("src."+idColumn+" AS id").
		Column(sq.Expr(fmt.Sprintf("ts_rank(%s, to_tsquery('simple', ?)) AS score", doc), expr)).
		From(table+" AS src").
		Where(sq.Expr(doc+" @@ to_tsquery('simple', ?)", expr)).
		OrderBy("score DESC")
}

func (postgresDialect) DDL(stmt string) string {
	stmt = strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY", "BIGSERIAL PRIMARY KEY")
	return strings.ReplaceAll(stmt, " REAL", " DOUBLE PRECISION")
}

// fullTextQuery requires every term. A term holding whitespace is required as
// the phrase or as the conjunction of its words.
func fullTextQuery(terms []string, quote func(string) string, and, or string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		words := strings.Fields(t)
		if len(words) < 2 {
			parts[i] = quote(t)
			continue
		}
		for j, w := range words {
			words[j] = quote(w)
		}
		parts[i] = "(" + quote(t) + or + "(" + strings.Join(words, and) + "))"
	}
	return strings.Join(parts, and)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards so s matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Like builds a case-insensitive pattern predicate on column. pattern must
// already be escaped with EscapeLike where it embeds user text.
func Like(d Dialect, column, pattern string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf(`%s %s ? ESCAPE '\'`, column, d.Like()), pattern)
}

// NotLike negates Like.
func NotLike(d Dialect, column, pattern string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf(`%s NOT %s ? ESCAPE '\'`, column, d.Like()), pattern)
}
