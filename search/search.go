// Package search resolves free-text terms to an ordered list of entry ids:
// ranked full-text matching per table with a prefix LIKE path for short
// terms, degrading to unranked substring matching.
package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/hooks"
	"github.com/atomicbase/directory/meta"
	"github.com/atomicbase/directory/settings"
	"github.com/atomicbase/directory/tools"
)

// Hooks are the interception points of a search.
type Hooks struct {
	Fields hooks.Chain[Fields]
	Terms  hooks.Chain[[]string]
	// FullText rewrites the all-required match expression.
	FullText hooks.Chain[string]
	// ShortWord rewrites the LIKE pattern of each short term.
	ShortWord hooks.Chain[string]
	Scored    hooks.Chain[[]data.Scored]
	Results   hooks.Chain[[]int64]
}

// Query is one search request.
type Query struct {
	Terms string
	// Fields replaces the configured fields when non-nil.
	Fields *Fields
}

// Engine runs searches against a database.
type Engine struct {
	DB       *data.Database
	Settings settings.Search
	Hooks    Hooks
}

// New returns an Engine for db configured by s.
func New(db *data.Database, s settings.Search) *Engine {
	return &Engine{DB: db, Settings: s}
}

// Search returns the matching entry ids. Full-text ids come best match first;
// substring fallback ids are in table scan order. No fields or no surviving
// terms yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, q Query) ([]int64, error) {
	fields := GroupFields(e.Settings.Fields)
	if q.Fields != nil {
		fields = *q.Fields
	}
	fields = e.Hooks.Fields.Apply(fields)
	if fields.Empty() {
		return nil, nil
	}

	terms := Filter(e.Hooks.Terms.Apply(Tokenize(q.Terms)))
	if len(terms) == 0 {
		return nil, nil
	}

	var results []int64
	if e.Settings.FullText {
		scored := e.Hooks.Scored.Apply(e.ranked(ctx, fields, terms))
		results = mergeScored(scored)
	}

	if len(results) == 0 && (e.Settings.FullText || e.Settings.Keyword) {
		ids, err := e.substring(ctx, fields, terms)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			tools.SearchFallbacks.Inc()
		}
		results = ids
	}

	return e.Hooks.Results.Apply(results), nil
}

// ranked runs one full-text query per table. A table whose query fails,
// typically for lack of an index, contributes nothing.
func (e *Engine) ranked(ctx context.Context, fields Fields, terms []string) []data.Scored {
	long, short := Partition(terms)

	var expr string
	if len(long) > 0 {
		expr = e.Hooks.FullText.Apply(e.DB.Dialect.FullTextQuery(long))
	}

	var scored []data.Scored
	for _, g := range fields.tables() {
		var qb sq.SelectBuilder
		switch {
		case expr != "":
			qb = e.DB.Dialect.FullTextSelect(g.table, g.idColumn, g.columns, expr)
		case len(short) > 0:
			qb = sq.Select(g.idColumn + " AS id").From(g.table).Where(e.shortWords(g.columns, short))
		default:
			continue
		}

		rows, err := e.run(ctx, qb)
		if err != nil {
			tools.Logger.Warn("full-text search failed, skipping table",
				"table", g.table,
				"error", err,
			)
			continue
		}
		scored = append(scored, rows...)
	}

	if len(fields.Meta) > 0 {
		rows, err := e.metaSearch(ctx, fields.Meta, append(long, short...))
		if err != nil {
			tools.Logger.Warn("meta search failed", "error", err)
		} else {
			scored = append(scored, rows...)
		}
	}
	return scored
}

// shortWords matches any column starting with any of the words.
func (e *Engine) shortWords(columns, words []string) sq.Sqlizer {
	var either sq.Or
	for _, w := range words {
		pattern := e.Hooks.ShortWord.Apply(data.EscapeLike(w) + "%")
		for _, c := range columns {
			either = append(either, data.Like(e.DB.Dialect, c, pattern))
		}
	}
	return either
}

// substring matches any column containing any term, in every group.
func (e *Engine) substring(ctx context.Context, fields Fields, terms []string) ([]int64, error) {
	var found []data.Scored
	for _, g := range fields.tables() {
		var either sq.Or
		for _, t := range terms {
			pattern := "%" + data.EscapeLike(t) + "%"
			for _, c := range g.columns {
				either = append(either, data.Like(e.DB.Dialect, c, pattern))
			}
		}
		rows, err := e.run(ctx, sq.Select(g.idColumn+" AS id").From(g.table).Where(either))
		if err != nil {
			return nil, tools.StorageErr(err)
		}
		found = append(found, rows...)
	}

	if len(fields.Meta) > 0 {
		rows, err := e.metaSearch(ctx, fields.Meta, terms)
		if err != nil {
			return nil, tools.StorageErr(err)
		}
		found = append(found, rows...)
	}
	return dedupe(found), nil
}

// metaSearch matches metadata values of the given keys containing any term.
func (e *Engine) metaSearch(ctx context.Context, keys, terms []string) ([]data.Scored, error) {
	q := meta.Query{Relation: "OR"}
	for _, t := range terms {
		for _, k := range keys {
			q.Clauses = append(q.Clauses, meta.Clause{Key: k, Value: t, Compare: meta.Like})
		}
	}

	frag, err := meta.NewBuilder(e.DB.Dialect).Compile(q, data.TableEntries, "id")
	if err != nil {
		return nil, fmt.Errorf("compile meta search: %w", err)
	}

	qb := sq.Select(data.TableEntries + ".id AS id").Distinct().From(data.TableEntries).Where(frag.Where)
	for _, j := range frag.Joins {
		qb = qb.JoinClause(j)
	}
	return e.run(ctx, qb)
}

func (e *Engine) run(ctx context.Context, qb sq.SelectBuilder) ([]data.Scored, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	tools.Logger.Debug("search query", "sql", query)
	return e.DB.QueryScored(ctx, query, args...)
}

// mergeScored orders rows by descending score, keeps unscored rows after
// them in arrival order and drops repeated ids.
func mergeScored(rows []data.Scored) []int64 {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b data.Scored) int {
		switch {
		case a.Score != nil && b.Score != nil:
			return cmp.Compare(*b.Score, *a.Score)
		case a.Score != nil:
			return -1
		case b.Score != nil:
			return 1
		}
		return 0
	})
	return dedupe(sorted)
}

func dedupe(rows []data.Scored) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, r := range rows {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r.ID)
		}
	}
	return out
}
