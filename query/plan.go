package query

import (
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/data"
)

// Join keys. A plan holds at most one join per key.
const (
	JoinAddress   = "address"
	JoinDate      = "date"
	JoinMeta      = "meta"
	JoinMetaOrder = "meta_order"
	JoinTaxonomy  = "taxonomy"
)

// sortColumn derives the display name an entry sorts under.
const sortColumn = "CASE entries.entry_type" +
	" WHEN 'individual' THEN entries.last_name" +
	" WHEN 'organization' THEN entries.organization" +
	" WHEN 'connection_group' THEN entries.family_name" +
	" WHEN 'family' THEN entries.family_name END"

// Join is a keyed set of join clauses.
type Join struct {
	Key     string
	Clauses []sq.Sqlizer
}

// Plan is a list query before it is rendered to SQL. Fields are filled left
// to right by the compiler; rendering the same Plan twice yields the same text.
type Plan struct {
	Columns []sq.Sqlizer
	// Source replaces the entry table as the primary source. The entry table
	// is then joined to it on entry_id.
	Source      *sq.SelectBuilder
	SourceAlias string
	Joins       []Join
	Where       []sq.Sqlizer
	Having      []sq.Sqlizer
	OrderBy     []sq.Sqlizer

	// Random replaces OrderBy with a seeded shuffle of the whole result.
	Random bool
	Seed   int64

	Limit  uint64
	Offset uint64
}

// AddJoin registers clauses under key. It reports false, adding nothing, when
// the key is already joined.
func (p *Plan) AddJoin(key string, clauses ...sq.Sqlizer) bool {
	if p.HasJoin(key) {
		return false
	}
	p.Joins = append(p.Joins, Join{Key: key, Clauses: clauses})
	return true
}

// HasJoin reports whether key is joined.
func (p *Plan) HasJoin(key string) bool {
	for _, j := range p.Joins {
		if j.Key == key {
			return true
		}
	}
	return false
}

// inner renders the grouped entry select. Ordering and paging are included
// when paged is set.
func (p *Plan) inner(d data.Dialect, paged bool) sq.SelectBuilder {
	sb := sq.Select()
	if d.Distinct() {
		sb = sb.Distinct()
	}
	for _, c := range p.Columns {
		sb = sb.Column(c)
	}

	if p.Source != nil {
		sb = sb.FromSelect(*p.Source, p.SourceAlias).
			JoinClause("INNER JOIN " + data.TableEntries + " ON " + data.TableEntries + ".id = " + p.SourceAlias + ".entry_id")
	} else {
		sb = sb.From(data.TableEntries)
	}

	for _, j := range p.Joins {
		for _, c := range j.Clauses {
			sb = sb.JoinClause(c)
		}
	}
	if len(p.Where) > 0 {
		sb = sb.Where(sq.And(p.Where))
	}
	sb = sb.GroupBy(data.TableEntries + ".id")
	if len(p.Having) > 0 {
		sb = sb.Having(sq.And(p.Having))
	}

	if !paged || p.Random {
		return sb
	}
	for _, o := range p.OrderBy {
		sb = sb.OrderByClause(o)
	}
	return p.page(sb)
}

func (p *Plan) page(sb sq.SelectBuilder) sq.SelectBuilder {
	switch {
	case p.Limit > 0:
		sb = sb.Limit(p.Limit)
	case p.Offset > 0:
		sb = sb.Limit(math.MaxInt64)
	}
	if p.Offset > 0 {
		sb = sb.Offset(p.Offset)
	}
	return sb
}

// Select renders the row query.
func (p *Plan) Select(d data.Dialect) (string, []any, error) {
	inner := p.inner(d, true)
	if !p.Random {
		return inner.ToSql()
	}
	outer := sq.Select("*").
		FromSelect(inner, "T").
		OrderByClause(d.RandomOrder("T.id", p.Seed))
	return p.page(outer).ToSql()
}

// Count renders the query counting every matching entry, ignoring paging.
func (p *Plan) Count(d data.Dialect) (string, []any, error) {
	return sq.Select("COUNT(*)").FromSelect(p.inner(d, false), "found").ToSql()
}
