package query

import (
	"context"
	"hash/fnv"
	"strings"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/filter"
	"github.com/atomicbase/directory/geo"
	"github.com/atomicbase/directory/meta"
	"github.com/atomicbase/directory/search"
	"github.com/atomicbase/directory/settings"
	"github.com/atomicbase/directory/taxonomy"
	"github.com/atomicbase/directory/tools"
)

// GeoSourceAlias names the bounding-box subquery of a radius search.
const GeoSourceAlias = "geo_bound"

// Searcher resolves search terms to ordered entry ids.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]int64, error)
}

// Compiler turns a normalized filter into a Plan for one caller.
type Compiler struct {
	Dialect  data.Dialect
	Settings *settings.Settings
	Registry taxonomy.Registry
	Searcher Searcher
	Hooks    Hooks
	Now      func() time.Time
}

type column struct {
	name   string
	values []string
}

// Compile builds the plan. Taxonomy and metadata input that cannot be
// compiled is reported as a compile error; a failing search as a storage
// error.
func (c *Compiler) Compile(ctx context.Context, caller access.Context, s filter.Spec) (*Plan, error) {
	p := &Plan{
		Columns: []sq.Sqlizer{
			sq.Expr(data.TableEntries + ".*"),
			sq.Expr(sortColumn + " AS sort_column"),
		},
	}

	tax, err := taxonomy.QueryBuilder{}.Compile(taxonomy.BuildClauses(s, c.Registry), data.TableEntries, "id")
	if err != nil {
		return nil, tools.CompileErr(err)
	}
	if tax.Where != nil {
		p.AddJoin(JoinTaxonomy, tax.Joins...)
		p.Where = append(p.Where, tax.Where)
	}

	if s.Slug != "" {
		p.Where = append(p.Where, sq.Eq{data.TableEntries + ".slug": s.Slug})
	}
	if len(s.ID) > 0 {
		p.Where = append(p.Where, sq.Eq{data.TableEntries + ".id": s.ID})
	}
	if len(s.IDNotIn) > 0 {
		p.Where = append(p.Where, sq.NotEq{data.TableEntries + ".id": s.IDNotIn})
	}

	orderBy := s.OrderBy
	orderIDs := s.ID
	if s.SearchTerms != "" && c.Searcher != nil {
		ids, err := c.Searcher.Search(ctx, search.Query{Terms: s.SearchTerms})
		if err != nil {
			return nil, tools.StorageErr(err)
		}
		if len(ids) == 0 {
			p.Where = append(p.Where, sq.Expr("1=0"))
		} else {
			p.Where = append(p.Where, sq.Eq{data.TableEntries + ".id": ids})
			orderBy = []string{"id|" + FlagSpecified}
			orderIDs = ids
		}
	}

	if len(s.ListType) > 0 {
		p.Where = append(p.Where, sq.Eq{data.TableEntries + ".entry_type": s.ListType})
	}

	for _, col := range []column{
		{"family_name", s.FamilyName},
		{"last_name", s.LastName},
		{"title", s.Title},
		{"organization", s.Organization},
		{"department", s.Department},
	} {
		if len(col.values) > 0 {
			p.Where = append(p.Where, sq.Eq{data.TableEntries + "." + col.name: col.values})
		}
	}

	for _, col := range []column{
		{"district", s.District},
		{"county", s.County},
		{"city", s.City},
		{"state", s.State},
		{"zipcode", s.ZipCode},
		{"country", s.Country},
	} {
		if len(col.values) > 0 {
			p.AddJoin(JoinAddress, addressJoin())
			p.Where = append(p.Where, sq.Eq{data.TableAddresses + "." + col.name: col.values})
		}
	}

	if r, _ := utf8.DecodeRuneInString(s.Char); s.Char != "" && r != utf8.RuneError {
		p.Having = append(p.Having, data.Like(c.Dialect, sortColumn, data.EscapeLike(string(r))+"%"))
	}

	if s.ProcessUserCaps {
		vis := access.ResolveVisibility(caller, access.VisibilityRequest{
			Explicit:        s.Visibility,
			PublicOverride:  s.AllowPublicOverride,
			PrivateOverride: s.PrivateOverride,
		})
		p.Where = append(p.Where, sq.Eq{data.TableEntries + ".visibility": access.Strings(vis)})
	}

	p.Where = append(p.Where, sq.Eq{data.TableEntries + ".status": access.Strings(access.ResolveStatus(caller, s.Status))})

	q, hasGeo := s.Geo()
	if hasGeo {
		if err := c.geo(p, caller, q); err != nil {
			return nil, err
		}
	}

	if !s.MetaQuery.Empty() {
		frag, err := meta.NewBuilder(c.Dialect).Compile(s.MetaQuery, data.TableEntries, "id")
		if err != nil {
			return nil, tools.CompileErr(err)
		}
		p.AddJoin(JoinMeta, frag.Joins...)
		p.Where = append(p.Where, frag.Where)
	}

	o := &orderer{
		dialect:   c.Dialect,
		dateTypes: c.dateTypes(),
		geo:       hasGeo,
		ids:       orderIDs,
	}
	if err := o.resolve(p, ParseDirectives(orderBy)); err != nil {
		return nil, tools.CompileErr(err)
	}
	if p.Random {
		p.Seed = c.Hooks.RandomSeed.Apply(RandomSeed(caller.RemoteAddr, c.now()))
	}

	if s.Limit > 0 {
		p.Limit = uint64(s.Limit)
	}
	if s.Offset > 0 {
		p.Offset = uint64(s.Offset)
	}

	if !s.SuppressFilters {
		p = c.Hooks.Clauses.Apply(p)
	}
	return p, nil
}

// geo makes the bounding-box subquery the primary source, exposes the
// distance of the nearest matching address and restricts joined addresses to
// the radius and to what the caller may see.
func (c *Compiler) geo(p *Plan, caller access.Context, q geo.Query) error {
	clauses := geo.Build(q, data.TableAddresses, data.TableAddresses)
	dist, err := distanceColumn(c.Dialect, clauses.Distance)
	if err != nil {
		return err
	}
	p.Source = &clauses.Source
	p.SourceAlias = GeoSourceAlias
	p.Columns = append(p.Columns, dist)

	p.AddJoin(JoinAddress, addressJoin())
	p.Where = append(p.Where, clauses.Within)

	vis := access.ResolveVisibility(caller, access.VisibilityRequest{})
	p.Where = append(p.Where, sq.Eq{data.TableAddresses + ".visibility": access.Strings(vis)})
	return nil
}

// distanceColumn selects dist grouped per entry as the distance column.
func distanceColumn(d data.Dialect, dist sq.Sqlizer) (sq.Sqlizer, error) {
	expr, args, err := dist.ToSql()
	if err != nil {
		return nil, tools.CompileErr(err)
	}
	return sq.Expr(d.Grouped(expr)+" AS distance", args...), nil
}

func (c *Compiler) dateTypes() map[string]bool {
	out := map[string]bool{}
	if c.Settings == nil {
		return out
	}
	for _, t := range c.Settings.DateTypes {
		out[t] = true
	}
	return out
}

func (c *Compiler) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RandomSeed derives the shuffle seed from the caller's address and the
// current hour, day and month, so one visitor sees a stable order that
// changes hourly.
func RandomSeed(remoteAddr string, now time.Time) int64 {
	var b strings.Builder
	for _, r := range remoteAddr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	b.WriteString(now.UTC().Format("150201"))

	h := fnv.New32a()
	h.Write([]byte(b.String()))
	return int64(h.Sum32())
}
