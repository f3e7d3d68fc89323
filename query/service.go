// Package query compiles normalized filters into entry list queries and runs
// them: plan assembly, ordering, execution with a bounded pagination
// correction, and the lookup operations built on the same pieces.
package query

import (
	"context"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/filter"
	"github.com/atomicbase/directory/search"
	"github.com/atomicbase/directory/settings"
	"github.com/atomicbase/directory/taxonomy"
	"github.com/atomicbase/directory/tools"
)

// ResultSet is the outcome of one list call. Storage failures are reported in
// Err rather than returned.
type ResultSet struct {
	Rows         []data.Row
	Total        int64 // matching entries, ignoring limit and offset
	Err          error
	LastInsertID int64
	SQL          string
	Args         []any
	// Corrected is set when the requested offset was past the end and the
	// query was re-run from offset 0.
	Corrected bool
}

// Service runs directory queries against one store.
type Service struct {
	DB       *data.Database
	Settings *settings.Settings
	Registry taxonomy.Registry
	Search   *search.Engine
	Hooks    Hooks
	Now      func() time.Time
}

// New returns a Service over db configured by st.
func New(db *data.Database, st *settings.Settings) *Service {
	return &Service{
		DB:       db,
		Settings: st,
		Registry: taxonomy.StaticRegistry(st.Taxonomies),
		Search:   search.New(db, st.Search),
	}
}

// Policy returns the access toggles of the loaded settings.
func (s *Service) Policy() access.Policy {
	return access.Policy{
		LoginRequired:        s.Settings.LoginRequired,
		AllowPublicOverride:  s.Settings.AllowPublicOverride,
		AllowPrivateOverride: s.Settings.AllowPrivateOverride,
	}
}

// Spec normalizes attrs for caller. Request overrides never apply on the
// admin surface.
func (s *Service) Spec(caller access.Context, attrs filter.Attributes, overrides filter.Overrides) filter.Spec {
	if caller.Surface == access.SurfaceAdmin {
		overrides = nil
	}
	return filter.Normalize(attrs, overrides)
}

func (s *Service) compiler() *Compiler {
	c := &Compiler{
		Dialect:  s.DB.Dialect,
		Settings: s.Settings,
		Registry: s.Registry,
		Hooks:    s.Hooks,
		Now:      s.Now,
	}
	if s.Search != nil {
		c.Searcher = s.Search
	}
	return c
}

// Plan compiles spec without running it.
func (s *Service) Plan(ctx context.Context, caller access.Context, spec filter.Spec) (*Plan, error) {
	return s.compiler().Compile(ctx, caller, spec)
}

// ListEntries runs spec. When the offset lies past the last match the query
// is issued once more from offset 0; the second run cannot qualify again.
func (s *Service) ListEntries(ctx context.Context, caller access.Context, spec filter.Spec) ResultSet {
	start := time.Now()

	rs := s.list(ctx, caller, spec)
	if rs.Err == nil && spec.Offset > 0 && int64(spec.Offset) > rs.Total {
		tools.Logger.Info("offset past end of results, retrying from start",
			"offset", spec.Offset,
			"total", rs.Total,
		)
		tools.PaginationCorrections.Inc()

		spec.Offset = 0
		rs = s.list(ctx, caller, spec)
		rs.Corrected = true
	}

	observe("list", start, rs.Err)
	return rs
}

func (s *Service) list(ctx context.Context, caller access.Context, spec filter.Spec) ResultSet {
	var rs ResultSet

	plan, err := s.compiler().Compile(ctx, caller, spec)
	if err != nil {
		rs.Err = err
		return rs
	}

	query, args, err := plan.Select(s.DB.Dialect)
	if err != nil {
		rs.Err = tools.CompileErr(err)
		return rs
	}
	rs.SQL, rs.Args = query, args
	tools.Logger.Debug("list query", "sql", query, "args", len(args))

	rows, err := s.DB.QueryRows(ctx, query, args...)
	if err != nil {
		tools.Logger.Warn("list query failed", "error", err)
		rs.Err = tools.StorageErr(err)
		return rs
	}

	countQuery, countArgs, err := plan.Count(s.DB.Dialect)
	if err != nil {
		rs.Err = tools.CompileErr(err)
		return rs
	}
	total, err := s.DB.QueryCount(ctx, countQuery, countArgs...)
	if err != nil {
		tools.Logger.Warn("count query failed", "error", err)
		rs.Err = tools.StorageErr(err)
		return rs
	}

	rs.Rows = s.Hooks.Results.Apply(rows)
	rs.Total = total
	return rs
}

// SearchEntries returns the entry ids matching terms, best match first.
func (s *Service) SearchEntries(ctx context.Context, terms string) ([]int64, error) {
	start := time.Now()
	ids, err := s.Search.Search(ctx, search.Query{Terms: terms})
	observe("search", start, err)
	return ids, err
}

// SearchVisible returns the ids of entries matching terms that caller may
// see, best match first. Unlike SearchEntries the visibility and status
// predicates of a listing apply.
func (s *Service) SearchVisible(ctx context.Context, caller access.Context, terms string) ([]int64, error) {
	spec := s.Spec(caller, filter.Attributes{"search_terms": terms, "lock": true}, nil)
	rs := s.ListEntries(ctx, caller, spec)
	if rs.Err != nil {
		return nil, rs.Err
	}

	ids := make([]int64, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		if id, ok := r["id"].(int64); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetEntry looks up one entry by numeric id or by slug. Visibility is not
// applied.
func (s *Service) GetEntry(ctx context.Context, idOrSlug string) (data.Row, error) {
	if isDigits(idOrSlug) {
		return s.GetEntryBy(ctx, "id", idOrSlug)
	}
	return s.GetEntryBy(ctx, "slug", idOrSlug)
}

// GetEntryBy looks up one entry by id, slug or email address.
func (s *Service) GetEntryBy(ctx context.Context, field, value string) (data.Row, error) {
	start := time.Now()

	qb := sq.Select(data.TableEntries + ".*").From(data.TableEntries).Limit(1)
	switch field {
	case "id":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, tools.InvalidRequestErr("entry id must be numeric")
		}
		qb = qb.Where(sq.Eq{data.TableEntries + ".id": id})
	case "slug":
		qb = qb.Where(sq.Eq{data.TableEntries + ".slug": value})
	case "email":
		qb = qb.Join(data.TableEmails + " ON " + data.TableEntries + ".id = " + data.TableEmails + ".entry_id").
			Where(sq.Eq{data.TableEmails + ".address": value})
	default:
		return nil, tools.InvalidRequestErr("unknown lookup field " + field)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, tools.CompileErr(err)
	}
	rows, err := s.DB.QueryRows(ctx, query, args...)
	observe("get", start, err)
	if err != nil {
		return nil, tools.StorageErr(err)
	}
	if len(rows) == 0 {
		return nil, tools.EntryNotFoundErr(field, value)
	}
	return rows[0], nil
}

// RecordCount counts the entries caller may see in the statuses spec asks for.
func (s *Service) RecordCount(ctx context.Context, caller access.Context, spec filter.Spec) (int64, error) {
	start := time.Now()

	vis := access.ResolveVisibility(caller, access.VisibilityRequest{
		Explicit:        spec.Visibility,
		PublicOverride:  spec.AllowPublicOverride,
		PrivateOverride: spec.PrivateOverride,
	})
	query, args, err := sq.Select("COUNT(*)").From(data.TableEntries).
		Where(sq.Eq{"visibility": access.Strings(vis)}).
		Where(sq.Eq{"status": access.Strings(access.ResolveStatus(caller, spec.Status))}).
		ToSql()
	if err != nil {
		return 0, tools.CompileErr(err)
	}

	n, err := s.DB.QueryCount(ctx, query, args...)
	observe("count", start, err)
	if err != nil {
		return 0, tools.StorageErr(err)
	}
	return n, nil
}

// Characters returns the distinct upper-cased first characters entries sort
// under, for the entries caller may see.
func (s *Service) Characters(ctx context.Context, caller access.Context, spec filter.Spec) ([]string, error) {
	start := time.Now()

	query, args, err := s.visible(caller, spec,
		sq.Select("DISTINCT UPPER(SUBSTR("+sortColumn+", 1, 1)) AS ch")).
		OrderBy("ch").
		ToSql()
	if err != nil {
		return nil, tools.CompileErr(err)
	}

	rows, err := s.DB.QueryRows(ctx, query, args...)
	observe("characters", start, err)
	if err != nil {
		return nil, tools.StorageErr(err)
	}

	var out []string
	for _, r := range rows {
		if ch, ok := r["ch"].(string); ok && strings.TrimSpace(ch) != "" {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Individuals maps every visible individual's id to "Last, First".
func (s *Service) Individuals(ctx context.Context, caller access.Context) (map[int64]string, error) {
	start := time.Now()

	query, args, err := s.visible(caller, filter.Spec{},
		sq.Select("id", "first_name", "last_name")).
		Where(sq.Eq{"entry_type": filter.ListIndividual}).
		OrderBy("last_name", "first_name").
		ToSql()
	if err != nil {
		return nil, tools.CompileErr(err)
	}

	rows, err := s.DB.QueryRows(ctx, query, args...)
	observe("individuals", start, err)
	if err != nil {
		return nil, tools.StorageErr(err)
	}

	out := make(map[int64]string, len(rows))
	for _, r := range rows {
		id, ok := r["id"].(int64)
		if !ok {
			continue
		}
		last, _ := r["last_name"].(string)
		first, _ := r["first_name"].(string)
		out[id] = last + ", " + first
	}
	return out, nil
}

// visible restricts qb, over the entry table, to caller's visibility and the
// statuses spec asks for.
func (s *Service) visible(caller access.Context, spec filter.Spec, qb sq.SelectBuilder) sq.SelectBuilder {
	status := spec.Status
	if len(status) == 0 {
		status = []string{string(access.Approved)}
	}
	vis := access.ResolveVisibility(caller, access.VisibilityRequest{Explicit: spec.Visibility})
	return qb.From(data.TableEntries).
		Where(sq.Eq{"visibility": access.Strings(vis)}).
		Where(sq.Eq{"status": access.Strings(access.ResolveStatus(caller, status))})
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	tools.QueriesTotal.WithLabelValues(operation, status).Inc()
	tools.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
