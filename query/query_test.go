package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/filter"
	"github.com/atomicbase/directory/settings"
	"github.com/atomicbase/directory/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var fixedNow = time.Date(2026, time.December, 20, 15, 4, 0, 0, time.UTC)

// Visible to anonymous callers: 1, 2, 5, 15. Entry 9 is private, 12 pending.
var seed = []string{
	`INSERT INTO entries (id, entry_type, visibility, status, slug, family_name, first_name, last_name, organization) VALUES
		(1, 'individual', 'public', 'approved', 'john-smith', '', 'John', 'Smith', ''),
		(2, 'individual', 'public', 'approved', 'ann-adams', '', 'Ann', 'Adams', ''),
		(5, 'organization', 'public', 'approved', 'acme', '', '', '', 'Acme'),
		(9, 'individual', 'private', 'approved', 'zed-young', '', 'Zed', 'Young', ''),
		(12, 'individual', 'public', 'pending', 'pat-pending', '', 'Pat', 'Pending', ''),
		(15, 'family', 'public', 'approved', 'smiths', 'Smith Family', '', '', '')`,
	`INSERT INTO entry_addresses (entry_id, city, latitude, longitude, visibility) VALUES
		(1, 'Philadelphia', 40.045, -75.0, 'public'),
		(1, 'Philadelphia', 40.046, -75.0, 'public'),
		(2, 'Trenton', 40.44966, -75.0, 'public'),
		(5, 'Camden', 40.13, -74.83, 'public'),
		(9, 'Philadelphia', 40.01, -75.0, 'private')`,
	`INSERT INTO entry_meta (entry_id, meta_key, meta_value) VALUES
		(1, 'rank', '2'), (2, 'rank', '10'), (5, 'rank', '1'), (15, 'rank', '3')`,
	`INSERT INTO entry_emails (entry_id, address) VALUES (1, 'john@example.com')`,
	`INSERT INTO entry_dates (entry_id, type, date, visibility) VALUES
		(1, 'birthday', '1990-12-25', 'public'),
		(2, 'birthday', '1985-01-05', 'public'),
		(15, 'birthday', '1970-12-20', 'public'),
		(5, 'birthday', '1980-03-01', 'public'),
		(5, 'birthday', '2000-12-21', 'private'),
		(2, 'anniversary', '2010-12-22', 'public')`,
}

func newTestService(t *testing.T) (*Service, *data.Recorder) {
	t.Helper()
	ctx := context.Background()

	db, err := data.Open(ctx, data.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))

	for _, stmt := range seed {
		_, err := db.ExecStatement(ctx, stmt)
		require.NoError(t, err)
	}

	st := settings.Defaults()
	st.Search = settings.Search{Fields: []string{"last_name"}, FullText: true}

	rec := data.NewRecorder(db.Client)
	db.Exec = rec

	svc := New(db, st)
	svc.Now = func() time.Time { return fixedNow }
	return svc, rec
}

func anonymous() access.Context {
	return access.Anonymous(access.Policy{})
}

func ids(t *testing.T, rs ResultSet) []int64 {
	t.Helper()
	require.NoError(t, rs.Err)
	out := []int64{}
	for _, r := range rs.Rows {
		id, ok := r["id"].(int64)
		require.True(t, ok, "id column %T", r["id"])
		out = append(out, id)
	}
	return out
}

func list(t *testing.T, svc *Service, caller access.Context, attrs filter.Attributes) ResultSet {
	t.Helper()
	return svc.ListEntries(context.Background(), caller, filter.Normalize(attrs, nil))
}

// =============================================================================
// Listing
// =============================================================================

func TestListEntries_DefaultOrder(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), nil)

	assert.Equal(t, []int64{5, 2, 1, 15}, ids(t, rs))
	assert.Equal(t, int64(4), rs.Total)
	assert.False(t, rs.Corrected)
	assert.Contains(t, rs.SQL, "GROUP BY entries.id")
}

func TestListEntries_SpecifiedOrder(t *testing.T) {
	svc, _ := newTestService(t)
	caller := access.Context{
		Authenticated: true,
		Capabilities:  map[access.Capability]bool{access.ViewPublic: true, access.ViewPrivate: true},
	}

	rs := list(t, svc, caller, filter.Attributes{"id": "5,2,9", "order_by": "id|SPECIFIED"})
	assert.Equal(t, []int64{5, 2, 9}, ids(t, rs))
}

func TestListEntries_SpecifiedDowngradedOffID(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"order_by": "first_name|SPECIFIED"})
	require.NoError(t, rs.Err)
	assert.Contains(t, rs.SQL, "entries.first_name ASC")
	assert.NotContains(t, rs.SQL, "CASE entries.id")
}

func TestListEntries_UnknownOrderFieldsUseDefault(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"order_by": "shoe_size|DESC"})
	assert.Equal(t, []int64{5, 2, 1, 15}, ids(t, rs))
}

func TestListEntries_NumericMetaOrder(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"order_by": "meta_key:rank|NUMERIC"})
	assert.Equal(t, []int64{5, 1, 15, 2}, ids(t, rs))
	assert.Contains(t, rs.SQL, "INNER JOIN entry_meta AS om1")
}

func TestListEntries_DateTypeOrder(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"order_by": "anniversary"})
	assert.Equal(t, []int64{2}, ids(t, rs))
	assert.Contains(t, rs.SQL, "entry_dates.type IN (?)")
}

func TestListEntries_Status(t *testing.T) {
	svc, _ := newTestService(t)
	attrs := filter.Attributes{"status": []string{"approved", "pending"}, "list_type": "individual"}

	rs := list(t, svc, anonymous(), attrs)
	assert.Equal(t, []int64{2, 1}, ids(t, rs))

	editor := access.Context{
		Authenticated: true,
		Capabilities:  map[access.Capability]bool{access.ViewPublic: true, access.EditEntry: true},
	}
	rs = list(t, svc, editor, attrs)
	assert.Equal(t, []int64{2, 12, 1}, ids(t, rs))
}

func TestListEntries_NoVisibleTier(t *testing.T) {
	svc, _ := newTestService(t)
	caller := access.Anonymous(access.Policy{LoginRequired: true})

	rs := list(t, svc, caller, nil)
	assert.Empty(t, ids(t, rs))
	assert.Zero(t, rs.Total)
	assert.Contains(t, rs.Args, "none")
}

func TestListEntries_ProcessUserCapsOff(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"process_user_caps": false, "list_type": "individual"})
	assert.Equal(t, []int64{2, 1, 9}, ids(t, rs))
}

func TestListEntries_Char(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"char": "s"})
	assert.Equal(t, []int64{1, 15}, ids(t, rs))
	assert.Contains(t, rs.SQL, "HAVING")
	assert.Equal(t, int64(2), rs.Total)
}

func TestListEntries_RegionFilterJoinsOnce(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"city": "Philadelphia", "order_by": "city,last_name"})
	assert.Equal(t, []int64{1}, ids(t, rs))
	assert.Equal(t, int64(1), rs.Total)
	assert.Equal(t, 1, strings.Count(rs.SQL, "JOIN entry_addresses"))
}

func TestListEntries_FieldEquality(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"last_name": "Smith,Adams"})
	assert.Equal(t, []int64{2, 1}, ids(t, rs))

	rs = list(t, svc, anonymous(), filter.Attributes{"slug": "acme"})
	assert.Equal(t, []int64{5}, ids(t, rs))

	rs = list(t, svc, anonymous(), filter.Attributes{"id__not_in": []int64{5, 2}})
	assert.Equal(t, []int64{1, 15}, ids(t, rs))
}

// =============================================================================
// Geo
// =============================================================================

func TestListEntries_Radius(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{
		"latitude":  40.0,
		"longitude": -75.0,
		"radius":    10,
		"unit":      "mi",
		"order_by":  "distance",
	})

	// 2 is 50 km away, outside the box; 5 sits in the box corner, outside the circle
	assert.Equal(t, []int64{1}, ids(t, rs))
	assert.Equal(t, int64(1), rs.Total)
	assert.InDelta(t, 5.0, rs.Rows[0]["distance"], 0.2)
	assert.Contains(t, rs.SQL, ") AS geo_bound INNER JOIN entries ON entries.id = geo_bound.entry_id")
	assert.Contains(t, rs.SQL, "entry_addresses.visibility IN (?)")
}

func TestListEntries_RadiusKilometers(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{
		"latitude":  40.0,
		"longitude": -75.0,
		"radius":    60,
		"unit":      "km",
		"order_by":  "distance",
	})
	assert.Equal(t, []int64{1, 5, 2}, ids(t, rs))
}

// =============================================================================
// Search
// =============================================================================

func TestListEntries_SearchTerms(t *testing.T) {
	svc, rec := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"search_terms": "Smith"})
	assert.Equal(t, []int64{1}, ids(t, rs))
	assert.Contains(t, rs.SQL, "CASE entries.id WHEN ? THEN 0")

	rec.Reset()
	rs = list(t, svc, anonymous(), filter.Attributes{"search_terms": "Nobody"})
	assert.Empty(t, ids(t, rs))
	assert.Contains(t, rs.SQL, "1=0")
}

// =============================================================================
// Pagination
// =============================================================================

func TestListEntries_OffsetPastEndRetriesOnce(t *testing.T) {
	svc, rec := newTestService(t)
	rec.Reset()

	rs := list(t, svc, anonymous(), filter.Attributes{"offset": 1000})

	assert.Equal(t, []int64{5, 2, 1, 15}, ids(t, rs))
	assert.True(t, rs.Corrected)
	assert.Equal(t, int64(4), rs.Total)

	// select + count, twice
	statements := rec.Statements()
	require.Len(t, statements, 4)
	assert.Contains(t, statements[0].SQL, "OFFSET 1000")
	assert.NotContains(t, statements[2].SQL, "OFFSET")
}

func TestListEntries_OffsetAtEndIsNotCorrected(t *testing.T) {
	svc, _ := newTestService(t)

	rs := list(t, svc, anonymous(), filter.Attributes{"offset": 4})
	assert.Empty(t, ids(t, rs))
	assert.False(t, rs.Corrected)

	rs = list(t, svc, anonymous(), filter.Attributes{"offset": 1, "limit": 2})
	assert.Equal(t, []int64{2, 1}, ids(t, rs))
	assert.Equal(t, int64(4), rs.Total)
}

// =============================================================================
// Random order
// =============================================================================

func TestListEntries_Random(t *testing.T) {
	svc, _ := newTestService(t)
	caller := anonymous()
	caller.RemoteAddr = "10.0.0.1"

	first := list(t, svc, caller, filter.Attributes{"order_by": "id|RANDOM"})
	second := list(t, svc, caller, filter.Attributes{"order_by": "id|RANDOM"})

	assert.ElementsMatch(t, []int64{5, 2, 1, 15}, ids(t, first))
	assert.Equal(t, ids(t, first), ids(t, second))
	assert.Contains(t, first.SQL, ") AS T ORDER BY")
}

func TestRandomSeed(t *testing.T) {
	a := RandomSeed("10.0.0.1", fixedNow)
	assert.Equal(t, a, RandomSeed("10.0.0.1", fixedNow.Add(30*time.Second)))
	assert.NotEqual(t, a, RandomSeed("10.0.0.2", fixedNow))
	assert.NotEqual(t, a, RandomSeed("10.0.0.1", fixedNow.Add(time.Hour)))
}

func TestListEntries_RandomSeedHook(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Hooks.RandomSeed = svc.Hooks.RandomSeed.Add(func(int64) int64 { return 42 })

	rs := list(t, svc, anonymous(), filter.Attributes{"order_by": "id|RANDOM"})
	require.NoError(t, rs.Err)
	assert.Contains(t, rs.Args, int64(42))
}

// =============================================================================
// Hooks and errors
// =============================================================================

func TestListEntries_ClauseHook(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Hooks.Clauses = svc.Hooks.Clauses.Add(func(p *Plan) *Plan {
		p.Limit = 1
		return p
	})

	rs := list(t, svc, anonymous(), nil)
	assert.Equal(t, []int64{5}, ids(t, rs))

	rs = list(t, svc, anonymous(), filter.Attributes{"suppress_filters": true})
	assert.Len(t, ids(t, rs), 4)
}

func TestListEntries_ResultsHook(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Hooks.Results = svc.Hooks.Results.Add(func(rows []data.Row) []data.Row { return rows[:1] })

	rs := list(t, svc, anonymous(), nil)
	assert.Len(t, rs.Rows, 1)
	assert.Equal(t, int64(4), rs.Total)
}

func TestListEntries_CompileErrorRunsNothing(t *testing.T) {
	svc, rec := newTestService(t)
	rec.Reset()

	rs := list(t, svc, anonymous(), filter.Attributes{"meta_key": "rank", "meta_value": "1", "meta_compare": "REGEXP"})

	assert.True(t, errors.Is(rs.Err, tools.ErrCompile))
	assert.Empty(t, rs.Rows)
	assert.Empty(t, rec.Statements())
}

type brokenSqlizer struct{}

func (brokenSqlizer) ToSql() (string, []any, error) {
	return "", nil, errors.New("broken fragment")
}

func TestDistanceColumn(t *testing.T) {
	col, err := distanceColumn(data.Postgres, sq.Expr("dist(?)", 1.5))
	require.NoError(t, err)
	query, args, err := col.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "MIN(dist(?)) AS distance", query)
	assert.Equal(t, []any{1.5}, args)

	_, err = distanceColumn(data.SQLite, brokenSqlizer{})
	assert.True(t, errors.Is(err, tools.ErrCompile))
}

func TestListEntries_StorageErrorIsReported(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.DB.Client.Close())

	rs := list(t, svc, anonymous(), nil)
	assert.True(t, errors.Is(rs.Err, tools.ErrStorageExecution))
	assert.False(t, rs.Corrected)
}

// =============================================================================
// Plans
// =============================================================================

func TestCompile_Deterministic(t *testing.T) {
	svc, _ := newTestService(t)
	spec := filter.Normalize(filter.Attributes{
		"category":   "3,-4",
		"tag":        "red+blue",
		"city":       "Philadelphia",
		"meta_key":   "rank",
		"meta_value": []string{"1", "2"},
		"order_by":   "birthday|DESC,meta_key:rank,city",
		"latitude":   40.0,
		"longitude":  -75.0,
	}, nil)

	render := func() (string, []any) {
		p, err := svc.Plan(context.Background(), anonymous(), spec)
		require.NoError(t, err)
		query, args, err := p.Select(svc.DB.Dialect)
		require.NoError(t, err)
		return query, args
	}

	q1, a1 := render()
	q2, a2 := render()
	assert.Equal(t, q1, q2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, 1, strings.Count(q1, "JOIN entry_addresses"))
	assert.Equal(t, 1, strings.Count(q1, "JOIN entry_dates"))
}

func TestCompile_Postgres(t *testing.T) {
	c := &Compiler{Dialect: data.Postgres, Settings: settings.Defaults()}
	spec := filter.Normalize(filter.Attributes{"order_by": "city|DESC,sort_column|NUMERIC"}, nil)

	p, err := c.Compile(context.Background(), anonymous(), spec)
	require.NoError(t, err)
	query, _, err := p.Select(data.Postgres)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "SELECT entries.*"))
	assert.Contains(t, query, "MIN(entry_addresses.city) DESC")
	assert.Contains(t, query, "regexp_replace((CASE entries.entry_type")
}

func TestPlan_AddJoin(t *testing.T) {
	var p Plan
	assert.True(t, p.AddJoin(JoinAddress, addressJoin()))
	assert.False(t, p.AddJoin(JoinAddress, addressJoin()))
	assert.True(t, p.HasJoin(JoinAddress))
	assert.False(t, p.HasJoin(JoinDate))
	assert.Len(t, p.Joins, 1)
}

func TestPlan_Paging(t *testing.T) {
	cols := []sq.Sqlizer{sq.Expr("entries.id")}
	p := Plan{Columns: cols, Offset: 20}
	query, _, err := p.Select(data.SQLite)
	require.NoError(t, err)
	assert.Contains(t, query, "LIMIT 9223372036854775807 OFFSET 20")

	p = Plan{Columns: cols, Limit: 5, Offset: 20}
	count, _, err := p.Count(data.SQLite)
	require.NoError(t, err)
	assert.NotContains(t, count, "LIMIT")
	assert.True(t, strings.HasPrefix(count, "SELECT COUNT(*) FROM (SELECT DISTINCT"))
}

func TestParseDirectives(t *testing.T) {
	got := ParseDirectives([]string{"Last_Name|sort_desc", "id|SPECIFIED", "", "city|bogus", "sort_column"})
	assert.Equal(t, []Directive{
		{Field: "last_name", Flag: FlagDesc},
		{Field: "id", Flag: FlagSpecified},
		{Field: "city", Flag: FlagNone},
		{Field: "sort_column", Flag: FlagNone},
	}, got)
}

// =============================================================================
// Lookups
// =============================================================================

func TestGetEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	row, err := svc.GetEntry(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "Acme", row["organization"])

	row, err = svc.GetEntry(ctx, "john-smith")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["id"])

	_, err = svc.GetEntry(ctx, "nobody")
	assert.True(t, errors.Is(err, tools.ErrEntryNotFound))
}

func TestGetEntryBy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	row, err := svc.GetEntryBy(ctx, "email", "john@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Smith", row["last_name"])

	_, err = svc.GetEntryBy(ctx, "phone", "555")
	assert.True(t, errors.Is(err, tools.ErrInvalidRequest))

	_, err = svc.GetEntryBy(ctx, "id", "abc")
	assert.True(t, errors.Is(err, tools.ErrInvalidRequest))
}

func TestRecordCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.RecordCount(ctx, anonymous(), filter.Normalize(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	policy := access.Policy{AllowPrivateOverride: true}
	n, err = svc.RecordCount(ctx, access.Anonymous(policy), filter.Normalize(filter.Attributes{"private_override": true}, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCharacters(t *testing.T) {
	svc, _ := newTestService(t)

	chars, err := svc.Characters(context.Background(), anonymous(), filter.Normalize(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "S"}, chars)
}

func TestIndividuals(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.Individuals(context.Background(), anonymous())
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Smith, John", 2: "Adams, Ann"}, got)
}

func TestSpec_AdminIgnoresOverrides(t *testing.T) {
	svc, _ := newTestService(t)
	overrides := filter.Overrides{"cn-char": "a"}

	public := svc.Spec(anonymous(), nil, overrides)
	assert.Equal(t, "a", public.Char)

	admin := anonymous()
	admin.Surface = access.SurfaceAdmin
	assert.Empty(t, svc.Spec(admin, nil, overrides).Char)
}
