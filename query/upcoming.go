package query

import (
	"cmp"
	"context"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/access"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/filter"
	"github.com/atomicbase/directory/tools"
)

// DateLayout is the stored form of entry dates.
const DateLayout = "2006-01-02"

// Upcoming selects entries with a recurring date in a window from From.
type Upcoming struct {
	Type  string // registered date type, default birthday
	Days  int    // window length, default 30
	Today bool   // include events falling on From
	From  time.Time

	// ReturnIDs skips listing the entries.
	ReturnIDs       bool
	Visibility      []string
	ProcessUserCaps bool
}

// DefaultUpcoming returns the defaults: birthdays over the next 30 days,
// today included, visibility checked.
func DefaultUpcoming() Upcoming {
	return Upcoming{Type: "birthday", Days: 30, Today: true, ProcessUserCaps: true}
}

// UpcomingResult holds the matching ids by next occurrence and, unless only
// ids were asked for, the listed entries in the same order.
type UpcomingResult struct {
	IDs     []int64
	Entries ResultSet
}

type occurrence struct {
	id   int64
	next time.Time
}

// UpcomingEvents finds entries whose date of type u.Type recurs within the
// window. An unregistered type yields an empty result.
func (s *Service) UpcomingEvents(ctx context.Context, caller access.Context, u Upcoming) (UpcomingResult, error) {
	start := time.Now()

	var res UpcomingResult
	if u.Type == "" {
		u.Type = "birthday"
	}
	if s.Settings == nil || !s.Settings.IsDateType(u.Type) {
		return res, nil
	}
	if u.Days <= 0 {
		u.Days = 30
	}
	if u.From.IsZero() {
		u.From = s.now()
	}

	qb := sq.Select(data.TableDates+".entry_id", data.TableDates+".date").
		From(data.TableDates).
		Join(data.TableEntries + " ON " + data.TableEntries + ".id = " + data.TableDates + ".entry_id").
		Where(sq.Eq{data.TableDates + ".type": u.Type}).
		Where(sq.Eq{data.TableEntries + ".status": access.Strings(access.ResolveStatus(caller, []string{string(access.Approved)}))})
	if u.ProcessUserCaps {
		vis := access.Strings(access.ResolveVisibility(caller, access.VisibilityRequest{Explicit: u.Visibility}))
		qb = qb.Where(sq.Eq{data.TableDates + ".visibility": vis}).
			Where(sq.Eq{data.TableEntries + ".visibility": vis})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return res, tools.CompileErr(err)
	}
	rows, err := s.DB.QueryRows(ctx, query, args...)
	observe("upcoming", start, err)
	if err != nil {
		return res, tools.StorageErr(err)
	}

	res.IDs = upcomingIDs(rows, u)
	if u.ReturnIDs || len(res.IDs) == 0 {
		return res, nil
	}

	spec := filter.Normalize(filter.Attributes{
		"id":                res.IDs,
		"order_by":          "id|SPECIFIED",
		"suppress_filters":  true,
		"lock":              true,
		"process_user_caps": u.ProcessUserCaps,
		"visibility":        u.Visibility,
	}, nil)
	res.Entries = s.ListEntries(ctx, caller, spec)
	return res, res.Entries.Err
}

// upcomingIDs orders rows by next occurrence of their date, then id. An entry
// with several matching dates appears once, at its earliest occurrence.
func upcomingIDs(rows []data.Row, u Upcoming) []int64 {
	from := time.Date(u.From.Year(), u.From.Month(), u.From.Day(), 0, 0, 0, 0, time.UTC)

	var found []occurrence
	for _, r := range rows {
		id, ok := r["entry_id"].(int64)
		if !ok {
			continue
		}
		raw, _ := r["date"].(string)
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			continue
		}

		next := NextOccurrence(d, from)
		days := int(next.Sub(from).Hours() / 24)
		if days > u.Days || (days == 0 && !u.Today) {
			continue
		}
		found = append(found, occurrence{id: id, next: next})
	}

	slices.SortFunc(found, func(a, b occurrence) int {
		if c := a.next.Compare(b.next); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	seen := map[int64]bool{}
	var ids []int64
	for _, o := range found {
		if !seen[o.id] {
			seen[o.id] = true
			ids = append(ids, o.id)
		}
	}
	return ids
}

// NextOccurrence returns the first anniversary of d on or after from, which
// must be a UTC midnight. February 29 falls on March 1 in common years.
func NextOccurrence(d, from time.Time) time.Time {
	next := time.Date(from.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(from) {
		next = time.Date(from.Year()+1, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return next
}
