package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/data"
	"github.com/atomicbase/directory/meta"
)

// Order flags.
const (
	FlagNone        = ""
	FlagAsc         = "ASC"
	FlagDesc        = "DESC"
	FlagNumeric     = "NUMERIC"
	FlagNumericDesc = "NUMERIC_DESC"
	FlagSpecified   = "SPECIFIED"
	FlagRandom      = "RANDOM"
)

var flagAliases = map[string]string{
	"ASC":               FlagAsc,
	"SORT_ASC":          FlagAsc,
	"DESC":              FlagDesc,
	"SORT_DESC":         FlagDesc,
	"NUMERIC":           FlagNumeric,
	"SORT_NUMERIC":      FlagNumeric,
	"SORT_NUMERIC_ASC":  FlagNumeric,
	"NUMERIC_DESC":      FlagNumericDesc,
	"SORT_NUMERIC_DESC": FlagNumericDesc,
	"SPECIFIED":         FlagSpecified,
	"RANDOM":            FlagRandom,
}

// MetaKeyPrefix marks an order field naming a metadata key.
const MetaKeyPrefix = "meta_key:"

// Directive is one parsed order_by item.
type Directive struct {
	Field string
	Flag  string
}

// DefaultOrder is used when no directive survives validation.
var DefaultOrder = []Directive{{Field: "sort_column"}, {Field: "last_name"}, {Field: "first_name"}}

var entryOrderFields = map[string]string{
	"id":            "entries.id",
	"date_added":    "entries.date_added",
	"date_modified": "entries.ts",
	"first_name":    "entries.first_name",
	"last_name":     "entries.last_name",
	"title":         "entries.title",
	"organization":  "entries.organization",
	"department":    "entries.department",
}

var regionOrderFields = map[string]bool{"city": true, "state": true, "zipcode": true, "country": true}

// ParseDirectives splits "field|FLAG" items. Unknown flags become FlagNone.
func ParseDirectives(items []string) []Directive {
	var out []Directive
	for _, item := range items {
		field, flag, _ := strings.Cut(item, "|")
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		out = append(out, Directive{Field: field, Flag: flagAliases[strings.ToUpper(strings.TrimSpace(flag))]})
	}
	return out
}

// orderer resolves directives into ORDER BY clauses on a plan, registering
// the joins the fields need.
type orderer struct {
	dialect   data.Dialect
	dateTypes map[string]bool
	geo       bool
	ids       []int64

	region   bool
	dates    []string
	metaKeys []string
}

// resolve applies directives to p. Specified and random orderings only apply
// to id and fall back to ascending elsewhere.
func (o *orderer) resolve(p *Plan, directives []Directive) error {
	var order []sq.Sqlizer

	for _, d := range directives {
		expr, ok := o.column(d.Field)
		if !ok {
			continue
		}
		flag := d.Flag
		if (flag == FlagSpecified || flag == FlagRandom) && d.Field != "id" {
			flag = FlagAsc
		}

		switch flag {
		case FlagSpecified:
			if len(o.ids) > 0 {
				order = []sq.Sqlizer{specifiedOrder(o.ids)}
			}
		case FlagRandom:
			p.Random = true
		case FlagAsc, FlagDesc:
			order = append(order, sq.Expr(expr+" "+flag))
		case FlagNumeric:
			order = append(order, sq.Expr(o.dialect.Numeric(o.numericOperand(d.Field, expr))))
		case FlagNumericDesc:
			order = append(order, sq.Expr(o.dialect.Numeric(o.numericOperand(d.Field, expr))+" DESC"))
		default:
			order = append(order, sq.Expr(expr))
		}
	}

	if err := o.register(p); err != nil {
		return err
	}

	if len(order) == 0 && !p.Random {
		for _, d := range DefaultOrder {
			expr, _ := o.column(d.Field)
			order = append(order, sq.Expr(expr))
		}
	}
	p.OrderBy = order
	return nil
}

// column maps an order field to its expression, remembering the joins it
// needs.
func (o *orderer) column(field string) (string, bool) {
	if expr, ok := entryOrderFields[field]; ok {
		return expr, true
	}
	switch {
	case field == "sort_column":
		return "sort_column", true
	case field == "distance" && o.geo:
		return "distance", true
	case regionOrderFields[field]:
		o.region = true
		return o.dialect.Grouped(data.TableAddresses + "." + field), true
	case o.dateTypes[field]:
		if !contains(o.dates, field) {
			o.dates = append(o.dates, field)
		}
		return o.dialect.Grouped(data.TableDates + ".date"), true
	case strings.HasPrefix(field, MetaKeyPrefix):
		key := strings.TrimPrefix(field, MetaKeyPrefix)
		if key == "" {
			return "", false
		}
		if !contains(o.metaKeys, key) {
			o.metaKeys = append(o.metaKeys, key)
		}
		return o.dialect.Grouped(fmt.Sprintf("om%d.meta_value", indexOf(o.metaKeys, key)+1)), true
	}
	return "", false
}

// numericOperand swaps output aliases for their expressions, which some
// stores reject inside ORDER BY expressions.
func (o *orderer) numericOperand(field, expr string) string {
	if field == "sort_column" {
		return sortColumn
	}
	return expr
}

// register adds the joins and predicates collected while resolving.
func (o *orderer) register(p *Plan) error {
	if o.region {
		p.AddJoin(JoinAddress, addressJoin())
	}

	if len(o.dates) > 0 {
		p.AddJoin(JoinDate, sq.Expr(fmt.Sprintf("INNER JOIN %s ON (%s.id = %s.entry_id)",
			data.TableDates, data.TableEntries, data.TableDates)))
		p.Where = append(p.Where, sq.Eq{data.TableDates + ".type": o.dates})
	}

	if len(o.metaKeys) > 0 {
		b := meta.NewBuilder(o.dialect)
		b.Prefix = "om"
		q := meta.Query{Relation: "AND"}
		for _, k := range o.metaKeys {
			q.Clauses = append(q.Clauses, meta.Clause{Key: k})
		}
		frag, err := b.Compile(q, data.TableEntries, "id")
		if err != nil {
			return err
		}
		p.AddJoin(JoinMetaOrder, frag.Joins...)
		p.Where = append(p.Where, frag.Where)
	}
	return nil
}

func addressJoin() sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("INNER JOIN %s ON (%s.id = %s.entry_id)",
		data.TableAddresses, data.TableEntries, data.TableAddresses))
}

// specifiedOrder orders rows by their position in ids.
func specifiedOrder(ids []int64) sq.Sqlizer {
	var b strings.Builder
	args := make([]any, 0, len(ids))
	b.WriteString("CASE entries.id")
	for i, id := range ids {
		fmt.Fprintf(&b, " WHEN ? THEN %d", i)
		args = append(args, id)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(ids))
	return sq.Expr(b.String(), args...)
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
