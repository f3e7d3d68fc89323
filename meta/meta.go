// Package meta compiles key/value predicates over the entry metadata table
// into join and where fragments for a list query.
package meta

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/data"
)

// Compare operators.
const (
	Equal        = "="
	NotEqual     = "!="
	Greater      = ">"
	GreaterEqual = ">="
	Less         = "<"
	LessEqual    = "<="
	Like         = "LIKE"
	NotLike      = "NOT LIKE"
	In           = "IN"
	NotIn        = "NOT IN"
	Exists       = "EXISTS"
	NotExists    = "NOT EXISTS"
)

// Value types that change how meta_value is compared.
const (
	TypeChar    = "CHAR"
	TypeNumeric = "NUMERIC"
)

// Clause matches one meta key and, optionally, its value.
type Clause struct {
	Key     string
	Value   any // nil matches on key only; slices feed IN / NOT IN
	Compare string
	Type    string
}

// Query is a set of clauses joined by Relation (AND or OR).
type Query struct {
	Relation string
	Clauses  []Clause
}

// Empty reports whether the query has no clauses.
func (q Query) Empty() bool { return len(q.Clauses) == 0 }

// Fragment is the compiled form of a Query.
type Fragment struct {
	Joins []sq.Sqlizer
	Where sq.Sqlizer
	// Aliases holds the table alias each clause was compiled against, by
	// clause index.
	Aliases []string
}

// Builder compiles meta queries against Table.
type Builder struct {
	Table   string
	Dialect data.Dialect
	// Prefix, when set, names every join Prefix1, Prefix2, ... so that a
	// second compiled query can share the statement.
	Prefix string
}

// NewBuilder returns a Builder over the entry metadata table.
func NewBuilder(d data.Dialect) Builder {
	return Builder{Table: data.TableMeta, Dialect: d}
}

// Compile returns the joins and predicate for q, joined to primary.idColumn.
// With AND every clause gets its own join alias; with OR the clauses share
// one. NOT EXISTS clauses always use a dedicated LEFT JOIN.
func (b Builder) Compile(q Query, primary, idColumn string) (Fragment, error) {
	var frag Fragment
	if q.Empty() {
		return frag, nil
	}

	or := strings.EqualFold(q.Relation, "OR")
	shared := ""
	var preds []sq.Sqlizer

	nextAlias := func() string {
		n := len(frag.Joins)
		if b.Prefix != "" {
			return fmt.Sprintf("%s%d", b.Prefix, n+1)
		}
		if n == 0 {
			return b.Table
		}
		return fmt.Sprintf("mt%d", n)
	}

	for _, c := range q.Clauses {
		compare := normalizeCompare(c)

		if compare == NotExists {
			alias := nextAlias()
			frag.Joins = append(frag.Joins, sq.Expr(
				fmt.Sprintf("LEFT JOIN %s ON (%s.%s = %s.entry_id AND %s.meta_key = ?)",
					b.tableAs(alias), primary, idColumn, alias, alias), c.Key))
			frag.Aliases = append(frag.Aliases, alias)
			preds = append(preds, sq.Expr(alias+".entry_id IS NULL"))
			continue
		}

		var alias string
		if or && shared != "" {
			alias = shared
		} else {
			alias = nextAlias()
			frag.Joins = append(frag.Joins, sq.Expr(
				fmt.Sprintf("INNER JOIN %s ON (%s.%s = %s.entry_id)", b.tableAs(alias), primary, idColumn, alias)))
			if or {
				shared = alias
			}
		}
		frag.Aliases = append(frag.Aliases, alias)

		pred, err := b.clausePredicate(c, compare, alias)
		if err != nil {
			return Fragment{}, err
		}
		preds = append(preds, pred)
	}

	if or {
		frag.Where = sq.Or(preds)
	} else {
		frag.Where = sq.And(preds)
	}
	return frag, nil
}

func (b Builder) tableAs(alias string) string {
	if alias == b.Table {
		return b.Table
	}
	return b.Table + " AS " + alias
}

func (b Builder) clausePredicate(c Clause, compare, alias string) (sq.Sqlizer, error) {
	var parts sq.And
	if c.Key != "" {
		parts = append(parts, sq.Eq{alias + ".meta_key": c.Key})
	}

	if c.Value == nil || compare == Exists {
		if len(parts) == 0 {
			return nil, fmt.Errorf("meta clause needs a key or a value")
		}
		return parts, nil
	}

	value := alias + ".meta_value"
	if strings.EqualFold(c.Type, TypeNumeric) {
		value = b.Dialect.Numeric(value)
	}

	switch compare {
	case Like:
		parts = append(parts, data.Like(b.Dialect, value, "%"+data.EscapeLike(fmt.Sprint(c.Value))+"%"))
	case NotLike:
		parts = append(parts, data.NotLike(b.Dialect, value, "%"+data.EscapeLike(fmt.Sprint(c.Value))+"%"))
	case In:
		parts = append(parts, sq.Eq{value: toSlice(c.Value)})
	case NotIn:
		parts = append(parts, sq.NotEq{value: toSlice(c.Value)})
	case Equal:
		parts = append(parts, sq.Eq{value: c.Value})
	case NotEqual:
		parts = append(parts, sq.NotEq{value: c.Value})
	case Greater:
		parts = append(parts, sq.Gt{value: c.Value})
	case GreaterEqual:
		parts = append(parts, sq.GtOrEq{value: c.Value})
	case Less:
		parts = append(parts, sq.Lt{value: c.Value})
	case LessEqual:
		parts = append(parts, sq.LtOrEq{value: c.Value})
	default:
		return nil, fmt.Errorf("unsupported meta compare %q", compare)
	}
	return parts, nil
}

func normalizeCompare(c Clause) string {
	compare := strings.ToUpper(strings.TrimSpace(c.Compare))
	if compare == "" {
		if isSlice(c.Value) {
			return In
		}
		return Equal
	}
	if compare == "<>" {
		return NotEqual
	}
	return compare
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func toSlice(v any) any {
	if isSlice(v) {
		return v
	}
	return []any{v}
}
