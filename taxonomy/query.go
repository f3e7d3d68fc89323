package taxonomy

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/atomicbase/directory/data"
)

// Fragment is the compiled form of a clause list. Membership is resolved
// through subqueries, so Joins is normally empty.
type Fragment struct {
	Joins []sq.Sqlizer
	Where sq.Sqlizer
}

// QueryBuilder compiles taxonomy clauses against the term tables.
type QueryBuilder struct{}

// Compile returns one predicate per clause, joined with AND, restricting
// primary.idColumn to the member entries.
func (QueryBuilder) Compile(clauses []Clause, primary, idColumn string) (Fragment, error) {
	var preds sq.And
	for _, c := range clauses {
		if len(c.Terms) == 0 {
			continue
		}
		pred, err := clausePredicate(c, primary+"."+idColumn)
		if err != nil {
			return Fragment{}, err
		}
		preds = append(preds, pred)
	}
	if len(preds) == 0 {
		return Fragment{}, nil
	}
	return Fragment{Where: preds}, nil
}

func clausePredicate(c Clause, column string) (sq.Sqlizer, error) {
	field := c.Field
	if field == "" {
		field = FieldID
	}
	switch field {
	case FieldID, FieldName, FieldSlug:
	default:
		return nil, fmt.Errorf("unsupported taxonomy field %q", c.Field)
	}

	ids, idArgs, err := termIDs(c, field)
	if err != nil {
		return nil, err
	}

	members := fmt.Sprintf(
		"SELECT tr.entry_id FROM %s AS tr INNER JOIN %s AS tt ON tt.term_taxonomy_id = tr.term_taxonomy_id WHERE tt.taxonomy = ? AND tt.term_id IN (%s)",
		data.TableTermRelationships, data.TableTermTaxonomy, ids)
	args := append([]any{c.Taxonomy}, idArgs...)

	switch c.Operator {
	case OpIn, "":
		return sq.Expr(column+" IN ("+members+")", args...), nil
	case OpNotIn:
		return sq.Expr(column+" NOT IN ("+members+")", args...), nil
	case OpAnd:
		members += " GROUP BY tr.entry_id HAVING COUNT(DISTINCT tt.term_id) = ?"
		return sq.Expr(column+" IN ("+members+")", append(args, len(c.Terms))...), nil
	default:
		return nil, fmt.Errorf("unsupported taxonomy operator %q", c.Operator)
	}
}

// termIDs selects the term ids the clause matches, walking down the
// hierarchy when children are included.
func termIDs(c Clause, field string) (string, []any, error) {
	base, args, err := sq.Select("tx.term_id").
		From(data.TableTermTaxonomy + " AS tx").
		Join(data.TableTerms + " AS t ON t.term_id = tx.term_id").
		Where(sq.Eq{"tx.taxonomy": c.Taxonomy}).
		Where(sq.Eq{"t." + field: c.Terms}).
		ToSql()
	if err != nil {
		return "", nil, err
	}
	if !c.IncludeChildren || c.Operator == OpAnd {
		return base, args, nil
	}

	tree := fmt.Sprintf(
		"WITH RECURSIVE tree(term_id) AS (%s UNION SELECT tc.term_id FROM %s AS tc INNER JOIN tree ON tc.parent = tree.term_id WHERE tc.taxonomy = ?) SELECT term_id FROM tree",
		base, data.TableTermTaxonomy)
	return tree, append(args, c.Taxonomy), nil
}
