package taxonomy

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/atomicbase/directory/filter"
)

// Term match fields.
const (
	FieldID   = "term_id"
	FieldName = "name"
	FieldSlug = "slug"
)

// Operators.
const (
	OpIn    = "IN"
	OpNotIn = "NOT IN"
	OpAnd   = "AND"
)

// Clause restricts entries by membership in terms of one taxonomy.
type Clause struct {
	Taxonomy        string
	Terms           []any
	Field           string
	Operator        string
	IncludeChildren bool
}

var (
	splitPlus     = regexp.MustCompile(`[+]+`)
	splitComma    = regexp.MustCompile(`[,]+`)
	splitCat      = regexp.MustCompile(`[,\s]+`)
	splitTagComma = regexp.MustCompile(`[,\r\n\t ]+`)
	splitTagPlus  = regexp.MustCompile(`[+\r\n\t ]+`)
)

// BuildClauses returns the taxonomy clauses for s, in evaluation order.
func BuildClauses(s filter.Spec, reg Registry) []Clause {
	var out []Clause

	if s.Taxonomy != "" && s.Term != "" {
		out = append(out, Clause{
			Taxonomy: s.Taxonomy, Terms: []any{s.Term},
			Field: FieldSlug, Operator: OpIn, IncludeChildren: true,
		})
	}

	if reg != nil {
		for _, tax := range reg.Taxonomies() {
			if tax.Slug == Tag || tax.QueryVar == "" {
				continue
			}
			out = append(out, requestClauses(tax, s.Extra.Request[tax.QueryVar])...)
		}
	}

	out = append(out, legacyCategory(s.Category)...)

	categoryIn := s.CategoryIn
	categoryAnd := s.CategoryAnd
	if len(categoryAnd) == 1 {
		categoryIn = appendUnique(categoryIn, categoryAnd[0])
		categoryAnd = nil
	}
	out = appendIDs(out, Category, categoryIn, OpIn, false)
	out = appendIDs(out, Category, s.CategoryNotIn, OpNotIn, true)
	out = appendIDs(out, Category, categoryAnd, OpAnd, false)
	out = appendStrings(out, Category, s.CategoryNameIn, FieldName, OpIn, true)
	out = appendStrings(out, Category, s.CategorySlugIn, FieldSlug, OpIn, true)

	tagSlugIn := s.TagSlugIn
	tagSlugAnd := s.TagSlugAnd
	if tag := strings.TrimSpace(s.Tag); tag != "" {
		switch {
		case strings.Contains(tag, ","):
			tagSlugIn = append(tagSlugIn, split(splitTagComma, tag)...)
		case splitTagPlus.MatchString(tag) || s.Category != "":
			tagSlugAnd = append(tagSlugAnd, split(splitTagPlus, tag)...)
		default:
			tagSlugIn = append(tagSlugIn, slugify(tag))
		}
	}

	if s.TagID > 0 {
		out = appendIDs(out, Tag, []int64{s.TagID}, OpIn, false)
	}
	out = appendIDs(out, Tag, s.TagIn, OpIn, false)
	out = appendIDs(out, Tag, s.TagNotIn, OpNotIn, false)
	out = appendIDs(out, Tag, s.TagAnd, OpAnd, false)
	out = appendStrings(out, Tag, tagSlugIn, FieldSlug, OpIn, false)
	out = appendStrings(out, Tag, tagSlugAnd, FieldSlug, OpAnd, false)

	return out
}

// requestClauses reads a custom taxonomy's request value: "a+b" requires
// every term, "a,b" matches any of them.
func requestClauses(tax Taxonomy, value string) []Clause {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if tax.Hierarchical {
		value = path.Base(strings.TrimRight(value, "/"))
	}

	base := Clause{Taxonomy: tax.Slug, Field: FieldSlug, Operator: OpIn, IncludeChildren: true}
	if strings.Contains(value, "+") {
		var out []Clause
		for _, term := range split(splitPlus, value) {
			c := base
			c.Terms = []any{term}
			out = append(out, c)
		}
		return out
	}

	c := base
	c.Terms = toAny(split(splitComma, value))
	if len(c.Terms) == 0 {
		return nil
	}
	return []Clause{c}
}

// legacyCategory reads the combined category string, where negative ids
// exclude.
func legacyCategory(cat string) []Clause {
	if cat == "" {
		return nil
	}

	var in, notIn []any
	for _, part := range split(splitCat, cat) {
		n, err := strconv.ParseInt(part, 10, 64)
		switch {
		case err != nil || n == 0:
		case n > 0:
			in = append(in, n)
		default:
			notIn = append(notIn, -n)
		}
	}

	var out []Clause
	if len(in) > 0 {
		out = append(out, Clause{Taxonomy: Category, Terms: in, Field: FieldID, Operator: OpIn, IncludeChildren: true})
	}
	if len(notIn) > 0 {
		out = append(out, Clause{Taxonomy: Category, Terms: notIn, Field: FieldID, Operator: OpNotIn, IncludeChildren: true})
	}
	return out
}

func appendIDs(out []Clause, tax string, ids []int64, op string, children bool) []Clause {
	if len(ids) == 0 {
		return out
	}
	terms := make([]any, len(ids))
	for i, id := range ids {
		terms[i] = id
	}
	return append(out, Clause{Taxonomy: tax, Terms: terms, Field: FieldID, Operator: op, IncludeChildren: children})
}

func appendStrings(out []Clause, tax string, values []string, field, op string, children bool) []Clause {
	if len(values) == 0 {
		return out
	}
	if field == FieldSlug {
		slugs := make([]string, 0, len(values))
		for _, v := range values {
			if v = slugify(v); v != "" {
				slugs = append(slugs, v)
			}
		}
		values = slugs
	}
	if len(values) == 0 {
		return out
	}
	return append(out, Clause{Taxonomy: tax, Terms: toAny(values), Field: field, Operator: op, IncludeChildren: children})
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(append([]int64(nil), ids...), id)
}

func split(re *regexp.Regexp, s string) []string {
	var out []string
	for _, p := range re.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

var slugStrip = regexp.MustCompile(`[^a-z0-9_\-%]+`)

// slugify lowercases s and collapses anything that cannot appear in a slug
// into a single hyphen.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
