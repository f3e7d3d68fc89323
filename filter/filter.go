// Package filter normalizes the loosely typed attribute set a caller hands to
// a directory listing into a typed Spec.
package filter

import (
	"strings"

	"github.com/atomicbase/directory/geo"
	"github.com/atomicbase/directory/meta"
)

// Entry types.
const (
	ListIndividual   = "individual"
	ListOrganization = "organization"
	ListFamily       = "family"
	// ListConnectionGroup is the legacy name of ListFamily.
	ListConnectionGroup = "connection_group"
)

// DefaultRadius is the geo radius used when none is given.
const DefaultRadius = 10.0

// Attributes is the raw caller input, keyed by attribute name.
type Attributes map[string]any

// Extra holds input no Spec field claims.
type Extra struct {
	Attrs   Attributes
	Request map[string]string
}

// Spec is a normalized filter for one list call.
type Spec struct {
	ListType []string

	ID      []int64
	IDNotIn []int64
	Slug    string

	Category       string
	CategoryAnd    []int64
	CategoryIn     []int64
	CategoryNotIn  []int64
	CategoryNameIn []string
	CategorySlugIn []string
	Tag            string
	TagID          int64
	TagIn          []int64
	TagNotIn       []int64
	TagAnd         []int64
	TagSlugIn      []string
	TagSlugAnd     []string
	Taxonomy       string
	Term           string

	FamilyName   []string
	LastName     []string
	Title        []string
	Organization []string
	Department   []string
	District     []string
	County       []string
	City         []string
	State        []string
	ZipCode      []string
	Country      []string

	Char string

	Visibility          []string
	Status              []string
	AllowPublicOverride bool
	PrivateOverride     bool
	ProcessUserCaps     bool

	OrderBy []string
	Limit   int // 0 is no limit
	Offset  int

	MetaQuery meta.Query

	SearchTerms string

	NearAddr  string
	Latitude  *float64
	Longitude *float64
	Radius    float64
	Unit      string

	ParseRequest    bool
	SuppressFilters bool

	Extra Extra
}

// Geo returns the radius query when both coordinates are set.
func (s Spec) Geo() (geo.Query, bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return geo.Query{}, false
	}
	return geo.Query{
		Latitude:  *s.Latitude,
		Longitude: *s.Longitude,
		Radius:    s.Radius,
		Unit:      s.Unit,
	}, true
}

// Defaults returns every recognized attribute with its default value.
func Defaults() Attributes {
	return Attributes{
		"list_type":             nil,
		"id":                    nil,
		"id__not_in":            nil,
		"slug":                  "",
		"category":              "",
		"category__and":         nil,
		"category__in":          nil,
		"category__not_in":      nil,
		"category_name__in":     nil,
		"category_slug__in":     nil,
		"tag":                   "",
		"tag_id":                nil,
		"tag__in":               nil,
		"tag__not_in":           nil,
		"tag__and":              nil,
		"tag_slug__in":          nil,
		"tag_slug__and":         nil,
		"taxonomy":              "",
		"term":                  "",
		"family_name":           nil,
		"last_name":             nil,
		"title":                 nil,
		"organization":          nil,
		"department":            nil,
		"district":              nil,
		"county":                nil,
		"city":                  nil,
		"state":                 nil,
		"zip_code":              nil,
		"country":               nil,
		"char":                  "",
		"visibility":            nil,
		"status":                []string{"approved"},
		"allow_public_override": false,
		"private_override":      false,
		"process_user_caps":     true,
		"order_by":              []string{"sort_column", "last_name", "first_name"},
		"limit":                 nil,
		"offset":                0,
		"meta_query":            nil,
		"meta_key":              "",
		"meta_value":            nil,
		"meta_compare":          "",
		"meta_type":             "",
		"search_terms":          "",
		"near_addr":             "",
		"latitude":              nil,
		"longitude":             nil,
		"radius":                DefaultRadius,
		"unit":                  geo.DefaultUnit,
		"parse_request":         true,
		"suppress_filters":      false,
	}
}

// Legacy attribute names. The current name wins when both are given.
var aliases = map[string]string{
	"category_in":      "category__and",
	"exclude_category": "category__not_in",
	"category_name":    "category_name__in",
	"category_slug":    "category_slug__in",
	"zipcode":          "zip_code",
}

// ClampLimit caps the limit attribute at ceiling; a missing or unparsable
// limit becomes ceiling. It runs before Normalize so page overrides compute
// their offset from the capped limit.
func (a Attributes) ClampLimit(ceiling int) {
	if ceiling <= 0 {
		return
	}
	if n := toInt64(a["limit"]); n <= 0 || n > int64(ceiling) {
		a["limit"] = ceiling
	}
}

// Normalize merges attrs over Defaults, layers request overrides on top when
// parse_request allows it and applies the slug precedence resets. Pass nil
// overrides to ignore the request entirely.
func Normalize(attrs Attributes, overrides Overrides) Spec {
	merged := Defaults()
	extra := Attributes{}

	for k, v := range attrs {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "lock" {
			if _, set := attrs["parse_request"]; !set {
				merged["parse_request"] = !toBool(v)
			}
			continue
		}
		if current, ok := aliases[key]; ok {
			if _, set := attrs[current]; set {
				continue
			}
			key = current
		}
		if _, known := merged[key]; !known {
			extra[key] = v
			continue
		}
		merged[key] = v
	}

	s := decode(merged)
	s.Extra = Extra{Attrs: extra, Request: map[string]string{}}

	if s.ParseRequest && overrides != nil {
		s.applyOverrides(overrides)
	}
	s.applyPrecedence()
	return s
}

func decode(a Attributes) Spec {
	s := Spec{
		ListType: listTypes(toStringList(a["list_type"])),

		ID:      toIDList(a["id"]),
		IDNotIn: toIDList(a["id__not_in"]),
		Slug:    toString(a["slug"]),

		Category:       toString(a["category"]),
		CategoryAnd:    toIDList(a["category__and"]),
		CategoryIn:     toIDList(a["category__in"]),
		CategoryNotIn:  toIDList(a["category__not_in"]),
		CategoryNameIn: toStringList(a["category_name__in"]),
		CategorySlugIn: toStringList(a["category_slug__in"]),
		Tag:            toString(a["tag"]),
		TagIn:          toIDList(a["tag__in"]),
		TagNotIn:       toIDList(a["tag__not_in"]),
		TagAnd:         toIDList(a["tag__and"]),
		TagSlugIn:      toStringList(a["tag_slug__in"]),
		TagSlugAnd:     toStringList(a["tag_slug__and"]),
		Taxonomy:       toString(a["taxonomy"]),
		Term:           toString(a["term"]),

		FamilyName:   toStringList(a["family_name"]),
		LastName:     toStringList(a["last_name"]),
		Title:        toStringList(a["title"]),
		Organization: toStringList(a["organization"]),
		Department:   toStringList(a["department"]),
		District:     toStringList(a["district"]),
		County:       toStringList(a["county"]),
		City:         toStringList(a["city"]),
		State:        toStringList(a["state"]),
		ZipCode:      toStringList(a["zip_code"]),
		Country:      toStringList(a["country"]),

		Char: toString(a["char"]),

		Visibility:          lowerAll(toStringList(a["visibility"])),
		Status:              lowerAll(toStringList(a["status"])),
		AllowPublicOverride: toBool(a["allow_public_override"]),
		PrivateOverride:     toBool(a["private_override"]),
		ProcessUserCaps:     toBool(a["process_user_caps"]),

		OrderBy: toStringList(a["order_by"]),

		SearchTerms: toString(a["search_terms"]),

		NearAddr:  toString(a["near_addr"]),
		Latitude:  toFloatPtr(a["latitude"]),
		Longitude: toFloatPtr(a["longitude"]),
		Unit:      geo.NormalizeUnit(toString(a["unit"])),

		ParseRequest:    toBool(a["parse_request"]),
		SuppressFilters: toBool(a["suppress_filters"]),
	}

	if ids := toIDList(a["tag_id"]); len(ids) > 0 {
		s.TagID = ids[0]
	}
	if n := int(toInt64(a["limit"])); n > 0 {
		s.Limit = n
	}
	if n := int(toInt64(a["offset"])); n > 0 {
		s.Offset = n
	}
	s.Radius = DefaultRadius
	if r, ok := toFloat(a["radius"]); ok && r > 0 {
		s.Radius = r
	}

	s.MetaQuery = metaQuery(a["meta_query"])
	if key := toString(a["meta_key"]); key != "" || a["meta_value"] != nil {
		c := meta.Clause{
			Key:     key,
			Value:   a["meta_value"],
			Compare: toString(a["meta_compare"]),
			Type:    toString(a["meta_type"]),
		}
		s.MetaQuery.Clauses = append([]meta.Clause{c}, s.MetaQuery.Clauses...)
	}
	return s
}

// listTypes keeps the permitted entry types, in order and without repeats.
func listTypes(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range in {
		t = strings.ToLower(t)
		if t == ListConnectionGroup {
			t = ListFamily
		}
		switch t {
		case ListIndividual, ListOrganization, ListFamily:
		default:
			continue
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func metaQuery(v any) meta.Query {
	switch t := v.(type) {
	case meta.Query:
		return t
	case *meta.Query:
		if t != nil {
			return *t
		}
	case []meta.Clause:
		return meta.Query{Relation: "AND", Clauses: t}
	case map[string]any:
		q := metaQuery(t["clauses"])
		if r := toString(t["relation"]); r != "" {
			q.Relation = strings.ToUpper(r)
		}
		return q
	case []any:
		q := meta.Query{Relation: "AND"}
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q.Clauses = append(q.Clauses, meta.Clause{
				Key:     toString(m["key"]),
				Value:   m["value"],
				Compare: toString(m["compare"]),
				Type:    toString(m["type"]),
			})
		}
		return q
	}
	return meta.Query{}
}

// applyPrecedence clears the broad listing filters when a single entry or
// category slug is being looked up.
func (s *Spec) applyPrecedence() {
	if s.Slug != "" || len(s.CategorySlugIn) > 0 {
		s.ListType = nil
		s.Category = ""
		s.CategoryAnd = nil
		s.CategoryNotIn = nil
	}
	if s.Slug != "" {
		s.NearAddr = ""
		s.Latitude = nil
		s.Longitude = nil
		s.Radius = DefaultRadius
		s.Unit = geo.DefaultUnit
	}
}
