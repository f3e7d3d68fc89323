package filter

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/atomicbase/directory/geo"
)

// OverridePrefix marks query keys that are request overrides.
const OverridePrefix = "cn-"

// Overrides are caller-specified request values layered onto a Spec.
type Overrides map[string]string

// OverridesFromQuery picks the override keys out of a URL query.
func OverridesFromQuery(v url.Values) Overrides {
	o := Overrides{}
	for key, values := range v {
		if strings.HasPrefix(key, OverridePrefix) && len(values) > 0 {
			o[key] = values[0]
		}
	}
	return o
}

// AttributesFromQuery returns every non-override query key as an attribute.
// Repeated keys become lists.
func AttributesFromQuery(v url.Values) Attributes {
	a := Attributes{}
	for key, values := range v {
		if strings.HasPrefix(key, OverridePrefix) || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			a[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, val := range values {
			list[i] = val
		}
		a[key] = list
	}
	return a
}

func (s *Spec) applyOverrides(o Overrides) {
	for key, value := range o {
		switch key {
		case "cn-cat":
			s.Category = strings.TrimSpace(value)
		case "cn-cat-in":
			s.CategoryAnd = toIDList(value)
		case "cn-cat-slug":
			s.CategorySlugIn = toStringList(path.Base(strings.Trim(value, "/")))
		case "cn-tag":
			s.Tag = strings.TrimSpace(value)
		case "cn-country":
			s.Country = toStringList(value)
		case "cn-postal-code":
			s.ZipCode = toStringList(value)
		case "cn-region":
			s.State = toStringList(value)
		case "cn-locality":
			s.City = toStringList(value)
		case "cn-county":
			s.County = toStringList(value)
		case "cn-district":
			s.District = toStringList(value)
		case "cn-organization":
			s.Organization = toStringList(value)
		case "cn-department":
			s.Department = toStringList(value)
		case "cn-char":
			s.Char = strings.TrimSpace(value)
		case "cn-s":
			s.SearchTerms = strings.TrimSpace(value)
		case "cn-pg":
			s.Offset = pageOffset(value, s.Limit, s.Offset)
		case "cn-entry-slug":
			s.Slug = strings.TrimSpace(value)
		case "cn-near-coord":
			s.nearCoord(value, o)
		default:
			s.Extra.Request[key] = value
		}
	}
}

func pageOffset(value string, limit, offset int) int {
	page, err := strconv.Atoi(strings.TrimSpace(value))
	if err == nil && page > 0 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		return 0
	}
	return offset
}

func (s *Spec) nearCoord(value string, o Overrides) {
	lat, lng, ok := strings.Cut(value, ",")
	if !ok {
		return
	}
	la, okLat := toFloat(lat)
	lo, okLng := toFloat(lng)
	if !okLat || !okLng {
		return
	}
	s.Latitude, s.Longitude = &la, &lo

	if r, ok := toFloat(o["cn-radius"]); ok && r > 0 {
		s.Radius = r
	}
	if u, ok := o["cn-unit"]; ok {
		s.Unit = geo.NormalizeUnit(u)
	}
}
