package geo

import "strings"

// DefaultUnit is applied when a radius unit is missing or unrecognized.
const DefaultUnit = "mi"

var kilometersPer = map[string]float64{
	"km":  1,
	"m":   0.001,
	"cm":  0.00001,
	"mm":  0.000001,
	"mi":  1.609344,
	"yd":  0.0009144,
	"ft":  0.0003048,
	"in":  0.0000254,
	"nmi": 1.852,
}

// unitAliases maps long unit names onto their abbreviations.
var unitAliases = map[string]string{
	"kilometers": "km", "kilometer": "km", "kilometre": "km", "kilometres": "km",
	"meters": "m", "meter": "m", "metres": "m", "metre": "m",
	"miles": "mi", "mile": "mi",
	"yards": "yd", "yard": "yd",
	"feet": "ft", "foot": "ft",
	"inches": "in", "inch": "in",
	"nautical": "nmi",
}

// NormalizeUnit returns the canonical unit abbreviation, or DefaultUnit.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if alias, ok := unitAliases[u]; ok {
		u = alias
	}
	if _, ok := kilometersPer[u]; ok {
		return u
	}
	return DefaultUnit
}

// ToKilometers converts a distance in unit to kilometers.
func ToKilometers(value float64, unit string) float64 {
	return value * kilometersPer[NormalizeUnit(unit)]
}
