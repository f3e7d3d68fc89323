// Package geo builds the radius search clauses: a bounding-box prefilter over
// the address table and an exact great-circle distance predicate.
package geo

import (
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
)

// EarthRadiusKm is the mean earth radius used by the distance formula.
const EarthRadiusKm = 6371.0

// Query is a center point and radius.
type Query struct {
	Latitude  float64
	Longitude float64
	Radius    float64
	Unit      string
}

// Box is a latitude/longitude bounding box in degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Clauses are the fragments a radius search contributes to a list query.
type Clauses struct {
	// Source selects the entry ids whose addresses fall inside the box.
	Source sq.SelectBuilder
	// Distance is the great-circle distance in kilometers from the center to
	// the joined address row.
	Distance sq.Sqlizer
	// Within restricts joined address rows to the radius.
	Within sq.Sqlizer
	Box    Box
	// RadiusKm is the radius converted to kilometers.
	RadiusKm float64
}

// RadiusKm returns the radius converted to kilometers.
func (q Query) RadiusKm() float64 {
	return ToKilometers(q.Radius, q.Unit)
}

// BoundingBox returns the box that encloses the search circle.
func (q Query) BoundingBox() Box {
	angular := degrees(q.RadiusKm() / EarthRadiusKm)
	lngSpan := degrees(q.RadiusKm() / EarthRadiusKm / math.Cos(radians(q.Latitude)))
	return Box{
		MinLat: q.Latitude - angular,
		MaxLat: q.Latitude + angular,
		MinLng: q.Longitude - lngSpan,
		MaxLng: q.Longitude + lngSpan,
	}
}

// Build returns the clauses for addresses stored in table, whose rows are
// referenced as alias in the outer query.
func Build(q Query, table, alias string) Clauses {
	box := q.BoundingBox()
	radiusKm := q.RadiusKm()

	inBox := sq.And{
		sq.Expr("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat),
		sq.Expr("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng),
	}

	lat := radians(q.Latitude)
	lng := radians(q.Longitude)
	expr := distanceSQL(alias)

	return Clauses{
		Source:   sq.Select("entry_id").Distinct().From(table).Where(inBox),
		Distance: sq.Expr(expr, lat, lat, lng),
		Within:   sq.Expr(expr+" < ?", lat, lat, lng, radiusKm),
		Box:      box,
		RadiusKm: radiusKm,
	}
}

// distanceSQL binds center latitude (twice) and longitude, all in radians.
func distanceSQL(alias string) string {
	return fmt.Sprintf(
		"(acos(sin(?) * sin(radians(%[1]s.latitude)) + cos(?) * cos(radians(%[1]s.latitude)) * cos(radians(%[1]s.longitude) - ?)) * %[2]g)",
		alias, EarthRadiusKm)
}

// Distance returns the great-circle distance in kilometers between two points,
// computed with the same formula the SQL predicate uses.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	x := math.Sin(radians(lat1))*math.Sin(radians(lat2)) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Cos(radians(lng2)-radians(lng1))
	return math.Acos(math.Max(-1, math.Min(1, x))) * EarthRadiusKm
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
