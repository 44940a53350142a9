// Package geo provides the geometric helpers shared by parsing, graph
// building, and snapping: great-circle distance and point-to-segment
// projection, built on paulmach/orb's point type so every other package
// that touches coordinates speaks the same geometry vocabulary.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point wraps orb.Point (lon, lat order) to avoid every caller having to
// remember orb's axis order when constructing one from lat/lon inputs.
func Point(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// Haversine returns the great-circle distance in meters between two
// lat/lon points, delegating to orb/geo's haversine implementation.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return orbgeo.Distance(Point(lat1, lon1), Point(lat2, lon2))
}

// EquirectangularDist returns an approximate distance in meters, ~3x
// faster than Haversine and accurate to well under 1% at typical city
// latitudes. Use for candidate filtering and comparisons, not final
// edge weights.
func EquirectangularDist(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMeters = 6_371_000.0
	x := (lon2 - lon1) * math.Cos((lat1+lat2)/2*math.Pi/180) * math.Pi / 180
	y := (lat2 - lat1) * math.Pi / 180
	return math.Sqrt(x*x+y*y) * earthRadiusMeters
}

// PointToSegmentDist computes the perpendicular distance from point P to
// segment AB, and returns the projection ratio along AB (clamped to
// [0,1]). dist is in meters, ratio is in [0.0, 1.0].
func PointToSegmentDist(pLat, pLon, aLat, aLon, bLat, bLon float64) (dist float64, ratio float64) {
	cosLat := math.Cos((aLat + bLat) / 2 * math.Pi / 180)

	ax := aLon * cosLat
	ay := aLat
	bx := bLon * cosLat
	by := bLat
	px := pLon * cosLat
	py := pLat

	if aLat == bLat && aLon == bLon {
		return Haversine(pLat, pLon, aLat, aLon), 0
	}

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return Haversine(pLat, pLon, aLat, aLon), 0
	}

	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closeLat := aLat + t*(bLat-aLat)
	closeLon := aLon + t*(bLon-aLon)

	return Haversine(pLat, pLon, closeLat, closeLon), t
}
