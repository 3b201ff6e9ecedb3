// Package geo provides great-circle distance, bounding boxes and the seeded
// metro table used to scope discovery and ranking.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// kmPerDegreeLat is the approximate length of one degree of latitude.
const kmPerDegreeLat = 111.0

// Haversine returns the great-circle distance in kilometers between two
// WGS84 points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Point returns a lng/lat point geometry in SRID 4326.
func Point(lat, lng float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
}

// BoundingBox approximates a circle of radiusKm around (lat, lng) with an
// axis-aligned box. X is longitude and Y is latitude. The longitude delta is
// widened by 1/cos(lat); near the poles it is clamped to the full range.
func BoundingBox(lat, lng, radiusKm float64) *geom.Bounds {
	dLat := radiusKm / kmPerDegreeLat
	dLng := 180.0
	if c := math.Cos(toRad(lat)); c > 1e-6 {
		dLng = math.Min(radiusKm/(kmPerDegreeLat*c), 180.0)
	}
	return geom.NewBounds(geom.XY).Set(
		lng-dLng, math.Max(lat-dLat, -90),
		lng+dLng, math.Min(lat+dLat, 90),
	)
}

// Contains reports whether (lat, lng) falls inside b.
func Contains(b *geom.Bounds, lat, lng float64) bool {
	return b.OverlapsPoint(geom.XY, geom.Coord{lng, lat})
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
