package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000

// Distance calculates the Haversine distance between two lon/lat points in meters.
func Distance(p1, p2 orb.Point) float64 {
	dLat := (p2.Lat() - p1.Lat()) * (math.Pi / 180.0)
	dLon := (p2.Lon() - p1.Lon()) * (math.Pi / 180.0)
	lat1 := p1.Lat() * (math.Pi / 180.0)
	lat2 := p2.Lat() * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// NormalizeLongitude wraps a longitude into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// IsAreaGeometry reports whether g is a Polygon or MultiPolygon.
func IsAreaGeometry(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// outerRings returns the exterior ring of every polygon in g. Holes are ignored.
func outerRings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil
		}
		return []orb.Ring{v[0]}
	case orb.MultiPolygon:
		rings := make([]orb.Ring, 0, len(v))
		for _, poly := range v {
			if len(poly) > 0 {
				rings = append(rings, poly[0])
			}
		}
		return rings
	}
	return nil
}

// allRings returns every ring, exterior and interior, of every polygon in g.
func allRings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		return v
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, poly := range v {
			rings = append(rings, poly...)
		}
		return rings
	}
	return nil
}
