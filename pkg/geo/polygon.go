package geo

import (
	"math/rand/v2"

	"github.com/paulmach/orb"
)

// PointInPolygon runs an even-odd ray casting test of pt against the outer
// ring(s) of a Polygon or MultiPolygon. Interior rings are not considered.
// Any other geometry type yields false.
func PointInPolygon(pt orb.Point, geom orb.Geometry) bool {
	if geom == nil {
		return false
	}
	// Fast bounding box check
	if !geom.Bound().Contains(pt) {
		return false
	}

	for _, ring := range outerRings(geom) {
		if ringContains(ring, pt) {
			return true
		}
	}
	return false
}

func ringContains(ring orb.Ring, pt orb.Point) bool {
	x, y := pt[0], pt[1]
	inside := false

	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// sampleVertex draws one vertex uniformly at random from every ring of rings.
// ok is false when rings hold no vertices.
func sampleVertex(rings []orb.Ring, total int, rng *rand.Rand) (orb.Point, bool) {
	if total == 0 {
		return orb.Point{}, false
	}
	return vertexAt(rings, rng.IntN(total)), true
}

func vertexTotal(rings []orb.Ring) int {
	n := 0
	for _, r := range rings {
		n += len(r)
	}
	return n
}

func vertexAt(rings []orb.Ring, idx int) orb.Point {
	for _, r := range rings {
		if idx < len(r) {
			return r[idx]
		}
		idx -= len(r)
	}
	return orb.Point{}
}

// AnyVertexInside samples up to attempts vertices of candidate and reports
// whether at least one of them falls inside parent. It stops at the first hit.
// This is a sampling approximation of polygon intersection, not an exact test.
func AnyVertexInside(candidate, parent orb.Geometry, attempts int, rng *rand.Rand) bool {
	rings := allRings(candidate)
	total := vertexTotal(rings)
	for range attempts {
		p, ok := sampleVertex(rings, total, rng)
		if !ok {
			return false
		}
		if PointInPolygon(p, parent) {
			return true
		}
	}
	return false
}
