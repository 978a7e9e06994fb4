package geo

import (
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func square(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
}

func TestPointInPolygon(t *testing.T) {
	alps := square(5, 45, 15, 48)
	// L-shaped ring: the notch at the top right is outside.
	ell := orb.Polygon{{
		{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}, {0, 0},
	}}
	withHole := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	}
	multi := orb.MultiPolygon{square(0, 0, 1, 1), square(10, 10, 11, 11)}

	tests := []struct {
		name string
		pt   orb.Point
		geom orb.Geometry
		want bool
	}{
		{"centroid inside", orb.Point{10, 46.5}, alps, true},
		{"far outside bbox", orb.Point{-0.1, 51.5}, alps, false},
		{"concave notch", orb.Point{7.5, 7.5}, ell, false},
		{"concave arm", orb.Point{2.5, 7.5}, ell, true},
		{"holes are ignored", orb.Point{5, 5}, withHole, true},
		{"second polygon of multipolygon", orb.Point{10.5, 10.5}, multi, true},
		{"between multipolygon members", orb.Point{5, 5}, multi, false},
		{"point geometry never contains", orb.Point{1, 1}, orb.Point{1, 1}, false},
		{"nil geometry", orb.Point{1, 1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInPolygon(tt.pt, tt.geom))
		})
	}
}

func TestSampleVertex(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	rings := allRings(square(0, 0, 1, 1))
	total := vertexTotal(rings)
	assert.Equal(t, 5, total)

	for range 50 {
		p, ok := sampleVertex(rings, total, rng)
		assert.True(t, ok)
		assert.Contains(t, []orb.Point(rings[0]), p)
	}

	_, ok := sampleVertex(nil, 0, rng)
	assert.False(t, ok)
}

func TestAnyVertexInside(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	parent := square(0, 0, 10, 10)

	assert.True(t, AnyVertexInside(square(2, 2, 3, 3), parent, 100, rng))
	assert.True(t, AnyVertexInside(square(8, 8, 12, 12), parent, 100, rng), "partial overlap should be found")
	assert.False(t, AnyVertexInside(square(20, 20, 21, 21), parent, 100, rng))
	assert.False(t, AnyVertexInside(orb.Polygon{}, parent, 100, rng))
}
