package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"geoquiz/pkg/model"
)

// DefaultPointRadius is the half-width in degrees of the display box around a Point.
const DefaultPointRadius = 0.1

// FlattenLongitudes returns the longitude of every vertex of every ring of a
// Polygon or MultiPolygon, sorted ascending.
func FlattenLongitudes(geom orb.Geometry) []float64 {
	var lons []float64
	for _, ring := range allRings(geom) {
		for _, p := range ring {
			lons = append(lons, p[0])
		}
	}
	sort.Float64s(lons)
	return lons
}

// DisplayBounds computes the box the renderer should frame for geom.
//
// The sorted vertex longitudes are scanned for the widest empty gap between
// neighbours. If the span that wraps from the smallest longitude through
// ±180° to the largest one is at least as wide, the shape does not cross the
// antimeridian and searchBounds is returned unchanged. Otherwise the shape
// straddles ±180° and the returned box has West/East swapped so that
// East < West: it runs from the east edge of the gap, through the antimeridian,
// to the west edge of the gap.
func DisplayBounds(geom orb.Geometry, searchBounds model.Bounds) model.Bounds {
	lons := FlattenLongitudes(geom)
	if len(lons) < 2 {
		return searchBounds
	}

	maxGap := 0.0
	gapWest, gapEast := lons[0], lons[0]
	for i := 0; i+1 < len(lons); i++ {
		if gap := lons[i+1] - lons[i]; gap > maxGap {
			maxGap = gap
			gapWest, gapEast = lons[i], lons[i+1]
		}
	}

	wrapGap := (lons[0] - (-180)) + (180 - lons[len(lons)-1])
	if wrapGap >= maxGap {
		return searchBounds
	}

	return model.Bounds{
		West:  gapEast,
		South: searchBounds.South,
		East:  gapWest,
		North: searchBounds.North,
	}
}

// PointBounds returns a box of ±radius degrees around pt, clamped to valid latitudes.
// Longitudes are normalized so a box near ±180° comes out wrapped.
func PointBounds(pt orb.Point, radius float64) model.Bounds {
	return model.Bounds{
		West:  NormalizeLongitude(pt.Lon() - radius),
		South: math.Max(pt.Lat()-radius, -90),
		East:  NormalizeLongitude(pt.Lon() + radius),
		North: math.Min(pt.Lat()+radius, 90),
	}
}

// BoundsFromBBox converts a provider bounding box given as
// [south, north, west, east] into Bounds. A zero box falls back to the
// bound of geom.
func BoundsFromBBox(bbox [4]float64, geom orb.Geometry) model.Bounds {
	if bbox == [4]float64{} && geom != nil {
		return model.BoundsFromOrb(geom.Bound())
	}
	return model.Bounds{
		South: bbox[0],
		North: bbox[1],
		West:  bbox[2],
		East:  bbox[3],
	}
}
