package model

import "github.com/paulmach/orb"

// Bounds is an axis-aligned lon/lat box. A box with East < West wraps across
// the antimeridian and must be drawn through ±180°.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// BoundsFromOrb converts an orb.Bound into Bounds.
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{West: b.Min[0], South: b.Min[1], East: b.Max[0], North: b.Max[1]}
}

// Wraps reports whether the box crosses the antimeridian.
func (b Bounds) Wraps() bool {
	return b.East < b.West
}

// IsZero reports whether the box was never set.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Contains reports whether pt lies inside the box, honoring wraparound.
func (b Bounds) Contains(pt orb.Point) bool {
	lon, lat := pt[0], pt[1]
	if lat < b.South || lat > b.North {
		return false
	}
	if b.Wraps() {
		return lon >= b.West || lon <= b.East
	}
	return lon >= b.West && lon <= b.East
}
