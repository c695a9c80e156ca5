package boundary

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is an [x, y] pair: lon/lat for geographic data, pixels for pre-projected topologies.
type Point = orb.Point

// Ring is a closed or open loop of points.
type Ring = orb.Ring

// Polygon is a list of rings; the first ring is the exterior, the rest are holes.
type Polygon = orb.Polygon

// Line is an open polyline, used for the interior-border mesh.
type Line = orb.LineString

type Bounds = orb.Bound

// Geometry is a multipolygon. A plain polygon is a Geometry with one entry.
type Geometry orb.MultiPolygon

// EmptyBounds is the identity for Extend and Union; accumulate from it rather
// than from a zero Bound.
func EmptyBounds() Bounds {
	return Bounds{
		Min: Point{math.Inf(1), math.Inf(1)},
		Max: Point{math.Inf(-1), math.Inf(-1)},
	}
}

// Width and Height of b; zero for empty bounds.
func Width(b Bounds) float64 {
	if b.IsEmpty() {
		return 0
	}
	return b.Right() - b.Left()
}

func Height(b Bounds) float64 {
	if b.IsEmpty() {
		return 0
	}
	return b.Top() - b.Bottom()
}

// Bounds is the axis-aligned box of every exterior ring.
func (g Geometry) Bounds() Bounds {
	b := EmptyBounds()
	for _, poly := range g {
		if len(poly) == 0 || len(poly[0]) == 0 {
			continue
		}
		b = b.Union(poly[0].Bound())
	}
	return b
}

func (g Geometry) IsEmpty() bool {
	for _, poly := range g {
		if len(poly) > 0 && len(poly[0]) > 0 {
			return false
		}
	}
	return true
}

// Contains reports whether p is inside any polygon and outside its holes.
// Points on an edge count as inside.
func (g Geometry) Contains(p Point) bool {
	for _, poly := range g {
		if len(poly) > 0 && planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}
