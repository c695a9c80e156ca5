package boundary

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

// Locator answers "which feature contains this lon/lat". Polygons are polyfilled
// into H3 cells so a lookup only point-in-polygon tests a few candidates; points
// on cells that straddle a border fall back to a bounds scan.
type Locator struct {
	res      int
	features []Feature
	bounds   []Bounds
	cells    map[h3.Cell][]int
	indexed  bool
}

// NewLocator indexes features at the given H3 resolution. Features outside the
// lon/lat range (pre-projected topologies) are only reachable via the bounds scan.
func NewLocator(features []Feature, res int) (*Locator, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	l := &Locator{
		res:      res,
		features: features,
		bounds:   make([]Bounds, len(features)),
		cells:    map[h3.Cell][]int{},
	}
	for i, f := range features {
		l.bounds[i] = f.Geometry.Bounds()
	}
	if !geographic(l.bounds) {
		return l, nil
	}
	for i, f := range features {
		for _, poly := range f.Geometry {
			cells, err := polyfill(poly, res)
			if err != nil {
				return nil, fmt.Errorf("polyfill %s: %w", f.Code, err)
			}
			for _, c := range cells {
				l.cells[c] = appendUnique(l.cells[c], i)
			}
		}
	}
	l.indexed = true
	return l, nil
}

// Locate returns the code of the feature containing (lon, lat).
func (l *Locator) Locate(lon, lat float64) (region.Code, bool) {
	if l == nil {
		return "", false
	}
	p := Point{lon, lat}
	if l.indexed {
		if c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, l.res); err == nil {
			for _, i := range l.cells[c] {
				if l.features[i].Geometry.Contains(p) {
					return l.features[i].Code, true
				}
			}
		}
	}
	for i, b := range l.bounds {
		if b.Contains(p) && l.features[i].Geometry.Contains(p) {
			return l.features[i].Code, true
		}
	}
	return "", false
}

func (l *Locator) Indexed() bool { return l != nil && l.indexed }

func geographic(bs []Bounds) bool {
	seen := false
	for _, b := range bs {
		if b.IsEmpty() {
			continue
		}
		seen = true
		if b.Left() < -180 || b.Right() > 180 || b.Bottom() < -90 || b.Top() > 90 {
			return false
		}
	}
	return seen
}

func polyfill(poly Polygon, res int) ([]h3.Cell, error) {
	if len(poly) == 0 {
		return nil, nil
	}
	outer := toLoop(poly[0])
	if len(outer) < 3 {
		return nil, nil
	}
	var holes []h3.GeoLoop
	for _, r := range poly[1:] {
		if h := toLoop(r); len(h) >= 3 {
			holes = append(holes, h)
		}
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	return cells, nil
}

// toLoop converts a ring to an h3.GeoLoop, dropping a duplicated closing vertex.
func toLoop(r Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 {
		first, last := loop[0], loop[len(loop)-1]
		if first.Lat == last.Lat && first.Lng == last.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

func appendUnique(xs []int, v int) []int {
	for _, x := range xs {
		if x == v {
			return xs
		}
	}
	return append(xs, v)
}
