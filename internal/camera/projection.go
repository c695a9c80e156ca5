package camera

import (
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
)

// Projector maps boundary coordinates into national-view viewport space.
type Projector interface {
	// Fit returns the mapping for a nation with the given extent in a viewport.
	Fit(nation boundary.Bounds, width, height float64) Projection
}

type Projection interface {
	Project(p boundary.Point) boundary.Point
}

// IdentityProjector is for topologies that are already projected to the viewport,
// such as the Albers USA atlases.
type IdentityProjector struct{}

func (IdentityProjector) Fit(boundary.Bounds, float64, float64) Projection { return identity{} }

type identity struct{}

func (identity) Project(p boundary.Point) boundary.Point { return p }

// FitExtentProjector linearly fits lon/lat bounds into the viewport with the
// y axis flipped, keeping the aspect ratio.
type FitExtentProjector struct {
	Padding float64
}

func (f FitExtentProjector) Fit(nation boundary.Bounds, width, height float64) Projection {
	if nation.IsEmpty() || boundary.Width(nation) <= 0 || boundary.Height(nation) <= 0 || width <= 0 || height <= 0 {
		return identity{}
	}
	w, h := width-2*f.Padding, height-2*f.Padding
	if w <= 0 || h <= 0 {
		w, h = width, height
	}
	k := math.Min(w/boundary.Width(nation), h/boundary.Height(nation))
	c := nation.Center()
	return linear{
		k:  k,
		tx: width/2 - k*c[0],
		ty: height/2 + k*c[1],
	}
}

type linear struct {
	k, tx, ty float64
}

func (l linear) Project(p boundary.Point) boundary.Point {
	return boundary.Point{l.tx + l.k*p[0], l.ty - l.k*p[1]}
}

// ParseProjector maps a config value to a projector.
func ParseProjector(name string) (Projector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity", "albers", "preprojected":
		return IdentityProjector{}, nil
	case "fit", "lonlat", "equirectangular":
		return FitExtentProjector{}, nil
	default:
		return nil, fmt.Errorf("unknown projection %q (want identity|fit)", name)
	}
}
