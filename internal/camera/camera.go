// Package camera computes the translate+scale transform that frames the nation
// or a selected state inside the viewport.
package camera

import (
	"math"
	"sync"
	"time"

	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/view"
)

const (
	MinScale = 1.0
	MaxScale = 12.0
	// Fill is the largest share of the viewport a framed state may occupy per axis.
	Fill = 0.9
	// TransitionDuration is a hint for the renderer's animation, not part of the transform.
	TransitionDuration = 700 * time.Millisecond
)

type Transform struct {
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
	Scale      float64 `json:"scale"`
}

func Identity() Transform { return Transform{Scale: 1} }

// Target is either the national sentinel or concrete bounds to frame.
type Target struct {
	National bool
	Bounds   boundary.Bounds
}

func NationalTarget() Target { return Target{National: true} }

// FrameFor resolves a view to what the camera should frame. A drilldown whose
// state boundary has not loaded yet frames the nation.
func FrameFor(s view.State, ix *boundary.Index) Target {
	if s.Mode != view.StateDrilldown {
		return NationalTarget()
	}
	f, ok := ix.BoundaryOf(s.State)
	if !ok {
		return NationalTarget()
	}
	b := f.Geometry.Bounds()
	if b.IsEmpty() {
		return NationalTarget()
	}
	return Target{Bounds: b}
}

// ComputeTransform centers the target and picks the largest scale that keeps it
// within Fill of the viewport on both axes, clamped to [MinScale, MaxScale].
// Bounds must already be in viewport space at scale 1.
func ComputeTransform(t Target, width, height float64) Transform {
	if t.National || t.Bounds.IsEmpty() || width <= 0 || height <= 0 {
		return Identity()
	}
	dx, dy := boundary.Width(t.Bounds), boundary.Height(t.Bounds)
	c := t.Bounds.Center()

	fit := math.Max(dx/width, dy/height)
	scale := MaxScale
	if fit > 0 {
		scale = Fill / fit
	}
	scale = math.Max(MinScale, math.Min(MaxScale, scale))

	return Transform{
		TranslateX: width/2 - scale*c[0],
		TranslateY: height/2 - scale*c[1],
		Scale:      scale,
	}
}

// Controller keeps the viewport and projection and recomputes the transform on
// every update; the previous transform is replaced, never adjusted.
type Controller struct {
	mu        sync.RWMutex
	width     float64
	height    float64
	projector Projector
	current   Transform
	target    Target
}

func NewController(width, height float64, p Projector) *Controller {
	if p == nil {
		p = IdentityProjector{}
	}
	return &Controller{
		width:     width,
		height:    height,
		projector: p,
		current:   Identity(),
		target:    NationalTarget(),
	}
}

// Update reframes for the given view and boundaries and returns the new transform.
func (c *Controller) Update(s view.State, ix *boundary.Index) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := FrameFor(s, ix)
	if !target.National {
		target.Bounds = c.projectBounds(target.Bounds, ix)
	}
	c.target = target
	c.current = ComputeTransform(target, c.width, c.height)
	return c.current
}

// Resize changes the viewport; call Update afterwards to reframe.
func (c *Controller) Resize(width, height float64) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
}

func (c *Controller) Transform() Transform {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Controller) Viewport() (float64, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

func (c *Controller) projectBounds(b boundary.Bounds, ix *boundary.Index) boundary.Bounds {
	fit := c.projector.Fit(ix.NationalBounds(), c.width, c.height)
	out := boundary.EmptyBounds()
	for _, p := range []boundary.Point{
		b.Min, {b.Right(), b.Bottom()}, b.Max, {b.Left(), b.Top()},
	} {
		out = out.Extend(fit.Project(p))
	}
	return out
}
