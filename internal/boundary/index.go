// Package boundary decodes state and county boundary documents and indexes their
// features by zero-padded FIPS code.
package boundary

import (
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

type Options struct {
	StateObject  string
	CountyObject string
}

func DefaultOptions() Options {
	return Options{StateObject: "states", CountyObject: "counties"}
}

// Index is an immutable view over one state layer and one county layer.
// Either layer may be missing while its document is still loading.
type Index struct {
	states       []Feature
	counties     []Feature
	byState      map[region.Code]int
	byCounty     map[region.Code]int
	countiesOf   map[region.Code][]int
	mesh         []Line
	nationBounds Bounds
}

// NewIndex builds an index from already decoded layers; nil layers are allowed.
func NewIndex(states, counties *Layer) *Index {
	ix := &Index{
		byState:      map[region.Code]int{},
		byCounty:     map[region.Code]int{},
		countiesOf:   map[region.Code][]int{},
		nationBounds: EmptyBounds(),
	}
	if states != nil {
		ix.states = states.Features
		ix.mesh = states.Mesh
	}
	if counties != nil {
		ix.counties = counties.Features
	}
	for i, f := range ix.states {
		ix.byState[f.Code] = i
		ix.nationBounds = ix.nationBounds.Union(f.Geometry.Bounds())
	}
	for i, f := range ix.counties {
		ix.byCounty[f.Code] = i
		st := f.Code.StateOf()
		ix.countiesOf[st] = append(ix.countiesOf[st], i)
	}
	// county-only documents still give the nation an extent
	if ix.nationBounds.IsEmpty() {
		for _, f := range ix.counties {
			ix.nationBounds = ix.nationBounds.Union(f.Geometry.Bounds())
		}
	}
	return ix
}

// FeaturesForState returns the counties whose prefix is code. It returns an empty
// slice while county boundaries are pending or the state has no subdivisions.
func (ix *Index) FeaturesForState(code region.Code) []Feature {
	if ix == nil {
		return []Feature{}
	}
	idx := ix.countiesOf[code]
	out := make([]Feature, 0, len(idx))
	for _, i := range idx {
		out = append(out, ix.counties[i])
	}
	return out
}

// BoundaryOf looks a code up in the state layer (2 digits) or county layer (5 digits).
func (ix *Index) BoundaryOf(code region.Code) (Feature, bool) {
	if ix == nil {
		return Feature{}, false
	}
	switch code.Kind() {
	case region.KindState:
		if i, ok := ix.byState[code]; ok {
			return ix.states[i], true
		}
	case region.KindStateHeader:
		if i, ok := ix.byState[code.StateOf()]; ok {
			return ix.states[i], true
		}
	case region.KindCounty:
		if i, ok := ix.byCounty[code]; ok {
			return ix.counties[i], true
		}
	}
	return Feature{}, false
}

func (ix *Index) States() []Feature {
	if ix == nil {
		return nil
	}
	return ix.states
}

func (ix *Index) Counties() []Feature {
	if ix == nil {
		return nil
	}
	return ix.counties
}

// Mesh is the interior state borders of the state topology.
func (ix *Index) Mesh() []Line {
	if ix == nil {
		return nil
	}
	return ix.mesh
}

func (ix *Index) NationalBounds() Bounds {
	if ix == nil {
		return EmptyBounds()
	}
	return ix.nationBounds
}

func (ix *Index) HasStates() bool   { return ix != nil && len(ix.states) > 0 }
func (ix *Index) HasCounties() bool { return ix != nil && len(ix.counties) > 0 }
