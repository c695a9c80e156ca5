package atlas

import (
	"time"

	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/camera"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
	"github.com/mohammed-shakir/civic-choropleth/internal/view"
)

// Select drills into a state. Re-selecting the current state is a no-op.
func (a *Atlas) Select(raw string) (view.State, bool, error) {
	return a.machine.Select(raw)
}

func (a *Atlas) Reset() (view.State, bool) {
	return a.machine.Reset()
}

func (a *Atlas) CurrentView() view.State {
	return a.machine.Current()
}

// NormalizedMetric returns the value in [0,1] for a state, header or county code.
func (a *Atlas) NormalizedMetric(raw string) metric.Value {
	code, ok := region.Normalize(raw)
	if !ok {
		return metric.Unknown()
	}
	return a.current().metrics.Value(code)
}

// Listed reports whether the roster names the code. States count when they
// have a header line or at least one county.
func (a *Atlas) Listed(raw string) bool {
	code, ok := region.Normalize(raw)
	if !ok {
		return false
	}
	cat := a.Catalog()
	if code.IsCounty() {
		return cat.HasCounty(code)
	}
	return cat.HasState(code)
}

// BoundaryFeatures returns the counties of a state, or the single feature of a
// county. Unknown or pending codes give an empty slice.
func (a *Atlas) BoundaryFeatures(raw string) []boundary.Feature {
	ix := a.current().index
	code, _ := region.Normalize(raw)
	switch code.Kind() {
	case region.KindState:
		return ix.FeaturesForState(code)
	case region.KindCounty:
		if f, ok := ix.BoundaryOf(code); ok {
			return []boundary.Feature{f}
		}
	}
	return []boundary.Feature{}
}

// RenderItem pairs a feature with its fill value.
type RenderItem struct {
	Code     region.Code       `json:"code"`
	Name     string            `json:"name,omitempty"`
	Value    metric.Value      `json:"value"`
	Rule     string            `json:"rule"`
	Geometry boundary.Geometry `json:"geometry"`
}

// Visible lists what should be drawn for the current view: every state in the
// national view, the selected state's counties in a drilldown. Regions without
// geometry are omitted.
func (a *Atlas) Visible() []RenderItem {
	d := a.current()
	s := a.machine.Current()

	var feats []boundary.Feature
	if s.Mode == view.StateDrilldown {
		feats = d.index.FeaturesForState(s.State)
	} else {
		feats = d.index.States()
	}

	out := make([]RenderItem, 0, len(feats))
	for _, f := range feats {
		if f.Geometry.IsEmpty() {
			continue
		}
		out = append(out, RenderItem{
			Code:     f.Code,
			Name:     a.nameOf(f),
			Value:    d.metrics.Value(f.Code),
			Rule:     d.metrics.Rule(f.Code).String(),
			Geometry: f.Geometry,
		})
	}
	return out
}

func (a *Atlas) nameOf(f boundary.Feature) string {
	if f.Name != "" {
		return f.Name
	}
	return a.Catalog().Name(f.Code)
}

func (a *Atlas) CameraTransform() camera.Transform {
	return a.cam.Transform()
}

// Mesh returns the interior borders shared between state geometries.
func (a *Atlas) Mesh() []boundary.Line {
	return a.current().index.Mesh()
}

// Locate finds the region under a point, preferring counties over states.
func (a *Atlas) Locate(lon, lat float64) (region.Code, bool) {
	loc := a.current().locator
	if loc == nil {
		return "", false
	}
	return loc.Locate(lon, lat)
}

// SourceStatus reports when a source last loaded; Loaded is false while pending.
type SourceStatus struct {
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loadedAt,omitempty"`
	Seq      uint64    `json:"seq"`
	Count    int       `json:"count"`
}

// Diagnostics is an explicit export of the loaded data for debugging. It is
// never produced as a side effect of loading.
type Diagnostics struct {
	View          view.State              `json:"view"`
	Transitions   uint64                  `json:"transitions"`
	Camera        camera.Transform        `json:"camera"`
	Viewport      Viewport                `json:"viewport"`
	Sources       map[Source]SourceStatus `json:"sources"`
	RosterHeaders []region.Code           `json:"rosterHeaders"`
	Rules         map[string]int          `json:"rules"`
	States        map[region.Code]float64 `json:"states"`
	Counties      map[region.Code]float64 `json:"counties,omitempty"`
	Records       metric.Records          `json:"records,omitempty"`
	Locator       bool                    `json:"h3Indexed"`
}

type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Export snapshots the current state. Raw records are included only when
// withRecords is set.
func (a *Atlas) Export(withRecords bool) Diagnostics {
	d := a.current()
	w, h := a.cam.Viewport()
	out := Diagnostics{
		View:          a.machine.Current(),
		Transitions:   a.machine.Transitions(),
		Camera:        a.cam.Transform(),
		Viewport:      Viewport{Width: w, Height: h},
		Sources:       make(map[Source]SourceStatus, len(allSources)),
		RosterHeaders: a.Catalog().HeaderStates(),
		Rules:         map[string]int{},
		States:        d.metrics.States,
		Counties:      d.metrics.Counties,
		Locator:       d.locator != nil && d.locator.Indexed(),
	}
	for rule, n := range d.metrics.RuleCounts() {
		out.Rules[rule.String()] = n
	}

	a.mu.Lock()
	applied := make(map[Source]uint64, len(a.applied))
	for k, v := range a.applied {
		applied[k] = v
	}
	a.mu.Unlock()

	for _, src := range allSources {
		st := SourceStatus{Seq: applied[src]}
		switch src {
		case SourceRoster:
			if s := a.catalog.Load(); s != nil {
				st.Loaded, st.LoadedAt = true, s.loadedAt
				st.Count = len(s.catalog.Counties())
			}
		case SourceMetrics:
			if s := a.records.Load(); s != nil {
				st.Loaded, st.LoadedAt = true, s.loadedAt
				st.Count = len(s.records)
				if withRecords {
					out.Records = s.records
				}
			}
		case SourceStates:
			if s := a.states.Load(); s != nil {
				st.Loaded, st.LoadedAt = true, s.loadedAt
				st.Count = len(s.layer.Features)
			}
		case SourceCounties:
			if s := a.counties.Load(); s != nil {
				st.Loaded, st.LoadedAt = true, s.loadedAt
				st.Count = len(s.layer.Features)
			}
		}
		out.Sources[src] = st
	}
	return out
}
