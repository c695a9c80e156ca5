package atlas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/camera"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
	"github.com/mohammed-shakir/civic-choropleth/internal/view"
)

const roster = `06000 California
06001 Alameda County
06003 Alpine County
48000 Texas
48001 Anderson County
`

func box(code region.Code, name string, x0, y0, x1, y1 float64) boundary.Feature {
	return boundary.Feature{
		Code: code,
		Name: name,
		Geometry: boundary.Geometry{boundary.Polygon{boundary.Ring{
			{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
		}}},
	}
}

func stateLayer() *boundary.Layer {
	return &boundary.Layer{Level: boundary.LevelState, Features: []boundary.Feature{
		box("06", "", 100, 100, 200, 150),
		box("48", "Texas", 300, 100, 400, 200),
		{Code: "72"},
	}}
}

func countyLayer() *boundary.Layer {
	return &boundary.Layer{Level: boundary.LevelCounty, Features: []boundary.Feature{
		box("06001", "Alameda", 100, 100, 150, 150),
		box("06003", "Alpine", 150, 100, 200, 150),
		box("48001", "Anderson", 300, 100, 400, 200),
	}}
}

func records() metric.Records {
	return metric.Records{
		"06001": {"party_share": 0.4},
		"06003": {"party_share": 0.6},
		"48":    {"political_party": map[string]any{"dem": 30, "rep": 70}},
	}
}

var epoch = time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

func newAtlas(t *testing.T) (*Atlas, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(epoch)
	a := New(context.Background(), Config{Width: 975, Height: 610, H3Res: 5, Clock: clk}, nil)
	t.Cleanup(a.Close)
	return a, clk
}

func loadAll(t *testing.T, a *Atlas) {
	t.Helper()
	require.NoError(t, a.ApplyCatalog(a.Begin(SourceRoster), region.Parse(roster)))
	require.NoError(t, a.ApplyRecords(a.Begin(SourceMetrics), records()))
	require.NoError(t, a.ApplyStates(a.Begin(SourceStates), stateLayer()))
	require.NoError(t, a.ApplyCounties(a.Begin(SourceCounties), countyLayer()))
}

func TestAtlas_PendingSourcesAreEmptyNotErrors(t *testing.T) {
	a, _ := newAtlas(t)

	ready, pending := a.Readiness()
	assert.False(t, ready)
	assert.Equal(t, []string{"roster", "metrics", "states", "counties"}, pending)
	assert.False(t, a.NormalizedMetric("06").Known)
	assert.Empty(t, a.BoundaryFeatures("06"))
	assert.NotNil(t, a.BoundaryFeatures("06"))
	assert.Empty(t, a.Visible())
	assert.Empty(t, a.Mesh())
	assert.Equal(t, camera.Identity(), a.CameraTransform())
	_, ok := a.Locate(120, 120)
	assert.False(t, ok)

	// selecting before boundaries arrive still changes the view
	s, changed, err := a.Select("06")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, view.Drilldown("06"), s)
	assert.Equal(t, camera.Identity(), a.CameraTransform(), "nothing to frame yet")
}

func TestAtlas_LoadedQueries(t *testing.T) {
	a, _ := newAtlas(t)
	loadAll(t, a)
	ready, pending := a.Readiness()
	require.True(t, ready)
	assert.Empty(t, pending)

	assert.InDelta(t, 0.5, a.NormalizedMetric("6").V, 1e-12, "county mean")
	assert.InDelta(t, 0.3, a.NormalizedMetric("48000").V, 1e-12, "header folds into state")
	assert.InDelta(t, 0.4, a.NormalizedMetric("6001").V, 1e-12)
	assert.False(t, a.NormalizedMetric("CA").Known)

	feats := a.BoundaryFeatures("06")
	require.Len(t, feats, 2)
	assert.Equal(t, region.Code("06001"), feats[0].Code)

	one := a.BoundaryFeatures("48001")
	require.Len(t, one, 1)
	assert.Equal(t, "Anderson", one[0].Name)
	assert.Empty(t, a.BoundaryFeatures("99999"))

	vis := a.Visible()
	require.Len(t, vis, 2, "state without geometry is omitted")
	assert.Equal(t, "California", vis[0].Name, "name falls back to the roster")
	assert.Equal(t, "county_mean", vis[0].Rule)
	assert.Equal(t, "favor_oppose", vis[1].Rule)

	code, ok := a.Locate(120, 120)
	require.True(t, ok)
	assert.Equal(t, region.Code("06001"), code, "counties win over states")
}

func TestAtlas_DrilldownReframesAndResetRestores(t *testing.T) {
	a, _ := newAtlas(t)
	loadAll(t, a)

	var transitions []view.State
	a.OnTransition(func(_, next view.State) { transitions = append(transitions, next) })

	_, _, err := a.Select("06")
	require.NoError(t, err)
	tr := a.CameraTransform()
	assert.Greater(t, tr.Scale, 1.0)

	vis := a.Visible()
	require.Len(t, vis, 2)
	assert.Equal(t, region.Code("06001"), vis[0].Code)
	assert.InDelta(t, 0.4, vis[0].Value.V, 1e-12)

	_, changed, err := a.Select("06")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, tr, a.CameraTransform())

	_, _, err = a.Select("06001")
	assert.ErrorIs(t, err, view.ErrNotState)
	assert.Equal(t, view.Drilldown("06"), a.CurrentView())

	_, changed = a.Reset()
	assert.True(t, changed)
	assert.Equal(t, camera.Identity(), a.CameraTransform())
	assert.Equal(t, []view.State{view.Drilldown("06"), view.NationalView()}, transitions)
}

func TestAtlas_LateBoundariesReframeCurrentDrilldown(t *testing.T) {
	a, _ := newAtlas(t)
	_, _, err := a.Select("48")
	require.NoError(t, err)
	assert.Equal(t, camera.Identity(), a.CameraTransform())

	require.NoError(t, a.ApplyStates(a.Begin(SourceStates), stateLayer()))
	assert.Greater(t, a.CameraTransform().Scale, 1.0)
}

func TestAtlas_StaleLoadIsDropped(t *testing.T) {
	a, _ := newAtlas(t)

	older := a.Begin(SourceRoster)
	newer := a.Begin(SourceRoster)

	require.NoError(t, a.ApplyCatalog(newer, region.Parse("48000 Texas\n48001 Anderson\n")))
	err := a.ApplyCatalog(older, region.Parse(roster))
	require.ErrorIs(t, err, ErrStale)
	assert.False(t, a.Catalog().HasState("06"), "older load must not replace the newer one")

	// other sources keep their own sequence
	require.NoError(t, a.ApplyRecords(a.Begin(SourceMetrics), records()))
}

func TestAtlas_ClosedDiscardsResults(t *testing.T) {
	a, _ := newAtlas(t)
	tk := a.Begin(SourceMetrics)
	a.Close()

	err := a.ApplyRecords(tk, records())
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, a.NormalizedMetric("48").Known)
	assert.Error(t, a.Context().Err())
}

func TestAtlas_ParentContextEndsLiveness(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := New(ctx, Config{}, nil)
	tk := a.Begin(SourceStates)
	cancel()
	assert.ErrorIs(t, a.ApplyStates(tk, stateLayer()), ErrClosed)
}

func TestAtlas_ExportIsExplicit(t *testing.T) {
	a, clk := newAtlas(t)
	require.NoError(t, a.ApplyCatalog(a.Begin(SourceRoster), region.Parse(roster)))
	clk.Advance(time.Minute)
	require.NoError(t, a.ApplyRecords(a.Begin(SourceMetrics), records()))

	d := a.Export(false)
	assert.Nil(t, d.Records)
	assert.Equal(t, epoch, d.Sources[SourceRoster].LoadedAt)
	assert.Equal(t, epoch.Add(time.Minute), d.Sources[SourceMetrics].LoadedAt)
	assert.Equal(t, 3, d.Sources[SourceRoster].Count)
	assert.False(t, d.Sources[SourceStates].Loaded)
	assert.Equal(t, 2, d.Rules["direct_share"])
	assert.InDelta(t, 0.5, d.States["06"], 1e-12)

	assert.Equal(t, []region.Code{"06", "48"}, d.RosterHeaders)
	assert.Equal(t, Viewport{Width: 975, Height: 610}, d.Viewport)
	assert.Zero(t, d.Transitions)

	_, _, _ = a.Select("06")
	_, _, _ = a.Select("06")
	_, _ = a.Reset()
	withRecs := a.Export(true)
	assert.Len(t, withRecs.Records, 3)
	assert.Equal(t, uint64(2), withRecs.Transitions, "idempotent selects are not counted")
}

func TestAtlas_ListedFollowsRoster(t *testing.T) {
	a, _ := newAtlas(t)
	assert.False(t, a.Listed("06"), "pending roster lists nothing")

	loadAll(t, a)
	assert.True(t, a.Listed("06"))
	assert.True(t, a.Listed("48000"))
	assert.True(t, a.Listed("6001"))
	assert.False(t, a.Listed("06005"))
	assert.False(t, a.Listed("72"))
	assert.False(t, a.Listed("bogus"))
}

func TestAtlas_ResizeReframes(t *testing.T) {
	a, _ := newAtlas(t)
	loadAll(t, a)
	_, _, _ = a.Select("06")
	before := a.CameraTransform()

	after := a.Resize(1950, 1220)
	assert.NotEqual(t, before, after)
	assert.Equal(t, after, a.CameraTransform())
}

func TestAtlas_ConcurrentSelectsLeaveCameraOnFinalView(t *testing.T) {
	a, _ := newAtlas(t)
	loadAll(t, a)

	for trial := 0; trial < 200; trial++ {
		_, _ = a.Reset()
		var wg sync.WaitGroup
		for _, code := range []string{"06", "48"} {
			wg.Add(1)
			go func(code string) {
				defer wg.Done()
				_, _, _ = a.Select(code)
			}(code)
		}
		wg.Wait()

		final := a.CurrentView()
		require.Equal(t, view.StateDrilldown, final.Mode)
		want := camera.ComputeTransform(camera.FrameFor(final, a.current().index), 975, 610)
		require.Equal(t, want, a.CameraTransform(), "trial %d framed a view other than %s", trial, final)
	}
}
