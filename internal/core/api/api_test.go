package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/civic-choropleth/internal/atlas"
	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

func square(code region.Code, x0, y0, size float64) boundary.Feature {
	return boundary.Feature{Code: code, Geometry: boundary.Geometry{boundary.Polygon{boundary.Ring{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}}}}
}

func newServer(t *testing.T, debug bool) *httptest.Server {
	t.Helper()
	a := atlas.New(context.Background(), atlas.Config{Width: 975, Height: 610, H3Res: 5}, nil)
	t.Cleanup(a.Close)

	require.NoError(t, a.ApplyCatalog(a.Begin(atlas.SourceRoster), region.Parse("06000 California\n06001 Alameda\n06003 Alpine\n")))
	require.NoError(t, a.ApplyRecords(a.Begin(atlas.SourceMetrics), metric.Records{
		"06001": {"party_share": 0.6},
		"06003": {"party_share": 0.8},
	}))
	require.NoError(t, a.ApplyStates(a.Begin(atlas.SourceStates), &boundary.Layer{
		Level:    boundary.LevelState,
		Features: []boundary.Feature{square("06", 100, 100, 100)},
	}))
	require.NoError(t, a.ApplyCounties(a.Begin(atlas.SourceCounties), &boundary.Layer{
		Level:    boundary.LevelCounty,
		Features: []boundary.Feature{square("06001", 100, 100, 50), square("06003", 150, 100, 50)},
	}))

	r := chi.NewRouter()
	New(a, slog.New(slog.NewTextHandler(io.Discard, nil)), debug).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return resp.StatusCode, out
}

func TestView_SelectAndReset(t *testing.T) {
	srv := newServer(t, false)

	code, body := call(t, srv, http.MethodGet, "/api/view")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"mode": "national"}, body["view"])

	code, body = call(t, srv, http.MethodPost, "/api/view/select/6")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"mode": "state", "state": "06"}, body["view"])
	assert.Equal(t, true, body["changed"])
	cam := body["camera"].(map[string]any)
	assert.Greater(t, cam["scale"].(float64), 1.0)

	_, body = call(t, srv, http.MethodPost, "/api/view/select/06")
	assert.Equal(t, false, body["changed"])

	code, body = call(t, srv, http.MethodPost, "/api/view/select/06000")
	require.Equal(t, http.StatusOK, code, "state header selects its state")
	assert.Equal(t, false, body["changed"])

	code, _ = call(t, srv, http.MethodPost, "/api/view/select/06001")
	assert.Equal(t, http.StatusBadRequest, code)

	_, body = call(t, srv, http.MethodPost, "/api/view/reset")
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, 1.0, body["camera"].(map[string]any)["scale"])
}

func TestMetric(t *testing.T) {
	srv := newServer(t, false)

	_, body := call(t, srv, http.MethodGet, "/api/metric/06000")
	assert.Equal(t, "06", body["code"])
	assert.Equal(t, true, body["known"])
	assert.InDelta(t, 0.7, body["value"].(float64), 1e-12)
	assert.Equal(t, true, body["listed"])

	_, body = call(t, srv, http.MethodGet, "/api/metric/6001")
	assert.Equal(t, "06001", body["code"])
	assert.Equal(t, true, body["listed"])

	_, body = call(t, srv, http.MethodGet, "/api/metric/01")
	assert.Equal(t, false, body["known"])
	assert.Equal(t, false, body["listed"])
	assert.Nil(t, body["value"])
	assert.Equal(t, "unknown", body["display"])
}

func TestFeaturesAndVisible(t *testing.T) {
	srv := newServer(t, false)

	_, body := call(t, srv, http.MethodGet, "/api/features/06")
	assert.Len(t, body["features"], 2)

	_, body = call(t, srv, http.MethodGet, "/api/features/01")
	assert.Equal(t, []any{}, body["features"], "pending or unknown is empty, not null")

	_, body = call(t, srv, http.MethodGet, "/api/visible")
	assert.Len(t, body["items"], 1)

	call(t, srv, http.MethodPost, "/api/view/select/06")
	_, body = call(t, srv, http.MethodGet, "/api/visible")
	assert.Len(t, body["items"], 2)
}

func TestCameraAndMesh(t *testing.T) {
	srv := newServer(t, false)

	_, body := call(t, srv, http.MethodGet, "/api/camera")
	assert.Equal(t, float64(700), body["transitionMs"])

	_, body = call(t, srv, http.MethodGet, "/api/mesh")
	assert.Equal(t, []any{}, body["lines"])
}

func TestLocate(t *testing.T) {
	srv := newServer(t, false)

	code, body := call(t, srv, http.MethodGet, "/api/locate?lon=160&lat=120")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "06003", body["code"])
	assert.Equal(t, true, body["known"])

	code, _ = call(t, srv, http.MethodGet, "/api/locate?lon=0&lat=0")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, srv, http.MethodGet, "/api/locate?lon=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDebugSnapshot_OnlyWhenEnabled(t *testing.T) {
	code, _ := call(t, newServer(t, false), http.MethodGet, "/api/debug/snapshot")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := call(t, newServer(t, true), http.MethodGet, "/api/debug/snapshot?records=true")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["records"], 2)
	assert.Contains(t, body["sources"], "roster")
}
