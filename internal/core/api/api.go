// Package api exposes the atlas operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/civic-choropleth/internal/atlas"
	"github.com/mohammed-shakir/civic-choropleth/internal/boundary"
	"github.com/mohammed-shakir/civic-choropleth/internal/camera"
	mylog "github.com/mohammed-shakir/civic-choropleth/internal/logger"
	"github.com/mohammed-shakir/civic-choropleth/internal/metric"
	"github.com/mohammed-shakir/civic-choropleth/internal/region"
	"github.com/mohammed-shakir/civic-choropleth/internal/view"
)

// Service is the subset of *atlas.Atlas the handlers use.
type Service interface {
	CurrentView() view.State
	Select(raw string) (view.State, bool, error)
	Reset() (view.State, bool)
	NormalizedMetric(raw string) metric.Value
	Listed(raw string) bool
	BoundaryFeatures(raw string) []boundary.Feature
	Visible() []atlas.RenderItem
	CameraTransform() camera.Transform
	Mesh() []boundary.Line
	Locate(lon, lat float64) (region.Code, bool)
	Export(withRecords bool) atlas.Diagnostics
}

type Handlers struct {
	svc   Service
	log   *slog.Logger
	debug bool
}

// New builds the handlers; debug enables the diagnostic snapshot route.
func New(svc Service, logger *slog.Logger, debug bool) *Handlers {
	return &Handlers{svc: svc, log: logger, debug: debug}
}

func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/view", h.getView)
		r.Post("/view/select/{state}", h.selectState)
		r.Post("/view/reset", h.reset)
		r.Get("/metric/{code}", h.getMetric)
		r.Get("/features/{code}", h.getFeatures)
		r.Get("/visible", h.getVisible)
		r.Get("/camera", h.getCamera)
		r.Get("/mesh", h.getMesh)
		r.Get("/locate", h.locate)
		if h.debug {
			r.Get("/debug/snapshot", h.snapshot)
		}
	})
}

type viewResponse struct {
	View    view.State       `json:"view"`
	Changed bool             `json:"changed"`
	Camera  camera.Transform `json:"camera"`
}

func (h *Handlers) getView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewResponse{View: h.svc.CurrentView(), Camera: h.svc.CameraTransform()})
}

func (h *Handlers) selectState(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "state")
	s, changed, err := h.svc.Select(raw)
	if errors.Is(err, view.ErrNotState) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "select failed", "state", raw, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	ctx := mylog.WithRegion(mylog.WithView(r.Context(), s.Mode.String()), string(s.State))
	if changed {
		h.log.InfoContext(ctx, "state selected")
	}
	writeJSON(w, http.StatusOK, viewResponse{View: s, Changed: changed, Camera: h.svc.CameraTransform()})
}

func (h *Handlers) reset(w http.ResponseWriter, r *http.Request) {
	s, changed := h.svc.Reset()
	if changed {
		h.log.InfoContext(mylog.WithView(r.Context(), s.Mode.String()), "view reset")
	}
	writeJSON(w, http.StatusOK, viewResponse{View: s, Changed: changed, Camera: h.svc.CameraTransform()})
}

type metricResponse struct {
	Code    string   `json:"code"`
	Value   *float64 `json:"value"`
	Known   bool     `json:"known"`
	Listed  bool     `json:"listed"`
	Display string   `json:"display"`
}

func (h *Handlers) getMetric(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "code")
	v := h.svc.NormalizedMetric(raw)
	out := metricResponse{Code: raw, Known: v.Known, Listed: h.svc.Listed(raw), Display: v.String()}
	if code, ok := region.Normalize(raw); ok {
		out.Code = string(code)
	}
	if v.Known {
		val := v.V
		out.Value = &val
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getFeatures(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "code")
	writeJSON(w, http.StatusOK, map[string]any{
		"code":     raw,
		"features": h.svc.BoundaryFeatures(raw),
	})
}

func (h *Handlers) getVisible(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"view":  h.svc.CurrentView(),
		"items": h.svc.Visible(),
	})
}

func (h *Handlers) getCamera(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"transform":    h.svc.CameraTransform(),
		"transitionMs": camera.TransitionDuration.Milliseconds(),
	})
}

func (h *Handlers) getMesh(w http.ResponseWriter, _ *http.Request) {
	lines := h.svc.Mesh()
	if lines == nil {
		lines = []boundary.Line{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handlers) locate(w http.ResponseWriter, r *http.Request) {
	lon, err1 := parseCoord(r, "lon")
	lat, err2 := parseCoord(r, "lat")
	if err := errors.Join(err1, err2); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code, ok := h.svc.Locate(lon, lat)
	if !ok {
		http.Error(w, "no region at point", http.StatusNotFound)
		return
	}
	v := h.svc.NormalizedMetric(string(code))
	writeJSON(w, http.StatusOK, map[string]any{
		"code":    code,
		"known":   v.Known,
		"display": v.String(),
	})
}

func (h *Handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	withRecords, _ := strconv.ParseBool(r.URL.Query().Get("records"))
	writeJSON(w, http.StatusOK, h.svc.Export(withRecords))
}

func parseCoord(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, errors.New("missing required parameter: " + name)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + raw)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
