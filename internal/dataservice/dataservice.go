// Package dataservice is a stand-in for the civic data API: it answers metric
// requests with deterministic values derived from each FIPS code.
package dataservice

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxBody = 1 << 20

type Level string

const (
	LevelState   Level = "state"
	LevelCounty  Level = "county"
	LevelUnknown Level = "unknown"
)

// Request mirrors the body of POST /data/. Both flags default to true.
type Request struct {
	Demographics   *bool     `json:"demographics"`
	PoliticalParty *bool     `json:"political_party"`
	RequestedFIPS  *[]string `json:"requested_fips"`
}

type Entry struct {
	Demographics   map[string]any `json:"demographics,omitempty"`
	PoliticalParty map[string]any `json:"political_party,omitempty"`
}

type Response struct {
	ResponseFIPS map[string]Entry `json:"response_fips"`
}

type Service struct {
	log *slog.Logger
}

func New(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{log: logger}
}

func (s *Service) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/data/", s.handleData)
}

func (s *Service) handleData(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if req.RequestedFIPS == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "requested_fips: field required")
		return
	}
	if len(*req.RequestedFIPS) == 0 {
		writeDetail(w, http.StatusBadRequest, "requested_fips cannot be empty")
		return
	}
	resp := s.Answer(*req.RequestedFIPS, flag(req.Demographics), flag(req.PoliticalParty))
	s.log.DebugContext(r.Context(), "data request served", "fips", len(resp.ResponseFIPS))
	writeJSON(w, http.StatusOK, resp)
}

// Answer builds the payload for the given codes. Unrecognised codes get an
// error shell so callers can tell them apart from missing data.
func (s *Service) Answer(fips []string, demographics, party bool) Response {
	out := Response{ResponseFIPS: make(map[string]Entry, len(fips))}
	for _, f := range fips {
		level := LevelFor(f)
		if level == LevelUnknown {
			shell := map[string]any{"error": "unknown FIPS format"}
			out.ResponseFIPS[f] = Entry{Demographics: shell, PoliticalParty: shell}
			continue
		}
		var e Entry
		if demographics {
			e.Demographics = Demographics(f, level)
		}
		if party {
			e.PoliticalParty = PoliticalParty(f, level)
		}
		out.ResponseFIPS[f] = e
	}
	return out
}

// LevelFor classifies a code: up to 2 digits is a state, exactly 5 a county.
func LevelFor(fips string) Level {
	f := strings.TrimSpace(fips)
	if f == "" {
		return LevelUnknown
	}
	for _, c := range f {
		if c < '0' || c > '9' {
			return LevelUnknown
		}
	}
	switch {
	case len(f) <= 2:
		return LevelState
	case len(f) == 5:
		return LevelCounty
	}
	return LevelUnknown
}

// Seed sums the code points of the raw code; it is never zero.
func Seed(fips string) int {
	s := 0
	for _, c := range fips {
		s += int(c)
	}
	if s == 0 {
		return 1
	}
	return s
}

func Demographics(fips string, level Level) map[string]any {
	s := Seed(fips)
	return map[string]any{
		"level":                   level,
		"population":              10_000 + s%900_000,
		"median_age":              round(30+float64(s%200)/10, 1),
		"households":              3_000 + s%70_000,
		"median_household_income": 40_000 + s%60_000,
	}
}

func PoliticalParty(fips string, level Level) map[string]any {
	s := Seed(fips)
	d := 40 + s%31
	r := 25 + s%26
	o := max(0, 100-d-r)
	total := d + r + o
	if total == 0 {
		total = 1
	}
	share := func(n int) float64 { return round(float64(n)/float64(total), 3) }
	return map[string]any{
		"level": level,
		"share": map[string]float64{
			"democratic": share(d),
			"republican": share(r),
			"other":      share(o),
		},
	}
}

// round formats to a fixed number of decimals, so halfway cases follow the exact
// binary value rather than a scaled float.
func round(x float64, places int) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return v
}

func flag(b *bool) bool { return b == nil || *b }

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
