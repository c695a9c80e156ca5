// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessReporter reports whether enough data has loaded to serve, and which
// sources are still pending.
type ReadinessReporter interface {
	Readiness() (ready bool, pending []string)
}

// Dependency is an external service checked on every readiness probe.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

func Readiness(rr ReadinessReporter, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status  string            `json:"status"`
			Pending []string          `json:"pending,omitempty"`
			Errors  map[string]string `json:"errors,omitempty"`
		}
		ready, pending := rr.Readiness()
		out := resp{Status: "ready", Pending: pending}

		if len(deps) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			for _, d := range deps {
				if err := d.Ping(ctx); err != nil {
					if out.Errors == nil {
						out.Errors = map[string]string{}
					}
					out.Errors[d.Name] = err.Error()
					ready = false
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
