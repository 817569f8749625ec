package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check is a named readiness probe of one dependency.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler always answers 200 with status "alive".
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "alive"})
	}
}

// ReadinessHandler runs every check with the request context. It answers
// 200 "ready" when all pass and 503 "not_ready" otherwise, listing the
// result per check.
func ReadinessHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ready", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK

		for _, c := range checks {
			if err := c.Fn(r.Context()); err != nil {
				log.LogAttrs(r.Context(), slog.LevelError, "Readiness check failed",
					slog.String("check", c.Name),
					logger.Error(err),
				)
				resp.Checks[c.Name] = err.Error()
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}

		writeJSON(w, status, resp)
	}
}
