// Package health serves liveness and readiness probes for the voice daemon.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every registered [Check] passes,
//     503 otherwise with the failing checks named in the body.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds one readiness check.
const probeTimeout = 5 * time.Second

// Check is a named readiness probe. Probe returns nil while the dependency
// is usable.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler answers the probe endpoints. Safe for concurrent use; the check
// list is fixed at construction.
type Handler struct {
	started time.Time
	checks  []Check
}

// New creates a Handler evaluating the given checks on each /readyz request,
// in order.
func New(checks ...Check) *Handler {
	return &Handler{
		started: time.Now(),
		checks:  append([]Check(nil), checks...),
	}
}

type report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz always answers 200 with the process uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz answers 200 only while every check passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()
		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, rep)
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
