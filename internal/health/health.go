// Package health serves the liveness and readiness probes of the call
// server.
//
//   - /healthz — liveness; a process that can answer HTTP is alive.
//   - /readyz  — readiness; 200 only while every registered [Checker]
//     (Postgres pool, providers, …) passes.
//
// Bodies are JSON: a top-level "status" of "ok" or "fail", and for /readyz
// a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// readyCheckTimeout caps each individual readiness check. A wedged
// dependency must not hold the probe open past the orchestrator's own
// probe deadline.
const readyCheckTimeout = 5 * time.Second

// Checker probes one dependency of the call pipeline. Check returns nil
// while the dependency can serve; it must honor ctx cancellation.
type Checker struct {
	// Name keys this check in the /readyz response (e.g. "postgres").
	Name string

	Check func(ctx context.Context) error
}

// report is the wire shape of both probe responses.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the two probe routes. The checker set is fixed at
// construction; concurrent requests are safe.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given checkers. /readyz evaluates them
// sequentially in this order.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz evaluates every checker under a [readyCheckTimeout] deadline and
// answers 503 as soon as any of them reports a failure.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.evaluate(r.Context())

	res := report{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ok {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// evaluate runs the checkers and collects their per-name outcome.
func (h *Handler) evaluate(ctx context.Context) (checks map[string]string, ok bool) {
	checks = make(map[string]string, len(h.checkers))
	ok = true

	for _, c := range h.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
		err := c.Check(checkCtx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ok = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ok
}

// Register adds both probe routes to mux.
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
