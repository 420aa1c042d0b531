// Package health serves liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz runs
// every registered [Checker] concurrently. A failing required check turns the
// response into 503; a failing optional one (an LLM or lyric service whose
// absence only degrades cue quality) keeps 200 and reports "degraded".
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Response statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional checks never fail readiness.
	Optional bool
}

// AsOptional returns a copy of c that does not fail readiness.
func (c Checker) AsOptional() Checker {
	c.Optional = true
	return c
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker set is fixed at New.
type Handler struct {
	checkers []Checker
}

// New returns a Handler over checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK})
}

// Readyz runs all checks, each bounded by checkTimeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu       sync.Mutex
		checks   = make(map[string]string, len(h.checkers))
		required bool
		optional bool
		g        errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				checks[c.Name] = StatusOK
				return nil
			}
			checks[c.Name] = StatusFail + ": " + err.Error()
			if c.Optional {
				optional = true
			} else {
				required = true
			}
			return nil
		})
	}
	g.Wait()

	res, code := result{Status: StatusOK, Checks: checks}, http.StatusOK
	switch {
	case required:
		res.Status, code = StatusFail, http.StatusServiceUnavailable
	case optional:
		res.Status = StatusDegraded
	}
	writeJSON(w, code, res)
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(append(b, '\n'))
}
