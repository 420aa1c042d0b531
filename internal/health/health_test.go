package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/resilience"
)

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "library", Check: func(context.Context) error { return errors.New("down") }})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	refused := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{"no checkers", nil, http.StatusOK, StatusOK, nil},
		{
			"all pass",
			[]Checker{{Name: "library", Check: ok}, {Name: "display", Check: ok}},
			http.StatusOK, StatusOK,
			map[string]string{"library": "ok", "display": "ok"},
		},
		{
			"one fails",
			[]Checker{{Name: "library", Check: refused}, {Name: "display", Check: ok}},
			http.StatusServiceUnavailable, StatusFail,
			map[string]string{"library": "fail: connection refused", "display": "ok"},
		},
		{
			"optional fails",
			[]Checker{{Name: "library", Check: ok}, Checker{Name: "lyrics", Check: refused}.AsOptional()},
			http.StatusOK, StatusDegraded,
			map[string]string{"library": "ok", "lyrics": "fail: connection refused"},
		},
		{
			"required wins over optional",
			[]Checker{{Name: "library", Check: refused}, Checker{Name: "lyrics", Check: refused}.AsOptional()},
			http.StatusServiceUnavailable, StatusFail,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...))
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if body.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantBody)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestPing_LibraryStore(t *testing.T) {
	t.Parallel()
	code, body := readyz(t, New(Ping("library", library.NewMemStore())))
	if code != http.StatusOK || body.Checks["library"] != "ok" {
		t.Errorf("memstore ping: %d %+v", code, body)
	}
}

func TestCircuit(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Hour})
	h := New(Circuit("llm", cb))

	if code, _ := readyz(t, h); code != http.StatusOK {
		t.Fatalf("closed breaker: status %d", code)
	}
	_ = cb.Execute(func() error { return errors.New("boom") })
	code, body := readyz(t, h)
	if code != http.StatusOK || body.Status != StatusDegraded || body.Checks["llm"] != "fail: circuit open" {
		t.Errorf("open breaker: %d %+v", code, body)
	}
}

func TestCircuits_NamesEachBreaker(t *testing.T) {
	t.Parallel()
	fb := resilience.NewLyricsFallback(nil, "lrclib", resilience.FallbackConfig{})
	fb.AddFallback("genius", nil)

	_, body := readyz(t, New(Circuits("lyrics", fb.Breakers())...))
	for _, name := range []string{"lyrics/lrclib", "lyrics/genius"} {
		if body.Checks[name] != StatusOK {
			t.Errorf("check %s = %q", name, body.Checks[name])
		}
	}
}

func TestFunc(t *testing.T) {
	t.Parallel()
	ready := false
	h := New(Func("stt", func() (bool, string) { return ready, "no active stream" }))

	if _, body := readyz(t, h); body.Checks["stt"] != "fail: no active stream" {
		t.Errorf("checks = %+v", body.Checks)
	}
	ready = true
	if code, _ := readyz(t, h); code != http.StatusOK {
		t.Errorf("status = %d after ready", code)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
