package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitSentry_EmptyDSNIsNoop(t *testing.T) {
	flush, err := InitSentry("", "test", "dev")
	if err != nil {
		t.Fatalf("InitSentry: %v", err)
	}
	flush()
}

func TestCaptureError_NilAndUninitialised(t *testing.T) {
	CaptureError(context.Background(), nil, nil)
	CaptureError(context.Background(), errors.New("boom"), map[string]string{"component": "worship"})
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	handler := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("queue exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/queue/next", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	handler := Recover(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack on a recorder should fail")
	}
	if rec.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}
