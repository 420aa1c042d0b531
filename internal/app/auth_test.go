package app_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrWong99/versecue/internal/app"
)

const secret = "s3cret"

func TestAuth(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.AuthSecret = secret

	valid, err := app.IssueToken(secret, "operator", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	wrongKey, err := app.IssueToken("other", "operator", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{Subject: "operator"}).
		SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"other algorithm", "Bearer " + otherAlg, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusConflict}, // session already started
	}

	f := newFixture(t, cfg, nil)
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/session/start", nil)
		if err != nil {
			t.Fatal(err)
		}
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := f.srv.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}

	// Reads stay open.
	if code, _ := f.do(t, http.MethodGet, "/api/queue", nil); code != http.StatusOK {
		t.Errorf("GET /api/queue without token = %d, want 200", code)
	}
	f.token = valid
	if code, _ := f.do(t, http.MethodPost, "/api/session/end", nil); code != http.StatusOK {
		t.Errorf("end with token = %d, want 200", code)
	}
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	t.Parallel()
	f := newFixture(t, testConfig(), nil)

	if code, _ := f.do(t, http.MethodPost, "/api/session/start", nil); code != http.StatusOK {
		t.Errorf("start without auth configured = %d, want 200", code)
	}
}
