package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// IssueToken signs an operator token for subject with the HS256 secret. A
// zero ttl issues a token without expiry.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("app: sign token: %w", err)
	}
	return s, nil
}

// Operator returns the authenticated token subject, or "" when the API runs
// without auth.
func Operator(ctx context.Context) string {
	s, _ := ctx.Value(operatorContextKey).(string)
	return s
}

// withAuth requires a valid bearer token when an auth secret is configured.
// Without a secret it is a pass-through.
func (a *App) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if len(a.authSecret) == 0 {
		return next
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return a.authSecret, nil }

	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, keyFunc); err != nil {
			a.log.Debug("rejected operator token", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), operatorContextKey, claims.Subject)
		next(w, r.WithContext(ctx))
	}
}
