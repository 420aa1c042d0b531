package observe

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// sentryFlushTimeout bounds how long a flush may block shutdown or a panic
// response.
const sentryFlushTimeout = 2 * time.Second

// InitSentry configures the global Sentry client. An empty dsn disables
// reporting and returns a no-op flush. The returned function must be called
// before the process exits.
func InitSentry(dsn, environment, release string) (flush func(), err error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		Environment:      environment,
		Release:          release,
	}); err != nil {
		return func() {}, err
	}
	slog.Info("sentry initialised", "environment", environment)
	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// CaptureError reports err to Sentry with the given tags. It is a no-op when
// Sentry is not initialised.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if cid := CorrelationID(ctx); cid != "" {
			scope.SetTag("trace_id", cid)
		}
		hub.CaptureException(err)
	})
}

// Recover returns middleware that turns a handler panic into a 500 response
// and reports it to Sentry with the request attached.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				Logger(req.Context()).Error("handler panic", "panic", rec, "path", req.URL.Path)
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), rec)
				hub.Flush(sentryFlushTimeout)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}
