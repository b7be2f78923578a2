package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type requestLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Filled by Auth while the request goes through, read by RequestLog when it is done
type authOutcome struct {
	userID uuid.UUID
	code   string
}

type authOutcomeKey struct{}

func withAuthOutcome(ctx context.Context) (context.Context, *authOutcome) {
	outcome := &authOutcome{}
	return context.WithValue(ctx, authOutcomeKey{}, outcome), outcome
}

func recordUser(ctx context.Context, userID uuid.UUID) {
	if outcome, ok := ctx.Value(authOutcomeKey{}).(*authOutcome); ok {
		outcome.userID = userID
	}
}

func recordAuthFailure(ctx context.Context, code string) {
	if outcome, ok := ctx.Value(authOutcomeKey{}).(*authOutcome); ok {
		outcome.code = code
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	w.wroteHeader = true
	size, err := w.ResponseWriter.Write(p)
	w.size += size
	return size, err
}

// RequestLog writes one line per request
// Query and headers are left out: tokens travel there
func RequestLog(l requestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, outcome := withAuthOutcome(r.Context())
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"size", rec.size,
				"duration", time.Since(start),
			}
			if outcome.userID != uuid.Nil {
				args = append(args, "user_id", outcome.userID)
			}
			if outcome.code != "" {
				args = append(args, "auth_code", outcome.code)
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				l.Error("HTTP request failed", args...)
			case rec.status == http.StatusUnauthorized, rec.status == http.StatusForbidden:
				l.Warn("HTTP request rejected", args...)
			default:
				l.Info("HTTP request", args...)
			}
		})
	}
}
