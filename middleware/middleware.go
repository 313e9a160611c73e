// Package middleware wraps the server's handlers with authentication and
// request logging.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tomyedwab/libsqlgo/auth"
)

// Middleware wraps a handler.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// RequireToken rejects requests without a valid bearer token. With a nil
// secret every request passes through unauthenticated.
func RequireToken(secret []byte) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if secret == nil {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			// Get bearer token from request
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.Verify(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LogRequests logs each request after it completes.
func LogRequests(logger *slog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("Request",
				"remote", r.RemoteAddr,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}
	}
}

// Chain applies middleware so that the first one listed runs innermost.
func Chain(h http.HandlerFunc, middleware ...Middleware) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}
