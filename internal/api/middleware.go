package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nouscore/cogcore/internal/logging"
)

// responseWriter wraps http.ResponseWriter to capture the status code for
// logging, matching the teacher's middleware.go wrapper shape.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs method, path, status and duration for every
// request at Info, and at Warn for 4xx/5xx responses.
func loggingMiddleware(logger logging.ComponentLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if rw.status >= 400 {
			logger.Warn("request completed", fields)
		} else {
			logger.Info("request completed", fields)
		}
	})
}

// principalKey is the context key a verified JWT's subject claim is stored
// under after authMiddleware succeeds.
type principalKey struct{}

// principalFromContext returns the caller identity attached by
// authMiddleware, if any.
func principalFromContext(r *http.Request) (string, bool) {
	v, ok := r.Context().Value(principalKey{}).(string)
	return v, ok
}

// authMiddleware requires a valid "Authorization: Bearer <token>" HS256 JWT
// signed with secret on every request it wraps. Fails closed: an empty
// secret rejects every request rather than skipping verification, mirroring
// Mindburn-Labs-helm's auth middleware contract for privileged routes.
func authMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			writeError(w, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "privileged routes are not configured")
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "INVALID_REQUEST", "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "INVALID_REQUEST", "invalid bearer token")
			return
		}

		subject, _ := claims["sub"].(string)
		if subject == "" {
			subject = "operator"
		}

		r = r.WithContext(context.WithValue(r.Context(), principalKey{}, subject))
		next.ServeHTTP(w, r)
	})
}
