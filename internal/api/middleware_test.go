package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nouscore/cogcore/internal/logging"
)

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := principalFromContext(r)
		w.Header().Set("X-Principal", principal)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareFailsClosedWhenSecretEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tick", nil)
	rec := httptest.NewRecorder()

	authMiddleware("", okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthMiddlewareRejectsMissingBearerHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tick", nil)
	rec := httptest.NewRecorder()

	authMiddleware("secret", okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsTokenSignedWithWrongSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tick", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "other-secret", "operator"))
	rec := httptest.NewRecorder()

	authMiddleware("secret", okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsValidTokenAndInjectsPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tick", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "alice"))
	rec := httptest.NewRecorder()

	authMiddleware("secret", okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Header().Get("X-Principal"))
}

func TestAuthMiddlewareDefaultsSubjectWhenClaimMissing(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/tick", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	authMiddleware("secret", okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", rec.Header().Get("X-Principal"))
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()

	loggingMiddleware(logging.NewNop(), inner).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
