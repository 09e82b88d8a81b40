package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/auth"
	"github.com/dispatchly/backend/internal/models"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuth(t *testing.T) {
	tm := auth.NewTokenManager("a", "r", "test", time.Minute, time.Hour)
	pair, err := tm.GeneratePair("u-1", models.RoleDriver)
	require.NoError(t, err)

	var gotUID string
	var gotRole models.Role
	h := NewAuthMiddleware(tm).Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID, _ = UserID(r.Context())
		gotRole, _ = Role(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code, "refresh tokens are not access tokens")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, serve(h, r).Code)
	assert.Equal(t, "u-1", gotUID)
	assert.Equal(t, models.RoleDriver, gotRole)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleDriver, models.RoleAdmin)(ok)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	for role, want := range map[models.Role]int{
		models.RoleCustomer: http.StatusForbidden,
		models.RoleDriver:   http.StatusOK,
		models.RoleAdmin:    http.StatusOK,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(WithUser(context.Background(), "u", role))
		assert.Equal(t, want, serve(h, r).Code, role)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := serve(h, r)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc")
	rec = serve(h, r)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 1)(ok)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Another client has its own bucket.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, serve(h, r).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, 0)(ok)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}
