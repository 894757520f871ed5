package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/observability"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func chained(t *testing.T, opts Options, next http.Handler) http.Handler {
	t.Helper()
	adapter := ferrors.NewHTTPErrorAdapter(slog.Default())
	return Chain(slog.Default(), adapter, opts)(next)
}

func TestChainSetsVersionHeader(t *testing.T) {
	h := chained(t, Options{Version: "1.2.3"}, okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, "1.2.3", w.Result().Header.Get(VersionHeader))
}

func TestChainAssignsRequestID(t *testing.T) {
	var seen string
	h := chained(t, Options{Version: "dev"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetContext(r.Context()).RequestID
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, w.Result().Header.Get(RequestIDHeader))
}

func TestChainRecoversPanics(t *testing.T) {
	h := chained(t, Options{Version: "dev"}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := chained(t, Options{AllowedOrigins: []string{"https://portal.example.com"}}, okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ord/v1/documents/a", nil)
	r.Header.Set("Origin", "https://portal.example.com")
	h.ServeHTTP(w, r)

	require.Equal(t, "https://portal.example.com", w.Result().Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := chained(t, Options{AllowedOrigins: []string{"https://portal.example.com"}}, okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ord/v1/documents/a", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	h.ServeHTTP(w, r)

	require.Empty(t, w.Result().Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	h := chained(t, Options{AllowedOrigins: []string{"*"}}, okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/ord/v1/documents/a", nil)
	r.Header.Set("Origin", "https://anywhere.example.com")
	r.Header.Set("Access-Control-Request-Headers", "Authorization")
	h.ServeHTTP(w, r)

	res := w.Result()
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Authorization", res.Header.Get("Access-Control-Allow-Headers"))
}

type denyAll struct{}

func (denyAll) Authorize(*http.Request) error {
	return ferrors.AuthError("Unauthorized").Build()
}

type allowAll struct{}

func (allowAll) Authorize(*http.Request) error { return nil }

func TestAuthMiddleware(t *testing.T) {
	denied := Auth(denyAll{}, okHandler())
	w := httptest.NewRecorder()
	denied.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ord/v1/documents/a", nil))
	require.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
	require.Contains(t, w.Body.String(), "UNAUTHORIZED")

	allowed := Auth(allowAll{}, okHandler())
	w = httptest.NewRecorder()
	allowed.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ord/v1/documents/a", nil))
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
}

type blockedWaiter struct{}

func (blockedWaiter) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return ferrors.TimeoutError("timed out waiting for content update").Build()
}

type readyWaiter struct{}

func (readyWaiter) WaitForReady(context.Context, time.Duration) error { return nil }

func TestReadinessGate(t *testing.T) {
	gated := ReadinessGate(blockedWaiter{}, time.Second, okHandler())
	w := httptest.NewRecorder()
	gated.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ord/v1/documents/a", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)

	open := ReadinessGate(readyWaiter{}, time.Second, okHandler())
	w = httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ord/v1/documents/a", nil))
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
}
