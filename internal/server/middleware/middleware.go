// Package middleware provides the HTTP middleware for the ORD provider
// server: request logging, panic recovery, CORS, the server version header,
// request metrics, authentication and the content readiness gate.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/metrics"
	"git.home.luguber.info/inful/ordprovider/internal/observability"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
)

// VersionHeader carries the server version on every response.
const VersionHeader = "x-ord-provider-server-version"

// RequestIDHeader echoes the request id assigned by the logging middleware.
const RequestIDHeader = "X-Request-ID"

// Options configures the outer middleware chain applied to all routes.
type Options struct {
	Version        string
	AllowedOrigins []string
	Recorder       metrics.Recorder
}

// Chain returns the wrapper applied to every route: logging, panic recovery,
// CORS, version header and request metrics, outermost first.
func Chain(logger *slog.Logger, adapter *ferrors.HTTPErrorAdapter, opts Options) func(http.Handler) http.Handler {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		h := panicRecoveryMiddleware(logger, adapter, next)
		h = versionHeaderMiddleware(opts.Version, h)
		h = corsMiddleware(opts.AllowedOrigins, h)
		h = metricsMiddleware(recorder, h)
		return loggingMiddleware(logger, h)
	}
}

// loggingMiddleware assigns each request an id, carries it in the request
// context and the response headers, and logs method, path, status, duration,
// user agent, and remote addr.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		r = r.WithContext(observability.WithRequestID(r.Context(), requestID))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)
		logger.Info("HTTP request",
			logfields.RequestID(requestID),
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(wrapped.statusCode),
			slog.Duration("duration", duration),
			logfields.UserAgent(r.UserAgent()),
			logfields.RemoteAddr(r.RemoteAddr))
	})
}

// panicRecoveryMiddleware recovers from panics and writes a structured error
// response via the HTTPErrorAdapter.
func panicRecoveryMiddleware(logger *slog.Logger, adapter *ferrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("HTTP handler panic",
					"error", rec,
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr)

				panicErr := ferrors.InternalError("internal server error").Build()
				adapter.WriteErrorResponse(w, r, panicErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func versionHeaderMiddleware(version string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(VersionHeader, version)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles cross-origin requests for the configured origins.
// No configured origins means no CORS headers at all.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		return next
	}

	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(recorder metrics.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		recorder.ObserveRequestDuration(route, wrapped.statusCode, time.Since(start))
	})
}

// Authorizer decides whether a request may proceed. *auth.Manager implements it.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Auth rejects requests no configured validator accepts. Bypass paths are the
// authorizer's concern.
func Auth(authorizer Authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := authorizer.Authorize(r); err != nil {
			responses.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ReadyWaiter blocks until content serving is possible. *state.Manager
// implements it.
type ReadyWaiter interface {
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// ReadinessGate suspends content requests while an update is swapping
// snapshots. A timeout surfaces as a classified 503.
func ReadinessGate(waiter ReadyWaiter, timeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := waiter.WaitForReady(r.Context(), timeout); err != nil {
			responses.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures status codes for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
