package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/ordprovider/internal/auth"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/metrics"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/server/middleware"
	"git.home.luguber.info/inful/ordprovider/internal/server/responses"
	"git.home.luguber.info/inful/ordprovider/internal/state"
)

// RouterOptions wires the handler set into one http.Handler. A nil Readiness
// disables the startup gate (local directory mode serves immediately); a nil
// Metrics handler leaves /metrics unregistered.
type RouterOptions struct {
	Logger           *slog.Logger
	Version          string
	AllowedOrigins   []string
	Recorder         metrics.Recorder
	Authorizer       middleware.Authorizer
	Readiness        middleware.ReadyWaiter
	ReadyTimeout     time.Duration
	DashboardEnabled bool

	WellKnown http.Handler
	Documents http.Handler
	Webhook   http.Handler
	Status    http.Handler
	Updates   http.Handler
	Health    http.Handler
	Dashboard http.Handler
	Metrics   http.Handler
}

// NewRouter assembles the provider's route table. Gated routes run
// authentication first, then wait for the first usable snapshot; the
// well-known path is authentication-exempt but mounted behind the same
// authorizer so the exemption lives in one place.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = state.DefaultReadyTimeout
	}

	gated := func(h http.Handler) http.Handler {
		if opts.Readiness != nil {
			h = middleware.ReadinessGate(opts.Readiness, readyTimeout, h)
		}
		return middleware.Auth(opts.Authorizer, h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+ord.WellKnownPath, middleware.Auth(opts.Authorizer, opts.WellKnown))
	mux.Handle("GET "+ord.ServerPrefix+"/", gated(opts.Documents))
	mux.Handle(auth.WebhookPath, opts.Webhook)
	mux.Handle("GET /api/v1/status", opts.Status)
	mux.Handle("GET /api/v1/updates", opts.Updates)
	mux.Handle("GET /health", opts.Health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	rootTarget := ord.WellKnownPath
	if opts.DashboardEnabled && opts.Dashboard != nil {
		mux.Handle("GET /status", opts.Dashboard)
		rootTarget = "/status"
	}
	mux.Handle("GET /{$}", http.RedirectHandler(rootTarget, http.StatusFound))

	// Unmatched paths answer with the JSON error envelope instead of the
	// mux's plain-text 404.
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(w, r, notFound(r.URL.Path))
	}))

	chain := middleware.Chain(logger, ferrors.NewHTTPErrorAdapter(logger), middleware.Options{
		Version:        opts.Version,
		AllowedOrigins: opts.AllowedOrigins,
		Recorder:       opts.Recorder,
	})
	return chain(mux)
}
