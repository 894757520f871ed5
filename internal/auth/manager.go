// Package auth composes the configured authentication validators. A request
// is authorized when any one of them accepts it.
package auth

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/ordprovider/internal/auth/providers"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/util/sets"
)

// Manager dispatches authorization to the configured validators with OR
// semantics. Paths on the bypass list skip authentication entirely: the
// well-known endpoint is public by protocol, and the webhook carries its own
// HMAC verification.
type Manager struct {
	validators []providers.Validator
	bypass     sets.Set[string]
	logger     *slog.Logger
}

// Options configures a Manager.
type Options struct {
	Methods    []ord.AuthMethod
	BasicUsers map[string]string
	Trust      providers.TrustConfig
	Logger     *slog.Logger
}

// NewManager builds the validator set from the configured methods. An empty
// method list behaves as open.
func NewManager(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	methods := opts.Methods
	if len(methods) == 0 {
		methods = []ord.AuthMethod{ord.AuthMethodOpen}
	}

	validators := make([]providers.Validator, 0, len(methods))
	for _, m := range methods {
		switch m {
		case ord.AuthMethodOpen:
			validators = append(validators, providers.NewOpenValidator())
		case ord.AuthMethodBasic:
			validators = append(validators, providers.NewBasicValidator(opts.BasicUsers))
		case ord.AuthMethodCFMTLS:
			validators = append(validators, providers.NewCertValidator(opts.Trust))
		default:
			return nil, ferrors.ConfigError("unknown auth method: " + string(m)).Build()
		}
	}

	return &Manager{
		validators: validators,
		bypass:     sets.New(ord.WellKnownPath, WebhookPath),
		logger:     logger,
	}, nil
}

// WebhookPath always bypasses authentication; the handler verifies the HMAC
// signature itself.
const WebhookPath = "/api/v1/webhook/github"

// Authorize returns nil when the request may proceed: its path is on the
// bypass list or at least one validator accepts it.
func (m *Manager) Authorize(r *http.Request) error {
	if m.bypass.Has(r.URL.Path) {
		return nil
	}

	var last error
	for _, v := range m.validators {
		err := v.Validate(r)
		if err == nil {
			return nil
		}
		last = err
	}
	if last == nil {
		last = ferrors.AuthError("Unauthorized").Build()
	}

	m.logger.Debug("request rejected by all auth validators",
		slog.String("path", r.URL.Path),
		slog.Int("validators", len(m.validators)))
	return last
}

// Methods returns the configured validator names, in order.
func (m *Manager) Methods() []string {
	out := make([]string, len(m.validators))
	for i, v := range m.validators {
		out[i] = v.Name()
	}
	return out
}
