// Package providers contains the request validators the auth manager
// composes. Each validator checks one authentication method.
package providers

import (
	"net/http"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

// Validator checks whether an incoming request satisfies one authentication
// method. Validate returns nil on success and a classified auth error
// otherwise.
type Validator interface {
	// Name returns the method name this validator handles (for logging).
	Name() string

	// Validate returns nil when the request is authenticated.
	Validate(r *http.Request) error
}

// errUnauthorized builds the uniform rejection. Every failure path returns
// the same message so responses leak nothing about which check failed.
func errUnauthorized() error {
	return ferrors.AuthError("Unauthorized").Build()
}
