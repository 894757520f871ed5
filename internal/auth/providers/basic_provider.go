package providers

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// BasicValidator handles HTTP Basic authentication against a static user
// table of bcrypt hashes (loaded from the BASIC_AUTH environment variable).
type BasicValidator struct {
	users map[string]string // username → bcrypt hash
}

// NewBasicValidator creates a basic authentication validator.
func NewBasicValidator(users map[string]string) *BasicValidator {
	return &BasicValidator{users: users}
}

// Name returns the method name this validator handles.
func (*BasicValidator) Name() string { return "basic" }

// Validate checks the Authorization header against the user table. Missing
// header, unknown user and hash mismatch all fail identically.
func (v *BasicValidator) Validate(r *http.Request) error {
	username, password, ok := r.BasicAuth()
	if !ok {
		return errUnauthorized()
	}

	hash, ok := v.users[username]
	if !ok {
		return errUnauthorized()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errUnauthorized()
	}
	return nil
}
