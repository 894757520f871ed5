package providers

import "net/http"

// OpenValidator accepts every request. Configured exclusively; the config
// layer rejects combining open with other methods.
type OpenValidator struct{}

// NewOpenValidator creates an open (no authentication) validator.
func NewOpenValidator() *OpenValidator {
	return &OpenValidator{}
}

// Name returns the method name this validator handles.
func (*OpenValidator) Name() string { return "open" }

// Validate always succeeds.
func (*OpenValidator) Validate(*http.Request) error { return nil }
