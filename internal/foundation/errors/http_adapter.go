package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter handles error presentation and status code determination
// for the HTTP surface. Every error response uses the envelope
// {"error": {"code", "message", "target?", "details?"}}.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter with an optional slog logger.
// If logger is nil, the default package logger will be used.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// Stable wire codes.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeLocalDirectory      = "LOCAL_DIRECTORY_ERROR"
	CodeGitHubAccess        = "GITHUB_ACCESS_ERROR"
	CodeGitHubFileNotFound  = "GITHUB_FILE_NOT_FOUND"
	CodeGitHubDirNotFound   = "GITHUB_DIRECTORY_NOT_FOUND"
	CodeGitHubNetwork       = "GITHUB_NETWORK_ERROR"
	CodeDiskSpace           = "DISK_SPACE_ERROR"
	CodeMemory              = "MEMORY_ERROR"
	CodeTimeout             = "TIMEOUT_ERROR"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

// Envelope is the canonical JSON error payload.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody carries the code, message, and optional presentation data.
type EnvelopeBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Target  string   `json:"target,omitempty"`
	Details []Detail `json:"details,omitempty"`
}

// CodeFor maps an error onto its stable wire code. Unclassified errors map
// to INTERNAL_SERVER_ERROR.
func (a *HTTPErrorAdapter) CodeFor(err error) string {
	c, ok := AsClassified(err)
	if !ok {
		return CodeInternalServerError
	}
	switch c.Category() {
	case CategoryAuth:
		return CodeUnauthorized
	case CategoryNotFound:
		return CodeNotFound
	case CategoryValidation, CategoryConfig:
		return CodeValidation
	case CategoryLocalDirectory:
		return CodeLocalDirectory
	case CategoryGitHubAccess:
		return CodeGitHubAccess
	case CategoryGitHubFileNotFound:
		return CodeGitHubFileNotFound
	case CategoryGitHubDirNotFound:
		return CodeGitHubDirNotFound
	case CategoryGitHubNetwork:
		return CodeGitHubNetwork
	case CategoryDiskSpace:
		return CodeDiskSpace
	case CategoryMemory:
		return CodeMemory
	case CategoryTimeout:
		return CodeTimeout
	default:
		return CodeInternalServerError
	}
}

// StatusCodeFor determines the HTTP status code for a given error based on
// its classification. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	c, ok := AsClassified(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch c.Category() {
	case CategoryAuth, CategoryGitHubAccess:
		return http.StatusUnauthorized
	case CategoryNotFound, CategoryGitHubFileNotFound, CategoryGitHubDirNotFound:
		return http.StatusNotFound
	case CategoryValidation, CategoryConfig, CategoryLocalDirectory:
		return http.StatusBadRequest
	case CategoryGitHubNetwork, CategoryTimeout:
		return http.StatusServiceUnavailable
	case CategoryDiskSpace, CategoryMemory:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes the JSON envelope and logs with a level matching
// the error's severity. Unclassified errors are logged and reported as
// internal without leaking their message structure.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	payload := a.FormatErrorResponse(err)

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_SERVER_ERROR","message":"internal error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)

	if c, ok := AsClassified(err); ok {
		a.logger.Log(r.Context(), a.slogLevelFromSeverity(c.Severity()), c.Error(),
			slog.String("code", payload.Error.Code),
			slog.Int("status", status))
		return
	}
	a.logger.ErrorContext(r.Context(), err.Error(), slog.Int("status", status))
}

// FormatErrorResponse converts known errors into the canonical envelope.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) Envelope {
	if c, ok := AsClassified(err); ok {
		return Envelope{Error: EnvelopeBody{
			Code:    a.CodeFor(err),
			Message: c.Message(),
			Target:  c.Target(),
			Details: c.Details(),
		}}
	}
	return Envelope{Error: EnvelopeBody{
		Code:    CodeInternalServerError,
		Message: "Internal server error",
	}}
}

func (a *HTTPErrorAdapter) slogLevelFromSeverity(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
