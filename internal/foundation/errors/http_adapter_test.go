package errors

import (
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: http.StatusOK},
		{name: "validation", err: ValidationError("invalid input").Build(), expected: http.StatusBadRequest},
		{name: "auth", err: AuthError("unauthorized").Build(), expected: http.StatusUnauthorized},
		{name: "not found", err: NotFoundError("missing").Build(), expected: http.StatusNotFound},
		{name: "local directory", err: LocalDirectoryError("bad dir").Build(), expected: http.StatusBadRequest},
		{name: "github access", err: GitHubAccessError("denied").Build(), expected: http.StatusUnauthorized},
		{name: "github file not found", err: GitHubFileNotFoundError("gone").Build(), expected: http.StatusNotFound},
		{name: "github network", err: GitHubNetworkError("offline").Build(), expected: http.StatusServiceUnavailable},
		{name: "disk space", err: DiskSpaceError("full").Build(), expected: http.StatusInsufficientStorage},
		{name: "memory", err: MemoryError("oom").Build(), expected: http.StatusInsufficientStorage},
		{name: "timeout", err: TimeoutError("expired").Build(), expected: http.StatusServiceUnavailable},
		{name: "unclassified", err: stdErrors.New("unknown"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.StatusCodeFor(tt.err); got != tt.expected {
				t.Errorf("StatusCodeFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestHTTPErrorAdapter_CodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())

	tests := []struct {
		err  error
		code string
	}{
		{AuthError("x").Build(), CodeUnauthorized},
		{NotFoundError("x").Build(), CodeNotFound},
		{ValidationError("x").Build(), CodeValidation},
		{ConfigError("x").Build(), CodeValidation},
		{LocalDirectoryError("x").Build(), CodeLocalDirectory},
		{GitHubAccessError("x").Build(), CodeGitHubAccess},
		{GitHubFileNotFoundError("x").Build(), CodeGitHubFileNotFound},
		{GitHubDirNotFoundError("x").Build(), CodeGitHubDirNotFound},
		{GitHubNetworkError("x").Build(), CodeGitHubNetwork},
		{DiskSpaceError("x").Build(), CodeDiskSpace},
		{MemoryError("x").Build(), CodeMemory},
		{TimeoutError("x").Build(), CodeTimeout},
		{InternalError("x").Build(), CodeInternalServerError},
		{stdErrors.New("x"), CodeInternalServerError},
	}

	for _, tt := range tests {
		if got := adapter.CodeFor(tt.err); got != tt.code {
			t.Errorf("CodeFor(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}

func TestHTTPErrorAdapter_WriteErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.Default())

	t.Run("classified error envelope", func(t *testing.T) {
		err := NotFoundError("Document not found").WithTarget("/ord/v1/documents/missing").Build()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ord/v1/documents/missing", nil)
		adapter.WriteErrorResponse(rec, req, err)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}

		var env Envelope
		if jerr := json.Unmarshal(rec.Body.Bytes(), &env); jerr != nil {
			t.Fatalf("unmarshal envelope: %v", jerr)
		}
		if env.Error.Code != CodeNotFound {
			t.Errorf("code = %s, want %s", env.Error.Code, CodeNotFound)
		}
		if env.Error.Message != "Document not found" {
			t.Errorf("message = %q", env.Error.Message)
		}
		if env.Error.Target != "/ord/v1/documents/missing" {
			t.Errorf("target = %q", env.Error.Target)
		}
	})

	t.Run("unclassified error does not leak", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		adapter.WriteErrorResponse(rec, req, stdErrors.New("secret database dsn"))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		var env Envelope
		if jerr := json.Unmarshal(rec.Body.Bytes(), &env); jerr != nil {
			t.Fatalf("unmarshal envelope: %v", jerr)
		}
		if env.Error.Code != CodeInternalServerError {
			t.Errorf("code = %s", env.Error.Code)
		}
		if env.Error.Message != "Internal server error" {
			t.Errorf("message leaked: %q", env.Error.Message)
		}
	})

	t.Run("details round-trip", func(t *testing.T) {
		err := ValidationError("Invalid configuration").
			WithDetail("base-url", "must match the ORD baseUrl pattern").
			Build()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		adapter.WriteErrorResponse(rec, req, err)

		var env Envelope
		if jerr := json.Unmarshal(rec.Body.Bytes(), &env); jerr != nil {
			t.Fatalf("unmarshal envelope: %v", jerr)
		}
		if len(env.Error.Details) != 1 || env.Error.Details[0].Code != "base-url" {
			t.Errorf("details = %+v", env.Error.Details)
		}
	})
}
