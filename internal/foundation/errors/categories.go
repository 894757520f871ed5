package errors

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// CategoryConfig represents startup configuration errors (fatal, exit 1).
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"
	CategoryNotFound   ErrorCategory = "not_found"

	// CategoryLocalDirectory represents errors reading the configured local content directory.
	CategoryLocalDirectory ErrorCategory = "local_directory"

	// GitHub source errors, split by failure mode so the HTTP surface can
	// report distinct stable codes.
	CategoryGitHubAccess       ErrorCategory = "github_access"
	CategoryGitHubFileNotFound ErrorCategory = "github_file_not_found"
	CategoryGitHubDirNotFound  ErrorCategory = "github_directory_not_found"
	CategoryGitHubNetwork      ErrorCategory = "github_network"

	// Resource exhaustion during fetch or swap.
	CategoryDiskSpace ErrorCategory = "disk_space"
	CategoryMemory    ErrorCategory = "memory"

	CategoryTimeout  ErrorCategory = "timeout"
	CategoryAborted  ErrorCategory = "aborted"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// RetryStrategy indicates how an error should be handled in retry scenarios.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"   // Permanent failure, don't retry
	RetryBackoff    RetryStrategy = "backoff" // Transient, retry on the next trigger
	RetryUserAction RetryStrategy = "user"    // Requires user intervention
)

// Detail is one structured entry of an error's detail list, surfaced verbatim
// in HTTP error envelopes.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
