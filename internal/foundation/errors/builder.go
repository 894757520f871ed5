package errors

// ErrorBuilder provides a fluent API for creating ClassifiedError instances.
// This keeps error creation consistent and discoverable throughout the codebase.
type ErrorBuilder struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	target   string
	details  []Detail
}

// NewError creates a new ErrorBuilder with the specified category and message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
	}
}

// WrapError creates a new ErrorBuilder that wraps an existing error.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.cause = err
	return b
}

// WithSeverity sets the error severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.severity = severity
	return b
}

// WithTarget names the element the error refers to.
func (b *ErrorBuilder) WithTarget(target string) *ErrorBuilder {
	b.target = target
	return b
}

// WithDetail appends one structured detail entry.
func (b *ErrorBuilder) WithDetail(code, message string) *ErrorBuilder {
	b.details = append(b.details, Detail{Code: code, Message: message})
	return b
}

// Fatal sets the severity to fatal.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Warning sets the severity to warning.
func (b *ErrorBuilder) Warning() *ErrorBuilder {
	return b.WithSeverity(SeverityWarning)
}

// Retryable marks the error as transient.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	b.retry = RetryBackoff
	return b
}

// UserAction marks the error as requiring user intervention.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	b.retry = RetryUserAction
	return b
}

// Build creates the final ClassifiedError.
func (b *ErrorBuilder) Build() *ClassifiedError {
	return &ClassifiedError{
		category: b.category,
		severity: b.severity,
		retry:    b.retry,
		message:  b.message,
		cause:    b.cause,
		target:   b.target,
		details:  b.details,
	}
}

// Convenience constructors for common error patterns

// ConfigError creates a startup configuration error.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a request validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message)
}

// AuthError creates an authentication error.
func AuthError(message string) *ErrorBuilder {
	return NewError(CategoryAuth, message).UserAction()
}

// NotFoundError creates a not-found error.
func NotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryNotFound, message)
}

// LocalDirectoryError creates an error for the configured local directory.
func LocalDirectoryError(message string) *ErrorBuilder {
	return NewError(CategoryLocalDirectory, message).UserAction()
}

// GitHubAccessError creates a repository access / credential error.
func GitHubAccessError(message string) *ErrorBuilder {
	return NewError(CategoryGitHubAccess, message).UserAction()
}

// GitHubFileNotFoundError creates a missing-file error on the remote side.
func GitHubFileNotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryGitHubFileNotFound, message)
}

// GitHubDirNotFoundError creates a missing-repository/branch error.
func GitHubDirNotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryGitHubDirNotFound, message)
}

// GitHubNetworkError creates a transient remote connectivity error.
func GitHubNetworkError(message string) *ErrorBuilder {
	return NewError(CategoryGitHubNetwork, message).Retryable()
}

// DiskSpaceError creates a disk exhaustion error.
func DiskSpaceError(message string) *ErrorBuilder {
	return NewError(CategoryDiskSpace, message).UserAction()
}

// MemoryError creates a memory exhaustion error.
func MemoryError(message string) *ErrorBuilder {
	return NewError(CategoryMemory, message).UserAction()
}

// TimeoutError creates a timeout error.
func TimeoutError(message string) *ErrorBuilder {
	return NewError(CategoryTimeout, message).Retryable()
}

// AbortedError creates an error marking an operation cancelled by a newer trigger.
func AbortedError(message string) *ErrorBuilder {
	return NewError(CategoryAborted, message)
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
