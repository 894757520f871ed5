// Package errors provides the classified error primitives used across the
// ORD provider.
//
// Every failure surfaced over HTTP or recorded in update state is a
// ClassifiedError: a category (auth, not_found, github_network, disk_space,
// ...), a severity, a retry hint, and optional presentation data (target,
// details). The HTTPErrorAdapter maps categories onto stable wire codes and
// status codes and writes the canonical envelope
// {"error": {"code", "message", "target?", "details?"}}.
//
// Example usage:
//
//	err := errors.GitHubNetworkError("fetch failed").
//		WithTarget("github-repository").
//		Build()
package errors
