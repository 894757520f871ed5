package fetcher

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
)

// classifyGitError maps git transport failures onto the provider error
// taxonomy. Sentinel errors are checked first; go-git wraps many transport
// conditions in plain strings, so a lowercase substring pass follows,
// mirroring what the error text of the underlying packages looks like.
func classifyGitError(ctx context.Context, repoURL string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ferrors.WrapError(err, ferrors.CategoryAborted, "fetch aborted").
			Warning().WithTarget(repoURL).Build()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ferrors.WrapError(err, ferrors.CategoryTimeout, "fetch timed out").
			Retryable().WithTarget(repoURL).Build()
	}

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return ferrors.WrapError(err, ferrors.CategoryGitHubAccess, "repository access denied").
			UserAction().WithTarget(repoURL).Build()
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return ferrors.WrapError(err, ferrors.CategoryGitHubDirNotFound, "repository not found").
			WithTarget(repoURL).Build()
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return ferrors.WrapError(err, ferrors.CategoryGitHubDirNotFound, "branch not found").
			WithTarget(repoURL).Build()
	case errors.Is(err, syscall.ENOSPC):
		return ferrors.WrapError(err, ferrors.CategoryDiskSpace, "disk full while fetching").
			UserAction().Build()
	case errors.Is(err, syscall.ENOMEM):
		return ferrors.WrapError(err, ferrors.CategoryMemory, "out of memory while fetching").
			UserAction().Build()
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "couldn't find remote ref"):
		return ferrors.WrapError(err, ferrors.CategoryGitHubDirNotFound, "branch not found").
			WithTarget(repoURL).Build()
	case strings.Contains(l, "authentication"), strings.Contains(l, "authorization"):
		return ferrors.WrapError(err, ferrors.CategoryGitHubAccess, "repository access denied").
			UserAction().WithTarget(repoURL).Build()
	case strings.Contains(l, "repository not found"), strings.Contains(l, "repository does not exist"):
		return ferrors.WrapError(err, ferrors.CategoryGitHubDirNotFound, "repository not found").
			WithTarget(repoURL).Build()
	case strings.Contains(l, "no space left"):
		return ferrors.WrapError(err, ferrors.CategoryDiskSpace, "disk full while fetching").
			UserAction().Build()
	case strings.Contains(l, "cannot allocate memory"):
		return ferrors.WrapError(err, ferrors.CategoryMemory, "out of memory while fetching").
			UserAction().Build()
	case strings.Contains(l, "connection refused"),
		strings.Contains(l, "connection reset"),
		strings.Contains(l, "no such host"),
		strings.Contains(l, "network is unreachable"),
		strings.Contains(l, "i/o timeout"):
		return ferrors.WrapError(err, ferrors.CategoryGitHubNetwork, "remote unreachable").
			Retryable().WithTarget(repoURL).Build()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ferrors.WrapError(err, ferrors.CategoryTimeout, "fetch timed out").
				Retryable().WithTarget(repoURL).Build()
		}
		return ferrors.WrapError(err, ferrors.CategoryGitHubNetwork, "remote unreachable").
			Retryable().WithTarget(repoURL).Build()
	}

	return ferrors.WrapError(err, ferrors.CategoryInternal, "fetch failed").
		WithTarget(repoURL).Build()
}
