// Package fetcher pulls content from the configured git repository into a
// target directory. It wraps go-git for the clone/pull mechanics and exposes
// remote change probes used by the periodic poll.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/github"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/retry"
	"git.home.luguber.info/inful/ordprovider/internal/snapshot"
)

// ErrTreeSHAUnsupported is returned by DirectoryTreeSHA when the remote is
// not reachable through the GitHub REST API. Callers fall back to comparing
// commit SHAs.
var ErrTreeSHAUnsupported = errors.New("tree sha not supported for this remote")

// Options configure a Fetcher for one repository/branch pair.
type Options struct {
	RepoURL string
	Branch  string
	Token   string
	// Depth limits history; 0 clones the full history. Shallow single-branch
	// is the production setting, full depth is mostly useful in tests.
	Depth int
	// Retry is the backoff applied to transient clone/fetch failures. The
	// zero value disables retries; permanent errors (auth, missing repo or
	// branch) never retry regardless.
	Retry retry.Policy
}

// Fetcher performs git fetch operations for a single configured remote.
// One operation runs at a time; Abort cancels whichever is in flight.
type Fetcher struct {
	opts Options
	gh   *github.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a Fetcher. When the repository URL has a GitHub shape a REST
// client is attached for tree SHA probes; other remotes still work, minus
// DirectoryTreeSHA.
func New(opts Options) *Fetcher {
	f := &Fetcher{opts: opts}
	if gh, err := github.NewClient(opts.RepoURL, opts.Token); err == nil {
		f.gh = gh
	}
	return f
}

// GitHubClient returns the attached REST client, or nil for non-GitHub
// remotes.
func (f *Fetcher) GitHubClient() *github.Client {
	return f.gh
}

func (f *Fetcher) auth() transport.AuthMethod {
	if f.opts.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "token", Password: f.opts.Token}
}

// FetchAll clones the configured branch into targetDir, which must be empty.
// On success it returns the metadata describing what was fetched; the tree
// SHA field is left for the caller to fill in.
func (f *Fetcher) FetchAll(ctx context.Context, targetDir string, onProgress ProgressFunc) (*snapshot.Metadata, error) {
	ctx, done := f.begin(ctx)
	defer done()

	emit(onProgress, Progress{Phase: PhaseConnecting})
	start := time.Now()

	cloneOpts := &git.CloneOptions{
		URL:           f.opts.RepoURL,
		Auth:          f.auth(),
		ReferenceName: plumbing.NewBranchReferenceName(f.opts.Branch),
		SingleBranch:  true,
		Tags:          git.NoTags,
		Progress:      newSidebandWriter(onProgress),
	}
	if f.opts.Depth > 0 {
		cloneOpts.Depth = f.opts.Depth
	}

	repository, err := f.cloneWithRetry(ctx, targetDir, cloneOpts)
	if err != nil {
		return nil, err
	}

	head, err := repository.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving cloned head: %w", err)
	}

	total, err := countFiles(targetDir, onProgress)
	if err != nil {
		return nil, err
	}
	emit(onProgress, Progress{Phase: PhaseComplete, FetchedFiles: total, TotalFiles: total})

	slog.Info("content fetched",
		logfields.Repository(f.opts.RepoURL),
		logfields.Branch(f.opts.Branch),
		logfields.Commit(head.Hash().String()),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())),
		slog.Int("files", total))

	return &snapshot.Metadata{
		CommitHash: head.Hash().String(),
		FetchTime:  time.Now().UTC(),
		Branch:     f.opts.Branch,
		Repository: f.opts.RepoURL,
		TotalFiles: total,
	}, nil
}

// FetchLatestChanges updates an existing checkout in targetDir to the remote
// branch head: fetch, then hard reset. Local edits do not survive.
func (f *Fetcher) FetchLatestChanges(ctx context.Context, targetDir string) error {
	ctx, done := f.begin(ctx)
	defer done()

	repository, err := git.PlainOpen(targetDir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	refSpec := gitcfg.RefSpec("+refs/heads/" + f.opts.Branch + ":refs/remotes/origin/" + f.opts.Branch)
	fetchOpts := &git.FetchOptions{
		RemoteName: "origin",
		Auth:       f.auth(),
		Tags:       git.NoTags,
		RefSpecs:   []gitcfg.RefSpec{refSpec},
		Force:      true,
	}
	if f.opts.Depth > 0 {
		fetchOpts.Depth = f.opts.Depth
	}

	if err := f.fetchWithRetry(ctx, repository, fetchOpts); err != nil {
		return err
	}

	remoteRef, err := repository.Reference(plumbing.NewRemoteReferenceName("origin", f.opts.Branch), true)
	if err != nil {
		return fmt.Errorf("remote ref: %w", err)
	}
	wt, err := repository.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to remote head: %w", err)
	}

	slog.Info("content updated",
		logfields.Branch(f.opts.Branch),
		logfields.Commit(remoteRef.Hash().String()))
	return nil
}

// LatestCommitSHA asks the remote for the branch head without cloning.
func (f *Fetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{f.opts.RepoURL},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: f.auth()})
	if err != nil {
		return "", classifyGitError(ctx, f.opts.RepoURL, err)
	}

	want := plumbing.NewBranchReferenceName(f.opts.Branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", ferrors.GitHubDirNotFoundError("branch not found on remote").
		WithTarget(f.opts.Branch).Build()
}

// DirectoryTreeSHA returns the root tree SHA of the remote branch head via
// the GitHub REST API.
func (f *Fetcher) DirectoryTreeSHA(ctx context.Context) (string, error) {
	if f.gh == nil {
		return "", ErrTreeSHAUnsupported
	}
	info, err := f.gh.Branch(ctx, f.opts.Branch)
	if err != nil {
		return "", err
	}
	return info.TreeSHA, nil
}

// Abort cancels the in-flight fetch, if any. The aborted operation returns
// an error classified as aborted; the caller owns target dir cleanup.
func (f *Fetcher) Abort() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// begin derives a cancellable context for one operation and registers its
// cancel func for Abort. The returned done func unregisters and releases it.
func (f *Fetcher) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if f.cancel != nil {
			f.cancel = nil
		}
		f.mu.Unlock()
		cancel()
	}
}

// cloneWithRetry clones per cloneOpts, retrying transient failures per the
// configured policy. A failed clone can leave a partial checkout behind, so
// the target directory is reset between attempts.
func (f *Fetcher) cloneWithRetry(ctx context.Context, targetDir string, cloneOpts *git.CloneOptions) (*git.Repository, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying content clone",
				logfields.Repository(f.opts.RepoURL),
				slog.Int("attempt", attempt),
				logfields.Error(lastErr))
			if err := os.RemoveAll(targetDir); err != nil {
				return nil, fmt.Errorf("clearing partial clone: %w", err)
			}
			if err := os.MkdirAll(targetDir, 0o755); err != nil {
				return nil, fmt.Errorf("recreating clone target: %w", err)
			}
		}

		repository, err := git.PlainCloneContext(ctx, targetDir, false, cloneOpts)
		if err == nil {
			return repository, nil
		}
		lastErr = classifyGitError(ctx, f.opts.RepoURL, err)
		if attempt >= f.opts.Retry.MaxRetries || !isTransient(lastErr) {
			return nil, lastErr
		}
		if werr := f.opts.Retry.Wait(ctx, attempt+1); werr != nil {
			return nil, classifyGitError(ctx, f.opts.RepoURL, werr)
		}
	}
}

// fetchWithRetry fetches per fetchOpts, retrying transient failures per the
// configured policy. Already-up-to-date counts as success.
func (f *Fetcher) fetchWithRetry(ctx context.Context, repository *git.Repository, fetchOpts *git.FetchOptions) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying content fetch",
				logfields.Repository(f.opts.RepoURL),
				slog.Int("attempt", attempt),
				logfields.Error(lastErr))
		}

		err := repository.FetchContext(ctx, fetchOpts)
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		lastErr = classifyGitError(ctx, f.opts.RepoURL, err)
		if attempt >= f.opts.Retry.MaxRetries || !isTransient(lastErr) {
			return lastErr
		}
		if werr := f.opts.Retry.Wait(ctx, attempt+1); werr != nil {
			return classifyGitError(ctx, f.opts.RepoURL, werr)
		}
	}
}

// isTransient reports whether a classified fetch error may succeed on retry.
func isTransient(err error) bool {
	ce, ok := ferrors.AsClassified(err)
	return ok && ce.CanRetry()
}

func countFiles(root string, onProgress ProgressFunc) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == git.GitDirName {
				return filepath.SkipDir
			}
			return nil
		}
		count++
		if count%250 == 0 {
			rel, _ := filepath.Rel(root, path)
			emit(onProgress, Progress{Phase: PhaseCounting, FetchedFiles: count, CurrentFile: rel})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting fetched files: %w", err)
	}
	return count, nil
}
