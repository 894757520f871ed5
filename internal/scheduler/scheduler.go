// Package scheduler drives content updates: it owns the single update
// pipeline (fetch into staging, validate, swap, re-warm the cache) and the
// triggers that feed it (webhooks with cooldown coalescing, delayed
// schedules, periodic remote polls, forced runs).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/ordprovider/internal/fetcher"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/history"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/metrics"
	"git.home.luguber.info/inful/ordprovider/internal/notify"
	"git.home.luguber.info/inful/ordprovider/internal/observability"
	"git.home.luguber.info/inful/ordprovider/internal/repository"
	"git.home.luguber.info/inful/ordprovider/internal/snapshot"
	"git.home.luguber.info/inful/ordprovider/internal/state"
)

// Update sources, recorded in state, history and notifications.
const (
	SourceWebhook   = "webhook"
	SourceManual    = "manual"
	SourceScheduled = "scheduled"
	SourcePoll      = "poll"
	SourceStartup   = "startup"
	SourceLocal     = "local"
)

// DefaultUpdateDelay is the webhook cooldown window when none is configured.
const DefaultUpdateDelay = 30 * time.Second

// DefaultPollInterval is how often the remote is polled for drift that
// webhooks missed.
const DefaultPollInterval = 2 * time.Hour

const remoteSHATimeout = 10 * time.Second

// ContentFetcher retrieves repository content. *fetcher.Fetcher implements
// it; tests substitute fakes.
type ContentFetcher interface {
	FetchAll(ctx context.Context, targetDir string, onProgress fetcher.ProgressFunc) (*snapshot.Metadata, error)
	LatestCommitSHA(ctx context.Context) (string, error)
	DirectoryTreeSHA(ctx context.Context) (string, error)
	Abort()
}

// SnapshotStore manages staged and active content directories.
// *snapshot.Store implements it.
type SnapshotStore interface {
	PrepareStaging() (string, error)
	CleanupStaging() error
	Validate(path string) error
	Swap(stagingPath, commitHash string) error
	SaveMetadata(m *snapshot.Metadata) error
	Metadata() (*snapshot.Metadata, bool)
	CurrentPath() (string, bool)
}

// ContentCache is the processed-artifact cache refreshed after each swap.
// *cache.Cache implements it.
type ContentCache interface {
	CurrentHash() (string, bool)
	Invalidate(hash string)
	Warm(ctx context.Context, hash, docsRoot string)
	CancelWarming()
	WaitForCompletion()
}

// Options configures a Scheduler. State and Cache are required. Store and
// Fetcher come as a pair and enable the fetch-driven triggers; a scheduler
// without them only reflects externally driven updates (NotifyUpdate*),
// which is how the local-directory source runs. The rest default to no-ops.
type Options struct {
	Store   SnapshotStore
	Fetcher ContentFetcher
	State   *state.Manager
	Cache   ContentCache

	History  history.Store
	Notify   *notify.Fanout
	Recorder metrics.Recorder
	Logger   *slog.Logger

	// ContentSubDir is the sub-path within a snapshot that holds the content
	// root; empty means the snapshot root itself.
	ContentSubDir string

	DocumentsSubDir string

	// UpdateDelay is the webhook cooldown window: at most one immediate run
	// starts per window, further webhooks coalesce into a single trailing run.
	UpdateDelay time.Duration

	// PollInterval is the period of the remote drift check. Zero or negative
	// disables polling.
	PollInterval time.Duration
}

// Scheduler serializes all update runs: however many triggers fire, at most
// one pipeline executes at a time, and a newer trigger aborts the fetch of
// the run it supersedes.
type Scheduler struct {
	store    SnapshotStore
	fetcher  ContentFetcher
	state    *state.Manager
	cache    ContentCache
	history  history.Store
	notifier *notify.Fanout
	recorder metrics.Recorder
	logger   *slog.Logger

	contentSubDir   string
	documentsSubDir string
	updateDelay     time.Duration
	pollInterval    time.Duration

	// runMu serializes performUpdate; running tells triggers whether an
	// abort is needed before their run can take over.
	runMu   sync.Mutex
	running atomic.Bool

	mu            sync.Mutex
	pending       *time.Timer // armed delayed run
	trailing      *time.Timer // armed trailing webhook run
	trailingArmed bool
	lastImmediate time.Time
	externalRunID string
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	poller gocron.Scheduler
	wg     sync.WaitGroup
}

// New creates a Scheduler. It does not start background work; call Start.
func New(opts Options) (*Scheduler, error) {
	if opts.State == nil || opts.Cache == nil {
		return nil, ferrors.ConfigError("scheduler requires state and cache").Build()
	}
	if (opts.Store == nil) != (opts.Fetcher == nil) {
		return nil, ferrors.ConfigError("scheduler requires store and fetcher together").Build()
	}
	if opts.UpdateDelay <= 0 {
		opts.UpdateDelay = DefaultUpdateDelay
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		store:           opts.Store,
		fetcher:         opts.Fetcher,
		state:           opts.State,
		cache:           opts.Cache,
		history:         opts.History,
		notifier:        opts.Notify,
		recorder:        opts.Recorder,
		logger:          opts.Logger,
		contentSubDir:   opts.ContentSubDir,
		documentsSubDir: opts.DocumentsSubDir,
		updateDelay:     opts.UpdateDelay,
		pollInterval:    opts.PollInterval,
		now:             time.Now,
	}, nil
}

// Start begins background operation: the lifecycle context for runs and the
// periodic remote poll, when enabled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s.startPoller()
}

// Stop disarms timers, aborts any running fetch and waits for the in-flight
// run to wind down or the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.trailing != nil {
		s.trailing.Stop()
		s.trailing = nil
		s.trailingArmed = false
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.fetcher != nil {
		s.fetcher.Abort()
	}
	s.cache.CancelWarming()

	var err error
	if s.poller != nil {
		err = s.poller.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.cache.WaitForCompletion()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// Running reports whether an update pipeline is executing right now.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// ScheduleUpdate arms a single delayed run. A later call re-arms the timer;
// only the newest schedule survives. A run already fetching is aborted so
// the scheduled run takes over as soon as it fires.
func (s *Scheduler) ScheduleUpdate(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
	}
	fireAt := s.now().Add(delay)
	s.pending = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.runAsync(SourceScheduled)
	})
	s.mu.Unlock()

	s.state.ScheduleUpdate(fireAt)
	if s.running.Load() && s.fetcher != nil {
		s.fetcher.Abort()
	}
	s.logger.Info("content update scheduled",
		slog.Duration("delay", delay),
		slog.Time("at", fireAt))
}

// ScheduleImmediateUpdate runs an update now, subject to the webhook
// cooldown: the first trigger of a window runs immediately, every further
// trigger inside the window coalesces into one trailing run at the window
// boundary. Manual triggers bypass the cooldown entirely.
func (s *Scheduler) ScheduleImmediateUpdate(isManual bool) {
	if isManual {
		s.runAsync(SourceManual)
		return
	}

	s.mu.Lock()
	now := s.now()
	if s.lastImmediate.IsZero() || now.Sub(s.lastImmediate) >= s.updateDelay {
		s.lastImmediate = now
		s.mu.Unlock()
		s.runAsync(SourceWebhook)
		return
	}
	if s.trailingArmed {
		s.mu.Unlock()
		return
	}
	s.trailingArmed = true
	fireAt := s.lastImmediate.Add(s.updateDelay)
	s.trailing = time.AfterFunc(fireAt.Sub(now), func() {
		s.mu.Lock()
		s.trailingArmed = false
		s.trailing = nil
		s.lastImmediate = s.now()
		s.mu.Unlock()
		s.runAsync(SourceWebhook)
	})
	s.mu.Unlock()

	s.state.ScheduleUpdate(fireAt)
	s.logger.Info("webhook inside cooldown window, coalescing",
		slog.Time("trailingRunAt", fireAt))
}

// ForceUpdate disarms pending timers and runs the pipeline synchronously.
// It refuses to stack on a run already in progress.
func (s *Scheduler) ForceUpdate(ctx context.Context, source string) error {
	if s.running.Load() {
		return ferrors.ValidationError("content update already in progress").Build()
	}

	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()

	if source == "" {
		source = SourceManual
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.performUpdate(ctx, source)
}

// StartupSync runs the initial synchronization for a remote source. The
// update state is marked in progress before it returns, so the readiness
// gate holds document requests from the very first accepted connection; the
// pipeline itself runs through ForceUpdate in the background.
func (s *Scheduler) StartupSync(ctx context.Context) {
	s.state.StartUpdate(SourceStartup)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.ForceUpdate(ctx, SourceStartup); err != nil {
			s.logger.Error("initial content sync failed", logfields.Error(err))
		}
	}()
}

// NotifyUpdateStarted records an externally driven update (local directory
// refresh) in the state, history and notification sinks.
func (s *Scheduler) NotifyUpdateStarted(source string) {
	s.state.StartUpdate(source)
	s.beginExternalRun(source)
	s.notify(notify.Event{Type: notify.TypeStarted, Source: source})
}

// NotifyUpdateCompleted finishes an externally driven update.
func (s *Scheduler) NotifyUpdateCompleted(commitHash string) {
	source := s.state.State().Source
	s.state.CompleteUpdate()
	s.recorder.IncUpdateOutcome(metrics.UpdateSuccess)
	s.recorder.SetContentAvailable(true)
	s.finishExternalRun(history.StatusSuccess, commitHash, "")
	s.notify(notify.Event{Type: notify.TypeCompleted, Source: source, CommitHash: commitHash})
}

// NotifyUpdateFailed fails an externally driven update.
func (s *Scheduler) NotifyUpdateFailed(err error) {
	source := s.state.State().Source
	s.state.FailUpdate(err, "")
	s.recorder.IncUpdateOutcome(metrics.UpdateFailed)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.finishExternalRun(history.StatusFailed, "", msg)
	s.notify(notify.Event{Type: notify.TypeFailed, Source: source, Error: msg})
}

// runAsync executes the pipeline in the background, waiting its turn behind
// an in-flight run. performUpdate logs its own failures.
func (s *Scheduler) runAsync(source string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runMu.Lock()
		defer s.runMu.Unlock()
		if s.ctx != nil && s.ctx.Err() != nil {
			return
		}
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		_ = s.performUpdate(ctx, source)
	}()
}

// performUpdate is the pipeline: staging, fetch, validate, swap, metadata,
// cache refresh. Callers hold runMu.
func (s *Scheduler) performUpdate(ctx context.Context, source string) error {
	if s.store == nil {
		return ferrors.ConfigError("no remote content source configured").Build()
	}

	start := s.now()
	s.running.Store(true)
	defer s.running.Store(false)

	s.state.StartUpdate(source)
	runID := s.beginHistory(source, start)
	ctx = observability.WithUpdateRunID(observability.WithSource(ctx, source), runID)
	s.notify(notify.Event{Type: notify.TypeStarted, Source: source})
	observability.InfoContext(ctx, "content update started")

	meta, err := s.fetchAndSwap(ctx)
	if err != nil {
		return s.failRun(ctx, runID, source, start, err)
	}

	s.refreshCache()

	elapsed := s.now().Sub(start)
	s.state.CompleteUpdate()
	s.recorder.IncUpdateOutcome(metrics.UpdateSuccess)
	s.recorder.ObserveUpdateDuration(metrics.UpdateSuccess, elapsed)
	s.recorder.SetContentAvailable(true)
	s.finishHistory(runID, history.StatusSuccess, meta.CommitHash, "")
	s.notify(notify.Event{Type: notify.TypeCompleted, Source: source, CommitHash: meta.CommitHash})
	observability.InfoContext(ctx, "content update completed",
		logfields.Commit(meta.CommitHash),
		slog.Int("files", meta.TotalFiles),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	return nil
}

func (s *Scheduler) fetchAndSwap(ctx context.Context) (*snapshot.Metadata, error) {
	stagingPath, err := s.store.PrepareStaging()
	if err != nil {
		return nil, err
	}

	meta, err := s.fetcher.FetchAll(ctx, stagingPath, s.progressFunc())
	if err != nil {
		return nil, err
	}

	if err := s.store.Validate(stagingPath); err != nil {
		return nil, err
	}
	if err := s.store.Swap(stagingPath, meta.CommitHash); err != nil {
		return nil, err
	}
	if err := s.store.SaveMetadata(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// refreshCache drops the generation derived from the replaced snapshot and
// warms the new one in the background.
func (s *Scheduler) refreshCache() {
	root, ok := s.store.CurrentPath()
	if !ok {
		s.logger.Warn("no current snapshot after swap, skipping cache warm")
		return
	}
	if s.contentSubDir != "" {
		root = filepath.Join(root, s.contentSubDir)
	}

	repo := repository.New(repository.FixedRoot(root), s.documentsSubDir)
	hash, err := repo.DirectoryHash()
	if err != nil {
		s.logger.Warn("content hash failed after swap, clearing cache", logfields.Error(err))
		if old, ok := s.cache.CurrentHash(); ok {
			s.cache.Invalidate(old)
		}
		return
	}

	if old, ok := s.cache.CurrentHash(); ok && old != hash {
		s.cache.Invalidate(old)
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.cache.Warm(ctx, hash, root)
}

func (s *Scheduler) failRun(ctx context.Context, runID, source string, start time.Time, err error) error {
	if cleanupErr := s.store.CleanupStaging(); cleanupErr != nil {
		observability.WarnContext(ctx, "staging cleanup failed", logfields.Error(cleanupErr))
	}

	elapsed := s.now().Sub(start)

	if isAborted(err) {
		// A newer trigger superseded this run; its pipeline owns the state
		// from here, so the abort must not surface as a failure.
		s.recorder.IncUpdateOutcome(metrics.UpdateAborted)
		s.recorder.ObserveUpdateDuration(metrics.UpdateAborted, elapsed)
		s.finishHistory(runID, history.StatusAborted, "", err.Error())
		observability.InfoContext(ctx, "content update aborted")
		return nil
	}

	failedSHA := s.remoteSHA()
	s.state.FailUpdate(err, failedSHA)
	s.recorder.IncUpdateOutcome(metrics.UpdateFailed)
	s.recorder.ObserveUpdateDuration(metrics.UpdateFailed, elapsed)
	_, hasContent := s.store.CurrentPath()
	s.recorder.SetContentAvailable(hasContent)
	s.finishHistory(runID, history.StatusFailed, failedSHA, err.Error())
	s.notify(notify.Event{Type: notify.TypeFailed, Source: source, CommitHash: failedSHA, Error: err.Error()})
	observability.ErrorContext(ctx, "content update failed", logfields.Error(err))
	return err
}

// remoteSHA captures the commit the failed run was aiming at, best effort.
func (s *Scheduler) remoteSHA() string {
	if s.fetcher == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteSHATimeout)
	defer cancel()
	sha, err := s.fetcher.LatestCommitSHA(ctx)
	if err != nil {
		return ""
	}
	return sha
}

func (s *Scheduler) progressFunc() fetcher.ProgressFunc {
	logp := fetcher.LogProgress(5 * time.Second)
	return func(p fetcher.Progress) {
		logp(p)
		s.state.SetProgress(progressFraction(p), string(p.Phase))
	}
}

// progressFraction maps fetch progress onto a 0..1 scale: object transfer
// covers the first 80%, worktree counting the rest.
func progressFraction(p fetcher.Progress) float64 {
	switch p.Phase {
	case fetcher.PhaseComplete:
		return 1.0
	case fetcher.PhaseCounting:
		if p.TotalFiles > 0 {
			return 0.8 + 0.2*float64(p.FetchedFiles)/float64(p.TotalFiles)
		}
		return 0.9
	default:
		if p.Total > 0 {
			f := 0.8 * float64(p.Loaded) / float64(p.Total)
			if f > 0.8 {
				f = 0.8
			}
			return f
		}
		return 0
	}
}

func isAborted(err error) bool {
	return ferrors.HasCategory(err, ferrors.CategoryAborted) ||
		errors.Is(err, context.Canceled)
}

func (s *Scheduler) notify(evt notify.Event) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.notifier.Notify(ctx, evt)
}

func (s *Scheduler) beginHistory(source string, start time.Time) string {
	if s.history == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := s.history.Begin(ctx, source, start)
	if err != nil {
		s.logger.Warn("failed to record update run", logfields.Error(err))
		return ""
	}
	return id
}

func (s *Scheduler) finishHistory(id, status, commitHash, errMsg string) {
	if s.history == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Finish(ctx, id, status, commitHash, errMsg, s.now()); err != nil {
		s.logger.Warn("failed to finish update run record",
			logfields.UpdateRunID(id), logfields.Error(err))
	}
}

// External runs (watcher-driven) keep their history id on the scheduler so
// the completion call can close the row begun at start.
func (s *Scheduler) beginExternalRun(source string) {
	id := s.beginHistory(source, s.now())
	s.mu.Lock()
	s.externalRunID = id
	s.mu.Unlock()
}

func (s *Scheduler) finishExternalRun(status, commitHash, errMsg string) {
	s.mu.Lock()
	id := s.externalRunID
	s.externalRunID = ""
	s.mu.Unlock()
	s.finishHistory(id, status, commitHash, errMsg)
}
