package daemon

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/ordprovider/internal/cache"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/repository"
	"git.home.luguber.info/inful/ordprovider/internal/scheduler"
)

// localSource drives content refreshes for the local-directory mode. There
// is no fetch pipeline: a refresh recomputes the directory hash, rotates the
// cache generation and re-warms it, with the scheduler reflecting the run in
// state, history and notifications. It also serves as the webhook trigger,
// so a manual trigger forces a re-scan.
type localSource struct {
	repo   *repository.Repository
	cache  *cache.Cache
	sched  *scheduler.Scheduler
	logger *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

func newLocalSource(repo *repository.Repository, c *cache.Cache, sched *scheduler.Scheduler, logger *slog.Logger) *localSource {
	return &localSource{
		repo:    repo,
		cache:   c,
		sched:   sched,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// bind attaches the daemon's run context, which bounds warm passes started
// by triggers that carry no context of their own.
func (l *localSource) bind(ctx context.Context) {
	l.mu.Lock()
	l.baseCtx = ctx
	l.mu.Unlock()
}

// onChange is the watcher callback: a debounced change burst triggers one
// refresh.
func (l *localSource) onChange(ctx context.Context) {
	l.refresh(ctx, scheduler.SourceLocal)
}

// ScheduleImmediateUpdate implements the webhook trigger for the local
// source; there is no cooldown because a refresh is a hash recompute, not a
// clone.
func (l *localSource) ScheduleImmediateUpdate(isManual bool) {
	source := scheduler.SourceWebhook
	if isManual {
		source = scheduler.SourceManual
	}
	l.mu.Lock()
	ctx := l.baseCtx
	l.mu.Unlock()
	go l.refresh(ctx, source)
}

// refresh is the local update pipeline. Refreshes serialize; the cache
// warmer itself handles superseding passes.
func (l *localSource) refresh(ctx context.Context, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sched.NotifyUpdateStarted(source)

	root, err := l.repo.Root()
	if err != nil {
		l.sched.NotifyUpdateFailed(err)
		l.logger.Error("local content root unavailable", logfields.Error(err))
		return
	}
	hash, err := l.repo.DirectoryHash()
	if err != nil {
		l.sched.NotifyUpdateFailed(err)
		l.logger.Error("local content hash failed", logfields.Error(err))
		return
	}

	if old, ok := l.cache.CurrentHash(); ok && old != hash {
		l.cache.Invalidate(old)
	}
	l.cache.Warm(ctx, hash, root)

	l.sched.NotifyUpdateCompleted("")
	l.logger.Info("local content refreshed",
		logfields.Source(source),
		logfields.Hash(hash))
}
