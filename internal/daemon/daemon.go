// Package daemon wires the provider's components together and owns their
// lifecycle: construction, startup order, the initial content sync, and
// graceful shutdown.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/ordprovider/internal/auth"
	"git.home.luguber.info/inful/ordprovider/internal/auth/providers"
	"git.home.luguber.info/inful/ordprovider/internal/cache"
	"git.home.luguber.info/inful/ordprovider/internal/config"
	"git.home.luguber.info/inful/ordprovider/internal/events"
	"git.home.luguber.info/inful/ordprovider/internal/fetcher"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/github"
	"git.home.luguber.info/inful/ordprovider/internal/history"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/metrics"
	"git.home.luguber.info/inful/ordprovider/internal/notify"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/repository"
	"git.home.luguber.info/inful/ordprovider/internal/retry"
	"git.home.luguber.info/inful/ordprovider/internal/scheduler"
	"git.home.luguber.info/inful/ordprovider/internal/server/handlers"
	"git.home.luguber.info/inful/ordprovider/internal/server/httpserver"
	"git.home.luguber.info/inful/ordprovider/internal/snapshot"
	"git.home.luguber.info/inful/ordprovider/internal/state"
	"git.home.luguber.info/inful/ordprovider/internal/version"
	"git.home.luguber.info/inful/ordprovider/internal/watcher"
)

const historyFileName = "updates.db"

// natsSubjectPrefix is the subject root for published update events;
// the event type is appended as the final token.
const natsSubjectPrefix = "ord.updates"

// Daemon is the assembled provider. New wires the components, Start brings
// them up in dependency order, Stop tears them down in reverse.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *events.Bus
	state    *state.Manager
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
	history  *history.SQLiteStore
	notifier *notify.Fanout
	cache    *cache.Cache
	repo     *repository.Repository

	// Remote source only.
	store   *snapshot.Store
	fetcher *fetcher.Fetcher

	// Local source only.
	local *localSource
	watch *watcher.Watcher

	scheduler *scheduler.Scheduler
	server    *httpserver.Server

	startTime time.Time
	wg        sync.WaitGroup
}

// New builds the daemon from a resolved configuration. It creates every
// component but starts nothing; call Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("daemon requires a configuration").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{cfg: cfg, logger: logger}

	d.bus = events.NewBus()
	d.state = state.NewManager(d.bus)
	d.registry = prom.NewRegistry()
	d.recorder = metrics.NewPrometheusRecorder(d.registry)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "cannot create data directory").
			WithTarget(cfg.DataDir).Fatal().Build()
	}
	hist, err := history.NewSQLiteStore(filepath.Join(cfg.DataDir, historyFileName))
	if err != nil {
		return nil, err
	}
	d.history = hist

	if cfg.NATSURL != "" {
		sink, err := notify.NewNATSSink(cfg.NATSURL, natsSubjectPrefix)
		if err != nil {
			return nil, err
		}
		d.notifier = notify.NewFanout(sink).WithLogger(logger)
	}

	pctx := ord.ProcessingContext{
		BaseURL:         cfg.BaseURL,
		AuthMethods:     cfg.AuthMethods,
		DocumentsSubDir: cfg.DocumentsSubdirectory,
	}
	if cfg.SourceType == config.SourceGitHub {
		pctx.Git = &ord.GitContext{
			Repository: cfg.GitHub.Repository,
			Branch:     cfg.GitHub.Branch,
		}
	}

	d.cache = cache.New(cache.Pipeline{
		DocumentsSubDir: cfg.DocumentsSubdirectory,
		Process: func(doc ord.Document) ord.Document {
			return ord.Process(doc, pctx)
		},
		BuildConfig: func(paths []string, docs map[string]ord.Document) ord.Configuration {
			return ord.BuildConfig(paths, docs, pctx.AuthMethods, pctx.BaseURL, cfg.DocumentsSubdirectory, "")
		},
	}).WithRecorder(d.recorder).WithLogger(logger)

	if err := d.buildSource(); err != nil {
		return nil, err
	}

	authorizer, err := d.buildAuthorizer()
	if err != nil {
		return nil, err
	}

	router, err := d.buildRouter(pctx, authorizer)
	if err != nil {
		return nil, err
	}

	d.server = httpserver.New(httpserver.Options{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Handler: router,
		Logger:  logger,
	})

	return d, nil
}

// buildSource wires the content source: snapshot store, fetcher and
// scheduler for a remote repository, or the fixed directory, a watcher and a
// notify-only scheduler for a local one.
func (d *Daemon) buildSource() error {
	cfg := d.cfg

	if cfg.SourceType == config.SourceLocal {
		d.repo = repository.New(repository.FixedRoot(cfg.Directory), cfg.DocumentsSubdirectory)

		sched, err := scheduler.New(scheduler.Options{
			State:    d.state,
			Cache:    d.cache,
			History:  d.history,
			Notify:   d.notifier,
			Recorder: d.recorder,
			Logger:   d.logger,
		})
		if err != nil {
			return err
		}
		d.scheduler = sched
		d.local = newLocalSource(d.repo, d.cache, sched, d.logger)

		w, err := watcher.New(cfg.Directory, d.local.onChange)
		if err != nil {
			return err
		}
		d.watch = w.WithLogger(d.logger)
		return nil
	}

	store, err := snapshot.NewStore(cfg.DataDir, filepath.Join(cfg.Directory, cfg.DocumentsSubdirectory))
	if err != nil {
		return err
	}
	d.store = store

	cloneURL := github.CloneURL(cfg.GitHub.APIURL, cfg.GitHub.Repository)
	d.fetcher = fetcher.New(fetcher.Options{
		RepoURL: cloneURL,
		Branch:  cfg.GitHub.Branch,
		Token:   cfg.GitHub.Token,
		Depth:   1,
		Retry:   retry.DefaultPolicy(),
	})
	if gh := d.fetcher.GitHubClient(); gh != nil {
		gh.WithAPIURL(cfg.GitHub.APIURL)
	}

	// Snapshot roots serve from the configured sub-path, so the post-swap
	// cache refresh must hash the same root the handlers resolve.
	d.repo = repository.New(d.snapshotRoot, cfg.DocumentsSubdirectory)

	sched, err := scheduler.New(scheduler.Options{
		Store:           d.store,
		Fetcher:         d.fetcher,
		State:           d.state,
		Cache:           d.cache,
		History:         d.history,
		Notify:          d.notifier,
		Recorder:        d.recorder,
		Logger:          d.logger,
		ContentSubDir:   cfg.Directory,
		DocumentsSubDir: cfg.DocumentsSubdirectory,
		UpdateDelay:     cfg.UpdateDelay,
		PollInterval:    scheduler.DefaultPollInterval,
	})
	if err != nil {
		return err
	}
	d.scheduler = sched
	return nil
}

// snapshotRoot resolves the active content root: the current snapshot plus
// the configured repository sub-path.
func (d *Daemon) snapshotRoot() (string, bool) {
	root, ok := d.store.CurrentPath()
	if !ok {
		return "", false
	}
	if d.cfg.Directory != "" {
		root = filepath.Join(root, d.cfg.Directory)
	}
	return root, true
}

// buildAuthorizer assembles the auth manager, loading and merging cf-mtls
// trust material from the configured file and endpoints.
func (d *Daemon) buildAuthorizer() (*auth.Manager, error) {
	cfg := d.cfg

	trust := providers.TrustConfig{}
	if cfg.HasAuthMethod(ord.AuthMethodCFMTLS) {
		if cfg.MTLSTrustFile != "" {
			fromFile, err := providers.LoadTrustFile(cfg.MTLSTrustFile)
			if err != nil {
				return nil, err
			}
			trust = trust.Merge(fromFile)
		}
		for _, u := range cfg.MTLSTrustURLs {
			fetched, err := providers.FetchTrust(context.Background(), nil, u)
			if err != nil {
				return nil, err
			}
			trust = trust.Merge(fetched)
		}
		if trust.IsEmpty() {
			return nil, ferrors.ConfigError("mTLS trust configuration is empty").
				WithDetail("hint", "the trust file and endpoints yielded no certificate pairs or root CAs").
				Fatal().Build()
		}
	}

	return auth.NewManager(auth.Options{
		Methods:    cfg.AuthMethods,
		BasicUsers: cfg.BasicUsers,
		Trust:      trust,
		Logger:     d.logger,
	})
}

// buildRouter assembles the handlers over the shared content source and the
// route table around them.
func (d *Daemon) buildRouter(pctx ord.ProcessingContext, authorizer *auth.Manager) (http.Handler, error) {
	cfg := d.cfg
	ver := version.NewService(0).Current()

	content := handlers.NewContent(d.repo, d.cache, pctx, d.logger)

	var trigger handlers.UpdateTrigger = d.scheduler
	if d.local != nil {
		trigger = d.local
	}
	webhook := handlers.NewWebhookHandler(handlers.WebhookOptions{
		Trigger:    trigger,
		Secret:     cfg.WebhookSecret,
		Repository: cfg.GitHub.Repository,
		Branch:     cfg.GitHub.Branch,
		Logger:     d.logger,
	})

	var meta handlers.MetadataSource
	if d.store != nil {
		meta = d.store
	}

	dashboard := handlers.NewDashboardHandler(handlers.DashboardOptions{
		State:    d.state,
		Metadata: meta,
		Runs:     d.history,
		Content:  content,
		Version:  ver,
		Mode:     string(cfg.SourceType),
		BaseURL:  cfg.BaseURL,
	})

	opts := handlers.RouterOptions{
		Logger:           d.logger,
		Version:          ver,
		AllowedOrigins:   cfg.AllowedOrigins,
		Recorder:         d.recorder,
		Authorizer:       authorizer,
		ReadyTimeout:     state.DefaultReadyTimeout,
		DashboardEnabled: cfg.DashboardEnabled,
		WellKnown:        handlers.NewWellKnownHandler(content),
		Documents:        handlers.NewDocumentsHandler(content),
		Webhook:          webhook,
		Status:           handlers.NewStatusHandler(d.state, meta, ver),
		Updates:          handlers.NewUpdatesHandler(d.history),
		Health:           handlers.NewHealthHandler(ver, content.HasContent),
		Dashboard:        dashboard,
		Metrics:          metrics.HTTPHandler(d.registry),
	}
	// The startup gate only makes sense for a remote source; a local
	// directory is readable from the first request.
	if cfg.SourceType == config.SourceGitHub {
		opts.Readiness = d.state
	}

	return handlers.NewRouter(opts), nil
}

// Start brings the daemon up: scheduler first, then the content source's
// initial sync, then the HTTP listener. For a remote source without an
// existing snapshot the update state is already in progress when the
// listener opens, so the readiness gate holds document requests until the
// first snapshot lands.
func (d *Daemon) Start(ctx context.Context) error {
	d.startTime = time.Now()

	if err := d.scheduler.Start(ctx); err != nil {
		return err
	}

	switch d.cfg.SourceType {
	case config.SourceLocal:
		d.local.bind(ctx)
		d.local.refresh(ctx, scheduler.SourceStartup)
		if err := d.watch.Start(ctx); err != nil {
			d.logger.Error("local change watcher failed to start", logfields.Error(err))
		}
	case config.SourceGitHub:
		if err := d.store.CleanupStaging(); err != nil {
			d.logger.Warn("stale staging cleanup failed", logfields.Error(err))
		}
		if _, ok := d.store.CurrentPath(); ok {
			d.adoptExistingSnapshot(ctx)
			d.refreshInBackground(ctx)
		} else {
			d.scheduler.StartupSync(ctx)
		}
	}

	if err := d.server.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := d.scheduler.Stop(stopCtx); serr != nil {
			d.logger.Warn("scheduler stop after failed start", logfields.Error(serr))
		}
		return err
	}

	d.logger.Info("ord provider started",
		slog.String("addr", d.server.Addr()),
		slog.String("source", string(d.cfg.SourceType)),
		slog.String("baseUrl", d.cfg.BaseURL))
	return nil
}

// Err reports a serve loop failure after a successful Start. The channel
// closes on clean shutdown.
func (d *Daemon) Err() <-chan error {
	return d.server.Err()
}

// Addr returns the bound listen address once Start succeeded.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// StartTime returns when Start was called.
func (d *Daemon) StartTime() time.Time {
	return d.startTime
}

// adoptExistingSnapshot serves the snapshot found on disk immediately: the
// cache adopts its hash and warms in the background while the startup
// refresh runs.
func (d *Daemon) adoptExistingSnapshot(ctx context.Context) {
	root, err := d.repo.Root()
	if err != nil {
		d.logger.Warn("existing snapshot is not servable", logfields.Error(err))
		return
	}
	hash, err := d.repo.DirectoryHash()
	if err != nil {
		d.logger.Warn("existing snapshot hash failed", logfields.Error(err))
		return
	}
	d.cache.Warm(ctx, hash, root)
	d.recorder.SetContentAvailable(true)
	d.logger.Info("serving existing snapshot while refreshing", logfields.Hash(hash))
}

// refreshInBackground runs the startup sync without closing the readiness
// gate first; the existing snapshot keeps serving meanwhile.
func (d *Daemon) refreshInBackground(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.scheduler.ForceUpdate(ctx, scheduler.SourceStartup); err != nil {
			d.logger.Error("startup content refresh failed", logfields.Error(err))
		}
	}()
}

// Stop shuts the daemon down in reverse startup order. Component failures
// are logged and do not abort the remaining teardown; the first error is
// returned.
func (d *Daemon) Stop(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if d.watch != nil {
		if err := d.watch.Stop(ctx); err != nil {
			d.logger.Error("failed to stop local change watcher", logfields.Error(err))
			keep(err)
		}
	}

	if err := d.scheduler.Stop(ctx); err != nil {
		d.logger.Error("failed to stop scheduler", logfields.Error(err))
		keep(err)
	}

	if err := d.server.Stop(ctx); err != nil {
		d.logger.Error("failed to stop http server", logfields.Error(err))
		keep(err)
	}

	d.wg.Wait()

	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			d.logger.Error("failed to close notification sinks", logfields.Error(err))
			keep(err)
		}
	}

	if err := d.history.Close(); err != nil {
		d.logger.Error("failed to close update history", logfields.Error(err))
		keep(err)
	}

	d.bus.Close()

	d.logger.Info("ord provider stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return first
}
