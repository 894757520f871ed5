package cache

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/repository"
)

// Warm starts a background pass that processes every document under docsRoot
// and populates the generation identified by hash. It adopts the generation
// immediately and returns without waiting. A pass already running is
// canceled; the newest warm wins. Cancellation is cooperative and checked
// between documents. Individual document failures are logged and skipped;
// those documents fall back to on-demand processing.
func (c *Cache) Warm(ctx context.Context, hash, docsRoot string) {
	c.adopt(hash)

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.warmMu.Lock()
	if c.warmCancel != nil {
		c.warmCancel()
	}
	c.warming = true
	c.warmCancel = cancel
	c.warmDone = done
	c.warmMu.Unlock()

	go func() {
		defer func() {
			c.warmMu.Lock()
			if c.warmDone == done {
				c.warming = false
				c.warmCancel = nil
				c.warmDone = nil
			}
			c.warmMu.Unlock()
			cancel()
			close(done)
		}()
		c.runWarm(wctx, hash, docsRoot)
	}()
}

// IsWarming reports whether a warm pass is currently running.
func (c *Cache) IsWarming() bool {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()
	return c.warming
}

// WaitForCompletion blocks until the running warm pass finishes. Returns
// immediately when none is running.
func (c *Cache) WaitForCompletion() {
	c.warmMu.Lock()
	done := c.warmDone
	c.warmMu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// CancelWarming requests cancellation of the running warm pass without
// waiting for it to stop. Combine with WaitForCompletion for a join.
func (c *Cache) CancelWarming() {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()
	if c.warmCancel != nil {
		c.warmCancel()
	}
}

func (c *Cache) runWarm(ctx context.Context, hash, docsRoot string) {
	start := time.Now()
	repo := repository.New(repository.FixedRoot(docsRoot), c.pipeline.DocumentsSubDir)

	paths, err := repo.ListDocuments()
	if err != nil {
		c.logger.Warn("cache warm aborted", logfields.Hash(hash), logfields.Error(err))
		return
	}

	process := c.pipeline.Process
	if process == nil {
		process = func(d ord.Document) ord.Document { return d }
	}

	processed := make(map[string]ord.Document, len(paths))
	for _, p := range paths {
		if ctx.Err() != nil {
			c.logger.Info("cache warm canceled", logfields.Hash(hash), logfields.Path(p))
			return
		}
		doc, err := repo.ReadDocument(p)
		if err != nil {
			c.logger.Warn("skipping document during cache warm", logfields.Path(p), logfields.Error(err))
			continue
		}
		pd := process(doc)
		c.SetDocument(hash, p, pd)
		processed[p] = pd
	}

	if ctx.Err() != nil {
		c.logger.Info("cache warm canceled", logfields.Hash(hash))
		return
	}

	c.SetDocumentPaths(hash, paths)
	c.SetFQNMap(hash, ord.BuildFQNMap(processed))
	if c.pipeline.BuildConfig != nil {
		c.SetConfig(hash, c.pipeline.BuildConfig(paths, processed))
	}

	elapsed := time.Since(start)
	c.recorder.ObserveWarmDuration(elapsed)
	c.logger.Info("cache warmed",
		logfields.Hash(hash),
		slog.Int("documents", len(processed)),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
}
