// Package cache holds processed ORD artifacts keyed by the directory hash of
// the snapshot they were derived from. The hash acts as a generational token:
// the cache stores exactly one generation, reads with a mismatched hash are
// misses, and writes with a stale hash are silently dropped. Generations
// advance through Warm (authoritative) or through the first write into an
// empty cache (lazy population after Invalidate).
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/ordprovider/internal/metrics"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

// Pipeline adapts the document processor for warm passes. Process must be
// safe for concurrent use; BuildConfig may be nil when no configuration
// should be pre-built.
type Pipeline struct {
	DocumentsSubDir string
	Process         func(ord.Document) ord.Document
	BuildConfig     func(paths []string, docs map[string]ord.Document) ord.Configuration
}

// Cache is safe for concurrent use. Returned values are shared across
// callers and must be treated as immutable.
type Cache struct {
	mu        sync.RWMutex
	hash      string
	documents map[string]ord.Document
	config    *ord.Configuration
	docPaths  []string
	fqn       ord.FQNMap

	sf singleflight.Group

	warmMu     sync.Mutex
	warming    bool
	warmCancel context.CancelFunc
	warmDone   chan struct{}

	pipeline Pipeline
	recorder metrics.Recorder
	logger   *slog.Logger
}

func New(p Pipeline) *Cache {
	return &Cache{pipeline: p, recorder: metrics.NoopRecorder{}, logger: slog.Default()}
}

// WithRecorder swaps the metrics recorder. Not safe to call after the cache
// is in use.
func (c *Cache) WithRecorder(r metrics.Recorder) *Cache {
	if r != nil {
		c.recorder = r
	}
	return c
}

// WithLogger sets a custom logger.
func (c *Cache) WithLogger(logger *slog.Logger) *Cache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// CurrentHash returns the generation the cache currently holds.
func (c *Cache) CurrentHash() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hash, c.hash != ""
}

// Invalidate drops the generation identified by hash. A mismatched hash is a
// no-op, so a late invalidation cannot clobber a generation that already
// superseded it.
func (c *Cache) Invalidate(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hash == hash {
		c.resetLocked("")
	}
}

// Clear drops whatever generation is held.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked("")
}

func (c *Cache) resetLocked(hash string) {
	c.hash = hash
	c.documents = nil
	c.config = nil
	c.docPaths = nil
	c.fqn = nil
}

// enterLocked reports whether a write carrying hash may proceed. An empty
// cache adopts the writer's generation; a populated cache only accepts
// writes for its own.
func (c *Cache) enterLocked(hash string) bool {
	if hash == "" {
		return false
	}
	if c.hash == "" {
		c.resetLocked(hash)
		return true
	}
	return c.hash == hash
}

// adopt force-sets the current generation. Used by warm passes, which are
// driven by the update flow and therefore authoritative.
func (c *Cache) adopt(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hash != hash {
		c.resetLocked(hash)
	}
}

func (c *Cache) Document(hash, path string) (ord.Document, bool) {
	doc, ok := c.document(hash, path)
	c.recorder.IncCacheLookup(metrics.CacheKindDocument, ok)
	return doc, ok
}

func (c *Cache) document(hash, path string) (ord.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hash != hash {
		return nil, false
	}
	doc, ok := c.documents[path]
	return doc, ok
}

func (c *Cache) SetDocument(hash, path string, doc ord.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enterLocked(hash) {
		return
	}
	if c.documents == nil {
		c.documents = make(map[string]ord.Document)
	}
	c.documents[path] = doc
}

func (c *Cache) Config(hash string) (ord.Configuration, bool) {
	cfg, ok := c.configFor(hash)
	c.recorder.IncCacheLookup(metrics.CacheKindConfig, ok)
	return cfg, ok
}

func (c *Cache) configFor(hash string) (ord.Configuration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hash != hash || c.config == nil {
		return ord.Configuration{}, false
	}
	return *c.config, true
}

func (c *Cache) SetConfig(hash string, cfg ord.Configuration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enterLocked(hash) {
		return
	}
	c.config = &cfg
}

func (c *Cache) DocumentPaths(hash string) ([]string, bool) {
	paths, ok := c.documentPaths(hash)
	c.recorder.IncCacheLookup(metrics.CacheKindPaths, ok)
	return paths, ok
}

func (c *Cache) documentPaths(hash string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hash != hash || c.docPaths == nil {
		return nil, false
	}
	return c.docPaths, true
}

func (c *Cache) SetDocumentPaths(hash string, paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enterLocked(hash) {
		return
	}
	// Copy so a caller appending to its slice cannot mutate the cached one.
	c.docPaths = append([]string(nil), paths...)
}

func (c *Cache) FQNMap(hash string) (ord.FQNMap, bool) {
	m, ok := c.fqnMap(hash)
	c.recorder.IncCacheLookup(metrics.CacheKindFQN, ok)
	return m, ok
}

func (c *Cache) fqnMap(hash string) (ord.FQNMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hash != hash || c.fqn == nil {
		return nil, false
	}
	return c.fqn, true
}

func (c *Cache) SetFQNMap(hash string, m ord.FQNMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enterLocked(hash) {
		return
	}
	c.fqn = m
}

// GetOrBuildDocument returns the cached processed document or builds it,
// coalescing concurrent misses for the same (hash, path) into one build.
func (c *Cache) GetOrBuildDocument(ctx context.Context, hash, path string, build func() (ord.Document, error)) (ord.Document, error) {
	return getOrBuild(ctx, c, "doc\x00"+hash+"\x00"+path, metrics.CacheKindDocument,
		func() (ord.Document, bool) { return c.document(hash, path) },
		func(d ord.Document) { c.SetDocument(hash, path, d) },
		build)
}

// GetOrBuildConfig returns the cached ORD configuration or builds it.
func (c *Cache) GetOrBuildConfig(ctx context.Context, hash string, build func() (ord.Configuration, error)) (ord.Configuration, error) {
	return getOrBuild(ctx, c, "config\x00"+hash, metrics.CacheKindConfig,
		func() (ord.Configuration, bool) { return c.configFor(hash) },
		func(cfg ord.Configuration) { c.SetConfig(hash, cfg) },
		build)
}

// GetOrBuildDocumentPaths returns the cached document path list or builds it.
func (c *Cache) GetOrBuildDocumentPaths(ctx context.Context, hash string, build func() ([]string, error)) ([]string, error) {
	return getOrBuild(ctx, c, "paths\x00"+hash, metrics.CacheKindPaths,
		func() ([]string, bool) { return c.documentPaths(hash) },
		func(paths []string) { c.SetDocumentPaths(hash, paths) },
		build)
}

// GetOrBuildFQNMap returns the cached FQN map or builds it.
func (c *Cache) GetOrBuildFQNMap(ctx context.Context, hash string, build func() (ord.FQNMap, error)) (ord.FQNMap, error) {
	return getOrBuild(ctx, c, "fqn\x00"+hash, metrics.CacheKindFQN,
		func() (ord.FQNMap, bool) { return c.fqnMap(hash) },
		func(m ord.FQNMap) { c.SetFQNMap(hash, m) },
		build)
}

func getOrBuild[V any](ctx context.Context, c *Cache, key, kind string, lookup func() (V, bool), store func(V), build func() (V, error)) (V, error) {
	if v, ok := lookup(); ok {
		c.recorder.IncCacheLookup(kind, true)
		return v, nil
	}
	c.recorder.IncCacheLookup(kind, false)
	var zero V
	out, err, shared := c.sf.Do(key, func() (any, error) {
		if v, ok := lookup(); ok {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, err
		}
		store(v)
		return v, nil
	})
	// A follower that inherited the leader's cancellation retries with its
	// own still-live context.
	if shared && err != nil && ctx.Err() == nil && errors.Is(err, context.Canceled) {
		return getOrBuild(ctx, c, key, kind, lookup, store, build)
	}
	if err != nil {
		return zero, err
	}
	return out.(V), nil
}
