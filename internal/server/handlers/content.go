// Package handlers implements the HTTP surface of the provider: the ORD
// well-known endpoint, document and resource serving under /ord/v1, the
// GitHub webhook, and the operational status endpoints.
package handlers

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/ordprovider/internal/cache"
	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
	"git.home.luguber.info/inful/ordprovider/internal/repository"
)

// Content resolves processed ORD artifacts for the request handlers. Every
// lookup is keyed by the current content hash, so a snapshot swap mid-flight
// cannot mix artifacts from two generations: each request resolves the hash
// once and reads everything under that key.
type Content struct {
	repo   *repository.Repository
	cache  *cache.Cache
	pctx   ord.ProcessingContext
	logger *slog.Logger
}

// NewContent wires a content source over the snapshot repository and the
// processed-artifact cache.
func NewContent(repo *repository.Repository, c *cache.Cache, pctx ord.ProcessingContext, logger *slog.Logger) *Content {
	if logger == nil {
		logger = slog.Default()
	}
	return &Content{repo: repo, cache: c, pctx: pctx, logger: logger}
}

// HasContent reports whether a snapshot root currently resolves.
func (c *Content) HasContent() bool {
	_, err := c.repo.Root()
	return err == nil
}

// DocumentsSubDir returns the root-relative documents directory name.
func (c *Content) DocumentsSubDir() string {
	return c.repo.DocumentsSubDir()
}

// Configuration returns the ORD configuration document. An empty
// perspectiveFilter serves the cached unfiltered configuration; filtered
// views are built per request and never cached, keeping the cache keyed by
// content hash alone.
func (c *Content) Configuration(ctx context.Context, perspectiveFilter string) (ord.Configuration, error) {
	hash, err := c.repo.DirectoryHash()
	if err != nil {
		return ord.Configuration{}, err
	}
	if perspectiveFilter != "" {
		return c.buildConfiguration(ctx, hash, perspectiveFilter)
	}
	return c.cache.GetOrBuildConfig(ctx, hash, func() (ord.Configuration, error) {
		return c.buildConfiguration(ctx, hash, "")
	})
}

func (c *Content) buildConfiguration(ctx context.Context, hash, perspectiveFilter string) (ord.Configuration, error) {
	paths, err := c.documentPaths(ctx, hash)
	if err != nil {
		return ord.Configuration{}, err
	}
	docs := make(map[string]ord.Document, len(paths))
	for _, p := range paths {
		doc, derr := c.document(ctx, hash, p)
		if derr != nil {
			// A single broken document must not take down the whole
			// configuration; it is skipped and logged.
			c.logger.Warn("Skipping unreadable document", logfields.Path(p), logfields.Error(derr))
			continue
		}
		docs[p] = doc
	}
	return ord.BuildConfig(paths, docs, c.pctx.AuthMethods, c.pctx.BaseURL, c.repo.DocumentsSubDir(), perspectiveFilter), nil
}

// Document returns the processed document at the given snapshot-relative
// path (documents subdirectory included, .json extension included).
func (c *Content) Document(ctx context.Context, rel string) (ord.Document, error) {
	hash, err := c.repo.DirectoryHash()
	if err != nil {
		return nil, err
	}
	return c.document(ctx, hash, rel)
}

func (c *Content) document(ctx context.Context, hash, rel string) (ord.Document, error) {
	return c.cache.GetOrBuildDocument(ctx, hash, rel, func() (ord.Document, error) {
		doc, err := c.repo.ReadDocument(rel)
		if err != nil {
			return nil, err
		}
		return ord.Process(doc, c.pctx), nil
	})
}

// DocumentPaths returns the sorted snapshot-relative paths of every ORD
// document in the documents subdirectory.
func (c *Content) DocumentPaths(ctx context.Context) ([]string, error) {
	hash, err := c.repo.DirectoryHash()
	if err != nil {
		return nil, err
	}
	return c.documentPaths(ctx, hash)
}

func (c *Content) documentPaths(ctx context.Context, hash string) ([]string, error) {
	return c.cache.GetOrBuildDocumentPaths(ctx, hash, c.repo.ListDocuments)
}

// FQN returns the ORD-id to definition-file index derived from every
// processed document of the current snapshot.
func (c *Content) FQN(ctx context.Context) (ord.FQNMap, error) {
	hash, err := c.repo.DirectoryHash()
	if err != nil {
		return nil, err
	}
	return c.cache.GetOrBuildFQNMap(ctx, hash, func() (ord.FQNMap, error) {
		paths, perr := c.documentPaths(ctx, hash)
		if perr != nil {
			return nil, perr
		}
		docs := make(map[string]ord.Document, len(paths))
		for _, p := range paths {
			doc, derr := c.document(ctx, hash, p)
			if derr != nil {
				c.logger.Warn("Skipping unreadable document", logfields.Path(p), logfields.Error(derr))
				continue
			}
			docs[p] = doc
		}
		return ord.BuildFQNMap(docs), nil
	})
}

// ReadFile returns the raw bytes of a snapshot file. The relative path is
// confined to the snapshot root; escaped ORD-id segments are resolved when
// the literal path does not exist.
func (c *Content) ReadFile(rel string) ([]byte, error) {
	return c.repo.ReadFile(rel)
}

// notFound builds the uniform 404 for unknown content paths.
func notFound(target string) error {
	return ferrors.NotFoundError("resource not found").WithTarget(target).Build()
}
