// Package repository reads documents and resource files from the active
// content root. Every lookup is contained to the root, and the package
// derives the deterministic directory hash used as the cache generation key.
package repository

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

// RootFunc resolves the content root for the current request. In git mode
// this is the active snapshot path (captured once per request); in local
// mode a fixed directory.
type RootFunc func() (string, bool)

// FixedRoot returns a RootFunc for a directory that never moves.
func FixedRoot(dir string) RootFunc {
	return func() (string, bool) { return dir, true }
}

// Repository serves reads from whatever root the RootFunc currently
// resolves to.
type Repository struct {
	root            RootFunc
	documentsSubDir string
}

// New creates a Repository over the given root resolver. documentsSubDir is
// the root-relative directory holding ORD documents.
func New(root RootFunc, documentsSubDir string) *Repository {
	return &Repository{
		root:            root,
		documentsSubDir: strings.Trim(documentsSubDir, "/"),
	}
}

// DocumentsSubDir returns the configured documents subdirectory name.
func (r *Repository) DocumentsSubDir() string {
	return r.documentsSubDir
}

// Root resolves the current content root.
func (r *Repository) Root() (string, error) {
	dir, ok := r.root()
	if !ok {
		return "", ferrors.NotFoundError("no content available").Build()
	}
	return dir, nil
}

// ListDocuments returns the root-relative paths of all .json files under the
// documents subdirectory, sorted. Hidden files and directories are skipped.
func (r *Repository) ListDocuments() ([]string, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}

	docsDir := filepath.Join(root, filepath.FromSlash(r.documentsSubDir))
	var docs []string
	walkErr := filepath.WalkDir(docsDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == docsDir {
				return ferrors.NotFoundError("documents directory missing").
					WithTarget(r.documentsSubDir).Build()
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		docs = append(docs, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(docs)
	return docs, nil
}

// ReadDocument reads and parses one ORD document by root-relative path.
func (r *Repository) ReadDocument(rel string) (ord.Document, error) {
	data, err := r.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	doc, perr := ord.ParseDocument(data)
	if perr != nil {
		return nil, ferrors.WrapError(perr, ferrors.CategoryInternal, "unreadable ORD document").
			WithTarget(rel).Build()
	}
	return doc, nil
}

// ReadFile reads a root-relative file. Resolution tries the literal path
// first, then the variant with canonical ORD id segments escaped to their
// on-disk form. Escapes and hidden paths surface as not found.
func (r *Repository) ReadFile(rel string) ([]byte, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	clean, err := containPath(rel)
	if err != nil {
		return nil, err
	}

	data, rerr := os.ReadFile(filepath.Join(root, filepath.FromSlash(clean)))
	if rerr == nil {
		return data, nil
	}
	if !os.IsNotExist(rerr) {
		return nil, ferrors.WrapError(rerr, ferrors.CategoryInternal, "reading content file").
			WithTarget(rel).Build()
	}

	if escaped := ord.EscapePathSegments(clean); escaped != clean {
		data, eerr := os.ReadFile(filepath.Join(root, filepath.FromSlash(escaped)))
		if eerr == nil {
			return data, nil
		}
		if !os.IsNotExist(eerr) {
			return nil, ferrors.WrapError(eerr, ferrors.CategoryInternal, "reading content file").
				WithTarget(rel).Build()
		}
	}

	return nil, ferrors.NotFoundError("file not found").WithTarget(rel).Build()
}

// containPath normalizes a request path and rejects anything that could
// resolve outside the root. Dot-prefixed segments are rejected too, which
// keeps .git and similar invisible.
func containPath(rel string) (string, error) {
	if rel == "" || strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) || strings.Contains(rel, "\\") {
		return "", ferrors.NotFoundError("file not found").WithTarget(rel).Build()
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ferrors.NotFoundError("file not found").WithTarget(rel).Build()
	}
	for _, seg := range strings.Split(clean, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", ferrors.NotFoundError("file not found").WithTarget(rel).Build()
		}
	}
	return clean, nil
}
