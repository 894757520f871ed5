// Package snapshot owns the versioned on-disk content layout: a staging
// directory for in-progress fetches, hash-named immutable snapshot
// directories, a "current" symlink promoted atomically, and the metadata
// record describing the active snapshot.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
	"git.home.luguber.info/inful/ordprovider/internal/ord"
)

const (
	stagingDirName   = "staging"
	snapshotsDirName = "snapshots"
	currentLinkName  = "current"
	metadataFileName = "metadata.json"
)

// Store manages the snapshot layout under a single data directory.
//
// Readers call CurrentPath once per request and keep the resolved path; the
// symlink replacement in Swap is a single rename, so a reader observes either
// the old or the new snapshot, never a partial state. Swap callers serialize
// through the update scheduler.
type Store struct {
	mu              sync.Mutex
	dataDir         string
	documentsSubDir string
}

// NewStore prepares the data directory: creates the layout and removes any
// staging leftovers from an interrupted fetch.
func NewStore(dataDir, documentsSubDir string) (*Store, error) {
	s := &Store{dataDir: dataDir, documentsSubDir: documentsSubDir}

	if err := os.MkdirAll(s.snapshotsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot layout: %w", err)
	}
	if err := s.CleanupStaging(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) stagingDir() string   { return filepath.Join(s.dataDir, stagingDirName) }
func (s *Store) snapshotsDir() string { return filepath.Join(s.dataDir, snapshotsDirName) }
func (s *Store) currentLink() string  { return filepath.Join(s.dataDir, currentLinkName) }
func (s *Store) metadataPath() string { return filepath.Join(s.dataDir, metadataFileName) }

// PrepareStaging returns an empty staging directory for the next fetch.
func (s *Store) PrepareStaging() (string, error) {
	dir := s.stagingDir()
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing staging directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", classifyFSError("creating staging directory", err)
	}
	return dir, nil
}

// CleanupStaging removes the staging directory and its contents.
func (s *Store) CleanupStaging() error {
	if err := os.RemoveAll(s.stagingDir()); err != nil {
		return fmt.Errorf("cleaning staging directory: %w", err)
	}
	return nil
}

// Validate checks that a fetched tree is a servable snapshot: it exists,
// contains a non-empty documents subdirectory, and at least one JSON file in
// there parses as an ORD document.
func (s *Store) Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ferrors.ValidationError("snapshot directory does not exist").
			WithTarget(path).Build()
	}

	docsDir := filepath.Join(path, s.documentsSubDir)
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		return ferrors.ValidationError("snapshot has no documents subdirectory").
			WithTarget(s.documentsSubDir).Build()
	}
	if len(entries) == 0 {
		return ferrors.ValidationError("documents subdirectory is empty").
			WithTarget(s.documentsSubDir).Build()
	}

	if !containsORDDocument(docsDir) {
		return ferrors.ValidationError("no valid ORD document found in snapshot").
			WithTarget(s.documentsSubDir).Build()
	}
	return nil
}

// containsORDDocument walks the documents tree until one .json file parses
// with a truthy openResourceDiscovery property.
func containsORDDocument(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipAll
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		if _, perr := ord.ParseDocument(data); perr == nil {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// Swap promotes a staged tree to the active snapshot. The staged directory is
// renamed to snapshots/<commitHash> and the current symlink is replaced in a
// single rename. Older snapshots are garbage collected, keeping the previous
// one for requests still holding its path.
func (s *Store) Swap(stagingPath, commitHash string) error {
	if commitHash == "" {
		return ferrors.ValidationError("cannot swap snapshot without a commit hash").Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.snapshotsDir(), commitHash)
	if _, err := os.Lstat(target); err == nil {
		// Stale leftover from an interrupted promote of the same commit.
		if err := os.RemoveAll(target); err != nil {
			return classifyFSError("removing stale snapshot", err)
		}
	}
	if err := os.Rename(stagingPath, target); err != nil {
		return classifyFSError("promoting staged snapshot", err)
	}

	previous, _ := s.currentTargetLocked()

	tmpLink := filepath.Join(s.dataDir, ".current.tmp")
	_ = os.Remove(tmpLink)
	if err := os.Symlink(filepath.Join(snapshotsDirName, commitHash), tmpLink); err != nil {
		return classifyFSError("creating snapshot link", err)
	}
	if err := os.Rename(tmpLink, s.currentLink()); err != nil {
		_ = os.Remove(tmpLink)
		return classifyFSError("activating snapshot link", err)
	}

	s.gcLocked(commitHash, previous)
	return nil
}

// gcLocked removes snapshot directories other than the active and the most
// recent previous one. Best effort only.
func (s *Store) gcLocked(active, previous string) {
	entries, err := os.ReadDir(s.snapshotsDir())
	if err != nil {
		return
	}
	keepPrev := filepath.Base(previous)
	for _, e := range entries {
		name := e.Name()
		if name == active || name == keepPrev {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.snapshotsDir(), name)); err != nil {
			slog.Warn("failed to remove superseded snapshot",
				logfields.Hash(name), logfields.Error(err))
		}
	}
}

// CurrentPath returns the resolved directory of the active snapshot. The
// second return is false when no snapshot has been promoted yet.
func (s *Store) CurrentPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTargetLocked()
}

func (s *Store) currentTargetLocked() (string, bool) {
	link, err := os.Readlink(s.currentLink())
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(link) {
		link = filepath.Join(s.dataDir, link)
	}
	if _, err := os.Stat(link); err != nil {
		return "", false
	}
	return link, true
}

// CurrentVersion returns the commit hash of the active snapshot.
func (s *Store) CurrentVersion() (string, bool) {
	path, ok := s.CurrentPath()
	if !ok {
		return "", false
	}
	return filepath.Base(path), true
}

// Metadata loads the persisted metadata record.
func (s *Store) Metadata() (*Metadata, bool) {
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		return nil, false
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("discarding unreadable snapshot metadata", logfields.Error(err))
		return nil, false
	}
	return &m, true
}

// SaveMetadata atomically persists the metadata record (temp file + rename).
func (s *Store) SaveMetadata(m *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot metadata: %w", err)
	}

	tempPath := s.metadataPath() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return classifyFSError("writing snapshot metadata", err)
	}
	if err := os.Rename(tempPath, s.metadataPath()); err != nil {
		return classifyFSError("replacing snapshot metadata", err)
	}
	return nil
}

// classifyFSError wraps filesystem failures, surfacing disk exhaustion as its
// own category so the status endpoint can report 507.
func classifyFSError(op string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return ferrors.WrapError(err, ferrors.CategoryDiskSpace, op+": disk full").Build()
	}
	return fmt.Errorf("%s: %w", op, err)
}
