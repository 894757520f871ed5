// Package watcher triggers content refreshes when a locally served directory
// changes on disk. Change bursts are debounced into a single callback.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

const defaultDebounce = 2 * time.Second

// Watcher monitors a content directory tree and invokes onChange after a
// quiet period. Hidden entries (dot-prefixed, .git included) never trigger.
type Watcher struct {
	root         string
	onChange     func(ctx context.Context)
	watcher      *fsnotify.Watcher
	mu           sync.Mutex
	stopChan     chan struct{}
	changeChan   chan struct{}
	debounceTime time.Duration
	logger       *slog.Logger
}

// New creates a watcher for the directory tree rooted at root.
func New(root string, onChange func(ctx context.Context)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to resolve content root: %w", err)
	}

	return &Watcher{
		root:         absRoot,
		onChange:     onChange,
		watcher:      fsw,
		stopChan:     make(chan struct{}),
		changeChan:   make(chan struct{}, 1),
		debounceTime: defaultDebounce,
		logger:       slog.Default(),
	}, nil
}

// WithDebounce overrides the quiet period.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounceTime = d
	}
	return w
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Start begins monitoring the content tree.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return fmt.Errorf("failed to watch content root %s: %w", w.root, err)
	}

	w.logger.Info("starting content watcher", logfields.Path(w.root))

	go w.watchLoop(ctx)
	go w.changeLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Info("stopping content watcher")

	close(w.stopChan)

	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("error closing file watcher", logfields.Error(err))
		}
	}

	return nil
}

// addTree registers root and every non-hidden subdirectory with fsnotify,
// which only watches single directories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if w.hidden(event.Name) {
				continue
			}

			// Newly created directories need their own watch before
			// events from inside them can be seen.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", logfields.Path(event.Name), logfields.Error(err))
					}
				}
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Debug("content change detected", logfields.Path(event.Name))
				w.trigger()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("content watcher error", logfields.Error(err))
		}
	}
}

// changeLoop collapses change bursts: each trigger resets the timer, the
// callback fires once the tree has been quiet for debounceTime.
func (w *Watcher) changeLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-w.stopChan:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-w.changeChan:
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceTime, func() {
				w.logger.Info("content changed, refreshing", logfields.Path(w.root))
				w.onChange(ctx)
			})
		}
	}
}

// trigger registers a pending change without blocking the event loop.
func (w *Watcher) trigger() {
	select {
	case w.changeChan <- struct{}{}:
	default:
	}
}

// hidden reports whether any path segment below the root is dot-prefixed.
func (w *Watcher) hidden(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	return false
}
