// Package watch reruns a build whenever source files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/experius/pwa-buildpack/internal/logging"
)

// BuildFunc runs one build. Errors are logged and watching continues.
type BuildFunc func(ctx context.Context) error

// Options configure a Watcher.
type Options struct {
	// Dirs are watched recursively.
	Dirs []string
	// Ignore lists directories whose events never trigger a build, such as
	// the output directory.
	Ignore []string
	// Extensions limits which files trigger a build. Empty means any file.
	Extensions []string
	// Debounce is how long the tree must be quiet before a rebuild.
	Debounce time.Duration
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Builds        int
	Failures      int
	LastEventPath string
	LastBuild     time.Time
	LastError     error
}

// Watcher runs a build once, then again after every burst of changes.
type Watcher struct {
	opts  Options
	build BuildFunc

	mu    sync.RWMutex
	stats Stats
}

// New validates opts and returns a watcher that has not started.
func New(opts Options, build BuildFunc) (*Watcher, error) {
	if len(opts.Dirs) == 0 {
		return nil, errors.New("watch: no directories to watch")
	}
	if build == nil {
		return nil, errors.New("watch: build function is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	for i, d := range opts.Ignore {
		opts.Ignore[i] = filepath.Clean(d)
	}
	return &Watcher{opts: opts, build: build}, nil
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Run builds, then watches until ctx is cancelled. It returns nil on
// cancellation and an error only when watching cannot start.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.opts.Dirs {
		if err := w.addTree(fw, dir); err != nil {
			return err
		}
	}
	logging.Watch("watching %d directories (debounce %s)", len(w.opts.Dirs), w.opts.Debounce)

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pump(ctx, fw, trigger) })
	g.Go(func() error { return w.rebuild(ctx, trigger) })
	return g.Wait()
}

// pump turns bursts of file events into single rebuild requests.
func (w *Watcher) pump(ctx context.Context, fw *fsnotify.Watcher, trigger chan<- struct{}) error {
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, event) {
				continue
			}
			w.mu.Lock()
			w.stats.Events++
			w.stats.LastEventPath = event.Name
			w.mu.Unlock()
			logging.WatchDebug("%s %s", event.Op, event.Name)
			timer.Reset(w.opts.Debounce)
			pending = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)

		case <-pending:
			pending = nil
			select {
			case trigger <- struct{}{}:
			default:
				// a rebuild is already queued
			}
		}
	}
}

func (w *Watcher) rebuild(ctx context.Context, trigger <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
		}

		err := w.build(ctx)
		if ctx.Err() != nil {
			return nil
		}

		w.mu.Lock()
		w.stats.Builds++
		w.stats.LastBuild = time.Now()
		w.stats.LastError = err
		if err != nil {
			w.stats.Failures++
		}
		w.mu.Unlock()

		if err != nil {
			logging.Get(logging.CategoryWatch).Error("build failed: %v", err)
			continue
		}
		logging.Watch("build finished; waiting for changes")
	}
}

// relevant filters events and starts watching directories created under a
// watched tree.
func (w *Watcher) relevant(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.ignored(event.Name) || hidden(filepath.Base(event.Name)) {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				logging.Get(logging.CategoryWatch).Warn("cannot watch %s: %v", event.Name, err)
			}
			return true
		}
	}
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(event.Name)
	for _, e := range w.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(path string) bool {
	path = filepath.Clean(path)
	for _, dir := range w.opts.Ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree watches dir and every directory below it, skipping hidden
// directories, node_modules and ignored paths.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("cannot watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (hidden(d.Name()) || d.Name() == "node_modules" || w.ignored(path)) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("cannot watch %s: %w", path, err)
		}
		logging.WatchDebug("watching %s", path)
		return nil
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
