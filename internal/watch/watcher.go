// Package watch re-runs operations when schema inputs change. Change bursts
// (editor save storms, git checkouts) collapse into a single trigger through
// a debounce window.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/schemakit/schemactl/internal/fingerprint"
)

// Options configures a Watcher.
type Options struct {
	// Dir is the root of the watched tree
	Dir string

	// Extensions filters events to matching files (with leading dot)
	Extensions []string

	// Debounce collapses change bursts into one trigger
	Debounce time.Duration

	// OnChange runs after each quiet debounce window with the sorted
	// paths that changed during the burst
	OnChange func(ctx context.Context, paths []string)

	Logger *slog.Logger
}

// Watcher debounces file events under a schema tree. fsnotify does not
// recurse, so every subdirectory joins the watch, including ones created
// while watching.
type Watcher struct {
	dir      string
	exts     map[string]bool
	debounce time.Duration
	onChange func(ctx context.Context, paths []string)
	log      *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
}

// New creates a Watcher. The caller runs it with Run.
func New(opts Options) (*Watcher, error) {
	if opts.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}

	return &Watcher{
		dir:      abs,
		exts:     exts,
		debounce: debounce,
		onChange: opts.OnChange,
		log:      log,
		fsw:      fsw,
		pending:  make(map[string]bool),
	}, nil
}

// Run watches until the context is cancelled, then returns nil. Watcher
// breakdowns (not file events) come back as errors.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addTree(w.dir); err != nil {
		return err
	}

	w.log.Info("watching for schema changes", "dir", w.dir, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()

			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			w.log.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// Chmod-only events carry no content change
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fingerprint.IgnoredDir(filepath.Base(event.Name)) {
				return
			}

			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}

			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	w.log.Debug("schema change detected", "file", event.Name, "op", event.Op.String())
	w.schedule(ctx, event.Name)
}

func (w *Watcher) matches(path string) bool {
	if len(w.exts) == 0 {
		return true
	}

	return w.exts[strings.ToLower(filepath.Ext(path))]
}

// schedule records the change and restarts the debounce timer; the trigger
// only fires after a full quiet window.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = true

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.fire(ctx)
	})
}

func (w *Watcher) fire(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if len(paths) == 0 || ctx.Err() != nil {
		return
	}

	sort.Strings(paths)
	w.onChange(ctx, paths)
}

// addTree joins dir and every non-ignored subdirectory to the watch.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if p != root && fingerprint.IgnoredDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}

		return nil
	})
}
