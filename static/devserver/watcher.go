package devserver

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
)

const matchCacheMaxSize = 10000

// DefaultIgnored are skipped directories, relative to the watch root.
var DefaultIgnored = []string{"**/.git", "**/node_modules"}

// Watcher watches a directory tree and reports changed files that match its
// include patterns.
type Watcher struct {
	log     *slog.Logger
	fsWatch *fsnotify.Watcher
	root    string

	include []string
	ignored []string

	watchedDirs sync.Map
	matchCache  *lru.Cache[string, bool]
}

// NewWatcher watches root. Patterns are doublestar globs relative to root;
// absolute patterns are used as-is.
func NewWatcher(root string, include, ignored []string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, bool](matchCacheMaxSize)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		log:        log,
		fsWatch:    fsWatch,
		root:       filepath.ToSlash(abs),
		matchCache: cache,
	}
	for _, p := range include {
		w.include = append(w.include, w.pattern(p))
	}
	for _, p := range append(slices.Clone(DefaultIgnored), ignored...) {
		p = w.pattern(p)
		w.ignored = append(w.ignored, p, p+"/**")
	}
	if err := w.AddDir(abs); err != nil {
		fsWatch.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) pattern(p string) string {
	if filepath.IsAbs(p) {
		return w.norm(p)
	}
	return w.root + "/" + filepath.ToSlash(p)
}

func (w *Watcher) norm(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(abs)
}

func (w *Watcher) Close() error {
	return w.fsWatch.Close()
}

// AddDir watches root and every directory below it that is not ignored.
func (w *Watcher) AddDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		np := w.norm(path)
		if w.matchAny(w.ignored, np) {
			return filepath.SkipDir
		}
		if _, exists := w.watchedDirs.Load(np); exists {
			return nil
		}
		if err := w.fsWatch.Add(path); err != nil {
			return err
		}
		w.watchedDirs.Store(np, true)
		return nil
	})
}

// RemoveStale drops watches for directories that no longer exist.
func (w *Watcher) RemoveStale() {
	w.watchedDirs.Range(func(key, _ any) bool {
		path := key.(string)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			w.fsWatch.Remove(path)
			w.watchedDirs.Delete(path)
		}
		return true
	})
}

// Matches reports whether path is included and not ignored.
func (w *Watcher) Matches(path string) bool {
	np := w.norm(path)
	return !w.matchAny(w.ignored, np) && w.matchAny(w.include, np)
}

func (w *Watcher) matchAny(patterns []string, np string) bool {
	for _, p := range patterns {
		if w.match(p, np) {
			return true
		}
	}
	return false
}

func (w *Watcher) match(pattern, path string) bool {
	key := pattern + "\x00" + path
	if cached, ok := w.matchCache.Get(key); ok {
		return cached
	}
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		w.log.Error("Pattern match error", "pattern", pattern, "path", path, "error", err)
		return false
	}
	w.matchCache.Add(key, matched)
	return matched
}

// Run delivers batches of relevant events to onChange until ctx is done.
// Batches are debounced by delay and never overlap.
func (w *Watcher) Run(ctx context.Context, delay time.Duration, onChange func([]fsnotify.Event)) {
	debouncer := NewDebouncer(delay, func(events []fsnotify.Event) {
		if relevant := w.relevant(events); len(relevant) > 0 {
			onChange(relevant)
		}
		w.RemoveStale()
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsWatch.Events:
			if !ok {
				return
			}
			debouncer.Add(evt)
		case err, ok := <-w.fsWatch.Errors:
			if !ok {
				return
			}
			w.log.Error("Watcher error", "error", err)
		}
	}
}

// relevant dedupes events by path, starts watching new directories and keeps
// the events of matching files.
func (w *Watcher) relevant(events []fsnotify.Event) []fsnotify.Event {
	seen := make(map[string]bool, len(events))
	var out []fsnotify.Event
	for i := len(events) - 1; i >= 0; i-- {
		evt := events[i]
		if seen[evt.Name] {
			continue
		}
		seen[evt.Name] = true

		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename) {
				if err := w.AddDir(evt.Name); err != nil {
					w.log.Warn("Could not watch directory", "path", evt.Name, "error", err)
				}
			}
			continue
		}
		if isNonEmptyChmodOnly(evt) || !w.Matches(evt.Name) {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Debouncer batches rapid file events and ensures callbacks don't overlap.
type Debouncer struct {
	duration time.Duration
	callback func([]fsnotify.Event)
	mu       sync.Mutex
	timer    *time.Timer
	events   []fsnotify.Event
	stopped  bool
	inFlight bool
	pending  []fsnotify.Event
}

func NewDebouncer(d time.Duration, cb func([]fsnotify.Event)) *Debouncer {
	return &Debouncer{duration: d, callback: cb}
}

func (d *Debouncer) Add(evt fsnotify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.events = append(d.events, evt)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

// flush runs the callback, or queues the events while a callback is running.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.events) == 0 {
		d.mu.Unlock()
		return
	}
	events := d.events
	d.events = nil
	if d.inFlight {
		d.pending = append(d.pending, events...)
		d.mu.Unlock()
		return
	}
	d.inFlight = true
	d.mu.Unlock()

	d.callback(events)

	d.mu.Lock()
	d.inFlight = false
	if len(d.pending) > 0 && !d.stopped {
		d.events = d.pending
		d.pending = nil
		d.timer = time.AfterFunc(d.duration, d.flush)
	}
	d.mu.Unlock()
}

// Stop cancels any pending callback and drops future events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.events = nil
	d.pending = nil
}

// isNonEmptyChmodOnly reports a permission-only change on a non-empty file.
// Some editors chmod an empty file before writing it, so those still count.
func isNonEmptyChmodOnly(evt fsnotify.Event) bool {
	if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Remove) ||
		evt.Has(fsnotify.Rename) {
		return false
	}
	info, err := os.Stat(evt.Name)
	if err != nil {
		return false
	}
	return info.Size() > 0
}
