// Package watcher reloads the catalog when the feed file changes on disk.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// FeedWatcher watches a single catalog feed file and invokes a reload
// callback after changes settle. Editors and feed deliveries often produce
// bursts of writes, so events are debounced per path.
type FeedWatcher struct {
	feedPath string
	onReload func(path string)
	debounce time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// Option configures a FeedWatcher.
type Option func(*FeedWatcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *FeedWatcher) { w.logger = l }
}

// WithDebounce overrides the settle delay before a reload fires.
func WithDebounce(d time.Duration) Option {
	return func(w *FeedWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for the given feed file. onReload is called with the
// feed path after a change settles.
func New(feedPath string, onReload func(path string), opts ...Option) *FeedWatcher {
	w := &FeedWatcher{
		feedPath: filepath.Clean(feedPath),
		onReload: onReload,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// The parent directory is watched rather than the file itself so atomic
// replace-by-rename deliveries are still observed.
func (w *FeedWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(filepath.Dir(w.feedPath)); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("feed watcher starting", zap.String("path", w.feedPath))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *FeedWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("feed watcher error", zap.Error(err))
			}
		}
	}
}

func (w *FeedWatcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.feedPath {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if w.logger != nil {
		w.logger.Debug("feed watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	w.scheduleReload()
}

func (w *FeedWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Debug("feed watcher reloading (debounced)", zap.String("path", w.feedPath))
		}
		if w.onReload != nil {
			w.onReload(w.feedPath)
		}
	})
}

// Path returns the watched feed path.
func (w *FeedWatcher) Path() string {
	return w.feedPath
}

// Stop stops the watcher and releases resources.
func (w *FeedWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
