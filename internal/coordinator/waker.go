package coordinator

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/queue"
)

const wakeDebounce = 500 * time.Millisecond

// waker watches queued family directories and makes a family due
// immediately when a file inside it is written or created.
type waker struct {
	watcher *fsnotify.Watcher
	store   *queue.Store
	layout  *family.Layout
	logger  *slog.Logger
	notify  func()

	mu      sync.Mutex
	watched map[string]string
	last    map[string]time.Time
}

func newWaker(store *queue.Store, layout *family.Layout, logger *slog.Logger, notify func()) (*waker, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &waker{
		watcher: watcher,
		store:   store,
		layout:  layout,
		logger:  logger,
		notify:  notify,
		watched: make(map[string]string),
		last:    make(map[string]time.Time),
	}, nil
}

func (w *waker) watch(id string) {
	dir := w.layout.ActiveDir(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Debug("cannot watch family directory",
			logging.Family(id),
			logging.Error(err),
		)
		return
	}
	w.watched[dir] = id
}

func (w *waker) unwatch(id string) {
	dir := w.layout.ActiveDir(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; !ok {
		return
	}
	// The directory may already have moved; fsnotify drops the watch then.
	_ = w.watcher.Remove(dir)
	delete(w.watched, dir)
	delete(w.last, id)
}

func (w *waker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.handle(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("family watcher error", logging.Error(err))
		}
	}
}

func (w *waker) handle(ctx context.Context, path string) {
	w.mu.Lock()
	id, ok := w.watched[filepath.Dir(path)]
	if ok {
		now := time.Now()
		if now.Sub(w.last[id]) < wakeDebounce {
			ok = false
		} else {
			w.last[id] = now
		}
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	n, err := w.store.Wake(ctx, id)
	if err != nil {
		w.logger.Warn("failed to expedite family check",
			logging.Family(id),
			logging.Error(err),
		)
		return
	}
	if n > 0 {
		w.logger.Debug("family directory changed; checking early",
			logging.Family(id),
			logging.String("file", filepath.Base(path)),
			logging.String(logging.FieldEventType, "family_woken"),
		)
		w.notify()
	}
}

func (w *waker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.watcher.Close()
	w.watched = make(map[string]string)
}
