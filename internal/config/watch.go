package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a single config file for edits and calls back into OnReload with a freshly loaded Config.
// It debounces bursts of writes from editors that save in multiple
// filesystem operations.
//
// Grounded on internal/skills/manager.go's StartWatching/watchLoop: a
// debounced fsnotify.Watcher driven from a cancelable goroutine.
type Watcher struct {
	path     string
	debounce time.Duration
	log      *slog.Logger

	OnReload func(*Config, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher builds a Watcher for the config file at path. debounce of
// zero defaults to 250ms.
func NewWatcher(path string, debounce time.Duration, log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{path: path, debounce: debounce, log: log}
}

// Start begins watching in the background. Calling Start twice is a
// no-op until Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx, watcher)
	return nil
}

// Close stops watching and waits for the watch goroutine to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			cfg, err := Load(w.path)
			if w.OnReload != nil {
				w.OnReload(cfg, err)
			} else if err != nil {
				w.log.Warn("config: reload failed", "path", w.path, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config: watch error", "path", w.path, "error", err)
		}
	}
}
