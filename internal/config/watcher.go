package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scout/internal/logging"
)

// Watcher watches .scout/config.json for changes and reloads logging
// configuration so debug mode and category toggles apply without a restart.
// It watches the .scout directory rather than the file itself because most
// editors replace files via rename.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	configDir   string
	configPath  string
	onChange    func()
	lastEvent   time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a Watcher for the given workspace root.
// onChange, if non-nil, runs after the logging config has been reloaded.
func NewWatcher(workspaceDir string, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	configDir := filepath.Join(workspaceDir, ".scout")

	return &Watcher{
		watcher:     watcher,
		configDir:   configDir,
		configPath:  filepath.Join(configDir, "config.json"),
		onChange:    onChange,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the .scout directory for config changes.
// This method is non-blocking; it starts the watcher in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.configDir, 0755); err != nil {
		logging.BootError("config watcher: failed to create %s: %v", w.configDir, err)
	}

	if err := w.watcher.Add(w.configDir); err != nil {
		// Directory may not exist yet - that's OK, reload stays manual
		logging.Get(logging.CategoryBoot).Warn("config watcher: initial watch failed: %v", err)
	} else {
		logging.Boot("config watcher: watching %s", w.configDir)
	}

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Error("config watcher: error closing watcher: %v", err)
	}
	logging.Boot("config watcher: stopped")
}

// run is the main event loop for the watcher.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	pending := false

	for {
		select {
		case <-ctx.Done():
			logging.BootDebug("config watcher: context cancelled")
			return

		case <-w.stopCh:
			logging.BootDebug("config watcher: stop signal received")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				logging.BootDebug("config watcher: event channel closed")
				return
			}
			if !w.isConfigEvent(event) {
				continue
			}
			w.mu.Lock()
			w.lastEvent = time.Now()
			w.mu.Unlock()
			pending = true

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logging.BootDebug("config watcher: error channel closed")
				return
			}
			logging.Get(logging.CategoryBoot).Error("config watcher error: %v", err)

		case <-debounceTicker.C:
			if !pending {
				continue
			}
			w.mu.Lock()
			settled := time.Since(w.lastEvent) >= w.debounceDur
			w.mu.Unlock()
			if settled {
				pending = false
				w.reload()
			}
		}
	}
}

// isConfigEvent reports whether the event touches config.json.
func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != "config.json" {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0
}

// reload re-reads the logging config and notifies the change callback.
func (w *Watcher) reload() {
	logging.Boot("config watcher: %s changed, reloading", w.configPath)
	if err := logging.ReloadConfig(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: reload failed: %v", err)
		return
	}
	if w.onChange != nil {
		w.onChange()
	}
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
