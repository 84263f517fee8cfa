package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcpgate/pkg/logging"
)

const (
	// DefaultDebounceInterval is how long the watcher waits after the last
	// change before reloading, so editors that write in several steps
	// trigger a single reload.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 5 * time.Second
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the directory to watch, usually <configDir>/targets.
	Dir string

	Debounce     time.Duration
	PollInterval time.Duration

	// OnChange runs after a debounced change. Calls never overlap.
	OnChange func()
}

// Watcher reports changes to target files. It uses fsnotify and falls back
// to polling the directory listing when fsnotify cannot watch it.
type Watcher struct {
	mu      sync.Mutex
	cfg     WatcherConfig
	fs      *fsnotify.Watcher
	stopCh  chan struct{}
	running bool

	debounceMu sync.Mutex
	debounce   *time.Timer

	// callMu serializes OnChange.
	callMu sync.Mutex
}

// NewWatcher creates a watcher for cfg.Dir. The directory is created when
// missing so that targets added later are noticed.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watcher needs a directory")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounceInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfg.Dir, err)
	}
	return &Watcher{cfg: cfg}, nil
}

// Start begins watching. It is a no-op when already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.running = true

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("ConfigWatcher", "fsnotify not available, polling %s: %v", w.cfg.Dir, err)
		go w.poll(w.stopCh)
		return nil
	}
	if err := fsw.Add(w.cfg.Dir); err != nil {
		logging.Warn("ConfigWatcher", "Failed to watch %s, polling instead: %v", w.cfg.Dir, err)
		_ = fsw.Close()
		go w.poll(w.stopCh)
		return nil
	}
	w.fs = fsw
	go w.processEvents(w.stopCh, fsw.Events, fsw.Errors)

	logging.Info("ConfigWatcher", "Watching %s for target changes", w.cfg.Dir)
	return nil
}

func (w *Watcher) processEvents(stopCh <-chan struct{}, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isTargetFile(filepath.Base(event.Name)) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	logging.Debug("ConfigWatcher", "Target file changed: %s (%s)", event.Name, event.Op)
	w.trigger()
}

func (w *Watcher) trigger() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.cfg.Debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running || w.cfg.OnChange == nil {
		return
	}

	w.callMu.Lock()
	defer w.callMu.Unlock()
	w.cfg.OnChange()
}

func (w *Watcher) poll(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	last := fingerprint(w.cfg.Dir)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if current := fingerprint(w.cfg.Dir); current != last {
				last = current
				logging.Debug("ConfigWatcher", "Target changes detected via polling")
				w.trigger()
			}
		}
	}
}

// fingerprint summarizes the target files of dir by name, size and
// modification time.
func fingerprint(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var parts []string
	for _, e := range entries {
		if e.IsDir() || !isTargetFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%d", e.Name(), info.Size(), info.ModTime().UnixNano()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Stop ends watching and cancels a pending reload.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.debounceMu.Unlock()

	if w.fs != nil {
		if err := w.fs.Close(); err != nil {
			logging.Warn("ConfigWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fs = nil
	}
	logging.Info("ConfigWatcher", "Stopped watching %s", w.cfg.Dir)
	return nil
}
