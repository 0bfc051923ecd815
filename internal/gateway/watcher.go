package gateway

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gofshell/internal/gateway/websocket"
	"gofshell/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reports edits to the bot's config files to the UI. Bursts of events
// for one file collapse into a single reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	hub      *websocket.Hub
	paths    []string
	stopCh   chan struct{}
	stopOnce sync.Once
	debounce map[string]*time.Timer
	mu       sync.Mutex
}

// NewWatcher creates a watcher over the given directories.
func NewWatcher(hub *websocket.Hub, paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		hub:      hub,
		paths:    paths,
		stopCh:   make(chan struct{}),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Directories that do not exist yet are skipped with a
// warning; the bot may not have been installed.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		if err := w.watcher.Add(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && watched(event.Name) {
				w.handleEvent(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// watched filters out templates and editor droppings.
func watched(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".example") {
		return false
	}
	switch filepath.Ext(base) {
	case ".json", ".js":
		return true
	}
	return false
}

func (w *Watcher) handleEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(debounceDelay, func() {
		w.hub.Reload(path)
		logger.Debug().Str("path", path).Msg("Broadcast reload")

		w.mu.Lock()
		// A later event may already have armed a new timer for path.
		if w.debounce[path] == timer {
			delete(w.debounce, path)
		}
		w.mu.Unlock()
	})
	w.debounce[path] = timer
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		for _, timer := range w.debounce {
			timer.Stop()
		}
		w.mu.Unlock()

		w.watcher.Close()
	})
}
