package resource

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports python files changed on disk behind the engine's back.
// Changed paths are debounced and delivered on Changes; the receiver is
// expected to call Project.NotifyChanged for each, from the goroutine that
// owns the engine.
type Watcher struct {
	project   *Project
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	changes   chan []string
	log       *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher creates a watcher for the project's folder tree.
func NewWatcher(p *Project, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		project:   p,
		fsWatcher: fsw,
		debounce:  debounce,
		changes:   make(chan []string, 16),
		log:       p.log.With("component", "watcher"),
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Changes delivers batches of changed absolute paths.
func (w *Watcher) Changes() <-chan []string { return w.changes }

// Start registers every project folder and begins forwarding events.
func (w *Watcher) Start() error {
	if err := w.watchRecursive(w.project.root); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if w.excludeDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.excludeDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							w.log.Warn("failed to watch new folder", "path", event.Name, "error", err)
						}
					}
					w.schedule(event.Name)
					continue
				}
			}
			if !strings.HasSuffix(event.Name, ".py") || w.project.IsIgnored(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.schedule(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()
	if len(paths) == 0 {
		return
	}
	select {
	case w.changes <- paths:
	case <-w.done:
	}
}

func (w *Watcher) excludeDir(path string) bool {
	if path == w.project.root {
		return false
	}
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || skipDirs[name] || w.project.IsIgnored(path)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.pendingMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pendingMu.Unlock()
		err = w.fsWatcher.Close()
	})
	return err
}
