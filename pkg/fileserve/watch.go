package fileserve

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittoserve/internal/logger"
)

// Invalidator drops cached file bodies.
type Invalidator interface {
	Remove(key string) bool
	RemovePrefix(prefix string) int
}

// Watcher invalidates cache entries when files under a root change.
// Directories created after the watcher starts are watched too.
type Watcher struct {
	w     *fsnotify.Watcher
	cache Invalidator
	root  string

	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching every directory under root. root must be absolute
// so event names match cache keys.
func Watch(root string, cache Invalidator) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{w: fw, cache: cache, root: root, done: make(chan struct{})}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logger.Debug("skipping unreadable directory", logger.File(path), logger.Err(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			logger.Warn("file watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				logger.Warn("failed to watch new directory", logger.File(ev.Name), logger.Err(err))
			}
		}
	}

	removed := 0
	if w.cache.Remove(ev.Name) {
		removed++
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		removed += w.cache.RemovePrefix(ev.Name + string(filepath.Separator))
	}
	if removed > 0 {
		logger.Debug("cache invalidated", logger.File(ev.Name), logger.KeyEvicted, removed, logger.KeyReason, ev.Op.String())
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.w.Close()
		<-w.done
	})
	return err
}
