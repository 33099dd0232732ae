// Package scriptwatch watches a sandbox's scripts root for changes and
// triggers a reload callback, so modders iterating on mission scripts get
// fast feedback without restarting the engine process. Not part of the
// sandbox's containment model — purely a development convenience layered
// on top of it.
package scriptwatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/strataggus/strataggus/internal/enginelog"
)

// Watcher observes a directory tree for Lua source changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    enginelog.Logger
	done      chan struct{}
}

// New builds a Watcher rooted at root, recursively watching every
// subdirectory that exists at construction time. Directories created later
// are not picked up automatically; call Close and New again after a
// structural change to the scripts tree.
func New(root string, logger enginelog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = enginelog.NopLogger()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scriptwatch: creating watcher: %w", err)
	}

	w := &Watcher{fsWatcher: fsWatcher, logger: logger, done: make(chan struct{})}
	if err := w.addTree(root); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.fsWatcher.Add(path); err != nil {
				return fmt.Errorf("scriptwatch: watching %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run blocks, invoking onChange(path) every time a Lua source file under
// the watched tree is written or created, until Close is called. Intended
// to run in its own goroutine.
func (w *Watcher) Run(onChange func(path string)) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if filepath.Ext(event.Name) != ".lua" {
				continue
			}
			w.logger.Debug("scriptwatch: change detected", "path", event.Name, "op", event.Op.String())
			onChange(event.Name)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("scriptwatch: watcher error", "error", err.Error())
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its underlying OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
