// Package fswatch turns filesystem notifications under a scope root into a
// stream of root-relative change paths for the status cache and scheduler.
package fswatch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/sandbox"
)

var fs = afero.NewOsFs()

// skippedDirNames are subtrees whose churn is never user content: version
// control metadata and the quarantine for redirected untrusted writes.
var skippedDirNames = map[string]bool{
	".git":                    true,
	sandbox.QuarantineDirName: true,
}

// Watcher reports file changes under a scope root. Paths carries each changed
// path relative to the root, using forward slashes. Events are best-effort: a
// slow consumer drops them rather than stalling the notifier, which is fine
// because the status layer re-scans the whole scope anyway.
type Watcher struct {
	Paths chan string

	watcher *fsnotify.Watcher
	root    string
}

// Watch recursively watches root and all of its subdirectories. Directories
// created later are picked up from their create events.
func Watch(root string) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	w := &Watcher{
		Paths:   make(chan string, 64),
		watcher: notifier,
		root:    root,
	}
	if err := w.addRecursive(root); err != nil {
		// Close the watcher so that we release the file handles for the
		// previously added paths.
		if closeErr := notifier.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close file watcher")
		}
		return nil, errors.WithContext(err, "watch "+root)
	}

	go w.run()
	return w, nil
}

// Close stops the watcher and releases its file handles. The Paths channel is
// closed once the notifier drains.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// addRecursive registers dir and every non-skipped subdirectory. fsnotify
// doesn't watch directories recursively on its own.
func (w *Watcher) addRecursive(dir string) error {
	return afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if path != dir && skippedDirNames[fi.Name()] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run() {
	defer close(w.Paths)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, segment := range strings.Split(rel, "/") {
		if skippedDirNames[segment] {
			return
		}
	}

	if event.Op&fsnotify.Create != 0 {
		if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				log.WithError(err).WithField("path", event.Name).
					Warn("Failed to watch new directory")
			}
		}
	}

	select {
	case w.Paths <- rel:
	default:
	}
}
