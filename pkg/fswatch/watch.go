// Package fswatch notifies the scheduler when files in the source tree
// change, so that changes are synced without waiting for the next interval.
package fswatch

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
	"github.com/sidkik/foldersync/pkg/sync"
)

// Watcher watches a directory tree for changes.
type Watcher struct {
	fs       afero.Fs
	watcher  *fsnotify.Watcher
	excludes sync.ExcludeRules
	events   chan struct{}
	log      log.FieldLogger
}

// Watch starts watching every directory under root. Changes to files that
// match excludes are ignored.
func Watch(fs afero.Fs, root string, excludes sync.ExcludeRules, logger log.FieldLogger) (*Watcher, error) {
	paths, err := getPathsToWatch(fs, root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, "watch "+path)
		}
	}

	w := &Watcher{
		fs:       fs,
		watcher:  watcher,
		excludes: excludes,
		events:   make(chan struct{}, 1),
		log:      logger,
	}
	go w.run()
	return w, nil
}

// Events returns a channel that receives a value after files change. Bursts
// of changes are combined into a single value.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
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
			w.log.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.excludes.Match(filepath.Base(event.Name)) {
		return
	}

	// fsnotify doesn't watch directories recursively, so new directories
	// have to be added as they're created.
	if event.Op&fsnotify.Create != 0 {
		if isDir, _ := afero.IsDir(w.fs, event.Name); isDir {
			paths, err := getPathsToWatch(w.fs, event.Name)
			if err != nil {
				w.log.WithError(err).WithField("path", event.Name).Warn(
					"Failed to list new directory. Its changes will be picked up by the next scheduled sync.")
			}
			for _, path := range paths {
				if err := w.watcher.Add(path); err != nil {
					w.log.WithError(err).WithField("path", path).Warn(
						"Failed to watch new directory. Its changes will be picked up by the next scheduled sync.")
				}
			}
		}
	}

	select {
	case w.events <- struct{}{}:
	default:
	}
}

// getPathsToWatch returns root and every directory below it. Watching a
// directory reports changes to the files directly inside it.
func getPathsToWatch(fs afero.Fs, root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return []string{root}, nil
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
