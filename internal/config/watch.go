package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/slam.viewer/internal/monitoring"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands each
// successfully validated config to a callback. Invalid edits are logged and
// the previous config stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*ViewerConfig)
}

// NewWatcher creates a watcher for path. The containing directory is
// watched so that editors which replace the file by rename are seen.
func NewWatcher(path string, onChange func(*ViewerConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	clean := filepath.Clean(path)
	if err := fw.Add(filepath.Dir(clean)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(clean), err)
	}
	return &Watcher{path: clean, watcher: fw, onChange: onChange}, nil
}

// Run processes file events until ctx is cancelled. It closes the
// underlying watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("config: watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	cfg, err := LoadViewerConfig(w.path)
	if err != nil {
		monitoring.Logf("config: ignoring change to %s: %v", w.path, err)
		return
	}
	monitoring.Logf("config: reloaded %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
