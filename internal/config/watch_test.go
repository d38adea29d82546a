package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/slam.viewer/internal/monitoring"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	dir := t.TempDir()
	path := filepath.Join(dir, "viewer.json")
	if err := os.WriteFile(path, []byte(`{"cut_first_n_kf": 1}`), 0644); err != nil {
		t.Fatal(err)
	}

	got := make(chan *ViewerConfig, 4)
	w, err := NewWatcher(path, func(c *ViewerConfig) { got <- c })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(path, []byte(`{"cut_first_n_kf": 9}`), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.GetCutFirstNKf() == 9 {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Run returned %v", err)
				}
				return
			}
		case <-deadline:
			cancel()
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatcherIgnoresInvalidAndOtherFiles(t *testing.T) {
	captured, restore := monitoring.Capture()
	defer restore()

	dir := t.TempDir()
	path := filepath.Join(dir, "viewer.json")
	if err := os.WriteFile(path, []byte(`{"cut_first_n_kf": -4}`), 0644); err != nil {
		t.Fatal(err)
	}

	calls := 0
	w, err := NewWatcher(path, func(*ViewerConfig) { calls++ })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.watcher.Close()

	w.handleEvent(fsnotifyEvent(filepath.Join(dir, "other.json")))
	w.handleEvent(fsnotifyEvent(path))

	if calls != 0 {
		t.Errorf("callback invoked %d times, want 0", calls)
	}
	if !captured.Contains("ignoring change") {
		t.Errorf("expected invalid config to be logged, got %v", captured.Lines())
	}
}
