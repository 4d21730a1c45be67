package contest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the rules whenever the file at path changes.
// A file that fails to parse leaves the current rules in place.
func (r *Registry) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still seen
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					slog.Warn("Keeping previous website rules", "path", path, "error", err)
					continue
				}
				slog.Info("Website rules reloaded", "path", path, "websites", len(r.List()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("Website rules watcher error", "error", err)
			}
		}
	}()
	return nil
}
