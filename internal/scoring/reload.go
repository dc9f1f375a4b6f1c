// SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchThresholds hot-reloads the thresholds file into the engine on
// every write. A file that fails to load or validate is skipped and the
// engine keeps serving the previous thresholds. Call stop to clean up.
func WatchThresholds(path string, engine *Engine, logger *slog.Logger) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("thresholds watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("thresholds watcher add %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}

				t, err := LoadThresholds(path)
				if err != nil {
					logger.Warn("thresholds reload skipped", "path", path, "error", err)
					continue
				}
				if err := engine.SetThresholds(t); err != nil {
					logger.Warn("thresholds reload rejected", "path", path, "error", err)
					continue
				}
				logger.Info("thresholds reloaded",
					"path", path,
					"version", t.Version,
					"review", t.Review,
					"decline", t.Decline,
				)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("thresholds watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
