package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// debounceWindow absorbs the burst of events a single `mv`/editor save
// produces (write, chmod, rename) so WatchPersonas fires OnReload once.
const debounceWindow = 300 * time.Millisecond

// WatchPersonas watches dir for changes and calls onReload with the freshly
// parsed persona list whenever a file settles. Only persona anchor fields
// are meant to be applied from onReload's result — callers should run each
// entry through MergeAnchors against their own runtime copy before use.
// Stops when ctx is cancelled.
func WatchPersonas(ctx context.Context, dir string, onReload func([]chatmodel.PersonaConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	reload := func() {
		personas, err := LoadPersonas(dir)
		if err != nil {
			slog.Warn("config: persona hot reload failed", "dir", dir, "error", err)
			return
		}
		onReload(personas)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: persona watcher error", "error", err)
		}
	}
}
