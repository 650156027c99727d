package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle before
// syncing a file. Editors often write a file in several steps.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-syncs pool files when they change on disk. It watches the top
// level of the directory only.
type Watcher struct {
	syncer   *Syncer
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher starts watching the syncer's directory. Call Run to process
// events and Close when done.
func (s *Syncer) NewWatcher(debounce time.Duration) (*Watcher, error) {
	if !isDir(s.dir) {
		return nil, fmt.Errorf("watch %s: not a directory", s.dir)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}
	if err := fsw.Add(s.dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{syncer: s, fsw: fsw, debounce: debounce}, nil
}

// Run processes file events until ctx is done. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.syncer.logger
	pending := map[string]struct{}{}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !Supported(ev.Name) || filepath.Base(ev.Name)[0] == '.' {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				logger.Info("pool file removed; keeping installed version", "file", ev.Name)
				w.syncer.Forget(ev.Name)
				delete(pending, ev.Name)
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				pending[ev.Name] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("pool watcher error", "error", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			for _, path := range paths {
				changed, err := w.syncer.SyncFile(ctx, path)
				if err != nil {
					logger.Warn("pool file rejected", "file", path, "error", err)
					continue
				}
				logger.Debug("pool file synced", "file", path, "changed", changed)
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
