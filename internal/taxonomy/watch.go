package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the store whenever its taxonomy file changes, until ctx is
// done. The parent directory is watched so editors that replace the file
// by rename are picked up. A failed reload keeps the previous taxonomy.
func (s *Store) Watch(ctx context.Context) error {
	if s.opts.Path == "" {
		return errors.New("taxonomy: watch needs a file path")
	}
	path, err := filepath.Abs(s.opts.Path)
	if err != nil {
		return fmt.Errorf("resolve taxonomy path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				if err := s.Reload(); err != nil {
					s.log.Error("taxonomy reload failed, keeping previous", zap.Error(err))
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("taxonomy watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
