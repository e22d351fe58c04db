package credentials

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events a certificate rotation
// produces (truncate, write, chmod, rename) into one reload.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the store whenever one of its files changes on disk.
//
// The parent directories are watched rather than the files themselves so
// that atomic replacements (write to temp file, rename over) are seen.
// Watch blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating credential watcher: %w", err)
	}
	defer watcher.Close()

	names := make(map[string]struct{}, 3)
	for _, path := range []string{s.files.CAFile, s.files.CertFile, s.files.KeyFile} {
		names[filepath.Clean(path)] = struct{}{}
	}
	dirs := make(map[string]struct{}, 3)
	for path := range names {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, tracked := names[filepath.Clean(event.Name)]; !tracked {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug("credential file changed", "file", event.Name, "op", event.Op.String())

			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, s.reloadAndLog)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("credential watcher error", "error", err)
		}
	}
}

func (s *Store) reloadAndLog() {
	if err := s.Reload(); err != nil {
		s.logger.Error("credential reload failed, keeping previous material", "error", err)
		return
	}
	s.logger.Info("credentials reloaded", "cert_file", s.files.CertFile, "reloads", s.Reloads())
}
