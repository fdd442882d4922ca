package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loungecrasher/music-janitor/internal/util"
)

// DefaultWatchDebounce is how long Watch waits after the last filesystem
// event before triggering a reconciliation pass, so a burst of writes from
// a single copy operation collapses into one Index run.
const DefaultWatchDebounce = 3 * time.Second

// Watch runs an initial Index pass over root, then watches the tree for
// filesystem changes and triggers an incremental (non-forced) reconciliation
// after debounce of quiet time. It returns when ctx is cancelled or the
// watcher itself fails to start.
func (ix *Indexer) Watch(ctx context.Context, root string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	if _, err := ix.Index(ctx, root, false); err != nil {
		return fmt.Errorf("initial index: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addDirsRecursive(watcher, root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	util.InfoLog("Watching %s for changes (debounce %v)", root, debounce)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					watcher.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", err)

		case <-fire:
			util.InfoLog("Change detected, reconciling...")
			if _, err := ix.Index(ctx, root, false); err != nil {
				util.ErrorLog("Watch reconciliation failed: %v", err)
			}
		}
	}
}

// addDirsRecursive registers root and every subdirectory with watcher,
// skipping dot-directories the same way Index does.
func addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && filepath.Base(path)[0] == '.' {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
