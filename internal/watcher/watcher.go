package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/autobuild/internal/errors"
	"github.com/conneroisu/autobuild/internal/logging"
)

const (
	eventBufferSize = 256

	// renamePairWindow is how long a rename waits for the create event that
	// carries the new name.
	renamePairWindow = 50 * time.Millisecond
)

// FileWatcher watches directory trees with fsnotify.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan ChangeEvent
	filters []FileFilter
	dirs    map[string]struct{}
	logger  logging.Logger
	mutex   sync.RWMutex

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatchFailed, "failed to create file watcher", err)
	}

	if logger == nil {
		logger = logging.Nop()
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan ChangeEvent, eventBufferSize),
		dirs:    make(map[string]struct{}),
		logger:  logger.WithComponent("watcher"),
		stopCh:  make(chan struct{}),
	}, nil
}

// AddFilter adds a directory filter consulted during registration.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// Events returns the channel change events are delivered on.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// AddRecursive adds a directory and all subdirectories to watch. A regular
// file is watched on its own.
func (fw *FileWatcher) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeInvalidPath, "invalid watch path", err).WithPath(root)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeWatchFailed, "cannot watch path", err).WithPath(abs)
	}

	if !info.IsDir() {
		if err := fw.watcher.Add(abs); err != nil {
			return errors.NewIOError(errors.ErrCodeWatchFailed, "cannot watch file", err).WithPath(abs)
		}
		return nil
	}

	if err := fw.addTree(abs, nil); err != nil {
		return errors.NewIOError(errors.ErrCodeWatchFailed, "cannot watch directory", err).WithPath(abs)
	}
	return nil
}

// addTree registers root and its subdirectories. found, when set, receives
// every file already present, which catches files written into a new
// directory before its watch was in place.
func (fw *FileWatcher) addTree(root string, found func(path string, info fs.FileInfo)) error {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			fw.logger.Debug(context.Background(), "skipping unreadable path", "path", path, "error", err)
			return nil
		}

		if !d.IsDir() {
			if found != nil {
				if info, err := d.Info(); err == nil {
					found(path, info)
				}
			}
			return nil
		}

		if path != root && !allowed(filters, path) {
			return filepath.SkipDir
		}

		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}

		fw.mutex.Lock()
		fw.dirs[path] = struct{}{}
		fw.mutex.Unlock()

		return nil
	})
}

// WatchedDirs returns the number of directories currently registered.
func (fw *FileWatcher) WatchedDirs() int {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return len(fw.dirs)
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	if !fw.started.CompareAndSwap(false, true) {
		return fmt.Errorf("file watcher already started")
	}

	go fw.watchLoop(ctx)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
		err = fw.watcher.Close()
		// Without a running loop nobody else closes the channel.
		if fw.started.CompareAndSwap(false, true) {
			close(fw.events)
		}
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer close(fw.events)

	var pending *ChangeEvent
	timer := time.NewTimer(renamePairWindow)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		if pending != nil {
			fw.emit(ctx, *pending)
			pending = nil
		}
	}

	errs := fw.watcher.Errors

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case <-timer.C:
			flush()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		case event, ok := <-fw.watcher.Events:
			if !ok {
				flush()
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			change := fw.convert(event)

			if change.Type == EventTypeRenamed {
				flush()
				if change.IsDir {
					_ = fw.watcher.Remove(change.Path)
				}
				pending = &change
				timer.Reset(renamePairWindow)
				continue
			}

			if pending != nil && change.Type == EventTypeCreated &&
				filepath.Dir(change.Path) == filepath.Dir(pending.Path) {
				timer.Stop()
				change = ChangeEvent{
					Type:     EventTypeRenamed,
					Path:     pending.Path,
					DestPath: change.Path,
					ModTime:  change.ModTime,
					Size:     change.Size,
					IsDir:    change.IsDir,
				}
				pending = nil
			} else {
				flush()
			}

			fw.emit(ctx, change)

			if change.IsDir && (change.Type == EventTypeCreated || change.DestPath != "") {
				fw.watchNewDir(ctx, change.Target())
			}
		}
	}
}

// watchNewDir registers a directory that appeared after startup and reports
// the files it already contains.
func (fw *FileWatcher) watchNewDir(ctx context.Context, dir string) {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	if !allowed(filters, dir) {
		return
	}

	err := fw.addTree(dir, func(path string, info fs.FileInfo) {
		fw.emit(ctx, ChangeEvent{
			Type:    EventTypeCreated,
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	})
	if err != nil {
		fw.logger.Warn(ctx, err, "failed to watch new directory", "path", dir)
	}
}

func (fw *FileWatcher) convert(event fsnotify.Event) ChangeEvent {
	change := ChangeEvent{Path: event.Name}

	switch {
	case event.Has(fsnotify.Create):
		change.Type = EventTypeCreated
	case event.Has(fsnotify.Write):
		change.Type = EventTypeModified
	case event.Has(fsnotify.Remove):
		change.Type = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		change.Type = EventTypeRenamed
	default:
		change.Type = EventTypeModified
	}

	if info, err := os.Lstat(event.Name); err == nil {
		change.ModTime = info.ModTime()
		change.Size = info.Size()
		change.IsDir = info.IsDir()
		return change
	}

	// Gone already: only the registration records whether it was a directory.
	fw.mutex.Lock()
	if _, ok := fw.dirs[event.Name]; ok {
		change.IsDir = true
		delete(fw.dirs, event.Name)
	}
	fw.mutex.Unlock()

	return change
}

func (fw *FileWatcher) emit(ctx context.Context, event ChangeEvent) {
	select {
	case fw.events <- event:
	case <-ctx.Done():
	case <-fw.stopCh:
	}
}
