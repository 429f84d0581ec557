package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/autobuild/internal/errors"
	"github.com/conneroisu/autobuild/internal/logging"
)

// PollingWatcher watches for file changes by periodically scanning the
// registered trees. Renames surface as a delete and a create.
type PollingWatcher struct {
	interval  time.Duration
	roots     []string
	filters   []FileFilter
	fileState map[string]fileSnapshot
	events    chan ChangeEvent
	logger    logging.Logger
	mu        sync.Mutex

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a new polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration, logger logging.Logger) *PollingWatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PollingWatcher{
		interval:  interval,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan ChangeEvent, eventBufferSize),
		logger:    logger.WithComponent("poller"),
		stopCh:    make(chan struct{}),
	}
}

// AddFilter adds a directory filter consulted on every scan.
func (p *PollingWatcher) AddFilter(filter FileFilter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = append(p.filters, filter)
}

// AddRecursive registers a tree to scan. It must be called before Start.
func (p *PollingWatcher) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeInvalidPath, "invalid watch path", err).WithPath(root)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots = append(p.roots, abs)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan ChangeEvent {
	return p.events
}

// Start records the baseline snapshot and begins polling in the background.
func (p *PollingWatcher) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("polling watcher already started")
	}

	p.mu.Lock()
	p.fileState = p.snapshot()
	p.mu.Unlock()

	go p.pollLoop(ctx)
	return nil
}

// Stop stops the polling watcher.
func (p *PollingWatcher) Stop() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.started.CompareAndSwap(false, true) {
			close(p.events)
		}
	})
	return nil
}

func (p *PollingWatcher) pollLoop(ctx context.Context) {
	defer close(p.events)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			for _, event := range p.detectChanges() {
				select {
				case p.events <- event:
				case <-ctx.Done():
					return
				case <-p.stopCh:
					return
				}
			}
		}
	}
}

// snapshot walks every root. Must be called with the lock held.
func (p *PollingWatcher) snapshot() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot)

	for _, root := range p.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && path != root && !allowed(p.filters, path) {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			state[path] = fileSnapshot{
				modTime: info.ModTime(),
				size:    info.Size(),
				isDir:   d.IsDir(),
			}
			return nil
		})
		if err != nil {
			p.logger.Warn(context.Background(), err, "scan failed", "root", root)
		}
	}

	return state
}

// detectChanges compares a fresh snapshot with the previous one. Events come
// back sorted by path within each kind so runs are reproducible.
func (p *PollingWatcher) detectChanges() []ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.snapshot()
	var created, modified, deleted []ChangeEvent

	for path, snap := range current {
		prev, exists := p.fileState[path]
		switch {
		case !exists:
			created = append(created, snapshotEvent(EventTypeCreated, path, snap))
		case !snap.isDir && (!prev.modTime.Equal(snap.modTime) || prev.size != snap.size):
			modified = append(modified, snapshotEvent(EventTypeModified, path, snap))
		}
	}

	for path, snap := range p.fileState {
		if _, exists := current[path]; !exists {
			deleted = append(deleted, ChangeEvent{Type: EventTypeDeleted, Path: path, IsDir: snap.isDir})
		}
	}

	p.fileState = current

	events := make([]ChangeEvent, 0, len(created)+len(modified)+len(deleted))
	for _, group := range [][]ChangeEvent{created, modified, deleted} {
		sortByPath(group)
		events = append(events, group...)
	}
	return events
}

func snapshotEvent(t EventType, path string, snap fileSnapshot) ChangeEvent {
	return ChangeEvent{
		Type:    t,
		Path:    path,
		ModTime: snap.modTime,
		Size:    snap.size,
		IsDir:   snap.isDir,
	}
}
