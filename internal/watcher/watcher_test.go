package watcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForEvent reads events until match accepts one or the timeout expires.
func waitForEvent(t *testing.T, events <-chan ChangeEvent, timeout time.Duration, match func(ChangeEvent) bool) (ChangeEvent, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return ChangeEvent{}, false
			}
			if match(ev) {
				return ev, true
			}
		case <-deadline:
			return ChangeEvent{}, false
		}
	}
}

func startFileWatcher(t *testing.T, root string) *FileWatcher {
	t.Helper()
	w, err := NewFileWatcher(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	w.AddFilter(NoVCSFilter)
	require.NoError(t, w.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	return w
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestChangeEventTarget(t *testing.T) {
	assert.Equal(t, "a.rst", ChangeEvent{Path: "a.rst"}.Target())
	assert.Equal(t, "b.rst", ChangeEvent{Path: "a.rst", DestPath: "b.rst"}.Target())
}

func TestFilters(t *testing.T) {
	assert.False(t, NoVCSFilter("/repo/.git"))
	assert.False(t, NoVCSFilter("/repo/.hg"))
	assert.True(t, NoVCSFilter("/repo/docs"))
	assert.True(t, NoVCSFilter("/repo/.github"))

	dir := t.TempDir()
	skip := SkipPathsFilter(filepath.Join(dir, "_build"))
	assert.False(t, skip(filepath.Join(dir, "_build")))
	assert.True(t, skip(filepath.Join(dir, "_build", "html")))
	assert.True(t, skip(filepath.Join(dir, "source")))

	assert.True(t, allowed(nil, "anything"))
	assert.False(t, allowed([]FileFilter{NoVCSFilter, skip}, filepath.Join(dir, "_build")))
}

func TestFileWatcherAddRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	w, err := NewFileWatcher(nil)
	require.NoError(t, err)
	defer w.Stop()

	w.AddFilter(NoVCSFilter)
	require.NoError(t, w.AddRecursive(root))

	// root, a, a/b; .git is pruned.
	assert.Equal(t, 3, w.WatchedDirs())

	err = w.AddRecursive(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestFileWatcherAddRecursiveSingleFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "conf.py")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	w, err := NewFileWatcher(nil)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.AddRecursive(file))
	assert.Equal(t, 0, w.WatchedDirs())
}

func TestFileWatcherDetectsWrites(t *testing.T) {
	root := t.TempDir()
	w := startFileWatcher(t, root)

	file := filepath.Join(root, "index.rst")
	require.NoError(t, os.WriteFile(file, []byte("Title\n=====\n"), 0o600))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == file
	})
	require.True(t, ok, "no event for %s", file)
	assert.Contains(t, []EventType{EventTypeCreated, EventTypeModified}, ev.Type)
	assert.False(t, ev.IsDir)
}

func TestFileWatcherWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startFileWatcher(t, root)

	sub := filepath.Join(root, "chapter")
	require.NoError(t, os.Mkdir(sub, 0o755))

	_, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == sub && ev.IsDir
	})
	require.True(t, ok, "no event for new directory")

	file := filepath.Join(sub, "intro.rst")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, ok = waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == file
	})
	assert.True(t, ok, "no event for file inside new directory")
}

func TestFileWatcherRenameCarriesDestination(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("rename pairing relies on inotify event order")
	}

	root := t.TempDir()
	oldPath := filepath.Join(root, "old.rst")
	newPath := filepath.Join(root, "new.rst")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o600))

	w := startFileWatcher(t, root)
	require.NoError(t, os.Rename(oldPath, newPath))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Type == EventTypeRenamed
	})
	require.True(t, ok, "no rename event")
	assert.Equal(t, oldPath, ev.Path)
	assert.Equal(t, newPath, ev.DestPath)
	assert.Equal(t, newPath, ev.Target())
}

func TestFileWatcherDelete(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "gone.rst")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	w := startFileWatcher(t, root)
	require.NoError(t, os.Remove(file))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == file && ev.Type == EventTypeDeleted
	})
	require.True(t, ok)
	assert.True(t, ev.ModTime.IsZero())
}

func TestFileWatcherStopClosesEvents(t *testing.T) {
	root := t.TempDir()
	w := startFileWatcher(t, root)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stop is idempotent")

	select {
	case _, ok := <-w.Events():
		for ok {
			_, ok = <-w.Events()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Stop")
	}
}

func TestFileWatcherStopWithoutStart(t *testing.T) {
	w, err := NewFileWatcher(nil)
	require.NoError(t, err)
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	assert.Error(t, w.Start(context.Background()))
}

func TestFileWatcherStartTwice(t *testing.T) {
	w := startFileWatcher(t, t.TempDir())
	assert.Error(t, w.Start(context.Background()))
}

func TestFileWatcherImplementsSource(t *testing.T) {
	var _ Source = (*FileWatcher)(nil)
	var _ Source = (*PollingWatcher)(nil)
}
