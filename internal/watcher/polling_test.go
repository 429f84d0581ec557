package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPoller(t *testing.T, root string) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(20*time.Millisecond, nil)
	w.AddFilter(NoVCSFilter)
	require.NoError(t, w.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = w.Stop() })
	require.NoError(t, w.Start(ctx))
	return w
}

func TestPollingWatcher_DetectsFileCreation(t *testing.T) {
	root := t.TempDir()
	w := startPoller(t, root)

	file := filepath.Join(root, "new.rst")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == file
	})
	require.True(t, ok)
	assert.Equal(t, EventTypeCreated, ev.Type)
	assert.Equal(t, int64(1), ev.Size)
}

func TestPollingWatcher_DetectsModification(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "index.rst")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	w := startPoller(t, root)
	require.NoError(t, os.WriteFile(file, []byte("longer content"), 0o600))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == file
	})
	require.True(t, ok)
	assert.Equal(t, EventTypeModified, ev.Type)
}

func TestPollingWatcher_DetectsDeletion(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "gone.rst")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	w := startPoller(t, root)
	require.NoError(t, os.Remove(file))

	ev, ok := waitForEvent(t, w.Events(), 2*time.Second, func(ev ChangeEvent) bool {
		return ev.Path == file
	})
	require.True(t, ok)
	assert.Equal(t, EventTypeDeleted, ev.Type)
}

func TestPollingWatcher_PrunesFilteredDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	w := NewPollingWatcher(time.Hour, nil)
	w.AddFilter(NoVCSFilter)
	require.NoError(t, w.AddRecursive(root))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.rst"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.rst"), []byte("x"), 0o600))

	events := w.detectChanges()
	require.Len(t, events, 2)
	assert.Equal(t, filepath.Join(root, "a.rst"), events[0].Path)
	assert.Equal(t, filepath.Join(root, "b.rst"), events[1].Path)
}

func TestPollingWatcher_StopClosesEvents(t *testing.T) {
	w := startPoller(t, t.TempDir())
	require.NoError(t, w.Stop())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Stop")
	}
}
