// Package watcher turns file-system activity under the documentation tree
// into ChangeEvent values delivered on a channel.
//
// FileWatcher uses fsnotify and registers every directory of a tree, adding
// directories created later as they appear. PollingWatcher compares periodic
// snapshots and serves file systems where notifications are unreliable, such
// as network mounts and some container volumes. Debouncer groups bursts of
// events into batches.
package watcher

import (
	"context"
	"time"
)

// ChangeEvent is one observed change to a path.
type ChangeEvent struct {
	Type EventType
	Path string
	// DestPath is the new location for a rename when the source knows it.
	DestPath string
	ModTime  time.Time
	Size     int64
	IsDir    bool
}

// Target returns the path a change should be judged by: the destination of
// a move, otherwise the path itself.
func (e ChangeEvent) Target() string {
	if e.DestPath != "" {
		return e.DestPath
	}
	return e.Path
}

// EventType classifies a ChangeEvent.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

var eventTypeNames = [...]string{"created", "modified", "deleted", "renamed"}

func (e EventType) String() string {
	if e < 0 || int(e) >= len(eventTypeNames) {
		return "unknown"
	}
	return eventTypeNames[e]
}

// Source delivers change events until it is stopped or its context ends.
// The events channel is closed once the source has shut down.
type Source interface {
	AddRecursive(root string) error
	Start(ctx context.Context) error
	Events() <-chan ChangeEvent
	Stop() error
}

// FileFilter reports whether a directory should be watched. Returning false
// prunes the directory and everything beneath it.
type FileFilter func(path string) bool
