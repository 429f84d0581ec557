package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/conneroisu/autobuild/internal/errors"
)

// LockFileName is created inside the output directory.
const LockFileName = ".autobuild.lock"

// OutputLock keeps two autobuild processes from building into the same
// output directory.
type OutputLock struct {
	flock *flock.Flock
}

// AcquireOutputLock creates outDir if needed and takes an exclusive,
// non-blocking lock on it.
func AcquireOutputLock(outDir string) (*OutputLock, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInvalidPath, "cannot create output directory", err).WithPath(outDir)
	}

	path := filepath.Join(outDir, LockFileName)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeOutputLocked, "cannot lock output directory", err).WithPath(path)
	}
	if !locked {
		return nil, errors.NewIOError(
			errors.ErrCodeOutputLocked,
			fmt.Sprintf("output directory %s is in use by another autobuild process", outDir),
			nil,
		).WithPath(path)
	}

	return &OutputLock{flock: fl}, nil
}

// Path returns the lock file location.
func (l *OutputLock) Path() string {
	return l.flock.Path()
}

// Release unlocks and removes the lock file.
func (l *OutputLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(l.flock.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
