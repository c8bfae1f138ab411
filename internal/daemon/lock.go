package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock is the system-wide lock that allows one remote session at a
// time. The watcher and one-shot uploads both take it.
type InstanceLock struct {
	path string
	fl   *flock.Flock
}

// AcquireLock takes the lock at path without blocking. It returns an error
// wrapping ErrLocked when another process holds it.
func AcquireLock(path string) (*InstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return &InstanceLock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *InstanceLock) Path() string { return l.path }

// Release drops the lock. It is safe to call on a nil lock.
func (l *InstanceLock) Release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
