package storage

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another server already holds the database lock.
var ErrLocked = errors.New("database is in use by another server")

// InstanceLock keeps a second server from opening the same database.
type InstanceLock struct {
	lock *flock.Flock
}

// LockPath returns the lock file that guards dbPath.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}

// AcquireInstanceLock takes the lock file next to dbPath without blocking.
func AcquireInstanceLock(dbPath string) (*InstanceLock, error) {
	l := flock.New(LockPath(dbPath))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, l.Path())
	}
	return &InstanceLock{lock: l}, nil
}

// Release unlocks. The lock file stays on disk.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
