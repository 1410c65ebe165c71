// Package runlock provides an exclusive advisory lock file guarding a
// resource shared between processes. Acquisition is non-blocking: a lock
// already held by anyone is reported immediately rather than waited on.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrHeld is returned by Acquire when the lock file already exists,
// meaning another process holds the lock.
var ErrHeld = errors.New("runlock: lock already held")

// Lock is a held advisory lock. Release it on every exit path.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the advisory lock at path, failing fast with ErrHeld when
// the lock is held. The holder's PID is written into the lock file to aid
// diagnosing a stale lock after a crash.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("runlock: create %s: %w", path, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return &Lock{path: path, file: f}, nil
}

// Release drops the lock. Releasing an already released lock is a no-op,
// so deferred and explicit releases can coexist.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runlock: remove %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
