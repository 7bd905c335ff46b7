//go:build unix

package instance

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Acquire takes an exclusive, non-blocking flock on path and records the
// current PID in it. The lock dies with the process, so a stale file left
// by a crash does not block the next start.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	l := &Lock{path: path, file: f}
	if err := f.Truncate(0); err != nil {
		l.WriteErr = fmt.Errorf("truncate lock file: %w", err)
	} else if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		l.WriteErr = fmt.Errorf("write pid: %w", err)
	}
	return l, nil
}

// Release drops the lock. The file is left in place: removing it, before
// or after unlocking, lets a waiting launcher lock an unlinked inode while
// a third one creates and locks a fresh file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}
