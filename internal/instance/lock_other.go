//go:build !unix

package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// Acquire creates path exclusively. Without flock a stale file from a crash
// blocks the next start until it is deleted.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	l := &Lock{path: path, file: f}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		l.WriteErr = fmt.Errorf("write pid: %w", err)
	}
	return l, nil
}

// Release closes and removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	os.Remove(l.path)
	return err
}
