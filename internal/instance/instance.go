// Package instance keeps a second launcher from opening another kiosk
// window on the same display.
package instance

import (
	"errors"
	"os"
)

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock is a held instance lock.
type Lock struct {
	path string
	file *os.File

	// WriteErr records a failure to write the PID into the lock file. The
	// lock itself is still held.
	WriteErr error
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }
