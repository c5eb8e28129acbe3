// SPDX-License-Identifier: MPL-2.0

//go:build linux

package artifactstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// errFlockUnavailable is never returned on Linux. It exists for parity with
// lock_other.go.
var errFlockUnavailable = errors.New("flock not available on this platform")

// storeLock holds a blocking flock on the store's lock file. The kernel
// drops the lock when the descriptor closes, including on crash.
type storeLock struct {
	file *os.File
}

// acquireLock opens path and blocks until the lock is granted. Writers take
// an exclusive lock, readers a shared one.
func acquireLock(path string, exclusive bool) (*storeLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &storeLock{file: f}, nil
}

// Release unlocks and closes the lock file. Safe to call more than once.
func (l *storeLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
