// PID file locking on Windows, via LockFileEx.

//go:build windows

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// pidLockBytes is the locked range; one byte is enough for mutual exclusion.
const pidLockBytes = 1

// lockFile takes an exclusive lock on f, failing immediately when a running
// daemon holds it.
func lockFile(f *os.File) error {
	err := windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		pidLockBytes, 0,
		new(windows.Overlapped),
	)
	if err != nil {
		return fmt.Errorf("lock file %s: %w", f.Name(), err)
	}
	return nil
}

// unlockFile releases the lock on f. Closing the handle releases it as well.
func unlockFile(f *os.File) error {
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, pidLockBytes, 0, new(windows.Overlapped))
	if err != nil {
		return fmt.Errorf("unlock file %s: %w", f.Name(), err)
	}
	return nil
}
