package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// The PID file holds "PID:TOKEN". The token proves ownership so a daemon only
// removes a file it wrote itself; the advisory lock on the open handle is what
// marks an instance as alive.

// pidToken generates a random 16-character hex token.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// parsePIDFile splits PID file content into its pid and token. A malformed pid
// yields 0.
func parsePIDFile(data string) (pid int, token string) {
	head, token, _ := strings.Cut(strings.TrimSpace(data), ":")
	pid, err := strconv.Atoi(head)
	if err != nil {
		return 0, token
	}
	return pid, token
}

// writePID opens the PID file, locks it and writes this process's entry. The
// returned handle holds the lock and must stay open until [removePID].
func writePID(dataPaths DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(dataPaths.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	fail := func(step string, err error) (*os.File, error) {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("%s PID file: %w", step, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fail("truncate", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		return fail("write", err)
	}
	return f, nil
}

// removePID releases the lock and deletes the PID file if it still carries
// token.
func removePID(dataPaths DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dataPaths.PID())
	if err != nil {
		return
	}
	if _, owner := parsePIDFile(string(data)); owner == token {
		os.Remove(dataPaths.PID())
	}
}

// checkStalePID reports whether another daemon holds the PID file lock, with
// its pid when readable. A file nobody holds is left over from a dead
// instance and is removed.
func checkStalePID(dataPaths DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(dataPaths.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dataPaths.PID())
		f.Close()
		pid, _ := parsePIDFile(string(data))
		return true, pid
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dataPaths.PID())
	return false, 0
}
