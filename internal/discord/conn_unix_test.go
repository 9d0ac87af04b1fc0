//go:build !windows

package discord

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
)

// shortTempDir creates a temp directory directly under /tmp.
func shortTempDir(t *testing.T) (string, error) {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "dc")
	if err != nil {
		return "", err
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir, nil
}

func TestRuntimeDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("TMPDIR", dir)
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	got := runtimeDirs()
	if len(got) != 2 || got[0] != dir || got[1] != "/tmp" {
		t.Errorf("runtimeDirs() = %v, want [%s /tmp]", got, dir)
	}
}

func TestSocketCandidates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("TMPDIR", "")
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	got := socketCandidates()
	if len(got) != 2*len(sandboxDirs)*maxIPCSlots {
		t.Fatalf("len = %d", len(got))
	}
	if got[0] != filepath.Join(dir, "discord-ipc-0") {
		t.Errorf("first candidate = %q", got[0])
	}
	want := filepath.Join(dir, "app", "com.discordapp.Discord", "discord-ipc-0")
	if got[maxIPCSlots] != want {
		t.Errorf("flatpak candidate = %q, want %q", got[maxIPCSlots], want)
	}
}

func TestConnectToDiscord(t *testing.T) {
	// Unix socket paths are length-limited, so keep the directory short.
	dir, err := shortTempDir(t)
	if err != nil {
		t.Skipf("no short temp dir: %v", err)
	}
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("TMPDIR", "")
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	ln, err := net.Listen("unix", filepath.Join(dir, "discord-ipc-3"))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()
	go func() {
		if conn, err := ln.Accept(); err == nil {
			conn.Close()
		}
	}()

	conn, err := connectToDiscord()
	if err != nil {
		t.Fatalf("connectToDiscord: %v", err)
	}
	conn.Close()
}

func TestConnectToDiscord_NoSocket(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("TMPDIR", dir)
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	// /tmp is still probed; skip when a real client is listening there.
	if conn, err := connectToDiscord(); err == nil {
		conn.Close()
		t.Skip("a Discord socket exists on this machine")
	} else if !errors.Is(err, ErrIPCNotAvailable) {
		t.Fatalf("err = %v, want ErrIPCNotAvailable", err)
	}
}
