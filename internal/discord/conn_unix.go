//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// dialTimeout bounds a single socket probe.
const dialTimeout = time.Second

// sandboxDirs are the sub-directories of a runtime dir where sandboxed
// Discord builds place their socket.
var sandboxDirs = []string{
	"",
	"app/com.discordapp.Discord",
	"app/com.discordapp.DiscordCanary",
	"snap.discord",
	"snap.discord-canary",
}

// runtimeDirs returns the base directories Discord may create its socket
// in, in probe order, without duplicates.
func runtimeDirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(key); dir != "" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if !seen["/tmp"] {
		dirs = append(dirs, "/tmp")
	}
	return dirs
}

// socketCandidates lists every socket path to probe.
func socketCandidates() []string {
	var paths []string
	for _, base := range runtimeDirs() {
		for _, sub := range sandboxDirs {
			for i := range maxIPCSlots {
				paths = append(paths, filepath.Join(base, sub, fmt.Sprintf("discord-ipc-%d", i)))
			}
		}
	}
	return paths
}

// connectToDiscord returns a connection to the first socket that accepts.
func connectToDiscord() (net.Conn, error) {
	for _, path := range socketCandidates() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		conn, err := net.DialTimeout("unix", path, dialTimeout)
		if err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
