//go:build !windows

// Package integration runs the presence pipeline end to end: a game log on
// disk, the location table served over HTTP, the real Discord IPC client
// talking to a fake Discord over a unix socket, and the monitor loop tying
// them together.
package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/exilecord/internal/discord"
	"tools.zach/dev/exilecord/internal/gamelog"
	"tools.zach/dev/exilecord/internal/locations"
	"tools.zach/dev/exilecord/internal/monitor"
)

// ///////////////////////////////////////////////
// Fake Discord
// ///////////////////////////////////////////////

// command is one SET_ACTIVITY frame received by the fake Discord. A nil
// Activity is a clear.
type command struct {
	Activity *discord.Activity
}

// fakeDiscord accepts one IPC connection, completes the handshake and acks
// every command, forwarding SET_ACTIVITY payloads on commands.
type fakeDiscord struct {
	commands chan command
	closed   chan struct{}
}

// startFakeDiscord listens on discord-ipc-0 in a fresh runtime dir and points
// the client's socket discovery at it.
func startFakeDiscord(t *testing.T) *fakeDiscord {
	t.Helper()
	// Unix socket paths are length-limited, so keep the directory short.
	dir, err := os.MkdirTemp("/tmp", "exc")
	if err != nil {
		t.Skipf("no short temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("TMPDIR", "")
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	ln, err := net.Listen("unix", filepath.Join(dir, "discord-ipc-0"))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	fd := &fakeDiscord{commands: make(chan command, 64), closed: make(chan struct{})}
	go fd.serve(t, ln)
	return fd
}

func (fd *fakeDiscord) serve(t *testing.T, ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	defer close(fd.closed)

	if op, _, err := discord.DecodeFrame(conn); err != nil || op != discord.OpHandshake {
		t.Errorf("handshake: op=%d err=%v", op, err)
		return
	}
	fd.reply(t, conn, map[string]any{"cmd": "DISPATCH", "evt": "READY"})

	for {
		op, payload, err := discord.DecodeFrame(conn)
		if err != nil || op == discord.OpClose {
			return
		}
		var req struct {
			Cmd   string `json:"cmd"`
			Nonce string `json:"nonce"`
			Args  struct {
				Activity *discord.Activity `json:"activity"`
			} `json:"args"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			t.Errorf("bad command payload %q: %v", payload, err)
			return
		}
		if req.Cmd == "SET_ACTIVITY" {
			fd.commands <- command{Activity: req.Args.Activity}
		}
		fd.reply(t, conn, map[string]any{"cmd": req.Cmd, "evt": nil, "nonce": req.Nonce})
	}
}

func (fd *fakeDiscord) reply(t *testing.T, conn net.Conn, v any) {
	payload, _ := json.Marshal(v)
	frame, err := discord.EncodeFrame(discord.OpFrame, payload)
	if err != nil {
		t.Errorf("encode reply: %v", err)
		return
	}
	conn.Write(frame)
}

// next waits for the next command.
func (fd *fakeDiscord) next(t *testing.T) command {
	t.Helper()
	select {
	case c := <-fd.commands:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a presence command")
		return command{}
	}
}

// nextWithState skips commands until one carries state.
func (fd *fakeDiscord) nextWithState(t *testing.T, state string) *discord.Activity {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-fd.commands:
			if c.Activity != nil && c.Activity.State == state {
				return c.Activity
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", state)
			return nil
		}
	}
}

// waitForClear skips commands until a clear arrives.
func (fd *fakeDiscord) waitForClear(t *testing.T) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-fd.commands:
			if c.Activity == nil {
				return
			}
		case <-deadline:
			t.Fatal("presence was not cleared on close")
		}
	}
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

const (
	prefix     = "2024/12/10 21:44:07 1185468 cffb0734 [INFO Client 23456] "
	levelUp    = prefix + ": Hero (Stormweaver) is now level 12"
	levelUp13  = prefix + ": Hero (Stormweaver) is now level 13"
	enterRiver = prefix + `Generating level 3 area "G1_1" with seed 4033411340`
	enterMap   = prefix + `Generating level 65 area "MapCrypt_NoBoss" with seed 1`
)

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\r\n"); err != nil {
			t.Fatal(err)
		}
	}
}

func serveLocations(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"areas": {"G1_1": "The Riverbank", "Crypt": "Crypt"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// ///////////////////////////////////////////////
// Tests
// ///////////////////////////////////////////////

func TestPresencePipeline(t *testing.T) {
	fd := startFakeDiscord(t)
	dir := t.TempDir()

	logPath := filepath.Join(dir, "Client.txt")
	if err := os.WriteFile(logPath, []byte(prefix+"startup\r\n"+levelUp+"\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := discord.NewClient("1315800372207419504")
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	table := locations.Load(t.Context(), locations.Source{
		URL:       serveLocations(t),
		CachePath: filepath.Join(dir, "locations.json"),
	})
	parser := gamelog.DefaultParser(table)

	watcher, err := gamelog.NewWatcher(logPath)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer watcher.Close()

	started := time.Date(2024, 12, 10, 21, 0, 0, 0, time.UTC)
	mon := monitor.New(monitor.Options{
		LogPath:    logPath,
		Parser:     parser,
		Renderer:   &gamelog.Renderer{Intn: func(int) int { return 0 }},
		Presence:   client,
		Interval:   20 * time.Millisecond,
		Started:    started,
		LargeImage: "poe2",
		LargeText:  "Path of Exile 2",
	})
	if err := mon.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	seed := fd.next(t).Activity
	if seed == nil {
		t.Fatal("seed push cleared the activity")
	}
	if seed.Details != "Hero - Sorceress Stormweaver - Level 12" || seed.State != gamelog.FlavorStatuses[0] {
		t.Errorf("seed = %q / %q", seed.Details, seed.State)
	}
	if seed.Assets == nil || seed.Assets.SmallImage != "stormweaver" || seed.Assets.LargeImage != "poe2" {
		t.Errorf("seed assets = %+v", seed.Assets)
	}
	if seed.Timestamps == nil || seed.Timestamps.Start != started.Unix() {
		t.Errorf("seed timestamps = %+v", seed.Timestamps)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx, watcher.Events()) }()

	appendLines(t, logPath, enterRiver)
	fd.nextWithState(t, "In: The Riverbank (Lvl 3)")

	appendLines(t, logPath, levelUp13, enterMap)
	got := fd.nextWithState(t, "In: Crypt (Lvl 65)")
	if got.Details != "Hero - Sorceress Stormweaver - Level 13" {
		t.Errorf("details = %q", got.Details)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	fd.waitForClear(t)
	select {
	case <-fd.closed:
	case <-time.After(5 * time.Second):
		t.Error("fake Discord did not see the connection close")
	}

	if _, err := os.Stat(filepath.Join(dir, "locations.json")); err != nil {
		t.Errorf("locations cache not written: %v", err)
	}
}

func TestPresencePipeline_DiscordUnavailable(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "exc")
	if err != nil {
		t.Skipf("no short temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("TMPDIR", "")
	t.Setenv("TMP", "")
	t.Setenv("TEMP", "")

	logPath := filepath.Join(t.TempDir(), "Client.txt")
	if err := os.WriteFile(logPath, []byte(levelUp+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := discord.NewClient("1315800372207419504")
	if err := client.Connect(); err == nil {
		client.Close()
		t.Skip("a real Discord socket is reachable")
	}

	mon := monitor.New(monitor.Options{
		LogPath:  logPath,
		Parser:   gamelog.DefaultParser(locations.NewTable()),
		Presence: client,
		Interval: 10 * time.Millisecond,
	})
	if err := mon.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	appendLines(t, logPath, enterRiver)
	if err := mon.Run(ctx, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := mon.Status()
	if st.Level == nil || st.Instance == nil || st.Instance.LocationName != "G1_1" {
		t.Errorf("status = %+v, want level and unresolved instance", st)
	}
}
