// Package main implements the exilecord daemon, which follows the Path of
// Exile 2 client log and publishes the character's progress as Discord Rich
// Presence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"
	"tools.zach/dev/exilecord/internal/config"
	"tools.zach/dev/exilecord/internal/discord"
	"tools.zach/dev/exilecord/internal/game"
	"tools.zach/dev/exilecord/internal/gamelog"
	"tools.zach/dev/exilecord/internal/locations"
	"tools.zach/dev/exilecord/internal/logger"
	"tools.zach/dev/exilecord/internal/monitor"
	"tools.zach/dev/exilecord/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags (-X main.version=...). Bare go
// builds fall back to the VCS info embedded by the toolchain.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state produce a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.exilecord, or ./.exilecord when the home
// directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// seconds converts a config value in seconds to a Duration.
func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(daemon())
}

// daemon performs startup, runs the presence loop until a shutdown signal and
// returns the process exit code. Only startup failures are non-zero.
func daemon() int {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, logs and the locations cache")
	flag.Parse()

	dataPaths := DataPaths{Root: *dataDir}

	if err := os.MkdirAll(dataPaths.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		return 1
	}

	if alive, pid := checkStalePID(dataPaths); alive {
		fmt.Fprintf(os.Stderr, "daemon already running (pid %d)\n", pid)
		return 1
	}

	if _, err := os.Stat(dataPaths.Config()); errors.Is(err, os.ErrNotExist) {
		if err := config.DefaultConfig().Save(dataPaths.Config()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
		}
	}

	cfg, err := config.Load(dataPaths.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		return 1
	}

	var mirror io.Writer
	if cfg.Log.Console {
		mirror = os.Stderr
	}
	log, logCloser, err := logger.NewLogger(dataPaths.Log(), logger.ParseLevel(cfg.Log.Level), cfg.Log.MaxSizeMB, mirror)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("exilecord starting", "version", resolveVersion(), "data_dir", dataPaths.Root)

	token := pidToken()
	pidFile, err := writePID(dataPaths, token)
	if err != nil {
		logger.Fail("failed to write PID file", "error", err)
		return 1
	}
	defer removePID(dataPaths, token, pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	if err := run(ctx, cfg, dataPaths); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fail("daemon stopped", "error", err)
		return 1
	}
	slog.Info("received shutdown signal, exiting")
	return 0
}

// ///////////////////////////////////////////////
// Presence Session
// ///////////////////////////////////////////////

// run connects to Discord, waits for the game client and its log, loads the
// location table, seeds the status and follows the log until ctx is done.
func run(ctx context.Context, cfg *config.Config, dataPaths DataPaths) error {
	client := discord.NewClient(cfg.Discord.AppID)
	defer client.Close()

	err := connectWithBackoff(ctx, client, cfg.Behavior.ConnectAttempts, seconds(cfg.Behavior.ConnectBackoffSeconds))
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		slog.Error("could not connect to Discord, presence updates will fail until it is reachable", "error", err)
	default:
		slog.Info("connected to Discord")
	}

	discoveryInterval := seconds(cfg.Game.DiscoveryIntervalSeconds)
	finder := game.NewFinder(cfg.Game.ProcessNames, discoveryInterval)

	logPath := cfg.Game.LogPath
	if logPath == "" {
		if logPath, err = finder.WaitForLog(ctx); err != nil {
			return err
		}
	} else {
		slog.Info("using configured game log", "path", logPath)
	}
	if err := waitForFile(ctx, logPath, discoveryInterval); err != nil {
		return err
	}

	table := locations.Load(ctx, locations.Source{
		URL:       cfg.Locations.URL,
		CachePath: dataPaths.Resolve(cfg.Locations.CacheFile),
	})

	parser, err := gamelog.NewParser(cfg.ParserPatterns(), table)
	if err != nil {
		return fmt.Errorf("building log parser: %w", err)
	}

	watcher, err := gamelog.NewWatcher(logPath)
	if err != nil {
		return fmt.Errorf("watching game log: %w", err)
	}
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for file watching")
	}

	mon := monitor.New(monitor.Options{
		LogPath:        logPath,
		Parser:         parser,
		Renderer:       &gamelog.Renderer{BlinkInterval: seconds(cfg.Behavior.AFKBlinkSeconds)},
		Presence:       client,
		Interval:       seconds(cfg.Behavior.PollIntervalSeconds),
		Started:        finder.StartTime(ctx),
		LargeImage:     cfg.Display.LargeImage,
		LargeText:      cfg.Display.LargeText,
		ReconnectEvery: seconds(cfg.Behavior.ReconnectIntervalSeconds),
	})
	if err := mon.Seed(); err != nil {
		return fmt.Errorf("seeding from game log: %w", err)
	}
	return mon.Run(ctx, watcher.Events())
}

// ///////////////////////////////////////////////
// Connect with Backoff
// ///////////////////////////////////////////////

// maxConnectWait caps a single wait between connection attempts.
const maxConnectWait = 5 * time.Minute

// connector is the part of [discord.Client] the initial connect needs.
type connector interface {
	Connect() error
}

// connectWithBackoff calls c.Connect up to attempts times. The wait after the
// first failure is initial and doubles after each further failure. It returns
// the last connect error once attempts are exhausted, or ctx.Err() when ctx
// is cancelled while waiting.
func connectWithBackoff(ctx context.Context, c connector, attempts int, initial time.Duration) error {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxConnectWait,
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.Connect()
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(max(attempts, 1))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("Discord connect attempt failed", "attempt", attempt, "retry_in", wait, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting after %d attempts: %w", attempt, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Log File Wait
// ///////////////////////////////////////////////

// waitForFile blocks until path exists, checking every interval. The game
// creates its log a moment after the process appears.
func waitForFile(ctx context.Context, path string, interval time.Duration) error {
	if interval <= 0 {
		interval = game.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logged := false
	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking game log: %w", err)
		}
		if !logged {
			slog.Info("waiting for game log to appear", "path", path)
			logged = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
