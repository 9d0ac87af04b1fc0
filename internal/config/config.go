// Package config provides configuration loading and defaults for the
// exilecord daemon.
//
// Configuration is loaded from a TOML file in the user's data directory,
// migrated to the current schema, then overlaid with EXILECORD_* environment
// variables. Missing keys keep their defaults.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/caarlos0/env/v11"
	"tools.zach/dev/exilecord/internal/atomicfile"
	"tools.zach/dev/exilecord/internal/gamelog"
	"tools.zach/dev/exilecord/internal/locations"
	"tools.zach/dev/exilecord/internal/migrate"
	"tools.zach/dev/exilecord/internal/paths"
)

// DefaultDiscordAppID is the Path of Exile 2 Rich Presence application ID.
const DefaultDiscordAppID = "1315800372207419504"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version   int             `toml:"version"`
	Discord   DiscordConfig   `toml:"discord"`
	Display   DisplayConfig   `toml:"display"`
	Game      GameConfig      `toml:"game"`
	Locations LocationsConfig `toml:"locations"`
	Behavior  BehaviorConfig  `toml:"behavior"`
	Patterns  PatternsConfig  `toml:"patterns"`
	Log       LogConfig       `toml:"log"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// AppID is the Discord application ID for Rich Presence.
	AppID string `toml:"app_id" env:"EXILECORD_DISCORD_APP_ID"`
}

// DisplayConfig holds the static parts of the presence.
type DisplayConfig struct {
	// LargeImage is the Discord asset key for the large image. Empty omits it.
	LargeImage string `toml:"large_image" env:"EXILECORD_DISPLAY_LARGE_IMAGE"`
	// LargeText is the tooltip for the large image.
	LargeText string `toml:"large_text" env:"EXILECORD_DISPLAY_LARGE_TEXT"`
}

// GameConfig controls how the game client and its log are found.
type GameConfig struct {
	// ProcessNames are doublestar glob patterns matched against process names.
	ProcessNames []string `toml:"process_names" env:"EXILECORD_GAME_PROCESS_NAMES" envSeparator:","`
	// LogPath skips process discovery when set.
	LogPath string `toml:"log_path" env:"EXILECORD_GAME_LOG_PATH"`
	// DiscoveryIntervalSeconds is the process table polling interval.
	DiscoveryIntervalSeconds int `toml:"discovery_interval_seconds" env:"EXILECORD_GAME_DISCOVERY_INTERVAL_SECONDS"`
}

// LocationsConfig controls the area name table.
type LocationsConfig struct {
	// URL is the remote locations document, fetched when the cache is absent.
	URL string `toml:"url" env:"EXILECORD_LOCATIONS_URL"`
	// CacheFile is the local copy, relative to the data directory unless absolute.
	CacheFile string `toml:"cache_file" env:"EXILECORD_LOCATIONS_CACHE_FILE"`
}

// BehaviorConfig holds daemon timing settings.
type BehaviorConfig struct {
	// PollIntervalSeconds is the presence push cadence.
	PollIntervalSeconds int `toml:"poll_interval_seconds" env:"EXILECORD_BEHAVIOR_POLL_INTERVAL_SECONDS"`
	// AFKBlinkSeconds is the AFK text blink half-period.
	AFKBlinkSeconds int `toml:"afk_blink_seconds" env:"EXILECORD_BEHAVIOR_AFK_BLINK_SECONDS"`
	// ConnectAttempts is the number of initial Discord connection attempts.
	ConnectAttempts int `toml:"connect_attempts" env:"EXILECORD_BEHAVIOR_CONNECT_ATTEMPTS"`
	// ConnectBackoffSeconds is the first wait between attempts; it doubles after each.
	ConnectBackoffSeconds int `toml:"connect_backoff_seconds" env:"EXILECORD_BEHAVIOR_CONNECT_BACKOFF_SECONDS"`
	// ReconnectIntervalSeconds throttles reconnects after the link drops. 0 disables them.
	ReconnectIntervalSeconds int `toml:"reconnect_interval_seconds" env:"EXILECORD_BEHAVIOR_RECONNECT_INTERVAL_SECONDS"`
}

// PatternsConfig overrides the log line patterns, e.g. for localized clients.
// Empty fields use the built-in English patterns.
type PatternsConfig struct {
	LevelUp  string `toml:"level_up"`
	Instance string `toml:"instance"`
	AFK      string `toml:"afk"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level" env:"EXILECORD_LOG_LEVEL"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb" env:"EXILECORD_LOG_MAX_SIZE_MB"`
	// Console mirrors log output to stderr.
	Console bool `toml:"console" env:"EXILECORD_LOG_CONSOLE"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: migrate.Config.CurrentVersion,
		Discord: DiscordConfig{
			AppID: DefaultDiscordAppID,
		},
		Game: GameConfig{
			ProcessNames:             []string{"PathOfExileSteam.exe", "PathOfExile.exe"},
			DiscoveryIntervalSeconds: 3,
		},
		Locations: LocationsConfig{
			URL:       locations.DefaultURL,
			CacheFile: paths.LocationsCacheFile,
		},
		Behavior: BehaviorConfig{
			PollIntervalSeconds:      5,
			AFKBlinkSeconds:          3,
			ConnectAttempts:          5,
			ConnectBackoffSeconds:    2,
			ReconnectIntervalSeconds: 0,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			Console:   true,
		},
	}
}

// ParserPatterns returns the pattern overrides for gamelog.NewParser. Empty
// overrides select the built-in patterns.
func (c *Config) ParserPatterns() gamelog.Patterns {
	return gamelog.Patterns{
		LevelUp:  c.Patterns.LevelUp,
		Instance: c.Patterns.Instance,
		AFK:      c.Patterns.AFK,
	}
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml over the defaults, migrating it first if it
// is from an older schema, then applies environment overrides. A missing
// file yields the defaults (still overridden by the environment).
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		version := PeekVersion(data)
		migrated := migrate.Config.NeedsMigration(version)
		if migrated {
			if backupErr := os.WriteFile(path+".bak", data, 0o644); backupErr != nil {
				slog.Warn("failed to write config backup", "error", backupErr)
			}
			if data, _, err = migrate.Config.Run(data, version); err != nil {
				return nil, fmt.Errorf("migrate config: %w", err)
			}
		}

		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if migrate.Config.Newer(version) {
			slog.Warn("config written by a newer exilecord, unknown keys are ignored", "version", version)
		} else {
			cfg.Version = migrate.Config.CurrentVersion
		}

		if migrated {
			if err := cfg.Save(path); err != nil {
				slog.Warn("failed to save migrated config", "error", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as annotated TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, annotate(buf.Bytes()), 0o644)
}

// annotate inserts the section comments from sectionDocs above each table
// header of an encoded config.
func annotate(encoded []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(encoded))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "[") {
			name := strings.Trim(line, "[] ")
			if doc, ok := sectionDocs[name]; ok {
				for _, l := range strings.Split(doc, "\n") {
					out.WriteString("# " + l + "\n")
				}
			}
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges
// and that pattern overrides compile with the expected capture groups.
func (c *Config) Validate() error {
	if c.Discord.AppID == "" {
		return fmt.Errorf("discord.app_id must not be empty")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.Game.LogPath == "" && len(c.Game.ProcessNames) == 0 {
		return fmt.Errorf("game.process_names must not be empty when game.log_path is unset")
	}
	for _, p := range c.Game.ProcessNames {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid game.process_names pattern %q", p)
		}
	}
	if c.Game.DiscoveryIntervalSeconds <= 0 {
		return fmt.Errorf("game.discovery_interval_seconds must be > 0, got %d", c.Game.DiscoveryIntervalSeconds)
	}

	b := c.Behavior
	if b.PollIntervalSeconds <= 0 {
		return fmt.Errorf("behavior.poll_interval_seconds must be > 0, got %d", b.PollIntervalSeconds)
	}
	if b.AFKBlinkSeconds <= 0 {
		return fmt.Errorf("behavior.afk_blink_seconds must be > 0, got %d", b.AFKBlinkSeconds)
	}
	if b.ConnectAttempts <= 0 {
		return fmt.Errorf("behavior.connect_attempts must be > 0, got %d", b.ConnectAttempts)
	}
	if b.ConnectBackoffSeconds < 0 {
		return fmt.Errorf("behavior.connect_backoff_seconds must be >= 0, got %d", b.ConnectBackoffSeconds)
	}
	if b.ReconnectIntervalSeconds < 0 {
		return fmt.Errorf("behavior.reconnect_interval_seconds must be >= 0, got %d", b.ReconnectIntervalSeconds)
	}

	patterns := []struct {
		key    string
		src    string
		groups int
	}{
		{"patterns.level_up", c.Patterns.LevelUp, gamelog.LevelUpGroups},
		{"patterns.instance", c.Patterns.Instance, gamelog.InstanceGroups},
		{"patterns.afk", c.Patterns.AFK, gamelog.AFKGroups},
	}
	for _, p := range patterns {
		if err := gamelog.ValidatePattern(p.src, p.groups); err != nil {
			return fmt.Errorf("invalid %s: %w", p.key, err)
		}
	}

	return nil
}
