// Package paths centralizes file and directory names used across the project.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile            = "exilecord.pid"
	ConfigFile         = "config.toml"
	LogFile            = "exilecord.log"
	LocationsCacheFile = "locations.json"
)

// DataDirRel is the default data directory, relative to $HOME.
const DataDirRel = ".exilecord"

// Game client layout: the log lives in logs/ next to the executable.
const (
	GameLogDir  = "logs"
	GameLogFile = "Client.txt"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the daemon's own log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Resolve returns name joined to the data directory, or name itself when it
// is already absolute.
func (d DataDir) Resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.Root, name)
}

// GameLog returns the game log path for a client executable.
func GameLog(exe string) string {
	return filepath.Join(filepath.Dir(exe), GameLogDir, GameLogFile)
}
