// Package migrate upgrades versioned on-disk files one schema step at a time.
package migrate

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Migration upgrades data to Version from the version before it.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade rewrites the file contents.
	Upgrade func(data []byte) ([]byte, error)
}

func byVersion(a, b Migration) int { return cmp.Compare(a.Version, b.Version) }

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Registry holds the schema version a file kind should be at and the
// migrations that get it there.
type Registry struct {
	// CurrentVersion is the version this build writes.
	CurrentVersion int
	// Migrations are the registered upgrades, kept in version order by
	// [Registry.Register].
	Migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{CurrentVersion: 1}

// Register adds m in version order. It panics if m.Version is already taken.
func (r *Registry) Register(m Migration) {
	i, found := slices.BinarySearchFunc(r.Migrations, m, byVersion)
	if found {
		panic(fmt.Sprintf("migrate: duplicate migration version %d (%q)", m.Version, m.Description))
	}
	r.Migrations = slices.Insert(r.Migrations, i, m)
}

// Newer reports whether fileVersion was written by a later build than this one.
func (r *Registry) Newer(fileVersion int) bool {
	return fileVersion > r.CurrentVersion
}

// NeedsMigration reports whether a file at fileVersion must be upgraded and
// rewritten. Files from a newer build never need it.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	if r.Newer(fileVersion) {
		return false
	}
	if fileVersion < r.CurrentVersion {
		return true
	}
	return slices.ContainsFunc(r.Migrations, func(m Migration) bool {
		return m.Version > fileVersion
	})
}

// Run applies every migration above fromVersion in order and returns the
// upgraded data with the version reached. On failure the version is the last
// one that succeeded.
func (r *Registry) Run(data []byte, fromVersion int) ([]byte, int, error) {
	pending := slices.Clone(r.Migrations)
	slices.SortFunc(pending, byVersion)

	version := fromVersion
	for _, m := range pending {
		if m.Version <= version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		out, err := m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		data, version = out, m.Version
	}
	return data, version, nil
}
