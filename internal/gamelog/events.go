// Package gamelog turns the game client's append-only text log into a
// presence status.
//
// The package provides four capabilities:
//
//   - Parsing: [Parser] matches single log lines against the level-up,
//     instance-generation and AFK patterns, yielding typed events.
//   - Folding: [Status] keeps the latest event of each kind.
//   - Rendering: [Renderer] synthesizes the details/state pair shown on the
//     presence card, including the AFK blink.
//   - Reading: [Tail] and [LastLevelUp] read the log incrementally and
//     backward, and [Watcher] signals when the log grows.
package gamelog

import (
	"fmt"
	"regexp"
	"strings"
)

// UnknownAscendency is the AscensionClass of a level-up whose class token is
// not an ascendency name.
const UnknownAscendency = "Unknown"

// ///////////////////////////////////////////////
// Event Types
// ///////////////////////////////////////////////

// LevelUp is produced by a "<user> (<class>) is now level <n>" line.
type LevelUp struct {
	// Username is the character name, captured verbatim.
	Username string
	// BaseClass is the base class mapped from the ascendency, or the raw class
	// token when the token is not a known ascendency.
	BaseClass string
	// AscensionClass is the ascendency name or [UnknownAscendency].
	AscensionClass string
	// Level is the new character level as printed in the log.
	Level string
}

// InstanceChange is produced by a 'Generating level <n> area "<area>"' line.
type InstanceChange struct {
	// LocationName is the resolved display name, or the raw area token when
	// resolution yields nothing.
	LocationName string
	// LocationLevel is the area level as printed in the log.
	LocationLevel string
}

// ///////////////////////////////////////////////
// Patterns
// ///////////////////////////////////////////////

// Default line patterns. Word classes are Unicode-aware so character names
// with non-ASCII letters still match.
const (
	DefaultLevelUpPattern  = `: ([\p{L}\p{N}_]+) \(([\p{L}\p{N}_\s]+)\) is now level (\d+)`
	DefaultInstancePattern = `Generating level (\d+) area "([^"]+)" with seed (\d+)`
	DefaultAFKPattern      = `: AFK mode is now ([\p{L}\p{N}_]+)`
)

// Capture group counts every pattern, default or override, must have.
const (
	LevelUpGroups  = 3 // user, class, level
	InstanceGroups = 3 // level, area, seed
	AFKGroups      = 1 // state word
)

// Patterns holds the source text of the three line patterns. Empty fields
// fall back to the defaults.
type Patterns struct {
	LevelUp  string
	Instance string
	AFK      string
}

// Resolver maps a raw area token to a display name.
type Resolver interface {
	Resolve(area string) string
}

// Parser matches log lines against compiled patterns. A Parser is safe for
// concurrent use; it holds no per-line state.
type Parser struct {
	levelUp  *regexp.Regexp
	instance *regexp.Regexp
	afk      *regexp.Regexp
	resolver Resolver
}

// NewParser compiles p and returns a Parser that resolves area tokens with r.
// A nil r leaves area tokens unresolved. Each pattern must compile and must
// have the same number of capture groups as its default.
func NewParser(p Patterns, r Resolver) (*Parser, error) {
	levelUp, err := compilePattern("level_up", p.LevelUp, DefaultLevelUpPattern, LevelUpGroups)
	if err != nil {
		return nil, err
	}
	instance, err := compilePattern("instance", p.Instance, DefaultInstancePattern, InstanceGroups)
	if err != nil {
		return nil, err
	}
	afk, err := compilePattern("afk", p.AFK, DefaultAFKPattern, AFKGroups)
	if err != nil {
		return nil, err
	}
	return &Parser{levelUp: levelUp, instance: instance, afk: afk, resolver: r}, nil
}

// DefaultParser returns a Parser using the built-in patterns.
func DefaultParser(r Resolver) *Parser {
	p, err := NewParser(Patterns{}, r)
	if err != nil {
		panic(err)
	}
	return p
}

// ValidatePattern reports whether src compiles with exactly groups capture
// groups. An empty src is valid (it selects the default).
func ValidatePattern(src string, groups int) error {
	if src == "" {
		return nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return err
	}
	if n := re.NumSubexp(); n != groups {
		return fmt.Errorf("pattern %q has %d capture groups, want %d", src, n, groups)
	}
	return nil
}

func compilePattern(name, src, def string, groups int) (*regexp.Regexp, error) {
	if src == "" {
		src = def
	}
	if err := ValidatePattern(src, groups); err != nil {
		return nil, fmt.Errorf("%s pattern: %w", name, err)
	}
	return regexp.MustCompile(src), nil
}

// ///////////////////////////////////////////////
// Parsing
// ///////////////////////////////////////////////

// ParseLevelUp extracts a level-up event from line. When the class token is a
// known ascendency, BaseClass is its mapped class; otherwise AscensionClass is
// [UnknownAscendency] and BaseClass is the token as captured.
func (p *Parser) ParseLevelUp(line string) (LevelUp, bool) {
	m := p.levelUp.FindStringSubmatch(line)
	if m == nil {
		return LevelUp{}, false
	}
	token := strings.TrimSpace(m[2])
	ev := LevelUp{
		Username:       m[1],
		BaseClass:      token,
		AscensionClass: UnknownAscendency,
		Level:          m[3],
	}
	if asc, ok := LookupAscendency(token); ok {
		ev.AscensionClass = string(asc)
		ev.BaseClass = string(asc.Class())
	}
	return ev, true
}

// ParseInstanceChange extracts an instance change from line. The seed is
// matched but dropped.
func (p *Parser) ParseInstanceChange(line string) (InstanceChange, bool) {
	m := p.instance.FindStringSubmatch(line)
	if m == nil {
		return InstanceChange{}, false
	}
	area := m[2]
	name := area
	if p.resolver != nil {
		if resolved := p.resolver.Resolve(area); resolved != "" {
			name = resolved
		}
	}
	return InstanceChange{LocationName: name, LocationLevel: m[1]}, true
}

// ParseAFK reports the AFK state announced by line. Any word other than "on"
// (case-insensitive) yields false; ok is false only when the line does not
// match.
func (p *Parser) ParseAFK(line string) (on, ok bool) {
	m := p.afk.FindStringSubmatch(line)
	if m == nil {
		return false, false
	}
	return strings.ToUpper(m[1]) == "ON", true
}
