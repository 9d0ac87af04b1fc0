package gamelog

import (
	"math/rand/v2"
	"strings"
	"time"
)

// AFKText is the state line shown during the "on" phase of the AFK blink.
const AFKText = "💤 AFK mode enabled"

// DefaultBlinkInterval is the minimum time between AFK blink flips.
const DefaultBlinkInterval = 3 * time.Second

// FlavorStatuses are the idle state lines drawn when no instance or AFK state
// applies.
var FlavorStatuses = [...]string{
	"Exploring ancient ruins",
	"Leveling up your skills",
	"Defeating hordes of enemies",
	"Looting rare artifacts",
	"Crossing dark portals",
	"Enhancing powerful gear",
	"Learning forbidden magic",
	"Tracking down the next boss",
	"Joining the fight in the league",
	"Preparing for the final encounter",
}

// ///////////////////////////////////////////////
// Presentation
// ///////////////////////////////////////////////

// Presentation is the rendered presence text.
type Presentation struct {
	// Details is the top line: "<user> - <class>[ <ascendency>] - Level <n>".
	Details string
	// State is the bottom line: AFK marker, current instance, or flavor text.
	State string
	// SmallImage is the asset key derived from the ascendency name.
	SmallImage string
}

// ///////////////////////////////////////////////
// Renderer
// ///////////////////////////////////////////////

// Renderer synthesizes a [Presentation] from a [Status]. The zero value uses
// [DefaultBlinkInterval], the wall clock and math/rand/v2.
type Renderer struct {
	// BlinkInterval is the minimum time between AFK blink flips.
	BlinkInterval time.Duration
	// Now returns the current time. Tests replace it with a fake clock.
	Now func() time.Time
	// Intn returns a pseudo-random int in [0, n). Tests replace it to make
	// flavor draws deterministic.
	Intn func(n int) int
}

// Render renders s. It returns false without touching s when no level-up has
// been folded yet.
//
// While AFK, rendering advances the blink phase as a side effect, so the
// blink only moves as often as Render is called.
func (r *Renderer) Render(s *Status) (Presentation, bool) {
	if s.Level == nil {
		return Presentation{}, false
	}
	p := Presentation{
		Details:    FormatDetails(*s.Level),
		SmallImage: SmallImageKey(*s.Level),
	}

	if s.AFK {
		s.advanceBlink(r.now(), r.blinkInterval())
		if s.afkToggle {
			p.State = AFKText
			return p, true
		}
	}

	if s.Instance != nil {
		p.State = FormatInstance(*s.Instance)
	} else {
		p.State = r.Flavor()
	}
	return p, true
}

// RenderSeed renders the presentation pushed right after the history scan,
// before any live line has been observed. The state is always a flavor line.
func (r *Renderer) RenderSeed(lu LevelUp) Presentation {
	return Presentation{
		Details:    FormatDetails(lu),
		State:      r.Flavor(),
		SmallImage: SmallImageKey(lu),
	}
}

// Flavor draws one of [FlavorStatuses].
func (r *Renderer) Flavor() string {
	intn := r.Intn
	if intn == nil {
		intn = rand.IntN
	}
	return FlavorStatuses[intn(len(FlavorStatuses))]
}

func (r *Renderer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Renderer) blinkInterval() time.Duration {
	if r.BlinkInterval <= 0 {
		return DefaultBlinkInterval
	}
	return r.BlinkInterval
}

// ///////////////////////////////////////////////
// Formatting
// ///////////////////////////////////////////////

// FormatDetails builds the details line. The ascendency segment is omitted
// when the ascendency is unknown.
func FormatDetails(lu LevelUp) string {
	var b strings.Builder
	b.WriteString(lu.Username)
	b.WriteString(" - ")
	b.WriteString(lu.BaseClass)
	if lu.AscensionClass != UnknownAscendency {
		b.WriteString(" ")
		b.WriteString(lu.AscensionClass)
	}
	b.WriteString(" - Level ")
	b.WriteString(lu.Level)
	return b.String()
}

// FormatInstance builds the "In: <name> (Lvl <level>)" state line.
func FormatInstance(ic InstanceChange) string {
	return "In: " + ic.LocationName + " (Lvl " + ic.LocationLevel + ")"
}

// SmallImageKey lowercases the ascendency name and replaces spaces with
// underscores. An unknown ascendency yields "unknown".
func SmallImageKey(lu LevelUp) string {
	return strings.ReplaceAll(strings.ToLower(lu.AscensionClass), " ", "_")
}
