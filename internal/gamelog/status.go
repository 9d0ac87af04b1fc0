package gamelog

import "time"

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is the running snapshot folded from log events. The zero value is
// an empty snapshot with AFK off and the blink phase never switched.
//
// Status is not safe for concurrent use; it is owned by a single loop.
type Status struct {
	// Level is the most recent level-up, or nil before one has been seen.
	// Nothing is rendered while Level is nil.
	Level *LevelUp
	// Instance is the most recent instance change, or nil.
	Instance *InstanceChange
	// AFK is the most recent AFK toggle.
	AFK bool

	// afkToggle is the blink phase: true while the AFK marker is shown.
	afkToggle bool
	// lastSwitch is when afkToggle last flipped.
	lastSwitch time.Time
}

// Fold runs every parser over line and records each match, later events
// overwriting earlier ones of the same kind. It reports whether the line
// changed the snapshot.
func (s *Status) Fold(p *Parser, line string) bool {
	changed := false
	if ev, ok := p.ParseLevelUp(line); ok {
		if s.Level == nil || *s.Level != ev {
			s.Level = &ev
			changed = true
		}
	}
	if ev, ok := p.ParseInstanceChange(line); ok {
		if s.Instance == nil || *s.Instance != ev {
			s.Instance = &ev
			changed = true
		}
	}
	if on, ok := p.ParseAFK(line); ok {
		s.AFK = on
		changed = true
	}
	return changed
}

// FoldLines folds each line in order and reports whether any changed the
// snapshot.
func (s *Status) FoldLines(p *Parser, lines []string) bool {
	changed := false
	for _, line := range lines {
		if s.Fold(p, line) {
			changed = true
		}
	}
	return changed
}

// Blinking reports the current blink phase.
func (s *Status) Blinking() bool {
	return s.afkToggle
}

// advanceBlink flips the blink phase when at least interval has passed since
// the previous flip.
func (s *Status) advanceBlink(now time.Time, interval time.Duration) {
	if now.Sub(s.lastSwitch) >= interval {
		s.afkToggle = !s.afkToggle
		s.lastSwitch = now
	}
}
