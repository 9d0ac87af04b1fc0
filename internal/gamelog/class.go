package gamelog

// ///////////////////////////////////////////////
// Character Classes
// ///////////////////////////////////////////////

// CharacterClass is one of the seven base classes a character can be created as.
type CharacterClass string

const (
	Mercenary CharacterClass = "Mercenary"
	Monk      CharacterClass = "Monk"
	Ranger    CharacterClass = "Ranger"
	Sorceress CharacterClass = "Sorceress"
	Warrior   CharacterClass = "Warrior"
	Witch     CharacterClass = "Witch"
	Huntress  CharacterClass = "Huntress"
)

// Classes lists every base class in display order.
var Classes = []CharacterClass{Mercenary, Monk, Ranger, Sorceress, Warrior, Witch, Huntress}

// ///////////////////////////////////////////////
// Ascendencies
// ///////////////////////////////////////////////

// Ascendency is a second-tier specialization chosen within a base class. The
// game log reports the ascendency in place of the base class once one has been
// picked.
type Ascendency string

const (
	Witchhunter        Ascendency = "Witchhunter"
	GemlingLegionnaire Ascendency = "Gemling Legionnaire"
	AcolyteOfChayula   Ascendency = "Acolyte of Chayula"
	Invoker            Ascendency = "Invoker"
	Deadeye            Ascendency = "Deadeye"
	Pathfinder         Ascendency = "Pathfinder"
	Chronomancer       Ascendency = "Chronomancer"
	Stormweaver        Ascendency = "Stormweaver"
	Titan              Ascendency = "Titan"
	Warbringer         Ascendency = "Warbringer"
	BloodMage          Ascendency = "Blood Mage"
	Infernalist        Ascendency = "Infernalist"
	Ritualist          Ascendency = "Ritualist"
	Amazon             Ascendency = "Amazon"
	SmithOfKitava      Ascendency = "Smith of Kitava"
	Lich               Ascendency = "Lich"
	Tactician          Ascendency = "Tactician"
)

// classAscendencies is the forward mapping. Tactician, Smith of Kitava and
// Lich are intentionally absent: they only appear in ascendencyClass.
var classAscendencies = map[CharacterClass][]Ascendency{
	Mercenary: {Witchhunter, GemlingLegionnaire},
	Monk:      {AcolyteOfChayula, Invoker},
	Ranger:    {Deadeye, Pathfinder},
	Sorceress: {Chronomancer, Stormweaver},
	Warrior:   {Titan, Warbringer},
	Witch:     {BloodMage, Infernalist},
	Huntress:  {Ritualist, Amazon},
}

// ascendencyClass is the inverse mapping, total over every Ascendency value.
var ascendencyClass = map[Ascendency]CharacterClass{
	Witchhunter:        Mercenary,
	GemlingLegionnaire: Mercenary,
	Tactician:          Mercenary,
	AcolyteOfChayula:   Monk,
	Invoker:            Monk,
	Deadeye:            Ranger,
	Pathfinder:         Ranger,
	Chronomancer:       Sorceress,
	Stormweaver:        Sorceress,
	Titan:              Warrior,
	Warbringer:         Warrior,
	SmithOfKitava:      Warrior,
	BloodMage:          Witch,
	Infernalist:        Witch,
	Lich:               Witch,
	Ritualist:          Huntress,
	Amazon:             Huntress,
}

// Ascendencies returns the two ascendencies offered to c. The returned slice
// is a copy. Unknown classes return nil.
func (c CharacterClass) Ascendencies() []Ascendency {
	asc, ok := classAscendencies[c]
	if !ok {
		return nil
	}
	out := make([]Ascendency, len(asc))
	copy(out, asc)
	return out
}

// Class returns the base class a owns. It returns "" for values outside the
// enumeration.
func (a Ascendency) Class() CharacterClass {
	return ascendencyClass[a]
}

// LookupAscendency reports whether name is the exact display name of an
// ascendency.
func LookupAscendency(name string) (Ascendency, bool) {
	a := Ascendency(name)
	_, ok := ascendencyClass[a]
	return a, ok
}
