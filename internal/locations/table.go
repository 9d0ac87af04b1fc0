// Package locations maps raw area tokens from the game log to display names.
//
// The lookup table is fetched once from a remote JSON document and cached on
// disk (see [Load]). Entry order follows the source document, because
// resolution is first-match-wins.
package locations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// mapPrefix marks area tokens of map instances, e.g. "MapCrypt_NoBoss".
const mapPrefix = "Map"

// ///////////////////////////////////////////////
// Table
// ///////////////////////////////////////////////

// Entry is one area key and its display name.
type Entry struct {
	Key  string
	Name string
}

// Table is an insertion-ordered area lookup table. The zero value and a nil
// *Table are empty tables.
type Table struct {
	entries []Entry
	names   map[string]struct{}
}

// NewTable builds a table from entries, keeping their order.
func NewTable(entries ...Entry) *Table {
	t := &Table{}
	for _, e := range entries {
		t.add(e)
	}
	return t
}

func (t *Table) add(e Entry) {
	if t.names == nil {
		t.names = make(map[string]struct{})
	}
	t.entries = append(t.entries, e)
	t.names[e.Name] = struct{}{}
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of the entries in source order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ///////////////////////////////////////////////
// Resolution
// ///////////////////////////////////////////////

// Normalize strips the map prefix from area and cuts it at the first
// underscore. Tokens without the prefix are returned unchanged.
func Normalize(area string) string {
	rest, ok := strings.CutPrefix(area, mapPrefix)
	if !ok {
		return area
	}
	head, _, _ := strings.Cut(rest, "_")
	return head
}

// Resolve returns the display name for area. A normalized token that is
// already a display name is returned as is; otherwise the first entry whose
// key or name equals it wins. A token that still has no match is retried
// without its numeric instance suffix ("Riverbank_1" -> "Riverbank").
// Failing all that, the normalized token is returned.
func (t *Table) Resolve(area string) string {
	token := Normalize(area)
	if name, ok := t.lookup(token); ok {
		return name
	}
	if base, ok := cutInstanceSuffix(token); ok {
		if name, ok := t.lookup(base); ok {
			return name
		}
	}
	return token
}

func (t *Table) lookup(token string) (string, bool) {
	if t == nil {
		return "", false
	}
	if _, ok := t.names[token]; ok {
		return token, true
	}
	for _, e := range t.entries {
		if e.Key == token || e.Name == token {
			return e.Name, true
		}
	}
	return "", false
}

// cutInstanceSuffix strips a trailing "_<digits>" from token.
func cutInstanceSuffix(token string) (string, bool) {
	i := strings.LastIndexByte(token, '_')
	if i <= 0 || i == len(token)-1 {
		return "", false
	}
	for _, r := range token[i+1:] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return token[:i], true
}

// ///////////////////////////////////////////////
// Decoding
// ///////////////////////////////////////////////

// Parse decodes a locations document: a JSON object whose "areas" member maps
// area keys to display names. Member order is preserved. Non-string names
// are skipped.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Areas orderedAreas `json:"areas"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing locations: %w", err)
	}
	return NewTable(doc.Areas...), nil
}

// orderedAreas decodes a JSON object into entries in document order, which a
// Go map would lose.
type orderedAreas []Entry

func (o *orderedAreas) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("areas: expected object, got %v", tok)
	}

	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("areas[%q]: %w", key, err)
		}
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			continue
		}
		entries = append(entries, Entry{Key: key, Name: name})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = entries
	return nil
}
