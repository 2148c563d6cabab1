// Package fooddb holds the curated nutrition table and the scorer that
// matches normalized labels against it.
package fooddb

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"calorie-app/internal/normalize"
	"calorie-app/internal/nutrition"
)

//go:embed data/foods.json
var defaultTable []byte

// Entry is one curated food, as stored in the table file.
type Entry struct {
	Name               string             `json:"name"`
	Aliases            []string           `json:"aliases,omitempty"`
	CaloriesPer100g    float64            `json:"calories_per_100g"`
	ProteinPer100g     float64            `json:"protein_per_100g"`
	CarbsPer100g       float64            `json:"carbs_per_100g"`
	FatPer100g         float64            `json:"fat_per_100g"`
	Category           nutrition.Category `json:"category,omitempty"`
	TypicalWeightGrams float64            `json:"typical_weight_grams,omitempty"`
	TypicalCalories    float64            `json:"typical_calories,omitempty"`
}

// Profile returns the entry's per-100g values.
func (e Entry) Profile() nutrition.Profile {
	return nutrition.Profile{
		CaloriesPer100g: e.CaloriesPer100g,
		ProteinPer100g:  e.ProteinPer100g,
		CarbsPer100g:    e.CarbsPer100g,
		FatPer100g:      e.FatPer100g,
		Category:        e.Category,
	}
}

// key is a normalized name or alias of an entry.
type key struct {
	text   string
	tokens []string
}

type indexedEntry struct {
	Entry
	keys []key
}

// Table is read-only after construction and safe for concurrent use.
type Table struct {
	entries []indexedEntry
}

// Default returns the table compiled into the binary.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// LoadFile reads a table from a JSON file. The file replaces the built-in table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read food table %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("food table %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a JSON array of entries.
func Parse(data []byte) (*Table, error) {
	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", nutrition.ErrInvalidTable, err)
	}
	return New(raw)
}

// New builds a table from entries, keeping their order. Order matters:
// on equal scores the earlier entry wins.
func New(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", nutrition.ErrInvalidTable)
	}

	seen := make(map[string]int, len(entries))
	t := &Table{entries: make([]indexedEntry, 0, len(entries))}
	for i, e := range entries {
		name := normalize.Label(e.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d has no usable name", nutrition.ErrInvalidTable, i)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: entry %d (%q) duplicates entry %d", nutrition.ErrInvalidTable, i, e.Name, prev)
		}
		seen[name] = i

		if err := e.Profile().Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", nutrition.ErrInvalidTable, e.Name, err)
		}
		if e.TypicalWeightGrams < 0 || e.TypicalCalories < 0 {
			return nil, fmt.Errorf("%w: entry %q has a negative typical serving", nutrition.ErrInvalidTable, e.Name)
		}

		ie := indexedEntry{Entry: e}
		ie.keys = append(ie.keys, newKey(e.Name))
		for _, alias := range e.Aliases {
			if k := newKey(alias); k.text != "" {
				ie.keys = append(ie.keys, k)
			}
		}
		t.entries = append(t.entries, ie)
	}
	return t, nil
}

func newKey(s string) key {
	tokens := normalize.Tokens(s)
	return key{text: normalize.Key(tokens), tokens: tokens}
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// TypicalWeights maps every name and alias of entries with a known portion
// weight to that weight in grams.
func (t *Table) TypicalWeights() map[string]float64 {
	out := make(map[string]float64)
	for _, e := range t.entries {
		if e.TypicalWeightGrams <= 0 {
			continue
		}
		out[e.Name] = e.TypicalWeightGrams
		for _, a := range e.Aliases {
			out[a] = e.TypicalWeightGrams
		}
	}
	return out
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Entry
	}
	return out
}
