package phoneme

import (
	"github.com/normanking/lipsync/internal/rig"
)

// Table maps vowels to mouth parameter values at full intensity.
type Table struct {
	entries map[Vowel]rig.Params
}

var defaultEntries = map[Vowel]rig.Params{
	VowelA:  {rig.ParamMouthOpenY: 1.0, rig.ParamMouthForm: 0.0},
	VowelI:  {rig.ParamMouthOpenY: 0.3, rig.ParamMouthForm: -1.0},
	VowelU:  {rig.ParamMouthOpenY: 0.4, rig.ParamMouthForm: -0.7},
	VowelE:  {rig.ParamMouthOpenY: 0.6, rig.ParamMouthForm: -0.3},
	VowelO:  {rig.ParamMouthOpenY: 0.8, rig.ParamMouthForm: 0.7},
	VowelN:  {rig.ParamMouthOpenY: 0.1, rig.ParamMouthForm: 0.0},
	Silence: {rig.ParamMouthOpenY: 0.0, rig.ParamMouthForm: 0.0},
}

// DefaultTable returns the built-in calibration.
func DefaultTable() *Table {
	return NewTable(defaultEntries)
}

// NewTable builds a table from entries. A missing silence entry closes the
// mouth on every parameter used by the other vowels.
func NewTable(entries map[Vowel]rig.Params) *Table {
	t := &Table{entries: make(map[Vowel]rig.Params, len(entries)+1)}
	for v, params := range entries {
		t.entries[v] = params.Clone()
	}
	if _, ok := t.entries[Silence]; !ok {
		closed := rig.Params{}
		for _, params := range t.entries {
			for id := range params {
				closed[id] = 0
			}
		}
		t.entries[Silence] = closed
	}
	return t
}

// WithOverrides returns a copy of t with overrides merged per vowel and per
// parameter. Vowels and parameters not mentioned keep their current values.
func (t *Table) WithOverrides(overrides map[Vowel]rig.Params) *Table {
	merged := make(map[Vowel]rig.Params, len(t.entries))
	for v, params := range t.entries {
		merged[v] = params.Clone()
	}
	for v, params := range overrides {
		entry, ok := merged[v]
		if !ok {
			entry = rig.Params{}
			merged[v] = entry
		}
		entry.Merge(params)
	}
	return NewTable(merged)
}

// ParametersFor scales the entry for v by intensity. Unknown vowels use the
// silence entry. Intensity is not clamped here.
func (t *Table) ParametersFor(v Vowel, intensity float64) rig.Params {
	base, ok := t.entries[v]
	if !ok {
		base = t.entries[Silence]
	}
	out := make(rig.Params, len(base))
	for id, value := range base {
		out[id] = value * intensity
	}
	return out
}

// Entry returns a copy of the unscaled entry for v.
func (t *Table) Entry(v Vowel) (rig.Params, bool) {
	params, ok := t.entries[v]
	if !ok {
		return nil, false
	}
	return params.Clone(), true
}

// Silence returns the closed-mouth parameter set.
func (t *Table) Silence() rig.Params {
	return t.ParametersFor(Silence, 1)
}

// Snapshot returns every entry, for display and persistence.
func (t *Table) Snapshot() map[Vowel]rig.Params {
	out := make(map[Vowel]rig.Params, len(t.entries))
	for v, params := range t.entries {
		out[v] = params.Clone()
	}
	return out
}
