// Package phoneme models the vowel timeline that drives TTS lip-sync.
// A timeline is a list of vowel frames (which vowel is active, from when, for
// how long and how strongly), produced by an external speech analysis step or
// derived here from a phoneme label sequence. The mapping table turns a vowel
// and intensity into mouth parameters for the character model.
package phoneme

import (
	"strings"
)

// Vowel is one of the closed set of mouth shapes the table knows about.
type Vowel string

const (
	VowelA  Vowel = "a"
	VowelI  Vowel = "i"
	VowelU  Vowel = "u"
	VowelE  Vowel = "e"
	VowelO  Vowel = "o"
	VowelN  Vowel = "n"
	Silence Vowel = "sil"
)

// Vowels lists every symbol in table order.
var Vowels = []Vowel{VowelA, VowelI, VowelU, VowelE, VowelO, VowelN, Silence}

// ParseVowel normalises a vowel symbol. It accepts upper case and the usual
// spellings of silence.
func ParseVowel(s string) (Vowel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return VowelA, true
	case "i":
		return VowelI, true
	case "u":
		return VowelU, true
	case "e":
		return VowelE, true
	case "o":
		return VowelO, true
	case "n":
		return VowelN, true
	case "sil", "silence", "pau", "":
		return Silence, true
	}
	return Silence, false
}

// IsSilence reports whether v closes the mouth.
func (v Vowel) IsSilence() bool {
	return v == Silence
}

// UnmarshalText normalises known spellings; unknown symbols are kept as given
// and map to silence in the table.
func (v *Vowel) UnmarshalText(text []byte) error {
	if parsed, ok := ParseVowel(string(text)); ok {
		*v = parsed
		return nil
	}
	*v = Vowel(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// Frame is one interval of the vowel timeline.
type Frame struct {
	Timestamp float64 `json:"timestamp" yaml:"timestamp"`
	Vowel     Vowel   `json:"vowel" yaml:"vowel"`
	Intensity float64 `json:"intensity" yaml:"intensity"`
	Duration  float64 `json:"duration" yaml:"duration"`
	Ending    bool    `json:"is_ending,omitempty" yaml:"is_ending,omitempty"`
}

// End returns the exclusive end time of the frame.
func (f Frame) End() float64 {
	return f.Timestamp + f.Duration
}

// Contains reports whether t falls inside [Timestamp, Timestamp+Duration).
func (f Frame) Contains(t float64) bool {
	return t >= f.Timestamp && t < f.End()
}

// Utterance is the vowel-frame input shape.
type Utterance struct {
	Text          string  `json:"text" yaml:"text"`
	TotalDuration float64 `json:"total_duration" yaml:"total_duration"`
	Frames        []Frame `json:"vowel_frames" yaml:"vowel_frames"`
}

// Duration returns the playback length: the declared total, extended to the
// end of the last frame, or estimated from the text when both are missing.
func (u Utterance) Duration() float64 {
	d := u.TotalDuration
	for _, f := range u.Frames {
		if f.End() > d {
			d = f.End()
		}
	}
	if d <= 0 && u.Text != "" {
		d = EstimateDuration(u.Text, DefaultCharDuration)
	}
	return d
}

// Active returns the first frame containing t.
func Active(frames []Frame, t float64) (Frame, bool) {
	for _, f := range frames {
		if f.Contains(t) {
			return f, true
		}
	}
	return Frame{}, false
}
