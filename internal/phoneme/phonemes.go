package phoneme

import (
	"strings"
)

// phonemeToVowel maps Japanese mora and phoneme labels to the vowel they end on.
var phonemeToVowel = map[string]Vowel{
	// Bare vowels
	"a": VowelA, "i": VowelI, "u": VowelU, "e": VowelE, "o": VowelO,
	"A": VowelA, "I": VowelI, "U": VowelU, "E": VowelE, "O": VowelO,

	// a-row
	"ka": VowelA, "ga": VowelA, "sa": VowelA, "za": VowelA, "ta": VowelA, "da": VowelA,
	"na": VowelA, "ha": VowelA, "ba": VowelA, "pa": VowelA, "ma": VowelA, "ya": VowelA,
	"ra": VowelA, "wa": VowelA, "kya": VowelA, "gya": VowelA, "sha": VowelA, "ja": VowelA,
	"cha": VowelA, "nya": VowelA, "hya": VowelA, "bya": VowelA, "pya": VowelA, "mya": VowelA, "rya": VowelA,

	// i-row
	"ki": VowelI, "gi": VowelI, "si": VowelI, "zi": VowelI, "ti": VowelI, "di": VowelI,
	"ni": VowelI, "hi": VowelI, "bi": VowelI, "pi": VowelI, "mi": VowelI, "ri": VowelI,
	"chi": VowelI, "ji": VowelI, "shi": VowelI,

	// u-row
	"ku": VowelU, "gu": VowelU, "su": VowelU, "zu": VowelU, "tu": VowelU, "du": VowelU,
	"nu": VowelU, "hu": VowelU, "bu": VowelU, "pu": VowelU, "mu": VowelU, "yu": VowelU,
	"ru": VowelU, "tsu": VowelU, "kyu": VowelU, "gyu": VowelU, "shu": VowelU, "ju": VowelU,
	"chu": VowelU, "nyu": VowelU, "hyu": VowelU, "byu": VowelU, "pyu": VowelU, "myu": VowelU, "ryu": VowelU,

	// e-row
	"ke": VowelE, "ge": VowelE, "se": VowelE, "ze": VowelE, "te": VowelE, "de": VowelE,
	"ne": VowelE, "he": VowelE, "be": VowelE, "pe": VowelE, "me": VowelE, "re": VowelE,

	// o-row
	"ko": VowelO, "go": VowelO, "so": VowelO, "zo": VowelO, "to": VowelO, "do": VowelO,
	"no": VowelO, "ho": VowelO, "bo": VowelO, "po": VowelO, "mo": VowelO, "yo": VowelO,
	"ro": VowelO, "kyo": VowelO, "gyo": VowelO, "sho": VowelO, "jo": VowelO, "cho": VowelO,
	"nyo": VowelO, "hyo": VowelO, "byo": VowelO, "pyo": VowelO, "myo": VowelO, "ryo": VowelO,

	// Moraic nasal, pauses and closures
	"N": VowelN, "Q": Silence, "pau": Silence, "sil": Silence, "sp": Silence, "cl": Silence,

	// Long vowel mark and lone consonants
	"ー": VowelA, "w": VowelU, "v": VowelU, "f": VowelU, "sh": VowelI,
}

// pauseLabels carry no mouth movement.
var pauseLabels = map[string]bool{"pau": true, "sil": true, "sp": true, "Q": true, "cl": true}

// VowelForPhoneme returns the vowel a phoneme label ends on. Labels missing
// from the table fall back to their trailing vowel letter, else silence.
func VowelForPhoneme(label string) Vowel {
	if v, ok := phonemeToVowel[label]; ok {
		return v
	}
	lower := strings.ToLower(label)
	for _, v := range []Vowel{VowelA, VowelI, VowelU, VowelE, VowelO} {
		if strings.HasSuffix(lower, string(v)) {
			return v
		}
	}
	return Silence
}

// IsPause reports whether label is a pause or closure.
func IsPause(label string) bool {
	return pauseLabels[label]
}

// DefaultIntensity is the frame intensity used for a vowel derived from a
// phoneme label.
func DefaultIntensity(v Vowel) float64 {
	switch v {
	case VowelA, VowelE, VowelO:
		return 0.9
	case VowelI, VowelU:
		return 0.7
	case VowelN:
		return 0.3
	default:
		return 0
	}
}

var consonants = map[string]bool{
	"k": true, "g": true, "s": true, "z": true, "t": true, "d": true, "n": true, "h": true,
	"b": true, "p": true, "m": true, "y": true, "r": true, "w": true, "ch": true, "sh": true, "j": true,
}

// MergeLabels joins consonant labels with the vowel label that follows them
// ("k","a" -> "ka") and normalises lone "n" to the moraic nasal "N".
func MergeLabels(labels []string) []string {
	merged := make([]string, 0, len(labels))
	for i := 0; i < len(labels); i++ {
		cur := labels[i]
		if i+1 < len(labels) && consonants[cur] {
			next := labels[i+1]
			if v, ok := ParseVowel(next); ok && len(next) == 1 && v != VowelN && !(cur == "y" && (v == VowelI || v == VowelE)) {
				merged = append(merged, cur+next)
				i++
				continue
			}
		}
		switch cur {
		case "n":
			cur = "N"
		case "w":
			cur = "wa"
		}
		merged = append(merged, cur)
	}
	return merged
}

// relativeLength weights how long a label lasts compared to a bare vowel.
func relativeLength(label string) float64 {
	switch {
	case len(label) == 1 && strings.ContainsAny(label, "aiueo"):
		return 1.0
	case label == "N" || IsPause(label):
		return 0.3
	default:
		return 0.7
	}
}

// FramesFromPhonemes lays the labels out over totalDuration in proportion to
// their relative lengths and marks the last non-pause label as the ending.
func FramesFromPhonemes(labels []string, totalDuration float64) []Frame {
	labels = MergeLabels(labels)
	if len(labels) == 0 || totalDuration <= 0 {
		return nil
	}

	var total float64
	for _, l := range labels {
		total += relativeLength(l)
	}
	scale := totalDuration / total

	frames := make([]Frame, 0, len(labels))
	ending := -1
	var t float64
	for i, l := range labels {
		v := VowelForPhoneme(l)
		d := relativeLength(l) * scale
		frames = append(frames, Frame{
			Timestamp: t,
			Vowel:     v,
			Intensity: DefaultIntensity(v),
			Duration:  d,
		})
		if !IsPause(l) {
			ending = i
		}
		t += d
	}
	if ending >= 0 {
		frames[ending].Ending = true
	}
	return frames
}
