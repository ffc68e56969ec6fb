package analysis

import (
	"math"

	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
)

// Prototype is the target F1/F2 pair of a vowel, in Hz.
type Prototype struct {
	Vowel phoneme.Vowel
	F1    float64
	F2    float64
}

// DefaultPrototypes are the reference formants. Order matters: on equal scores
// the earlier entry wins.
var DefaultPrototypes = []Prototype{
	{Vowel: phoneme.VowelA, F1: 730, F2: 1090},
	{Vowel: phoneme.VowelI, F1: 270, F2: 2290},
	{Vowel: phoneme.VowelU, F1: 300, F2: 870},
	{Vowel: phoneme.VowelE, F1: 530, F2: 1840},
	{Vowel: phoneme.VowelO, F1: 570, F2: 840},
}

// FallbackConfidence is reported for vowels guessed from the dominant
// frequency alone.
const FallbackConfidence = 0.6

// Classification is a detected vowel with its confidence in [0,1].
type Classification struct {
	Vowel      phoneme.Vowel
	Confidence float64
}

// Classifier picks the nearest formant prototype.
type Classifier struct {
	prototypes []Prototype
}

// NewClassifier creates a classifier over prototypes, or the defaults when empty.
func NewClassifier(prototypes []Prototype) *Classifier {
	if len(prototypes) == 0 {
		prototypes = DefaultPrototypes
	}
	p := make([]Prototype, len(prototypes))
	copy(p, prototypes)
	return &Classifier{prototypes: p}
}

var defaultClassifier = NewClassifier(nil)

// EstimateVowel classifies (f1, f2) against the default prototypes.
func EstimateVowel(f1, f2 float64) Classification {
	return defaultClassifier.Estimate(f1, f2)
}

// Estimate scores every prototype with 1/(1+distance/1000) and returns the best.
func (c *Classifier) Estimate(f1, f2 float64) Classification {
	best := Classification{Vowel: phoneme.Silence}
	bestScore := -1.0
	for _, p := range c.prototypes {
		dist := math.Hypot(f1-p.F1, f2-p.F2)
		score := 1 / (1 + dist/1000)
		if score > bestScore {
			bestScore = score
			best.Vowel = p.Vowel
		}
	}
	if bestScore > 0 {
		best.Confidence = math.Min(1, bestScore)
	}
	return best
}

// GuessFromDominant maps a dominant frequency onto a vowel when too few
// formants were found.
func GuessFromDominant(hz float64) phoneme.Vowel {
	switch {
	case hz <= 0:
		return phoneme.Silence
	case hz < 500:
		return phoneme.VowelU
	case hz < 1000:
		return phoneme.VowelO
	case hz < 1500:
		return phoneme.VowelA
	case hz < 2000:
		return phoneme.VowelE
	default:
		return phoneme.VowelI
	}
}

// Smooth blends next into prev: prev + (next-prev)*(1-factor). A higher factor
// keeps more of prev. Keys missing on one side are treated as 0 there.
func Smooth(next, prev rig.Params, factor float64) rig.Params {
	factor = clamp01(factor)
	out := make(rig.Params, len(next))
	for id, nv := range next {
		pv := prev[id]
		out[id] = pv + (nv-pv)*(1-factor)
	}
	for id, pv := range prev {
		if _, ok := next[id]; !ok {
			out[id] = pv * factor
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
