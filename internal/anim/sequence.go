package anim

import (
	"fmt"
	"math"

	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
)

// DefaultFPS is the keyframe rate of generated clips.
const DefaultFPS = 30

// SampleFrames returns the mouth parameters at t: the first vowel frame
// containing t, scaled by its clamped intensity, or the silence entry.
func SampleFrames(frames []phoneme.Frame, t float64, table *phoneme.Table) rig.Params {
	f, ok := phoneme.Active(frames, t)
	if !ok {
		return table.Silence()
	}
	return table.ParametersFor(f.Vowel, clamp01(f.Intensity))
}

// GenerateSequence resamples an utterance into a dense linear clip with one
// keyframe per output frame, from 0 up to the utterance duration.
func GenerateSequence(u phoneme.Utterance, fps int, table *phoneme.Table) (*Clip, error) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if table == nil {
		table = phoneme.DefaultTable()
	}
	duration := u.Duration()
	if duration <= 0 {
		return nil, fmt.Errorf("%w: utterance has no duration", ErrMalformedClip)
	}

	n := int(math.Floor(duration*float64(fps) + 1e-9))
	keyframes := make([]Keyframe, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(fps)
		keyframes = append(keyframes, Keyframe{
			Time:       t,
			Parameters: SampleFrames(u.Frames, t, table),
			Easing:     EaseLinear,
		})
	}

	name := u.Text
	if name == "" {
		name = "utterance"
	}
	return NewClip(name, duration, false, keyframes)
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
