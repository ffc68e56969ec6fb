package anim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
)

func TestEasing_BoundaryFixedPoints(t *testing.T) {
	for _, e := range []Easing{EaseLinear, EaseIn, EaseOut, EaseInOut} {
		t.Run(string(e), func(t *testing.T) {
			assert.Equal(t, 0.0, e.Apply(0))
			assert.Equal(t, 1.0, e.Apply(1))
		})
	}
}

func TestEasing_Curves(t *testing.T) {
	assert.InDelta(t, 0.25, EaseIn.Apply(0.5), 1e-12)
	assert.InDelta(t, 0.75, EaseOut.Apply(0.5), 1e-12)
	assert.InDelta(t, 0.08, EaseInOut.Apply(0.2), 1e-12)
	assert.InDelta(t, 0.92, EaseInOut.Apply(0.8), 1e-12)
	assert.InDelta(t, 0.3, Easing("bounce").Apply(0.3), 1e-12, "unknown easing is linear")
}

func TestParseEasing(t *testing.T) {
	assert.Equal(t, EaseIn, ParseEasing("easeIn"))
	assert.Equal(t, EaseOut, ParseEasing("ease-out"))
	assert.Equal(t, EaseInOut, ParseEasing("ease_in_out"))
	assert.Equal(t, EaseLinear, ParseEasing("spring"))
}

func mustClip(t *testing.T, loop bool, kfs ...Keyframe) *Clip {
	t.Helper()
	c, err := NewClip("test", 0, loop, kfs)
	require.NoError(t, err)
	return c
}

func TestNewClip_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		kfs  []Keyframe
	}{
		{"empty", nil},
		{"descending", []Keyframe{{Time: 1}, {Time: 0.5}}},
		{"duplicate time", []Keyframe{{Time: 0}, {Time: 0}}},
		{"negative time", []Keyframe{{Time: -1}}},
		{"nan value", []Keyframe{{Time: 0, Parameters: rig.Params{rig.ParamMouthOpenY: math.NaN()}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClip("bad", 0, false, tt.kfs)
			assert.ErrorIs(t, err, ErrMalformedClip)
		})
	}
}

func TestClip_SampleReproducesKeyframes(t *testing.T) {
	c := mustClip(t, false,
		Keyframe{Time: 0, Parameters: rig.Params{rig.ParamMouthOpenY: 0.1, rig.ParamMouthForm: -0.3}},
		Keyframe{Time: 0.35, Parameters: rig.Params{rig.ParamMouthOpenY: 0.7, rig.ParamMouthForm: 0.2}, Easing: EaseIn},
		Keyframe{Time: 0.9, Parameters: rig.Params{rig.ParamMouthOpenY: 0.3, rig.ParamMouthForm: 0.9}, Easing: EaseInOut},
		Keyframe{Time: 1.7, Parameters: rig.Params{rig.ParamMouthOpenY: 0.0, rig.ParamMouthForm: -1}, Easing: EaseOut},
	)

	for _, kf := range c.Keyframes {
		assert.Equal(t, kf.Parameters, c.Sample(kf.Time), "at %v", kf.Time)
	}
	assert.Equal(t, 1.7, c.Duration)
}

func TestClip_SampleUsesNextEasing(t *testing.T) {
	c := mustClip(t, false,
		Keyframe{Time: 0, Parameters: rig.Params{rig.ParamMouthOpenY: 0}},
		Keyframe{Time: 1, Parameters: rig.Params{rig.ParamMouthOpenY: 1}, Easing: EaseIn},
	)

	assert.InDelta(t, 0.25, c.Sample(0.5)[rig.ParamMouthOpenY], 1e-12)
	assert.Equal(t, 1.0, c.Sample(5)[rig.ParamMouthOpenY], "clamped past the end")
}

func TestClip_OneSidedParametersHold(t *testing.T) {
	c := mustClip(t, false,
		Keyframe{Time: 0, Parameters: rig.Params{rig.ParamMouthOpenY: 0, rig.ParamAngleX: 5}},
		Keyframe{Time: 1, Parameters: rig.Params{rig.ParamMouthOpenY: 1, rig.ParamMouthForm: -1}},
	)

	got := c.Sample(0.5)
	assert.InDelta(t, 0.5, got[rig.ParamMouthOpenY], 1e-12)
	assert.Equal(t, 5.0, got[rig.ParamAngleX])
	assert.Equal(t, -1.0, got[rig.ParamMouthForm])
}

func scenarioUtterance() phoneme.Utterance {
	return phoneme.Utterance{
		Text:          "あい",
		TotalDuration: 1.2,
		Frames: []phoneme.Frame{
			{Timestamp: 0, Vowel: phoneme.VowelA, Intensity: 0.8, Duration: 0.4},
			{Timestamp: 0.4, Vowel: phoneme.VowelI, Intensity: 0.7, Duration: 0.4},
		},
	}
}

func keyframeAt(t *testing.T, c *Clip, at float64) Keyframe {
	t.Helper()
	for _, kf := range c.Keyframes {
		if math.Abs(kf.Time-at) < 1e-9 {
			return kf
		}
	}
	t.Fatalf("no keyframe at %v", at)
	return Keyframe{}
}

func TestGenerateSequence_VowelFrames(t *testing.T) {
	table := phoneme.DefaultTable()
	clip, err := GenerateSequence(scenarioUtterance(), 30, table)
	require.NoError(t, err)

	assert.Len(t, clip.Keyframes, 37)
	assert.Equal(t, table.ParametersFor(phoneme.VowelA, 0.8), keyframeAt(t, clip, 0.2).Parameters)
	assert.Equal(t, table.ParametersFor(phoneme.VowelI, 0.7), keyframeAt(t, clip, 0.5).Parameters)
	assert.Equal(t, table.Silence(), keyframeAt(t, clip, 1.0).Parameters)

	assert.Equal(t, table.Silence(), SampleFrames(scenarioUtterance().Frames, 1.0, table))
}

func TestGenerateSequence_RoundTrip(t *testing.T) {
	const fps = 30
	table := phoneme.DefaultTable()
	u := phoneme.Utterance{
		TotalDuration: 2,
		Frames: []phoneme.Frame{
			{Timestamp: 0.1, Vowel: phoneme.VowelO, Intensity: 0.9, Duration: 0.3},
			{Timestamp: 0.55, Vowel: phoneme.VowelE, Intensity: 0.6, Duration: 0.25},
			{Timestamp: 0.8, Vowel: phoneme.VowelU, Intensity: 0.5, Duration: 0.5},
			{Timestamp: 1.5, Vowel: phoneme.VowelN, Intensity: 1.0, Duration: 0.2},
		},
	}
	clip, err := GenerateSequence(u, fps, table)
	require.NoError(t, err)

	for i := 0; i <= 2*fps; i++ {
		ts := float64(i) / fps
		var inside []phoneme.Frame
		for _, f := range u.Frames {
			if f.Contains(ts) {
				inside = append(inside, f)
			}
		}
		if len(inside) != 1 {
			continue
		}
		assert.Equal(t, table.ParametersFor(inside[0].Vowel, inside[0].Intensity), clip.Sample(ts), "frame %d", i)
	}
}

func TestGenerateSequence_NoDuration(t *testing.T) {
	_, err := GenerateSequence(phoneme.Utterance{}, 30, nil)
	assert.ErrorIs(t, err, ErrMalformedClip)
}
