// Package anim plays keyframe animation clips onto the model.
//
// A Clip is an ordered list of keyframes; sampling it at any time interpolates
// between the bracketing pair using the later keyframe's easing. Sparse vowel
// timelines are resampled into dense clips by GenerateSequence. The Sequencer
// is the Stopped/Playing/Paused state machine that advances a clip on the
// frame loop and emits every sample through the parameter arbiter.
package anim

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/normanking/lipsync/internal/rig"
)

var (
	// ErrMalformedClip rejects clips without keyframes or with out-of-order times.
	ErrMalformedClip = errors.New("malformed clip")
	// ErrInvalidState rejects a sequencer transition not allowed from the current state.
	ErrInvalidState = errors.New("invalid sequencer state")
	// ErrClipNotFound is returned by the library for unknown names.
	ErrClipNotFound = errors.New("clip not found")
)

// Keyframe holds target values at a point in time.
type Keyframe struct {
	Time       float64
	Parameters rig.Params
	Easing     Easing
}

// Clip is a validated, time-ordered keyframe sequence.
type Clip struct {
	Name      string
	Duration  float64
	Loop      bool
	Keyframes []Keyframe
}

// NewClip validates keyframes and builds a clip. The duration is the larger of
// duration and the last keyframe time.
func NewClip(name string, duration float64, loop bool, keyframes []Keyframe) (*Clip, error) {
	c := &Clip{Name: name, Duration: duration, Loop: loop, Keyframes: keyframes}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if last := keyframes[len(keyframes)-1].Time; last > c.Duration {
		c.Duration = last
	}
	return c, nil
}

// Validate checks the clip invariants.
func (c *Clip) Validate() error {
	if c == nil || len(c.Keyframes) == 0 {
		return fmt.Errorf("%w: no keyframes", ErrMalformedClip)
	}
	if math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) || c.Duration < 0 {
		return fmt.Errorf("%w: invalid duration %v", ErrMalformedClip, c.Duration)
	}
	for i, kf := range c.Keyframes {
		if math.IsNaN(kf.Time) || math.IsInf(kf.Time, 0) || kf.Time < 0 {
			return fmt.Errorf("%w: keyframe %d has invalid time %v", ErrMalformedClip, i, kf.Time)
		}
		if i > 0 && kf.Time <= c.Keyframes[i-1].Time {
			return fmt.Errorf("%w: keyframe %d at %.4fs is not after %.4fs", ErrMalformedClip, i, kf.Time, c.Keyframes[i-1].Time)
		}
		for id, v := range kf.Parameters {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: keyframe %d parameter %s is %v", ErrMalformedClip, i, id, v)
			}
		}
	}
	return nil
}

// Sample interpolates the clip at elapsed seconds. Times outside the keyframe
// span clamp to the first or last pair.
func (c *Clip) Sample(elapsed float64) rig.Params {
	kfs := c.Keyframes
	if len(kfs) == 1 {
		return kfs[0].Parameters.Clone()
	}

	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].Time > elapsed })
	var prev, next Keyframe
	switch {
	case idx == 0:
		prev, next = kfs[0], kfs[1]
	case idx >= len(kfs):
		prev, next = kfs[len(kfs)-2], kfs[len(kfs)-1]
	default:
		prev, next = kfs[idx-1], kfs[idx]
	}

	t := (elapsed - prev.Time) / (next.Time - prev.Time)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return rig.Lerp(prev.Parameters, next.Parameters, next.Easing.Apply(t))
}

// ParameterIDs lists every parameter touched by the clip.
func (c *Clip) ParameterIDs() []rig.ParameterID {
	all := rig.Params{}
	for _, kf := range c.Keyframes {
		for id := range kf.Parameters {
			all[id] = 0
		}
	}
	return all.Keys()
}
