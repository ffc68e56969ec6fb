package lipsync

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode rejects an unknown mode, or an operation the current mode
// does not allow.
var ErrInvalidMode = errors.New("invalid lip-sync mode")

// Mode selects which path drives the mouth.
type Mode string

const (
	ModeTTS      Mode = "tts"
	ModeRealtime Mode = "realtime"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTTS, ModeRealtime, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) allowsTTS() bool      { return m == ModeTTS || m == ModeHybrid }
func (m Mode) allowsRealtime() bool { return m == ModeRealtime || m == ModeHybrid }

// Settings is the runtime configuration surface. Percentages follow the
// slider ranges of the control UI.
type Settings struct {
	Mode              Mode    `json:"mode"`
	Sensitivity       float64 `json:"sensitivity"`      // percent, 0..500
	SmoothingFactor   float64 `json:"smoothing_factor"` // percent, 0..100
	ResponseSpeed     float64 `json:"response_speed"`   // percent, 0..100
	MouthOpenScale    float64 `json:"mouth_open_scale"` // percent, 0..500
	AutoOptimize      bool    `json:"auto_optimize"`
	RealtimeThreshold float64 `json:"realtime_threshold"`
	HybridBlendRatio  float64 `json:"hybrid_blend_ratio"` // 0 = all tts, 1 = all realtime
	MinConfidence     float64 `json:"min_confidence"`
	FPS               int     `json:"fps"`
	EndingBoost       float64 `json:"ending_boost"`
}

// DefaultSettings returns the standard settings.
func DefaultSettings() Settings {
	return Settings{
		Mode:              ModeTTS,
		Sensitivity:       80,
		SmoothingFactor:   70,
		ResponseSpeed:     70,
		MouthOpenScale:    100,
		RealtimeThreshold: 0.01,
		HybridBlendRatio:  0.5,
		MinConfidence:     0.3,
		FPS:               30,
		EndingBoost:       1.05,
	}
}

// Normalize validates the mode and clamps every numeric field into range.
func (s Settings) Normalize() (Settings, error) {
	m, err := ParseMode(string(s.Mode))
	if err != nil {
		return s, err
	}
	s.Mode = m
	s.Sensitivity = clamp(s.Sensitivity, 0, 500)
	s.SmoothingFactor = clamp(s.SmoothingFactor, 0, 100)
	s.ResponseSpeed = clamp(s.ResponseSpeed, 0, 100)
	s.MouthOpenScale = clamp(s.MouthOpenScale, 0, 500)
	s.RealtimeThreshold = clamp(s.RealtimeThreshold, 0, 1)
	s.HybridBlendRatio = clamp(s.HybridBlendRatio, 0, 1)
	s.MinConfidence = clamp(s.MinConfidence, 0, 1)
	if s.FPS <= 0 {
		s.FPS = DefaultSettings().FPS
	}
	if s.EndingBoost < 1 {
		s.EndingBoost = 1
	}
	return s, nil
}

// SmoothingWeight is the per-frame smoothing factor for the realtime path:
// the smoothing percentage reduced by up to half at full response speed.
func (s Settings) SmoothingWeight() float64 {
	return s.SmoothingFactor / 100 * (1 - s.ResponseSpeed/200)
}

// Update is a partial settings change; nil fields are left alone.
type Update struct {
	Mode              *string  `json:"mode,omitempty"`
	Sensitivity       *float64 `json:"sensitivity,omitempty"`
	SmoothingFactor   *float64 `json:"smoothing_factor,omitempty"`
	ResponseSpeed     *float64 `json:"response_speed,omitempty"`
	MouthOpenScale    *float64 `json:"mouth_open_scale,omitempty"`
	AutoOptimize      *bool    `json:"auto_optimize,omitempty"`
	RealtimeThreshold *float64 `json:"realtime_threshold,omitempty"`
	HybridBlendRatio  *float64 `json:"hybrid_blend_ratio,omitempty"`
	MinConfidence     *float64 `json:"min_confidence,omitempty"`
	FPS               *int     `json:"fps,omitempty"`
	EndingBoost       *float64 `json:"ending_boost,omitempty"`
}

// Apply returns s with the non-nil fields of u.
func (u Update) Apply(s Settings) Settings {
	if u.Mode != nil {
		s.Mode = Mode(*u.Mode)
	}
	setFloat(&s.Sensitivity, u.Sensitivity)
	setFloat(&s.SmoothingFactor, u.SmoothingFactor)
	setFloat(&s.ResponseSpeed, u.ResponseSpeed)
	setFloat(&s.MouthOpenScale, u.MouthOpenScale)
	setFloat(&s.RealtimeThreshold, u.RealtimeThreshold)
	setFloat(&s.HybridBlendRatio, u.HybridBlendRatio)
	setFloat(&s.MinConfidence, u.MinConfidence)
	setFloat(&s.EndingBoost, u.EndingBoost)
	if u.AutoOptimize != nil {
		s.AutoOptimize = *u.AutoOptimize
	}
	if u.FPS != nil {
		s.FPS = *u.FPS
	}
	return s
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
