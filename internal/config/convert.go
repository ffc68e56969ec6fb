package config

import (
	"fmt"

	"github.com/normanking/lipsync/internal/analysis"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/idle"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/logging"
	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
)

// Settings converts the lipsync section. Ranges are enforced by the engine.
func (c *Config) Settings() lipsync.Settings {
	l := c.LipSync
	return lipsync.Settings{
		Mode:              lipsync.Mode(l.Mode),
		Sensitivity:       l.Sensitivity,
		SmoothingFactor:   l.SmoothingFactor,
		ResponseSpeed:     l.ResponseSpeed,
		MouthOpenScale:    l.MouthOpenScale,
		AutoOptimize:      l.AutoOptimize,
		RealtimeThreshold: l.RealtimeThreshold,
		HybridBlendRatio:  l.HybridBlendRatio,
		MinConfidence:     l.MinConfidence,
		FPS:               l.FPS,
		EndingBoost:       l.EndingBoost,
	}
}

// AnalyzerConfig converts the analyzer section. The sample rate comes from
// the audio section and the silence threshold from the lipsync section.
func (c *Config) AnalyzerConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	a := c.Analyzer
	if c.Audio.SampleRate > 0 {
		cfg.SampleRate = int(c.Audio.SampleRate)
	}
	if a.FFTSize > 0 {
		cfg.FFTSize = a.FFTSize
	}
	cfg.SmoothingTimeConstant = a.SmoothingTimeConstant
	if a.MaxDecibels > a.MinDecibels {
		cfg.MinDecibels = a.MinDecibels
		cfg.MaxDecibels = a.MaxDecibels
	}
	if a.PeakThreshold > 0 {
		cfg.PeakThreshold = a.PeakThreshold
	}
	if a.MaxFormants > 0 {
		cfg.MaxFormants = a.MaxFormants
	}
	cfg.VolumeThreshold = c.LipSync.RealtimeThreshold
	return cfg
}

// ProtectionConfig converts the protection section.
func (c *Config) ProtectionConfig() rig.ProtectionConfig {
	p := c.Protection
	cfg := rig.DefaultProtectionConfig()
	if p.MaxDuration > 0 {
		cfg.MaxDuration = p.MaxDuration
	}
	cfg.ScaleTolerance = p.ScaleTolerance
	cfg.PositionTolerance = p.PositionTolerance
	cfg.RestoreOnClose = p.RestoreOnClose
	return cfg
}

// IdleSettings converts the idle tunables.
func (c *Config) IdleSettings() idle.Settings {
	i := c.Idle
	return idle.Settings{
		BlinkPeriod:    i.BlinkPeriod,
		BlinkDuration:  i.BlinkDuration,
		GazeRange:      i.GazeRange,
		GazeInterval:   i.GazeInterval,
		GazeSmoothness: i.GazeSmoothness,
		WindStrength:   i.WindStrength,
		WindFrequency:  i.WindFrequency,
		BreathPeriod:   i.BreathPeriod,
	}
}

// IdleEnabled returns the generators switched on at startup.
func (c *Config) IdleEnabled() []idle.Kind {
	flags := map[idle.Kind]bool{
		idle.KindBlink:  c.Idle.Blink,
		idle.KindGaze:   c.Idle.Gaze,
		idle.KindWind:   c.Idle.Wind,
		idle.KindBreath: c.Idle.Breath,
	}
	var kinds []idle.Kind
	for _, k := range idle.Kinds {
		if flags[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// AudioConfig converts the audio section.
func (c *Config) AudioConfig() audio.Config {
	cfg := audio.DefaultConfig()
	a := c.Audio
	if a.Device != "" {
		cfg.Device = a.Device
	}
	if a.SampleRate > 0 {
		cfg.SampleRate = a.SampleRate
	}
	if a.BufferSize > 0 {
		cfg.BufferSize = a.BufferSize
	}
	if a.Channels > 0 {
		cfg.Channels = a.Channels
	}
	return cfg
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() *logging.Config {
	return &logging.Config{
		LogDir:     c.Logging.Dir,
		Level:      logging.LogLevel(c.Logging.Level),
		MaxHistory: c.Logging.MaxHistory,
		Console:    c.Logging.Console,
	}
}

// Table returns the default vowel mapping with the configured overrides.
func (c *Config) Table() (*phoneme.Table, error) {
	base := phoneme.DefaultTable()
	if len(c.VowelMapping) == 0 {
		return base, nil
	}

	overrides := make(map[phoneme.Vowel]rig.Params)
	for _, o := range c.VowelMapping {
		v, ok := phoneme.ParseVowel(o.Vowel)
		if !ok {
			return nil, fmt.Errorf("vowel_mapping: unknown vowel %q", o.Vowel)
		}
		if o.Parameter == "" {
			return nil, fmt.Errorf("vowel_mapping: vowel %q has no parameter", o.Vowel)
		}
		if overrides[v] == nil {
			overrides[v] = rig.Params{}
		}
		overrides[v][rig.ParameterID(o.Parameter)] = o.Value
	}
	return base.WithOverrides(overrides), nil
}

// SetSettings stores s in the lipsync section.
func (c *Config) SetSettings(s lipsync.Settings) {
	c.LipSync = LipSyncConfig{
		Mode:              string(s.Mode),
		Sensitivity:       s.Sensitivity,
		SmoothingFactor:   s.SmoothingFactor,
		ResponseSpeed:     s.ResponseSpeed,
		MouthOpenScale:    s.MouthOpenScale,
		AutoOptimize:      s.AutoOptimize,
		RealtimeThreshold: s.RealtimeThreshold,
		HybridBlendRatio:  s.HybridBlendRatio,
		MinConfidence:     s.MinConfidence,
		FPS:               s.FPS,
		EndingBoost:       s.EndingBoost,
	}
}
