// Package config provides configuration management for the lip-sync server
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	LipSync      LipSyncConfig    `mapstructure:"lipsync" yaml:"lipsync"`
	Analyzer     AnalyzerConfig   `mapstructure:"analyzer" yaml:"analyzer"`
	Protection   ProtectionConfig `mapstructure:"protection" yaml:"protection"`
	Idle         IdleConfig       `mapstructure:"idle" yaml:"idle"`
	Audio        AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Viewer       ViewerConfig     `mapstructure:"viewer" yaml:"viewer"`
	Clips        ClipsConfig      `mapstructure:"clips" yaml:"clips"`
	Logging      LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	VowelMapping []VowelOverride  `mapstructure:"vowel_mapping" yaml:"vowel_mapping"`
}

// LipSyncConfig is the lip-sync configuration surface
type LipSyncConfig struct {
	Mode              string  `mapstructure:"mode" yaml:"mode"` // tts, realtime, hybrid
	Sensitivity       float64 `mapstructure:"sensitivity" yaml:"sensitivity"`
	SmoothingFactor   float64 `mapstructure:"smoothing_factor" yaml:"smoothing_factor"`
	ResponseSpeed     float64 `mapstructure:"response_speed" yaml:"response_speed"`
	MouthOpenScale    float64 `mapstructure:"mouth_open_scale" yaml:"mouth_open_scale"`
	AutoOptimize      bool    `mapstructure:"auto_optimize" yaml:"auto_optimize"`
	RealtimeThreshold float64 `mapstructure:"realtime_threshold" yaml:"realtime_threshold"`
	HybridBlendRatio  float64 `mapstructure:"hybrid_blend_ratio" yaml:"hybrid_blend_ratio"`
	MinConfidence     float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	FPS               int     `mapstructure:"fps" yaml:"fps"`
	EndingBoost       float64 `mapstructure:"ending_boost" yaml:"ending_boost"`
}

// AnalyzerConfig configures the realtime spectrum and analyzer
type AnalyzerConfig struct {
	FFTSize               int     `mapstructure:"fft_size" yaml:"fft_size"`
	SmoothingTimeConstant float64 `mapstructure:"smoothing_time_constant" yaml:"smoothing_time_constant"`
	MinDecibels           float64 `mapstructure:"min_decibels" yaml:"min_decibels"`
	MaxDecibels           float64 `mapstructure:"max_decibels" yaml:"max_decibels"`
	PeakThreshold         float64 `mapstructure:"peak_threshold" yaml:"peak_threshold"`
	MaxFormants           int     `mapstructure:"max_formants" yaml:"max_formants"`
}

// ProtectionConfig configures the lip-sync protection window
type ProtectionConfig struct {
	MaxDuration       time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	ScaleTolerance    float64       `mapstructure:"scale_tolerance" yaml:"scale_tolerance"`
	PositionTolerance float64       `mapstructure:"position_tolerance" yaml:"position_tolerance"`
	RestoreOnClose    bool          `mapstructure:"restore_on_close" yaml:"restore_on_close"`
}

// IdleConfig enables idle generators and sets their tunables
type IdleConfig struct {
	Blink          bool    `mapstructure:"blink" yaml:"blink"`
	Gaze           bool    `mapstructure:"gaze" yaml:"gaze"`
	Wind           bool    `mapstructure:"wind" yaml:"wind"`
	Breath         bool    `mapstructure:"breath" yaml:"breath"`
	BlinkPeriod    float64 `mapstructure:"blink_period" yaml:"blink_period"`
	BlinkDuration  float64 `mapstructure:"blink_duration" yaml:"blink_duration"`
	GazeRange      float64 `mapstructure:"gaze_range" yaml:"gaze_range"`
	GazeInterval   float64 `mapstructure:"gaze_interval" yaml:"gaze_interval"`
	GazeSmoothness float64 `mapstructure:"gaze_smoothness" yaml:"gaze_smoothness"`
	WindStrength   float64 `mapstructure:"wind_strength" yaml:"wind_strength"`
	WindFrequency  float64 `mapstructure:"wind_frequency" yaml:"wind_frequency"`
	BreathPeriod   float64 `mapstructure:"breath_period" yaml:"breath_period"`
}

// AudioConfig configures microphone capture for realtime mode
type AudioConfig struct {
	Device     string  `mapstructure:"device" yaml:"device"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferSize int     `mapstructure:"buffer_size" yaml:"buffer_size"`
	Channels   int     `mapstructure:"channels" yaml:"channels"`
}

// ViewerConfig configures the HTTP server the viewer page connects to
type ViewerConfig struct {
	Listen    string `mapstructure:"listen" yaml:"listen"`
	FrameRate int    `mapstructure:"frame_rate" yaml:"frame_rate"`
}

// ClipsConfig locates the clip library
type ClipsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Dir        string `mapstructure:"dir" yaml:"dir"` // empty logs to the console only
	MaxHistory int    `mapstructure:"max_history" yaml:"max_history"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// VowelOverride replaces one parameter value of the vowel mapping table.
// Parameter ids are values rather than keys because viper lowercases keys.
type VowelOverride struct {
	Vowel     string  `mapstructure:"vowel" yaml:"vowel"`
	Parameter string  `mapstructure:"parameter" yaml:"parameter"`
	Value     float64 `mapstructure:"value" yaml:"value"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := GetConfigDir()
	return &Config{
		LipSync: LipSyncConfig{
			Mode:              "tts",
			Sensitivity:       80,
			SmoothingFactor:   70,
			ResponseSpeed:     70,
			MouthOpenScale:    100,
			AutoOptimize:      false,
			RealtimeThreshold: 0.01,
			HybridBlendRatio:  0.5,
			MinConfidence:     0.3,
			FPS:               30,
			EndingBoost:       1.05,
		},
		Analyzer: AnalyzerConfig{
			FFTSize:               2048,
			SmoothingTimeConstant: 0.8,
			MinDecibels:           -100,
			MaxDecibels:           -30,
			PeakThreshold:         0.15,
			MaxFormants:           4,
		},
		Protection: ProtectionConfig{
			MaxDuration:       200 * time.Millisecond,
			ScaleTolerance:    0.1,
			PositionTolerance: 50,
			RestoreOnClose:    true,
		},
		Idle: IdleConfig{
			Blink:          true,
			Gaze:           true,
			Wind:           false,
			Breath:         true,
			BlinkPeriod:    3.0,
			BlinkDuration:  0.15,
			GazeRange:      0.5,
			GazeInterval:   2.0,
			GazeSmoothness: 0.05,
			WindStrength:   1.0,
			WindFrequency:  0.5,
			BreathPeriod:   4.0,
		},
		Audio: AudioConfig{
			Device:     "default",
			SampleRate: 44100,
			BufferSize: 1024,
			Channels:   1,
		},
		Viewer: ViewerConfig{
			Listen:    "127.0.0.1:8765",
			FrameRate: 60,
		},
		Clips: ClipsConfig{
			Dir: filepath.Join(dir, "clips"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        filepath.Join(dir, "logs"),
			MaxHistory: 1000,
			Console:    true,
		},
		VowelMapping: []VowelOverride{},
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lipsync"), nil
}

// DefaultPath returns the configuration file used when none is given.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Store holds the loaded configuration and the viper instance behind it.
type Store struct {
	v    *viper.Viper
	path string

	mu    sync.RWMutex
	cfg   *Config
	saved []byte // file content written by the last Save
}

// Load reads configuration from path (DefaultPath when empty) and the
// environment. A missing file is created with the defaults.
func Load(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	// Environment variable overrides, e.g. LIPSYNC_LIPSYNC_MODE=realtime
	v.SetEnvPrefix("LIPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &Store{v: v, path: path}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// Config file not found, use defaults and create one
		if _, err := s.write(DefaultConfig()); err != nil {
			return nil, err
		}
	}

	cfg, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

// setDefaults registers every leaf of cfg as a viper default, so that
// environment overrides apply to keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	setLeaves(v, "", tree)
	return nil
}

func setLeaves(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setLeaves(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

func (s *Store) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := s.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Path returns the configuration file path.
func (s *Store) Path() string {
	return s.path
}

// Config returns the current configuration. Callers must not modify it.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Save writes cfg to the configuration file and makes it current. Watchers
// are not notified of the write.
func (s *Store) Save(cfg *Config) error {
	data, err := s.write(cfg)
	if err != nil {
		return err
	}
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.saved = data
	s.mu.Unlock()
	return nil
}

// write replaces the file through a rename so watchers never see a partial
// file.
func (s *Store) write(cfg *Config) ([]byte, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	return data, nil
}

// ownWrite reports whether the file still holds what Save last wrote.
func (s *Store) ownWrite() bool {
	data, err := os.ReadFile(s.path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && s.saved != nil && bytes.Equal(data, s.saved) {
		return true
	}
	s.saved = nil
	return false
}

// Watch reloads the configuration whenever the file changes and passes the
// new value to fn. Invalid edits are logged and ignored.
func (s *Store) Watch(logger zerolog.Logger, fn func(*Config)) {
	log := logger.With().Str("component", "config").Logger()

	s.v.OnConfigChange(func(e fsnotify.Event) {
		if s.ownWrite() {
			log.Debug().Str("file", e.Name).Msg("Skipping reload of saved configuration")
			return
		}
		cfg, err := s.decode()
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()

		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("Configuration reloaded")
		fn(cfg)
	})
	s.v.WatchConfig()
}
