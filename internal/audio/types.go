// Package audio provides the sample streams that drive realtime lip-sync:
// exclusive microphone capture through PortAudio, and PCM WAV files.
package audio

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrAlreadyRunning    = errors.New("audio capture already running")
	ErrNotRunning        = errors.New("audio capture not running")
	ErrInvalidFormat     = errors.New("invalid audio format")
)

// Source produces mono float32 sample buffers. A source is owned by one
// session at a time: Start fails with ErrAlreadyRunning until Stop is called.
// The returned channel is closed when the source stops or ctx is cancelled.
type Source interface {
	Start(ctx context.Context) (<-chan []float32, error)
	Stop() error
	SampleRate() float64
}

// Config holds capture configuration.
type Config struct {
	Device     string  `json:"device"` // empty or "default" uses the system default
	SampleRate float64 `json:"sample_rate"`
	BufferSize int     `json:"buffer_size"` // frames per read
	Channels   int     `json:"channels"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Device:     "default",
		SampleRate: 44100,
		BufferSize: 1024,
		Channels:   1,
	}
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}
