package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// Capture reads the microphone through PortAudio. PortAudio is initialised on
// Start and terminated on Stop, so no device handle outlives a session.
type Capture struct {
	mu      sync.Mutex
	cfg     Config
	logger  zerolog.Logger
	stream  *portaudio.Stream
	running bool
	done    chan struct{}
}

// NewCapture creates an idle capture.
func NewCapture(cfg Config, logger zerolog.Logger) *Capture {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	return &Capture{
		cfg:    cfg,
		logger: logger.With().Str("component", "audio_capture").Logger(),
	}
}

// SampleRate returns the capture sample rate.
func (c *Capture) SampleRate() float64 {
	return c.cfg.SampleRate
}

// Start acquires the device and begins streaming.
func (c *Capture) Start(ctx context.Context) (<-chan []float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil, ErrAlreadyRunning
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}

	buffer := make([]float32, c.cfg.BufferSize*c.cfg.Channels)
	stream, err := c.open(buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open audio stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to start audio stream: %v", ErrDeviceUnavailable, err)
	}

	c.stream = stream
	c.running = true
	c.done = make(chan struct{})
	out := make(chan []float32, 32)
	go c.captureLoop(ctx, stream, buffer, out, c.done)

	c.logger.Info().
		Str("device", c.cfg.Device).
		Float64("sample_rate", c.cfg.SampleRate).
		Int("buffer_size", c.cfg.BufferSize).
		Msg("Audio capture started")
	return out, nil
}

func (c *Capture) open(buffer []float32) (*portaudio.Stream, error) {
	if c.cfg.Device == "" || c.cfg.Device == "default" {
		return portaudio.OpenDefaultStream(c.cfg.Channels, 0, c.cfg.SampleRate, c.cfg.BufferSize, buffer)
	}

	device, err := findInputDevice(c.cfg.Device)
	if err != nil {
		c.logger.Warn().Err(err).Str("device", c.cfg.Device).Msg("Falling back to default input device")
		return portaudio.OpenDefaultStream(c.cfg.Channels, 0, c.cfg.SampleRate, c.cfg.BufferSize, buffer)
	}
	return portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: c.cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      c.cfg.SampleRate,
		FramesPerBuffer: c.cfg.BufferSize,
	}, buffer)
}

func (c *Capture) captureLoop(ctx context.Context, stream *portaudio.Stream, buffer []float32, out chan<- []float32, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	channels := c.cfg.Channels
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			c.mu.Lock()
			running := c.running
			c.mu.Unlock()
			if !running {
				return
			}
			c.logger.Debug().Err(err).Msg("Audio read failed")
			continue
		}

		samples := Downmix(buffer, channels)
		select {
		case out <- samples:
		default:
			// consumer is behind; drop the buffer
		}
	}
}

// Stop releases the stream and terminates PortAudio.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running = false
	stream, done := c.stream, c.done
	c.stream = nil
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		c.logger.Debug().Err(err).Msg("Audio stream stop reported an error")
	}
	<-done

	var firstErr error
	if err := stream.Close(); err != nil {
		firstErr = fmt.Errorf("failed to close audio stream: %w", err)
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	c.logger.Info().Msg("Audio capture stopped")
	return firstErr
}

// Running reports whether the device is held.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", name)
}

// ListInputDevices returns the available input devices.
func ListInputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var inputs []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		inputs = append(inputs, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}
	return inputs, nil
}
