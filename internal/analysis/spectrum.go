package analysis

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Spectrum converts a stream of PCM samples into byte frequency magnitudes:
// Hann window, FFT, per-bin time smoothing and a decibel range mapped to 0..255.
// Write and ByteFrequencyData may be called from different goroutines.
type Spectrum struct {
	mu sync.Mutex

	size      int
	smoothing float64
	minDb     float64
	maxDb     float64

	fft      *fourier.FFT
	window   []float64
	ring     []float64
	pos      int
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

// NewSpectrum creates a transform of cfg.FFTSize points.
func NewSpectrum(cfg Config) *Spectrum {
	size := cfg.FFTSize
	if size < 32 {
		size = DefaultConfig().FFTSize
	}
	minDb, maxDb := cfg.MinDecibels, cfg.MaxDecibels
	if maxDb <= minDb {
		def := DefaultConfig()
		minDb, maxDb = def.MinDecibels, def.MaxDecibels
	}

	win := make([]float64, size)
	for i := range win {
		win[i] = 1
	}
	window.Hann(win)

	return &Spectrum{
		size:      size,
		smoothing: clamp01(cfg.SmoothingTimeConstant),
		minDb:     minDb,
		maxDb:     maxDb,
		fft:       fourier.NewFFT(size),
		window:    win,
		ring:      make([]float64, size),
		frame:     make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
		smoothed:  make([]float64, size/2),
	}
}

// BinCount is the number of magnitude bins produced per frame.
func (s *Spectrum) BinCount() int {
	return s.size / 2
}

// Write appends samples to the analysis window, dropping the oldest.
func (s *Spectrum) Write(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range samples {
		s.ring[s.pos] = float64(v)
		s.pos = (s.pos + 1) % s.size
	}
}

// Reset clears buffered samples and smoothing history.
func (s *Spectrum) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ring {
		s.ring[i] = 0
	}
	for i := range s.smoothed {
		s.smoothed[i] = 0
	}
	s.pos = 0
}

// ByteFrequencyData computes the current magnitudes into dst, growing it when
// needed, and returns it.
func (s *Spectrum) ByteFrequencyData(dst []uint8) []uint8 {
	bins := s.size / 2
	if cap(dst) < bins {
		dst = make([]uint8, bins)
	}
	dst = dst[:bins]

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.size; i++ {
		s.frame[i] = s.ring[(s.pos+i)%s.size] * s.window[i]
	}
	s.coeffs = s.fft.Coefficients(s.coeffs, s.frame)

	scale := 1 / float64(s.size)
	span := s.maxDb - s.minDb
	for k := 0; k < bins; k++ {
		c := s.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) * scale
		s.smoothed[k] = s.smoothing*s.smoothed[k] + (1-s.smoothing)*mag

		if s.smoothed[k] <= 0 {
			dst[k] = 0
			continue
		}
		db := 20 * math.Log10(s.smoothed[k])
		v := 255 * (db - s.minDb) / span
		switch {
		case v <= 0:
			dst[k] = 0
		case v >= 255:
			dst[k] = 255
		default:
			dst[k] = uint8(v)
		}
	}
	return dst
}
