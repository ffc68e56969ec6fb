// Package analysis derives a vowel signal from live audio: a spectrum
// transform producing byte magnitudes, an analyzer extracting volume, bands
// and formants from them, and a nearest-prototype vowel classifier.
package analysis

import (
	"math"

	"github.com/normanking/lipsync/internal/phoneme"
)

// Band is a frequency range in Hz.
type Band struct {
	Low  float64
	High float64
}

// Ranges are the bands reported as energies.
type Ranges struct {
	Low  Band
	Mid  Band
	High Band
}

// Config configures the spectrum transform and the analyzer.
type Config struct {
	SampleRate            int
	FFTSize               int
	SmoothingTimeConstant float64
	MinDecibels           float64
	MaxDecibels           float64
	VolumeThreshold       float64
	Ranges                Ranges

	DominantRange Band
	FormantRange  Band
	PeakThreshold float64
	MaxFormants   int
}

// DefaultConfig returns the standard realtime settings.
func DefaultConfig() Config {
	return Config{
		SampleRate:            44100,
		FFTSize:               2048,
		SmoothingTimeConstant: 0.8,
		MinDecibels:           -100,
		MaxDecibels:           -30,
		VolumeThreshold:       0.01,
		Ranges: Ranges{
			Low:  Band{Low: 80, High: 500},
			Mid:  Band{Low: 500, High: 2000},
			High: Band{Low: 2000, High: 8000},
		},
		DominantRange: Band{Low: 80, High: 8000},
		FormantRange:  Band{Low: 200, High: 3000},
		PeakThreshold: 0.15,
		MaxFormants:   4,
	}
}

// BandEnergies are mean normalised magnitudes per band.
type BandEnergies struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Result is the outcome of analysing one frame.
type Result struct {
	Volume            float64       `json:"volume"`
	DominantFrequency float64       `json:"dominant_frequency"`
	Bands             BandEnergies  `json:"bands"`
	Formants          []float64     `json:"formants,omitempty"`
	Vowel             phoneme.Vowel `json:"vowel"`
	Confidence        float64       `json:"confidence"`
}

type peak struct {
	bin int
	amp float64
}

const (
	maxMagnitude = 255.0
	maxPeaks     = 8
)

// Analyzer turns byte magnitude frames into Results. It keeps fixed scratch
// space and is not safe for concurrent use.
type Analyzer struct {
	cfg        Config
	classifier *Classifier
	peaks      [maxPeaks]peak
}

// NewAnalyzer creates an analyzer with cfg, filling unset fields from defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MaxFormants <= 0 || cfg.MaxFormants > maxPeaks {
		cfg.MaxFormants = def.MaxFormants
	}
	if cfg.PeakThreshold <= 0 {
		cfg.PeakThreshold = def.PeakThreshold
	}
	if cfg.DominantRange == (Band{}) {
		cfg.DominantRange = def.DominantRange
	}
	if cfg.FormantRange == (Band{}) {
		cfg.FormantRange = def.FormantRange
	}
	if cfg.Ranges == (Ranges{}) {
		cfg.Ranges = def.Ranges
	}
	return &Analyzer{cfg: cfg, classifier: defaultClassifier}
}

// SetClassifier replaces the vowel classifier.
func (a *Analyzer) SetClassifier(c *Classifier) {
	a.classifier = c
}

// SetVolumeThreshold changes the silence threshold.
func (a *Analyzer) SetVolumeThreshold(v float64) {
	a.cfg.VolumeThreshold = v
}

// VolumeThreshold returns the silence threshold.
func (a *Analyzer) VolumeThreshold() float64 {
	return a.cfg.VolumeThreshold
}

// Volume is the RMS of mags normalised to [0,1].
func Volume(mags []uint8) float64 {
	if len(mags) == 0 {
		return 0
	}
	var sum float64
	for _, m := range mags {
		v := float64(m)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(mags))) / maxMagnitude
}

// Analyze inspects one frame of magnitudes. binCount is the number of bins
// spanning 0..sampleRate/2; it defaults to len(mags).
func (a *Analyzer) Analyze(mags []uint8, sampleRate, binCount int) Result {
	res := Result{Volume: Volume(mags), Vowel: phoneme.Silence}
	if res.Volume < a.cfg.VolumeThreshold || len(mags) == 0 {
		return res
	}
	if binCount <= 0 {
		binCount = len(mags)
	}
	if sampleRate <= 0 {
		sampleRate = a.cfg.SampleRate
	}
	hzPerBin := float64(sampleRate) / float64(2*binCount)

	lo, hi := binRange(a.cfg.DominantRange, hzPerBin, len(mags))
	best, bestAmp := -1, -1
	for i := lo; i <= hi; i++ {
		if int(mags[i]) > bestAmp {
			best, bestAmp = i, int(mags[i])
		}
	}
	if best >= 0 {
		res.DominantFrequency = float64(best) * hzPerBin
	}

	res.Bands = BandEnergies{
		Low:  bandEnergy(mags, a.cfg.Ranges.Low, hzPerBin),
		Mid:  bandEnergy(mags, a.cfg.Ranges.Mid, hzPerBin),
		High: bandEnergy(mags, a.cfg.Ranges.High, hzPerBin),
	}

	res.Formants = a.formants(mags, hzPerBin)
	if len(res.Formants) >= 2 {
		c := a.classifier.Estimate(res.Formants[0], res.Formants[1])
		res.Vowel, res.Confidence = c.Vowel, c.Confidence
	} else if v := GuessFromDominant(res.DominantFrequency); !v.IsSilence() {
		res.Vowel, res.Confidence = v, FallbackConfidence
	}
	return res
}

// formants picks local maxima above the peak threshold, keeps the strongest
// and returns their frequencies in ascending order.
func (a *Analyzer) formants(mags []uint8, hzPerBin float64) []float64 {
	var global uint8
	for _, m := range mags {
		if m > global {
			global = m
		}
	}
	threshold := a.cfg.PeakThreshold * float64(global)

	keep := a.peaks[:0]
	lo, hi := binRange(a.cfg.FormantRange, hzPerBin, len(mags))
	if lo < 1 {
		lo = 1
	}
	if hi > len(mags)-2 {
		hi = len(mags) - 2
	}
	for i := lo; i <= hi; i++ {
		m := mags[i]
		if m == 0 || float64(m) < threshold || m <= mags[i-1] || m < mags[i+1] {
			continue
		}
		p := peak{bin: i, amp: float64(m)}
		if len(keep) < a.cfg.MaxFormants {
			keep = append(keep, p)
		} else if p.amp > keep[len(keep)-1].amp {
			keep[len(keep)-1] = p
		} else {
			continue
		}
		// keep is ordered by amplitude, strongest first
		for j := len(keep) - 1; j > 0 && keep[j].amp > keep[j-1].amp; j-- {
			keep[j], keep[j-1] = keep[j-1], keep[j]
		}
	}
	if len(keep) == 0 {
		return nil
	}

	out := make([]float64, len(keep))
	for i, p := range keep {
		out[i] = float64(p.bin) * hzPerBin
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func binRange(b Band, hzPerBin float64, n int) (int, int) {
	lo := int(math.Ceil(b.Low / hzPerBin))
	hi := int(math.Floor(b.High / hzPerBin))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

func bandEnergy(mags []uint8, b Band, hzPerBin float64) float64 {
	lo, hi := binRange(b, hzPerBin, len(mags))
	if hi < lo {
		return 0
	}
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += float64(mags[i])
	}
	return sum / float64(hi-lo+1) / maxMagnitude
}
