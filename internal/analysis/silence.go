package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/normanking/lipsync/internal/phoneme"
)

// SilenceOptions tunes DetectSilences.
type SilenceOptions struct {
	FrameDuration float64 // RMS frame length in seconds, hop is half of it
	MinDuration   float64 // shorter silent runs are ignored
	Adaptive      bool    // derive the threshold from the signal
	Threshold     float64 // fixed threshold, and fallback for adaptive mode
}

// DefaultSilenceOptions returns 50 ms frames, 0.2 s minimum and an adaptive threshold.
func DefaultSilenceOptions() SilenceOptions {
	return SilenceOptions{
		FrameDuration: 0.05,
		MinDuration:   0.2,
		Adaptive:      true,
		Threshold:     0.01,
	}
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DetectSilences finds silent spans in mono PCM.
func DetectSilences(samples []float32, sampleRate int, opts SilenceOptions) []phoneme.Interval {
	if sampleRate <= 0 || opts.FrameDuration <= 0 {
		return nil
	}
	frameLen := int(float64(sampleRate) * opts.FrameDuration)
	hop := frameLen / 2
	if frameLen <= 0 || hop <= 0 || len(samples) < frameLen {
		return nil
	}

	n := (len(samples)-frameLen)/hop + 1
	rms := make([]float64, n)
	for i := range rms {
		start := i * hop
		rms[i] = RMS(samples[start : start+frameLen])
	}

	threshold := opts.Threshold
	if opts.Adaptive {
		threshold = adaptiveThreshold(rms, opts.Threshold)
	}

	frameTime := func(i int) float64 { return float64(i*hop) / float64(sampleRate) }

	var regions []phoneme.Interval
	inSilence := false
	var start float64
	for i, v := range rms {
		silent := v < threshold
		switch {
		case silent && !inSilence:
			inSilence = true
			start = frameTime(i)
		case !silent && inSilence:
			inSilence = false
			if end := frameTime(i); end-start >= opts.MinDuration {
				regions = append(regions, phoneme.Interval{Start: start, End: end})
			}
		}
	}
	if inSilence {
		if end := frameTime(n - 1); end-start >= opts.MinDuration {
			regions = append(regions, phoneme.Interval{Start: start, End: end})
		}
	}
	return regions
}

// adaptiveThreshold is max(15% of the mean, 5th percentile) over non-zero
// frame energies.
func adaptiveThreshold(rms []float64, fallback float64) float64 {
	nonZero := make([]float64, 0, len(rms))
	for _, v := range rms {
		if v > 1e-6 {
			nonZero = append(nonZero, v)
		}
	}
	if len(nonZero) == 0 {
		return fallback
	}
	sort.Float64s(nonZero)
	mean := stat.Mean(nonZero, nil)
	p5 := stat.Quantile(0.05, stat.LinInterp, nonZero, nil)
	return math.Max(mean*0.15, p5)
}
