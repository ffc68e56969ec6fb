package phoneme

import (
	"sort"
	"unicode/utf8"
)

const (
	// DefaultCharDuration is the estimated speaking time per character.
	DefaultCharDuration = 0.08
	// MinEstimatedDuration bounds text-based estimates from below.
	MinEstimatedDuration = 0.5
	// DefaultGapThreshold is the shortest gap filled with explicit silence.
	DefaultGapThreshold = 0.1
	// DefaultEndingBoost scales the intensity of the final spoken frame.
	DefaultEndingBoost = 1.05
)

// Interval is a [Start, End] time span in seconds.
type Interval struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Contains reports whether t lies inside the closed interval.
func (iv Interval) Contains(t float64) bool {
	return t >= iv.Start && t <= iv.End
}

// Options controls Prepare.
type Options struct {
	// Sensitivity in percent; 100 leaves intensities unchanged.
	Sensitivity float64
	// EndingBoost multiplies the intensity of the ending frame; <=1 disables it.
	EndingBoost float64
	// GapThreshold is the shortest gap that is filled with silence; <=0 disables filling.
	GapThreshold float64
	// Silences are spans known to be silent in the audio.
	Silences []Interval
}

// DefaultOptions returns the standard preprocessing settings.
func DefaultOptions() Options {
	return Options{
		Sensitivity:  100,
		EndingBoost:  DefaultEndingBoost,
		GapThreshold: DefaultGapThreshold,
	}
}

// EstimateDuration guesses speaking time from text length.
func EstimateDuration(text string, charDuration float64) float64 {
	if charDuration <= 0 {
		charDuration = DefaultCharDuration
	}
	d := float64(utf8.RuneCountInString(text)) * charDuration
	if d < MinEstimatedDuration {
		return MinEstimatedDuration
	}
	return d
}

// Sorted returns a copy of frames ordered by timestamp. Equal timestamps keep
// their input order.
func Sorted(frames []Frame) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Prepare runs the standard preprocessing chain on an utterance: ordering,
// silence regions, ending emphasis, sensitivity and gap filling. The input is
// not modified.
func Prepare(u Utterance, opts Options) Utterance {
	total := u.Duration()
	frames := Sorted(u.Frames)
	frames = ApplySilences(frames, opts.Silences)
	frames = EmphasizeEnding(frames, opts.EndingBoost)
	frames = ScaleSensitivity(frames, opts.Sensitivity)
	if opts.GapThreshold > 0 {
		frames = FillGaps(frames, total, opts.GapThreshold)
	}
	return Utterance{Text: u.Text, TotalDuration: total, Frames: frames}
}

// ScaleSensitivity multiplies every intensity by sensitivity/100 and clamps to [0,1].
func ScaleSensitivity(frames []Frame, sensitivity float64) []Frame {
	out := make([]Frame, len(frames))
	factor := sensitivity / 100
	for i, f := range frames {
		f.Intensity = clamp01(f.Intensity * factor)
		out[i] = f
	}
	return out
}

// EmphasizeEnding boosts the frame flagged as ending, or the last non-silent
// frame when none is flagged. The result is capped at 1.
func EmphasizeEnding(frames []Frame, boost float64) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)
	if boost <= 1 {
		return out
	}

	target := -1
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Ending && !out[i].Vowel.IsSilence() {
			target = i
			break
		}
	}
	if target < 0 {
		for i := len(out) - 1; i >= 0; i-- {
			if !out[i].Vowel.IsSilence() {
				target = i
				break
			}
		}
	}
	if target >= 0 {
		out[target].Ending = true
		if boosted := out[target].Intensity * boost; boosted < 1 {
			out[target].Intensity = boosted
		} else {
			out[target].Intensity = 1
		}
	}
	return out
}

// ApplySilences turns frames whose midpoint lies in a silent interval into
// silence with zero intensity.
func ApplySilences(frames []Frame, silences []Interval) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)
	if len(silences) == 0 {
		return out
	}
	for i, f := range out {
		if f.Vowel.IsSilence() {
			continue
		}
		mid := f.Timestamp + f.Duration/2
		for _, iv := range silences {
			if iv.Contains(mid) {
				out[i].Vowel = Silence
				out[i].Intensity = 0
				out[i].Ending = false
				break
			}
		}
	}
	return out
}

// FillGaps inserts explicit silence frames into gaps longer than threshold,
// including before the first frame and after the last one up to total.
// Frames must be sorted.
func FillGaps(frames []Frame, total, threshold float64) []Frame {
	if len(frames) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(frames)+2)

	if frames[0].Timestamp > threshold {
		out = append(out, Frame{Timestamp: 0, Vowel: Silence, Duration: frames[0].Timestamp})
	}
	for i, f := range frames {
		out = append(out, f)
		if i == len(frames)-1 {
			break
		}
		if gap := frames[i+1].Timestamp - f.End(); gap > threshold {
			out = append(out, Frame{Timestamp: f.End(), Vowel: Silence, Duration: gap})
		}
	}
	if last := frames[len(frames)-1].End(); last < total-threshold {
		out = append(out, Frame{Timestamp: last, Vowel: Silence, Duration: total - last})
	}
	return out
}

// Rescale stretches frames so the timeline spans duration seconds.
func Rescale(frames []Frame, duration float64) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)

	var end float64
	for _, f := range out {
		if f.End() > end {
			end = f.End()
		}
	}
	if end <= 0 || duration <= 0 {
		return out
	}
	factor := duration / end
	for i := range out {
		out[i].Timestamp *= factor
		out[i].Duration *= factor
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
