package idle

import (
	"math"
	"math/rand"

	"github.com/normanking/lipsync/internal/rig"
)

// Blink closes and reopens both eyes once per period with a triangular
// envelope. The sweep occupies the last Duration seconds of each period.
// A zero period keeps the eyes open.
type Blink struct {
	Period   float64
	Duration float64

	elapsed float64
}

func (b *Blink) step(dt float64) rig.Params {
	period := math.Max(b.Period, b.Duration)
	if period <= 0 {
		return rig.Params{rig.ParamEyeLOpen: 1, rig.ParamEyeROpen: 1}
	}
	b.elapsed += dt
	if b.elapsed >= period {
		b.elapsed = math.Mod(b.elapsed, period)
	}

	openness := 1.0
	if start := period - b.Duration; b.Duration > 0 && b.elapsed >= start {
		openness = math.Abs(2*(b.elapsed-start)/b.Duration - 1)
	}
	return rig.Params{rig.ParamEyeLOpen: openness, rig.ParamEyeROpen: openness}
}

func (b *Blink) reset() { b.elapsed = 0 }

// Gaze drifts the eyeballs toward a random target that changes every Interval.
type Gaze struct {
	Range      float64
	Interval   float64
	Smoothness float64

	rnd      *rand.Rand
	timer    float64
	picked   bool
	target   [2]float64
	position [2]float64
}

func (g *Gaze) step(dt float64) rig.Params {
	g.timer += dt
	if !g.picked || g.timer >= g.Interval {
		g.timer = 0
		g.picked = true
		g.target[0] = (g.rnd.Float64()*2 - 1) * g.Range
		g.target[1] = (g.rnd.Float64()*2 - 1) * g.Range
	}
	for i := range g.position {
		g.position[i] += (g.target[i] - g.position[i]) * g.Smoothness
	}
	return rig.Params{rig.ParamEyeBallX: g.position[0], rig.ParamEyeBallY: g.position[1]}
}

func (g *Gaze) reset() {
	g.timer = 0
	g.picked = false
}

// windWeight distributes the wind signals over one parameter.
type windWeight struct {
	id        rig.ParameterID
	primary   float64
	secondary float64
}

var windWeights = []windWeight{
	{rig.ParamHairFront, 1.0, 0},
	{rig.ParamHairSide, 0.4, 1.0},
	{rig.ParamHairBack, 0.6, 0.3},
	{rig.ParamBodyAngleZ, 2.0, 0},
}

// windPhysics lists the parameters whose native physics is suspended while
// wind drives them.
var windPhysics = []rig.ParameterID{rig.ParamHairFront, rig.ParamHairSide, rig.ParamHairBack}

// Wind sways hair and body with two out-of-phase oscillators.
type Wind struct {
	Strength  float64
	Frequency float64

	phase float64
}

func (w *Wind) step(dt float64) rig.Params {
	// both oscillators repeat every 20π
	w.phase = math.Mod(w.phase+2*math.Pi*dt*w.Frequency, 20*math.Pi)
	primary := math.Sin(w.phase) * w.Strength
	secondary := math.Cos(w.phase*0.7) * w.Strength * 0.5

	out := make(rig.Params, len(windWeights))
	for _, ww := range windWeights {
		out[ww.id] = primary*ww.primary + secondary*ww.secondary
	}
	return out
}

// Phase returns the oscillator phase in radians.
func (w *Wind) Phase() float64 { return w.phase }

func (w *Wind) reset() { w.phase = 0 }

// Breath drives the breath parameter around 0.5 with small body offsets.
type Breath struct {
	Period float64

	phase float64
}

// NeutralBreath is written when breathing stops or is suppressed.
func NeutralBreath() rig.Params {
	return rig.Params{rig.ParamBreath: 0.5, rig.ParamBodyAngleX: 0, rig.ParamBodyAngleY: 0}
}

func (b *Breath) step(dt float64) rig.Params {
	if b.Period > 0 {
		b.phase = math.Mod(b.phase+dt/b.Period, 1)
	}
	s := math.Sin(2 * math.Pi * b.phase)
	return rig.Params{
		rig.ParamBreath:     0.5 + 0.5*s,
		rig.ParamBodyAngleY: s * 1.5,
		rig.ParamBodyAngleX: s * 0.5,
	}
}

func (b *Breath) reset() { b.phase = 0 }
