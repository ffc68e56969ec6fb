// Package idle runs the autonomous low-priority motions: blink, gaze, wind and
// breath. All enabled generators share one scheduler task and submit their
// output through the arbiter as idle writes, so a protection window opened by
// lip-sync suppresses them.
package idle

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
)

var (
	ErrUnknownGenerator = errors.New("unknown idle generator")
	ErrUnknownSetting   = errors.New("unknown idle setting")
	ErrInvalidValue     = errors.New("invalid idle setting value")
)

// Kind names a generator.
type Kind string

const (
	KindBlink  Kind = "blink"
	KindGaze   Kind = "gaze"
	KindWind   Kind = "wind"
	KindBreath Kind = "breath"
)

// Kinds lists the generators in emission order.
var Kinds = []Kind{KindBlink, KindGaze, KindWind, KindBreath}

// ParseKind validates a generator name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGenerator, s)
}

// Target is where idle output goes. The arbiter implements it.
type Target interface {
	rig.Emitter
	SetPhysics(ids []rig.ParameterID, enabled bool) bool
}

// Settings holds the generator tunables.
type Settings struct {
	BlinkPeriod    float64 `json:"blink_period"`
	BlinkDuration  float64 `json:"blink_duration"`
	GazeRange      float64 `json:"gaze_range"`
	GazeInterval   float64 `json:"gaze_interval"`
	GazeSmoothness float64 `json:"gaze_smoothness"`
	WindStrength   float64 `json:"wind_strength"`
	WindFrequency  float64 `json:"wind_frequency"`
	BreathPeriod   float64 `json:"breath_period"`
}

// DefaultSettings returns the standard tunables.
func DefaultSettings() Settings {
	return Settings{
		BlinkPeriod:    3.0,
		BlinkDuration:  0.15,
		GazeRange:      0.5,
		GazeInterval:   2.0,
		GazeSmoothness: 0.05,
		WindStrength:   1.0,
		WindFrequency:  0.5,
		BreathPeriod:   4.0,
	}
}

// Status is a snapshot of the manager.
type Status struct {
	Enabled    map[Kind]bool `json:"enabled"`
	Running    bool          `json:"running"`
	WindPaused bool          `json:"wind_paused"`
	BaseIdle   bool          `json:"base_idle"`
	Settings   Settings      `json:"settings"`
}

// Option customises a Manager.
type Option func(*Manager)

// WithRand sets the gaze random source.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.gaze.rnd = r }
}

// WithEvents publishes idle events on b.
func WithEvents(b *bus.EventBus) Option {
	return func(m *Manager) { m.events = b }
}

// Manager owns the four generators and their shared loop.
type Manager struct {
	mu     sync.Mutex
	sched  *scheduler.Scheduler
	target Target
	events *bus.EventBus
	logger zerolog.Logger

	blink  Blink
	gaze   Gaze
	wind   Wind
	breath Breath

	enabled     map[Kind]bool
	running     bool
	handle      scheduler.Handle
	last        time.Time
	windPaused  bool
	physicsOff  bool
	baseIdle    bool
	breathReset bool
}

// NewManager creates a manager with every generator disabled.
func NewManager(sched *scheduler.Scheduler, target Target, settings Settings, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		sched:   sched,
		target:  target,
		logger:  logger.With().Str("component", "idle").Logger(),
		enabled: make(map[Kind]bool, len(Kinds)),
		gaze:    Gaze{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))},
	}
	m.applySettings(settings)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) applySettings(s Settings) {
	m.blink.Period, m.blink.Duration = s.BlinkPeriod, s.BlinkDuration
	m.gaze.Range, m.gaze.Interval, m.gaze.Smoothness = s.GazeRange, s.GazeInterval, s.GazeSmoothness
	m.wind.Strength, m.wind.Frequency = s.WindStrength, s.WindFrequency
	m.breath.Period = s.BreathPeriod
}

func (m *Manager) settingsLocked() Settings {
	return Settings{
		BlinkPeriod:    m.blink.Period,
		BlinkDuration:  m.blink.Duration,
		GazeRange:      m.gaze.Range,
		GazeInterval:   m.gaze.Interval,
		GazeSmoothness: m.gaze.Smoothness,
		WindStrength:   m.wind.Strength,
		WindFrequency:  m.wind.Frequency,
		BreathPeriod:   m.breath.Period,
	}
}

// Enable turns a generator on or off, starting the shared loop with the
// first enabled generator and stopping it with the last.
func (m *Manager) Enable(kind Kind, on bool) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}

	m.mu.Lock()
	if m.enabled[kind] == on {
		m.mu.Unlock()
		return nil
	}
	m.enabled[kind] = on

	var flush []rig.Params
	var physics *bool
	switch kind {
	case KindBlink:
		m.blink.reset()
	case KindGaze:
		m.gaze.reset()
	case KindWind:
		if on != m.physicsOff {
			m.physicsOff = on
			enabled := !on
			physics = &enabled
		}
	case KindBreath:
		m.breath.reset()
		if !on {
			flush = append(flush, NeutralBreath())
		}
	}

	var stopped, restore bool
	switch active := m.anyEnabledLocked(); {
	case active && !m.running:
		m.running = true
		m.last = time.Time{}
		m.handle = m.sched.Start("idle", m.tick, scheduler.OnFailure(m.fail))
		m.logger.Debug().Msg("Idle loop started")
	case !active && m.running:
		restore = m.cancelLoopLocked()
		stopped = true
	}
	m.mu.Unlock()

	if physics != nil {
		m.target.SetPhysics(windPhysics, *physics)
	}
	for _, p := range flush {
		m.target.Apply(p, rig.SourceIdle)
	}
	if stopped {
		m.loopStopped(restore, "no generators enabled")
	}

	m.logger.Info().Str("generator", string(kind)).Bool("enabled", on).Msg("Idle generator toggled")
	m.events.Publish(bus.Event{Type: bus.EventTypeIdleToggled, Data: map[string]any{"generator": string(kind), "enabled": on}})
	return nil
}

// Enabled reports whether kind is on.
func (m *Manager) Enabled(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

// Running reports whether the shared loop is scheduled.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stop disables every generator.
func (m *Manager) Stop() {
	for _, k := range Kinds {
		_ = m.Enable(k, false)
	}
}

// PauseWind suspends wind output without resetting its phase or restoring
// physics.
func (m *Manager) PauseWind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windPaused = true
}

// ResumeWind continues wind output from the paused phase.
func (m *Manager) ResumeWind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windPaused = false
}

// WindPhase returns the wind oscillator phase.
func (m *Manager) WindPhase() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wind.Phase()
}

// SetBaseIdleMotion records whether the host runs its own idle motion.
// Breathing is suppressed while it does.
func (m *Manager) SetBaseIdleMotion(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseIdle == on {
		return
	}
	m.baseIdle = on
	m.breathReset = on
}

// SetParam changes one tunable at runtime.
func (m *Manager) SetParam(name string, value float64) error {
	if value < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalidValue, name, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch strings.ToLower(name) {
	case "blink_period":
		m.blink.Period = value
	case "blink_duration":
		m.blink.Duration = value
	case "gaze_range":
		m.gaze.Range = value
	case "gaze_interval":
		m.gaze.Interval = value
	case "gaze_smoothness":
		if value > 1 {
			value = 1
		}
		m.gaze.Smoothness = value
	case "wind_strength":
		m.wind.Strength = value
	case "wind_frequency":
		m.wind.Frequency = value
	case "breath_period":
		m.breath.Period = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}
	m.logger.Debug().Str("setting", name).Float64("value", value).Msg("Idle setting changed")
	return nil
}

// Status returns a snapshot for display.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	enabled := make(map[Kind]bool, len(Kinds))
	for _, k := range Kinds {
		enabled[k] = m.enabled[k]
	}
	return Status{
		Enabled:    enabled,
		Running:    m.running,
		WindPaused: m.windPaused,
		BaseIdle:   m.baseIdle,
		Settings:   m.settingsLocked(),
	}
}

func (m *Manager) anyEnabledLocked() bool {
	for _, on := range m.enabled {
		if on {
			return true
		}
	}
	return false
}

func (m *Manager) tick(now time.Time) error {
	m.mu.Lock()
	dt := 0.0
	if !m.last.IsZero() {
		dt = now.Sub(m.last).Seconds()
	}
	m.last = now

	out := rig.Params{}
	if m.enabled[KindBlink] {
		out.Merge(m.blink.step(dt))
	}
	if m.enabled[KindGaze] {
		out.Merge(m.gaze.step(dt))
	}
	if m.enabled[KindWind] && !m.windPaused {
		out.Merge(m.wind.step(dt))
	}
	if m.enabled[KindBreath] {
		switch {
		case m.breathReset:
			out.Merge(NeutralBreath())
			m.breathReset = false
		case !m.baseIdle:
			out.Merge(m.breath.step(dt))
		}
	}
	m.mu.Unlock()

	if len(out) > 0 {
		m.target.Apply(out, rig.SourceIdle)
	}
	return nil
}

// cancelLoopLocked cancels the shared task and reports whether wind physics
// needs restoring. The caller finishes with loopStopped after unlocking.
func (m *Manager) cancelLoopLocked() bool {
	m.sched.Cancel(m.handle)
	m.running = false
	restore := m.physicsOff
	m.physicsOff = false
	return restore
}

// loopStopped restores wind physics and resets breath once the loop is down.
func (m *Manager) loopStopped(restore bool, reason string) {
	if restore {
		m.target.SetPhysics(windPhysics, true)
	}
	m.target.Apply(NeutralBreath(), rig.SourceIdle)

	m.logger.Debug().Str("reason", reason).Msg("Idle loop stopped")
	m.events.Publish(bus.Event{Type: bus.EventTypeIdleLoopDown, Data: map[string]any{"reason": reason}})
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	enabled := make([]string, 0, len(m.enabled))
	for k, on := range m.enabled {
		if on {
			enabled = append(enabled, string(k))
		}
		m.enabled[k] = false
	}
	var stopped, restore bool
	if m.running {
		restore = m.cancelLoopLocked()
		stopped = true
	}
	m.mu.Unlock()
	sort.Strings(enabled)

	m.logger.Error().Err(err).Strs("generators", enabled).Msg("Idle loop halted by failing tick")
	if stopped {
		m.loopStopped(restore, "tick failed")
	}
}
