package rig

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/metrics"
	"github.com/normanking/lipsync/internal/scheduler"
)

// Source identifies who is writing parameters.
type Source int

const (
	SourceLipSync Source = iota
	SourceIdle
	SourceUser
	SourceSystem
)

func (s Source) String() string {
	switch s {
	case SourceLipSync:
		return "lipsync"
	case SourceIdle:
		return "idle"
	case SourceUser:
		return "user"
	case SourceSystem:
		return "system"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Emitter accepts parameter sets from an animation source.
type Emitter interface {
	Apply(params Params, src Source) ApplyResult
}

// ApplyResult counts what happened to the values of one Apply call.
type ApplyResult struct {
	Written int
	Dropped int
	Missing int
}

// ProtectionConfig tunes the protection window.
type ProtectionConfig struct {
	MaxDuration       time.Duration
	ScaleTolerance    float64
	PositionTolerance float64
	RestoreOnClose    bool
}

// DefaultProtectionConfig returns the standard window settings.
func DefaultProtectionConfig() ProtectionConfig {
	return ProtectionConfig{
		MaxDuration:       200 * time.Millisecond,
		ScaleTolerance:    0.1,
		PositionTolerance: 50,
		RestoreOnClose:    true,
	}
}

// ProtectionWindow is the time-boxed state during which only lip-sync may
// write non-mouth parameters and the model transform is held at Baseline.
type ProtectionWindow struct {
	Baseline       Transform
	StartedAt      time.Time
	MaxDuration    time.Duration
	RestoreOnClose bool
}

// Expired reports whether the window's lifetime has elapsed at now.
func (w ProtectionWindow) Expired(now time.Time) bool {
	return w.MaxDuration > 0 && now.Sub(w.StartedAt) >= w.MaxDuration
}

// ArbiterOption customises an Arbiter.
type ArbiterOption func(*Arbiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ArbiterOption {
	return func(a *Arbiter) {
		a.now = now
	}
}

// WithEventBus publishes protection events on b.
func WithEventBus(b *bus.EventBus) ArbiterOption {
	return func(a *Arbiter) {
		a.events = b
	}
}

// Arbiter is the single gateway that writes parameters into a Model.
type Arbiter struct {
	mu       sync.Mutex
	model    Model
	caps     Capabilities
	registry *Registry
	cfg      ProtectionConfig
	sched    *scheduler.Scheduler
	events   *bus.EventBus
	logger   zerolog.Logger
	now      func() time.Time

	indexes    map[ParameterID]int
	unresolved int
	window     *ProtectionWindow
	monitor    scheduler.Handle
}

// maxUnresolved bounds how many missing ids the arbiter remembers.
const maxUnresolved = 256

// NewArbiter creates the gateway for model. The model's optional capabilities
// are queried here, once.
func NewArbiter(model Model, registry *Registry, sched *scheduler.Scheduler, cfg ProtectionConfig, logger zerolog.Logger, opts ...ArbiterOption) *Arbiter {
	if registry == nil {
		registry = NewRegistry()
	}
	a := &Arbiter{
		model:    model,
		caps:     CapabilitiesOf(model),
		registry: registry,
		cfg:      cfg,
		sched:    sched,
		logger:   logger.With().Str("component", "arbiter").Logger(),
		now:      time.Now,
		indexes:  make(map[ParameterID]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the parameter registry used for classification.
func (a *Arbiter) Registry() *Registry {
	return a.registry
}

// Capabilities returns the optional interfaces of the model.
func (a *Arbiter) Capabilities() Capabilities {
	return a.caps
}

// Apply writes params on behalf of src. While a protection window is active,
// non-lipsync sources may only write mouth parameters; everything else is
// dropped. Parameters the model lacks are skipped.
func (a *Arbiter) Apply(params Params, src Source) ApplyResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res ApplyResult
	protected := a.protectedLocked()

	for id, value := range params {
		if protected && src != SourceLipSync && !a.registry.IsMouth(id) {
			res.Dropped++
			continue
		}
		idx, ok := a.resolveLocked(id)
		if !ok {
			res.Missing++
			continue
		}
		if a.caps.Ranges != nil {
			value = clampRange(value, a.caps.Ranges.ParameterMin(idx), a.caps.Ranges.ParameterMax(idx))
		}
		a.model.SetParameterValue(idx, value)
		res.Written++
	}

	if res.Written > 0 && a.caps.Flusher != nil {
		a.caps.Flusher.Flush()
	}
	if res.Written > 0 {
		metrics.ParameterWrites.WithLabelValues(src.String()).Add(float64(res.Written))
	}
	if res.Dropped > 0 {
		metrics.ParameterDrops.WithLabelValues(src.String()).Add(float64(res.Dropped))
	}
	if res.Missing > 0 {
		metrics.MissingParameters.Add(float64(res.Missing))
	}
	return res
}

func clampRange(v, lo, hi float64) float64 {
	if hi <= lo {
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// resolveLocked maps id to a model index, trying the registered aliases.
// Misses are cached and logged once, up to maxUnresolved ids.
func (a *Arbiter) resolveLocked(id ParameterID) (int, bool) {
	if idx, ok := a.indexes[id]; ok {
		return idx, idx >= 0
	}
	for _, name := range a.registry.Candidates(id) {
		if idx, ok := a.model.ParameterIndex(name); ok {
			a.indexes[id] = idx
			if name != string(id) {
				a.logger.Debug().Str("parameter", string(id)).Str("alias", name).Msg("Parameter resolved through alias")
			}
			return idx, true
		}
	}
	if a.unresolved >= maxUnresolved {
		a.logger.Debug().Str("parameter", string(id)).Msg("Model lacks parameter")
		return -1, false
	}
	a.indexes[id] = -1
	a.unresolved++
	a.logger.Warn().
		Err(fmt.Errorf("%w: %s", ErrMissingParameter, id)).
		Str("parameter", string(id)).
		Msg("Model lacks parameter, writes will be skipped")
	return -1, false
}

// ResetParameterCache forgets resolved indexes, e.g. after the model changed.
func (a *Arbiter) ResetParameterCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indexes = make(map[ParameterID]int)
	a.unresolved = 0
}

// DefaultValue returns the model's default for id, when the model reports one.
func (a *Arbiter) DefaultValue(id ParameterID) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.caps.Ranges == nil {
		return 0, false
	}
	idx, ok := a.resolveLocked(id)
	if !ok {
		return 0, false
	}
	return a.caps.Ranges.ParameterDefault(idx), true
}

// SetPhysics toggles native physics for ids. It reports false when the model
// has no physics control.
func (a *Arbiter) SetPhysics(ids []ParameterID, enabled bool) bool {
	if a.caps.Physics == nil {
		return false
	}
	a.caps.Physics.SetPhysicsEnabled(ids, enabled)
	return true
}
