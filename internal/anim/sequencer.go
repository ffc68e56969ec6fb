package anim

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/metrics"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
)

// State of the sequencer.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	MinSpeed = 0.1
	MaxSpeed = 5.0
)

// SequencerOption customises a Sequencer.
type SequencerOption func(*Sequencer)

// WithSource sets the source reported to the emitter (lipsync by default).
func WithSource(src rig.Source) SequencerOption {
	return func(s *Sequencer) { s.source = src }
}

// WithSequencerClock replaces time.Now.
func WithSequencerClock(now func() time.Time) SequencerOption {
	return func(s *Sequencer) { s.now = now }
}

// WithSequencerEvents publishes playback events on b.
func WithSequencerEvents(b *bus.EventBus) SequencerOption {
	return func(s *Sequencer) { s.events = b }
}

// Sequencer plays one clip at a time on the frame loop.
type Sequencer struct {
	mu     sync.Mutex
	sched  *scheduler.Scheduler
	out    rig.Emitter
	source rig.Source
	events *bus.EventBus
	logger zerolog.Logger
	now    func() time.Time

	clip   *Clip
	state  State
	loop   bool
	speed  float64
	start  time.Time
	offset float64
	handle scheduler.Handle
}

// NewSequencer creates a stopped sequencer emitting into out.
func NewSequencer(sched *scheduler.Scheduler, out rig.Emitter, logger zerolog.Logger, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		sched:  sched,
		out:    out,
		source: rig.SourceLipSync,
		logger: logger.With().Str("component", "sequencer").Logger(),
		now:    time.Now,
		speed:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the clip and resets the clock. It fails while playing or when
// the clip is malformed, leaving the current clip untouched.
func (s *Sequencer) Load(c *Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePlaying {
		return fmt.Errorf("%w: cannot load while %s", ErrInvalidState, s.state)
	}
	s.clip = c
	s.loop = c.Loop
	s.offset = 0
	s.state = StateStopped
	s.logger.Debug().Str("clip", c.Name).Int("keyframes", len(c.Keyframes)).Float64("duration", c.Duration).Msg("Clip loaded")
	return nil
}

// Play starts or resumes playback.
func (s *Sequencer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clip == nil {
		return fmt.Errorf("%w: no clip loaded", ErrInvalidState)
	}
	if s.state == StatePlaying {
		return nil
	}
	resumed := s.state == StatePaused
	s.state = StatePlaying
	s.start = s.now()
	s.handle = s.sched.Start("sequencer", s.tick, scheduler.OnFailure(s.fail))

	if !resumed {
		metrics.ClipsPlayed.WithLabelValues("keyframes").Inc()
	}
	s.logger.Debug().Str("clip", s.clip.Name).Bool("resumed", resumed).Msg("Playback started")
	s.events.Publish(bus.Event{Type: bus.EventTypeClipStarted, Data: map[string]any{"clip": s.clip.Name, "resumed": resumed}})
	return nil
}

// Pause freezes playback at the current position.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, s.state)
	}
	s.offset = s.elapsedLocked(s.now())
	s.sched.Cancel(s.handle)
	s.state = StatePaused
	s.events.Publish(bus.Event{Type: bus.EventTypeClipPaused, Data: map[string]any{"clip": s.clip.Name, "elapsed": s.offset}})
	return nil
}

// Stop halts playback and applies the clip's first keyframe once. Stopping a
// stopped sequencer does nothing.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.sched.Cancel(s.handle)
	s.state = StateStopped
	s.offset = 0
	clip := s.clip
	s.mu.Unlock()

	if clip != nil {
		s.out.Apply(clip.Keyframes[0].Parameters.Clone(), s.source)
		s.events.Publish(bus.Event{Type: bus.EventTypeClipStopped, Data: map[string]any{"clip": clip.Name}})
	}
}

// SetSpeed changes the playback rate, clamped to [MinSpeed, MaxSpeed].
func (s *Sequencer) SetSpeed(speed float64) {
	if speed < MinSpeed {
		speed = MinSpeed
	} else if speed > MaxSpeed {
		speed = MaxSpeed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePlaying {
		now := s.now()
		s.offset = s.elapsedLocked(now)
		s.start = now
	}
	s.speed = speed
}

// Speed returns the playback rate.
func (s *Sequencer) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SetLoop toggles looping independently of the playback state.
func (s *Sequencer) SetLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = loop
}

// Loop reports whether the clip restarts when it ends.
func (s *Sequencer) Loop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Clip returns the loaded clip.
func (s *Sequencer) Clip() *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// Elapsed returns the playback position in clip seconds.
func (s *Sequencer) Elapsed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return s.offset
	}
	return s.elapsedLocked(s.now())
}

func (s *Sequencer) elapsedLocked(now time.Time) float64 {
	return s.offset + now.Sub(s.start).Seconds()*s.speed
}

func (s *Sequencer) tick(now time.Time) error {
	s.mu.Lock()
	if s.state != StatePlaying || s.clip == nil {
		s.mu.Unlock()
		return scheduler.ErrStop
	}

	elapsed := s.elapsedLocked(now)
	if elapsed >= s.clip.Duration {
		if !s.loop || s.clip.Duration <= 0 {
			s.state = StateStopped
			s.offset = 0
			name := s.clip.Name
			s.mu.Unlock()

			s.logger.Debug().Str("clip", name).Msg("Playback finished")
			s.events.Publish(bus.Event{Type: bus.EventTypeClipFinished, Data: map[string]any{"clip": name}})
			return scheduler.ErrStop
		}
		s.offset = 0
		s.start = now
		elapsed = 0
	}
	params := s.clip.Sample(elapsed)
	s.mu.Unlock()

	s.out.Apply(params, s.source)
	return nil
}

// fail runs after the scheduler halted a failing tick.
func (s *Sequencer) fail(err error) {
	s.mu.Lock()
	s.state = StateStopped
	s.offset = 0
	name := ""
	if s.clip != nil {
		name = s.clip.Name
	}
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("clip", name).Msg("Playback halted by failing tick")
	s.events.Publish(bus.Event{Type: bus.EventTypeClipFailed, Data: map[string]any{"clip": name, "error": err.Error()}})
}
