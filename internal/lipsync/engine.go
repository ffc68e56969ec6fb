// Package lipsync ties the animation paths together. The Engine owns one
// lip-sync context: the keyframe sequencer for synthesized speech, the
// realtime analysis session for live audio, and the settings that shape their
// output before it reaches the arbiter.
package lipsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/analysis"
	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/phoneme"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
)

// Gateway is the part of the arbiter the engine drives.
type Gateway interface {
	rig.Emitter
	OpenWindow(restoreOnClose bool)
	CloseWindow() bool
	WindowActive() bool
	Registry() *rig.Registry
}

// Option customises an Engine.
type Option func(*Engine)

// WithEvents publishes lip-sync events on b.
func WithEvents(b *bus.EventBus) Option {
	return func(e *Engine) { e.events = b }
}

// WithRestoreOnClose sets whether protection windows restore the baseline
// transform when they close.
func WithRestoreOnClose(restore bool) Option {
	return func(e *Engine) { e.restoreOnClose = restore }
}

// WithClock replaces time.Now for the sequencer.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Status is a snapshot of the engine.
type Status struct {
	Mode       Mode    `json:"mode"`
	Playback   string  `json:"playback"`
	Clip       string  `json:"clip,omitempty"`
	Elapsed    float64 `json:"elapsed"`
	SpeechID   string  `json:"speech_id,omitempty"`
	Realtime   bool    `json:"realtime"`
	SessionID  string  `json:"session_id,omitempty"`
	LastVowel  string  `json:"last_vowel,omitempty"`
	Protection bool    `json:"protection"`
}

// Engine is the lip-sync context.
type Engine struct {
	mu             sync.Mutex
	realtimeMu     sync.Mutex // serializes realtime start and stop
	gw             Gateway
	sched          *scheduler.Scheduler
	table          *phoneme.Table
	analyzerCfg    analysis.Config
	seq            *anim.Sequencer
	events         *bus.EventBus
	logger         zerolog.Logger
	now            func() time.Time
	restoreOnClose bool

	settings     Settings
	speechID     string
	session      *session
	lastTTS      rig.Params
	lastRealtime rig.Params
}

// NewEngine creates an engine writing through gw.
func NewEngine(gw Gateway, sched *scheduler.Scheduler, table *phoneme.Table, analyzerCfg analysis.Config, settings Settings, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	settings, err := settings.Normalize()
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = phoneme.DefaultTable()
	}

	e := &Engine{
		gw:             gw,
		sched:          sched,
		table:          table,
		analyzerCfg:    analyzerCfg,
		logger:         logger.With().Str("component", "lipsync").Logger(),
		now:            time.Now,
		restoreOnClose: true,
		settings:       settings,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.seq = anim.NewSequencer(sched, ttsOutput{e}, logger,
		anim.WithSource(rig.SourceLipSync),
		anim.WithSequencerClock(e.now),
		anim.WithSequencerEvents(e.events),
	)
	return e, nil
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings replaces the settings. Switching to tts mode ends a running
// realtime session.
func (e *Engine) UpdateSettings(s Settings) error {
	s, err := s.Normalize()
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.settings
	e.settings = s
	stopRealtime := e.session != nil && !s.Mode.allowsRealtime()
	e.mu.Unlock()

	if stopRealtime {
		e.StopRealtime()
	}
	if old.Mode != s.Mode {
		e.logger.Info().Str("from", string(old.Mode)).Str("to", string(s.Mode)).Msg("Lip-sync mode changed")
	}
	e.events.Publish(bus.Event{Type: bus.EventTypeSettingsChanged, Data: map[string]any{"mode": string(s.Mode)}})
	return nil
}

// Table returns the vowel mapping table.
func (e *Engine) Table() *phoneme.Table {
	return e.table
}

// Speak preprocesses an utterance, resamples it into a clip and plays it.
// silences are optional spans known to be silent in the audio.
func (e *Engine) Speak(u phoneme.Utterance, silences []phoneme.Interval) (string, error) {
	s := e.Settings()
	if !s.Mode.allowsTTS() {
		return "", fmt.Errorf("%w: speech playback needs tts or hybrid mode, not %s", ErrInvalidMode, s.Mode)
	}

	prepared := phoneme.Prepare(u, phoneme.Options{
		Sensitivity:  s.Sensitivity,
		EndingBoost:  s.EndingBoost,
		GapThreshold: phoneme.DefaultGapThreshold,
		Silences:     silences,
	})
	clip, err := anim.GenerateSequence(prepared, s.FPS, e.table)
	if err != nil {
		return "", err
	}
	return e.PlayClip(clip)
}

// SpeakPhonemes lays phoneme labels out over totalDuration and speaks them.
func (e *Engine) SpeakPhonemes(labels []string, totalDuration float64) (string, error) {
	frames := phoneme.FramesFromPhonemes(labels, totalDuration)
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: no phonemes to speak", anim.ErrMalformedClip)
	}
	return e.Speak(phoneme.Utterance{TotalDuration: totalDuration, Frames: frames}, nil)
}

// PlayClip replaces whatever is playing with c and opens a protection window.
func (e *Engine) PlayClip(c *anim.Clip) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if !e.Settings().Mode.allowsTTS() {
		return "", fmt.Errorf("%w: clip playback needs tts or hybrid mode", ErrInvalidMode)
	}

	if e.seq.State() == anim.StatePlaying {
		_ = e.seq.Pause()
	}
	if err := e.seq.Load(c); err != nil {
		return "", err
	}
	if err := e.seq.Play(); err != nil {
		return "", err
	}
	e.gw.OpenWindow(e.restoreOnClose)

	id := uuid.New().String()
	e.mu.Lock()
	e.speechID = id
	e.mu.Unlock()

	e.logger.Info().Str("speech_id", id).Str("clip", c.Name).Float64("duration", c.Duration).Msg("Lip-sync playback started")
	return id, nil
}

// Pause freezes clip playback.
func (e *Engine) Pause() error {
	return e.seq.Pause()
}

// Resume continues a paused clip.
func (e *Engine) Resume() error {
	if e.seq.State() != anim.StatePaused {
		return fmt.Errorf("%w: nothing to resume", anim.ErrInvalidState)
	}
	return e.seq.Play()
}

// SetSpeed changes the clip playback rate.
func (e *Engine) SetSpeed(speed float64) {
	e.seq.SetSpeed(speed)
}

// SetLoop toggles looping of the current clip.
func (e *Engine) SetLoop(loop bool) {
	e.seq.SetLoop(loop)
}

// Stop ends clip playback and any realtime session, closes the protection
// window and closes the mouth.
func (e *Engine) Stop() {
	e.seq.Stop()
	e.StopRealtime()
	e.gw.CloseWindow()

	e.mu.Lock()
	e.speechID = ""
	e.lastTTS = nil
	e.mu.Unlock()

	e.gw.Apply(e.table.Silence(), rig.SourceLipSync)
	e.logger.Debug().Msg("Lip-sync stopped")
}

// StartRealtime begins analysing src, first stopping a previous session so
// at most one device is held.
func (e *Engine) StartRealtime(ctx context.Context, src audio.Source) (string, error) {
	e.realtimeMu.Lock()
	defer e.realtimeMu.Unlock()

	s := e.Settings()
	if !s.Mode.allowsRealtime() {
		return "", fmt.Errorf("%w: realtime analysis needs realtime or hybrid mode, not %s", ErrInvalidMode, s.Mode)
	}
	e.stopRealtimeLocked()

	samples, err := src.Start(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start realtime session: %w", err)
	}

	sess := newSession(e, src, s)
	sess.handle = e.sched.Start("realtime", sess.tick, scheduler.OnFailure(sess.fail))

	e.mu.Lock()
	e.session = sess
	e.lastRealtime = nil
	e.mu.Unlock()

	go sess.consume(samples)
	e.gw.OpenWindow(e.restoreOnClose)

	sess.started()
	return sess.id, nil
}

// StopRealtime ends the realtime session. It reports whether one was running.
func (e *Engine) StopRealtime() bool {
	e.realtimeMu.Lock()
	defer e.realtimeMu.Unlock()
	return e.stopRealtimeLocked()
}

func (e *Engine) stopRealtimeLocked() bool {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.lastRealtime = nil
	e.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.stop("stopped")
	return true
}

// endSession stops sess and detaches it if it is still the current session.
func (e *Engine) endSession(sess *session, reason string) {
	e.mu.Lock()
	if e.session == sess {
		e.session = nil
		e.lastRealtime = nil
	}
	e.mu.Unlock()

	sess.stop(reason)
}

// Status returns a snapshot for display.
func (e *Engine) Status() Status {
	st := Status{
		Playback:   e.seq.State().String(),
		Elapsed:    e.seq.Elapsed(),
		Protection: e.gw.WindowActive(),
	}
	if c := e.seq.Clip(); c != nil {
		st.Clip = c.Name
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st.Mode = e.settings.Mode
	st.SpeechID = e.speechID
	if e.session != nil {
		st.Realtime = true
		st.SessionID = e.session.id
		st.LastVowel = string(e.session.lastVowel())
	}
	return st
}

// ttsOutput receives sequencer samples.
type ttsOutput struct{ e *Engine }

func (o ttsOutput) Apply(params rig.Params, src rig.Source) rig.ApplyResult {
	e := o.e
	e.mu.Lock()
	e.lastTTS = params
	s := e.settings
	if s.Mode == ModeHybrid && e.session != nil && e.lastRealtime != nil {
		params = rig.Lerp(params, e.lastRealtime, s.HybridBlendRatio)
	}
	e.mu.Unlock()

	return e.emit(params, src, s)
}

// emitRealtime sends one realtime frame, blended with playing speech in
// hybrid mode.
func (e *Engine) emitRealtime(params rig.Params) rig.ApplyResult {
	playing := e.seq.State() == anim.StatePlaying

	e.mu.Lock()
	e.lastRealtime = params
	s := e.settings
	if s.Mode == ModeHybrid && playing && e.lastTTS != nil {
		params = rig.Lerp(e.lastTTS, params, s.HybridBlendRatio)
	}
	e.mu.Unlock()

	return e.emit(params, rig.SourceLipSync, s)
}

// emit applies the mouth scale and writes through the gateway.
func (e *Engine) emit(params rig.Params, src rig.Source, s Settings) rig.ApplyResult {
	if s.MouthOpenScale != 100 {
		scale := s.MouthOpenScale / 100
		registry := e.gw.Registry()
		scaled := make(rig.Params, len(params))
		for id, v := range params {
			if registry.IsMouth(id) {
				v *= scale
			}
			scaled[id] = v
		}
		params = scaled
	}
	return e.gw.Apply(params, src)
}
