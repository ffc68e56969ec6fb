package anim

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
)

type recordingEmitter struct {
	mu      sync.Mutex
	calls   []rig.Params
	sources []rig.Source
}

func (r *recordingEmitter) Apply(params rig.Params, src rig.Source) rig.ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, params)
	r.sources = append(r.sources, src)
	return rig.ApplyResult{Written: len(params)}
}

func (r *recordingEmitter) last() rig.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type panicEmitter struct{}

func (panicEmitter) Apply(rig.Params, rig.Source) rig.ApplyResult { panic("model gone") }

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

type fixture struct {
	sched *scheduler.Scheduler
	out   *recordingEmitter
	clock *stepClock
	seq   *Sequencer
}

func newFixture(t *testing.T, opts ...SequencerOption) *fixture {
	t.Helper()
	f := &fixture{
		sched: scheduler.New(zerolog.Nop()),
		out:   &recordingEmitter{},
		clock: &stepClock{now: time.Unix(1000, 0)},
	}
	opts = append([]SequencerOption{WithSequencerClock(f.clock.Now)}, opts...)
	f.seq = NewSequencer(f.sched, f.out, zerolog.Nop(), opts...)
	return f
}

func (f *fixture) step(d time.Duration) {
	f.sched.Tick(f.clock.Advance(d))
}

func rampClip(t *testing.T, loop bool) *Clip {
	return mustClip(t, loop,
		Keyframe{Time: 0, Parameters: rig.Params{rig.ParamMouthOpenY: 0}},
		Keyframe{Time: 1, Parameters: rig.Params{rig.ParamMouthOpenY: 1}},
	)
}

func TestSequencer_Transitions(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, StateStopped, f.seq.State())
	assert.ErrorIs(t, f.seq.Play(), ErrInvalidState, "no clip")
	assert.ErrorIs(t, f.seq.Pause(), ErrInvalidState)

	require.NoError(t, f.seq.Load(rampClip(t, false)))
	assert.Equal(t, StateStopped, f.seq.State())

	require.NoError(t, f.seq.Play())
	assert.Equal(t, StatePlaying, f.seq.State())
	require.NoError(t, f.seq.Play(), "play while playing is a no-op")
	assert.Equal(t, 1, f.sched.Len())

	assert.ErrorIs(t, f.seq.Load(rampClip(t, true)), ErrInvalidState)

	f.step(250 * time.Millisecond)
	require.NoError(t, f.seq.Pause())
	assert.Equal(t, StatePaused, f.seq.State())
	assert.Equal(t, 0, f.sched.Len())
	assert.InDelta(t, 0.25, f.seq.Elapsed(), 1e-9)

	f.clock.Advance(5 * time.Second)
	assert.InDelta(t, 0.25, f.seq.Elapsed(), 1e-9, "paused clock does not advance")

	require.NoError(t, f.seq.Play())
	f.step(250 * time.Millisecond)
	assert.InDelta(t, 0.5, f.out.last()[rig.ParamMouthOpenY], 1e-9)

	require.NoError(t, f.seq.Pause())
	require.NoError(t, f.seq.Load(rampClip(t, true)), "load is allowed while paused")
	assert.Equal(t, StateStopped, f.seq.State())
	assert.True(t, f.seq.Loop())
}

func TestSequencer_LoadRejectsMalformed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.seq.Load(rampClip(t, false)))

	err := f.seq.Load(&Clip{Name: "empty"})
	assert.ErrorIs(t, err, ErrMalformedClip)
	assert.Equal(t, "test", f.seq.Clip().Name)
}

func TestSequencer_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	clip := mustClip(t, false,
		Keyframe{Time: 0, Parameters: rig.Params{rig.ParamMouthOpenY: 0.2}},
		Keyframe{Time: 1, Parameters: rig.Params{rig.ParamMouthOpenY: 1}},
	)
	require.NoError(t, f.seq.Load(clip))
	require.NoError(t, f.seq.Play())
	f.step(500 * time.Millisecond)
	before := f.out.count()

	f.seq.Stop()
	f.seq.Stop()
	f.seq.Stop()

	assert.Equal(t, before+1, f.out.count())
	assert.Equal(t, rig.Params{rig.ParamMouthOpenY: 0.2}, f.out.last())
	assert.Equal(t, StateStopped, f.seq.State())
	assert.Equal(t, 0.0, f.seq.Elapsed())
	assert.Equal(t, 0, f.sched.Len())
}

func TestSequencer_FinishesAtEnd(t *testing.T) {
	events := bus.NewEventBus()
	finished := make(chan bus.Event, 1)
	events.Subscribe(bus.EventTypeClipFinished, func(e bus.Event) { finished <- e })

	f := newFixture(t, WithSequencerEvents(events))
	require.NoError(t, f.seq.Load(rampClip(t, false)))
	require.NoError(t, f.seq.Play())

	f.step(900 * time.Millisecond)
	assert.Equal(t, StatePlaying, f.seq.State())
	n := f.out.count()

	f.step(200 * time.Millisecond)
	assert.Equal(t, StateStopped, f.seq.State())
	assert.Equal(t, n, f.out.count(), "first keyframe is not reapplied at the end")
	assert.Equal(t, 0, f.sched.Len())

	select {
	case e := <-finished:
		assert.Equal(t, "test", e.Data["clip"])
	case <-time.After(time.Second):
		t.Fatal("no finished event")
	}
}

func TestSequencer_Loops(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.seq.Load(rampClip(t, true)))
	require.NoError(t, f.seq.Play())

	f.step(1100 * time.Millisecond)
	assert.Equal(t, StatePlaying, f.seq.State())
	assert.Equal(t, 0.0, f.out.last()[rig.ParamMouthOpenY])

	f.step(300 * time.Millisecond)
	assert.InDelta(t, 0.3, f.out.last()[rig.ParamMouthOpenY], 1e-9)

	f.seq.SetLoop(false)
	f.step(800 * time.Millisecond)
	assert.Equal(t, StateStopped, f.seq.State())
}

func TestSequencer_SpeedIsClamped(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		in, want float64
	}{
		{0, MinSpeed},
		{-3, MinSpeed},
		{2, 2},
		{10, MaxSpeed},
	}
	for _, tt := range tests {
		f.seq.SetSpeed(tt.in)
		assert.Equal(t, tt.want, f.seq.Speed(), "SetSpeed(%v)", tt.in)
	}
}

func TestSequencer_SpeedScalesElapsed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.seq.Load(rampClip(t, false)))
	require.NoError(t, f.seq.Play())

	f.step(100 * time.Millisecond)
	f.seq.SetSpeed(2)
	f.step(100 * time.Millisecond)

	assert.InDelta(t, 0.3, f.out.last()[rig.ParamMouthOpenY], 1e-9)
}

func TestSequencer_FailingTickStops(t *testing.T) {
	events := bus.NewEventBus()
	failed := make(chan bus.Event, 1)
	events.Subscribe(bus.EventTypeClipFailed, func(e bus.Event) { failed <- e })

	sched := scheduler.New(zerolog.Nop())
	clock := &stepClock{now: time.Unix(0, 0)}
	seq := NewSequencer(sched, panicEmitter{}, zerolog.Nop(), WithSequencerClock(clock.Now), WithSequencerEvents(events))
	require.NoError(t, seq.Load(rampClip(t, false)))
	require.NoError(t, seq.Play())

	sched.Tick(clock.Advance(10 * time.Millisecond))

	assert.Equal(t, StateStopped, seq.State())
	assert.Equal(t, 0, sched.Len())
	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}
}

func TestSequencer_UsesSource(t *testing.T) {
	f := newFixture(t, WithSource(rig.SourceUser))
	require.NoError(t, f.seq.Load(rampClip(t, false)))
	require.NoError(t, f.seq.Play())
	f.step(10 * time.Millisecond)

	f.out.mu.Lock()
	defer f.out.mu.Unlock()
	require.NotEmpty(t, f.out.sources)
	assert.Equal(t, rig.SourceUser, f.out.sources[0])
}
