// Package scheduler drives every animation source from a single frame loop.
//
// Sources register a tick function with Start and receive a Handle. Each frame,
// Tick invokes the active functions in registration order on the calling
// goroutine, so animation logic never runs in parallel with itself. Cancel
// invalidates a handle immediately: a cancelled function is never invoked again,
// even if the cancellation happens from inside another tick of the same frame.
//
// A tick that returns an error or panics halts only its own task. Returning
// ErrStop ends the task without it being counted as a failure.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/metrics"
)

// ErrStop is returned by a tick function that has finished its work.
var ErrStop = errors.New("scheduler: task finished")

// ErrTickPanic wraps a value recovered from a panicking tick.
var ErrTickPanic = errors.New("scheduler: tick panicked")

// TickFunc is invoked once per frame with the frame timestamp.
type TickFunc func(now time.Time) error

// Handle identifies a scheduled task. Handles are never reused.
type Handle uint64

// TaskOption customises a scheduled task.
type TaskOption func(*task)

// OnFailure registers a callback invoked after the task was halted by an error
// or panic. It runs on the frame loop goroutine, after the task was cancelled.
func OnFailure(fn func(error)) TaskOption {
	return func(t *task) {
		t.onFail = fn
	}
}

type task struct {
	handle Handle
	name   string
	fn     TickFunc
	onFail func(error)
	active bool
}

// Scheduler is a cooperative frame loop shared by all animation sources.
type Scheduler struct {
	mu     sync.Mutex
	next   Handle
	tasks  []*task
	logger zerolog.Logger
}

// New creates an empty scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers fn to run on every frame until cancelled.
func (s *Scheduler) Start(name string, fn TickFunc, opts ...TaskOption) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	t := &task{
		handle: s.next,
		name:   name,
		fn:     fn,
		active: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	s.tasks = append(s.tasks, t)
	metrics.ScheduledTasks.Set(float64(len(s.tasks)))

	s.logger.Debug().Str("task", name).Uint64("handle", uint64(t.handle)).Msg("Task started")
	return t.handle
}

// Cancel stops the task behind h. It reports whether the handle was active.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tasks {
		if t.handle != h {
			continue
		}
		t.active = false
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		metrics.ScheduledTasks.Set(float64(len(s.tasks)))
		s.logger.Debug().Str("task", t.name).Uint64("handle", uint64(h)).Msg("Task cancelled")
		return true
	}
	return false
}

// Active reports whether h still refers to a scheduled task.
func (s *Scheduler) Active(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.handle == h {
			return true
		}
	}
	return false
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tick runs one frame.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	snapshot := make([]*task, len(s.tasks))
	copy(snapshot, s.tasks)
	s.mu.Unlock()

	for _, t := range snapshot {
		s.mu.Lock()
		active := t.active
		s.mu.Unlock()
		if !active {
			continue
		}

		err := s.invoke(t, now)
		if err == nil {
			continue
		}

		s.Cancel(t.handle)
		if errors.Is(err, ErrStop) {
			continue
		}

		metrics.TickFailures.WithLabelValues(t.name).Inc()
		s.logger.Error().Err(err).Str("task", t.name).Msg("Tick failed, task halted")
		if t.onFail != nil {
			t.onFail(err)
		}
	}
}

func (s *Scheduler) invoke(t *task, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTickPanic, r)
		}
	}()
	return t.fn(now)
}

// Run ticks at fps frames per second until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	s.logger.Info().Int("fps", fps).Msg("Frame loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Frame loop stopped")
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}
