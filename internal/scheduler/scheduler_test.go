package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_TickRunsInStartOrder(t *testing.T) {
	s := New(zerolog.Nop())
	var order []string

	s.Start("first", func(time.Time) error { order = append(order, "first"); return nil })
	s.Start("second", func(time.Time) error { order = append(order, "second"); return nil })

	s.Tick(time.Now())
	s.Tick(time.Now())

	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestScheduler_CancelPreventsFurtherTicks(t *testing.T) {
	s := New(zerolog.Nop())
	calls := 0
	h := s.Start("task", func(time.Time) error { calls++; return nil })

	s.Tick(time.Now())
	require.True(t, s.Cancel(h))
	s.Tick(time.Now())

	assert.Equal(t, 1, calls)
	assert.False(t, s.Active(h))
	assert.False(t, s.Cancel(h), "cancelling twice is a no-op")
}

func TestScheduler_CancelFromEarlierTickSameFrame(t *testing.T) {
	s := New(zerolog.Nop())
	var victim Handle
	victimCalls := 0

	s.Start("killer", func(time.Time) error {
		s.Cancel(victim)
		return nil
	})
	victim = s.Start("victim", func(time.Time) error { victimCalls++; return nil })

	s.Tick(time.Now())
	assert.Equal(t, 0, victimCalls, "cancelled task must not fire in the same frame")
}

func TestScheduler_FailureHaltsOnlyFailingTask(t *testing.T) {
	tests := []struct {
		name string
		fn   TickFunc
	}{
		{"error", func(time.Time) error { return errors.New("boom") }},
		{"panic", func(time.Time) error { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(zerolog.Nop())
			var failure error
			healthy := 0

			bad := s.Start("bad", tt.fn, OnFailure(func(err error) { failure = err }))
			good := s.Start("good", func(time.Time) error { healthy++; return nil })

			s.Tick(time.Now())
			s.Tick(time.Now())

			assert.False(t, s.Active(bad))
			assert.True(t, s.Active(good))
			assert.Equal(t, 2, healthy)
			require.Error(t, failure)
		})
	}
}

func TestScheduler_PanicIsWrapped(t *testing.T) {
	s := New(zerolog.Nop())
	var failure error
	s.Start("bad", func(time.Time) error { panic("kaput") }, OnFailure(func(err error) { failure = err }))

	s.Tick(time.Now())

	assert.ErrorIs(t, failure, ErrTickPanic)
	assert.Contains(t, failure.Error(), "kaput")
}

func TestScheduler_ErrStopIsNotAFailure(t *testing.T) {
	s := New(zerolog.Nop())
	failed := false
	h := s.Start("done", func(time.Time) error { return ErrStop }, OnFailure(func(error) { failed = true }))

	s.Tick(time.Now())

	assert.False(t, s.Active(h))
	assert.False(t, failed)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_HandlesAreNotReused(t *testing.T) {
	s := New(zerolog.Nop())
	h1 := s.Start("a", func(time.Time) error { return nil })
	s.Cancel(h1)
	h2 := s.Start("b", func(time.Time) error { return nil })

	assert.NotEqual(t, h1, h2)
	assert.False(t, s.Cancel(h1), "stale handle must not cancel the new task")
	assert.True(t, s.Active(h2))
}

func TestScheduler_RunStopsOnContextCancel(t *testing.T) {
	s := New(zerolog.Nop())
	ticked := make(chan struct{}, 1)
	s.Start("probe", func(time.Time) error {
		select {
		case ticked <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 200) }()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop never ticked")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop did not stop")
	}
}
