package rig

import (
	"errors"
	"time"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/metrics"
	"github.com/normanking/lipsync/internal/scheduler"
)

// ErrMissingParameter marks a parameter the model does not have.
var ErrMissingParameter = errors.New("parameter not found on model")

// OpenWindow starts a protection window with the current transform as baseline
// and schedules the drift monitor on the frame loop. Opening while a window is
// active extends it and keeps the original baseline.
func (a *Arbiter) OpenWindow(restoreOnClose bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.window != nil {
		a.window.StartedAt = now
		a.window.RestoreOnClose = a.window.RestoreOnClose || restoreOnClose
		a.logger.Debug().Msg("Protection window extended")
		return
	}

	a.window = &ProtectionWindow{
		Baseline:       a.model.Transform(),
		StartedAt:      now,
		MaxDuration:    a.cfg.MaxDuration,
		RestoreOnClose: restoreOnClose,
	}
	if a.sched != nil {
		a.monitor = a.sched.Start("protection-monitor", a.monitorTick)
	}
	metrics.ProtectionWindows.Inc()
	a.logger.Debug().Dur("max_duration", a.cfg.MaxDuration).Msg("Protection window opened")
	a.events.Publish(bus.Event{Type: bus.EventTypeProtectionOpened, Data: map[string]any{"max_duration_ms": a.cfg.MaxDuration.Milliseconds()}})
}

// CloseWindow ends the active window. It reports whether one was active.
func (a *Arbiter) CloseWindow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked("closed")
}

// Window returns a copy of the active window.
func (a *Arbiter) Window() (ProtectionWindow, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.window == nil {
		return ProtectionWindow{}, false
	}
	return *a.window, true
}

// WindowActive reports whether a protection window is in force.
func (a *Arbiter) WindowActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.protectedLocked()
}

// protectedLocked closes an expired window lazily, so writes between monitor
// ticks see the same lifetime the monitor enforces.
func (a *Arbiter) protectedLocked() bool {
	if a.window == nil {
		return false
	}
	if a.window.Expired(a.now()) {
		a.closeLocked("expired")
		return false
	}
	return true
}

func (a *Arbiter) closeLocked(reason string) bool {
	if a.window == nil {
		return false
	}
	w := a.window
	a.window = nil

	if w.RestoreOnClose {
		a.model.SetTransform(w.Baseline)
	}
	if a.sched != nil {
		a.sched.Cancel(a.monitor)
	}

	a.logger.Debug().Str("reason", reason).Bool("restored", w.RestoreOnClose).Msg("Protection window closed")
	a.events.Publish(bus.Event{Type: bus.EventTypeProtectionClosed, Data: map[string]any{"reason": reason}})
	return true
}

// MonitorTick compares the model transform against the baseline, reverting
// drift beyond tolerance, and expires the window once its lifetime is over.
// It is scheduled automatically by OpenWindow.
func (a *Arbiter) MonitorTick(now time.Time) error {
	return a.monitorTick(now)
}

func (a *Arbiter) monitorTick(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.window == nil {
		return scheduler.ErrStop
	}

	current := a.model.Transform()
	if current.Exceeds(a.window.Baseline, a.cfg.ScaleTolerance, a.cfg.PositionTolerance) {
		scale, position := current.Drift(a.window.Baseline)
		a.model.SetTransform(a.window.Baseline)
		metrics.DriftCorrections.Inc()
		a.logger.Debug().
			Float64("scale_drift", scale).
			Float64("position_drift", position).
			Msg("Transform drift reverted")
		a.events.Publish(bus.Event{Type: bus.EventTypeTransformDrift, Data: map[string]any{
			"scale_drift":    scale,
			"position_drift": position,
		}})
	}

	if a.window.Expired(now) {
		a.closeLocked("expired")
		return scheduler.ErrStop
	}
	return nil
}
