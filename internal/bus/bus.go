// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for the lip-sync pipeline
const (
	// Sequencer events
	EventTypeClipStarted  EventType = "clip.started"
	EventTypeClipPaused   EventType = "clip.paused"
	EventTypeClipStopped  EventType = "clip.stopped"
	EventTypeClipFinished EventType = "clip.finished"
	EventTypeClipFailed   EventType = "clip.failed"

	// Protection events
	EventTypeProtectionOpened EventType = "protection.opened"
	EventTypeProtectionClosed EventType = "protection.closed"
	EventTypeTransformDrift   EventType = "protection.drift_corrected"

	// Realtime analysis events
	EventTypeRealtimeStarted EventType = "realtime.started"
	EventTypeRealtimeStopped EventType = "realtime.stopped"
	EventTypeVowelDetected   EventType = "realtime.vowel"

	// Idle motion events
	EventTypeIdleToggled  EventType = "idle.toggled"
	EventTypeIdleLoopDown EventType = "idle.loop_stopped"

	// Viewer events
	EventTypeViewerConnected    EventType = "viewer.connected"
	EventTypeViewerDisconnected EventType = "viewer.disconnected"

	// Configuration events
	EventTypeSettingsChanged EventType = "config.settings_changed"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers without waiting for them.
// A nil bus drops the event, so components can publish unconditionally.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	if b == nil {
		return
	}
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	return handlers
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}

// AllEventTypes lists every event type, for subscribers that forward everything.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeClipStarted, EventTypeClipPaused, EventTypeClipStopped, EventTypeClipFinished, EventTypeClipFailed,
		EventTypeProtectionOpened, EventTypeProtectionClosed, EventTypeTransformDrift,
		EventTypeRealtimeStarted, EventTypeRealtimeStopped, EventTypeVowelDetected,
		EventTypeIdleToggled, EventTypeIdleLoopDown,
		EventTypeViewerConnected, EventTypeViewerDisconnected,
		EventTypeSettingsChanged,
	}
}
