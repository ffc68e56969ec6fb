package bus

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishSyncReachesAllHandlers(t *testing.T) {
	b := NewEventBus()
	var hits int32

	b.Subscribe(EventTypeClipStarted, func(Event) { atomic.AddInt32(&hits, 1) })
	b.SubscribeMultiple([]EventType{EventTypeClipStarted, EventTypeClipStopped}, func(Event) { atomic.AddInt32(&hits, 10) })

	b.PublishSync(Event{Type: EventTypeClipStarted})
	assert.Equal(t, int32(11), atomic.LoadInt32(&hits))

	b.PublishSync(Event{Type: EventTypeClipStopped})
	assert.Equal(t, int32(21), atomic.LoadInt32(&hits))
}

func TestEventBus_ClearRemovesHandlers(t *testing.T) {
	b := NewEventBus()
	called := false
	b.Subscribe(EventTypeTransformDrift, func(Event) { called = true })
	b.Clear()

	b.PublishSync(Event{Type: EventTypeTransformDrift})
	assert.False(t, called)
}

func TestEventBus_NilBusIsSafe(t *testing.T) {
	var b *EventBus
	assert.NotPanics(t, func() {
		b.Publish(Event{Type: EventTypeClipStarted})
		b.PublishSync(Event{Type: EventTypeClipStarted})
	})
}
