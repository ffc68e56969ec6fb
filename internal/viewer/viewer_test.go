package viewer

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
)

type harness struct {
	hub  *Hub
	conn *websocket.Conn
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	hub := NewHub(rig.StandardSpecs(), zerolog.Nop(), opts...)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return len(hub.Clients()) == 1 }, time.Second, 5*time.Millisecond)
	return &harness{hub: hub, conn: conn}
}

func (h *harness) send(t *testing.T, msg Message) {
	t.Helper()
	require.NoError(t, h.conn.WriteJSON(msg))
}

// next reads messages until one of the given type arrives.
func (h *harness) next(t *testing.T, typ string) Message {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, h.conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestHub_FlushSendsWrittenValues(t *testing.T) {
	h := newHarness(t)

	idx, ok := h.hub.ParameterIndex(string(rig.ParamMouthOpenY))
	require.True(t, ok)
	h.hub.SetParameterValue(idx, 0.7)
	h.hub.Flush()

	msg := h.next(t, TypeParams)
	assert.Equal(t, map[string]float64{string(rig.ParamMouthOpenY): 0.7}, msg.Values)
}

func TestHub_FlushWithoutWritesSendsNothing(t *testing.T) {
	h := newHarness(t)

	h.hub.Flush()
	h.hub.SetTransform(rig.IdentityTransform())

	// The transform arrives first, proving no params message was queued before it.
	var msg Message
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, h.conn.ReadJSON(&msg))
	assert.Equal(t, TypeTransform, msg.Type)
}

func TestHub_ModelMessageReplacesMirror(t *testing.T) {
	h := newHarness(t)
	loaded := make(chan []rig.ParameterSpec, 1)
	h.hub.SetHandlers(Handlers{OnModel: func(specs []rig.ParameterSpec) { loaded <- specs }})

	specs := []rig.ParameterSpec{
		{ID: "PARAM_MOUTH_OPEN_Y", Min: 0, Max: 1},
		{ID: "PARAM_ANGLE_X", Min: -30, Max: 30},
	}
	h.send(t, Message{Type: TypeModel, Parameters: specs})

	select {
	case got := <-loaded:
		assert.Equal(t, specs, got)
	case <-time.After(2 * time.Second):
		t.Fatal("model handler not called")
	}

	idx, ok := h.hub.ParameterIndex("PARAM_ANGLE_X")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 30.0, h.hub.ParameterMax(idx))
	_, ok = h.hub.ParameterIndex(string(rig.ParamMouthOpenY))
	assert.False(t, ok, "standard names are gone once the viewer reports its model")
	assert.Equal(t, specs, h.hub.Parameters())
}

func TestHub_TransformFromViewerUpdatesMirror(t *testing.T) {
	h := newHarness(t)

	moved := rig.IdentityTransform()
	moved.Position = mgl64.Vec2{120, -40}
	h.send(t, Message{Type: TypeTransform, Transform: &moved})

	assert.Eventually(t, func() bool { return h.hub.Transform().Equal(moved) }, time.Second, 5*time.Millisecond)
}

func TestHub_SetTransformBroadcasts(t *testing.T) {
	h := newHarness(t)

	tr := rig.IdentityTransform()
	tr.Scale = mgl64.Vec2{1.5, 1.5}
	h.hub.SetTransform(tr)

	msg := h.next(t, TypeTransform)
	require.NotNil(t, msg.Transform)
	assert.True(t, msg.Transform.Equal(tr))
}

func TestHub_UserParamsAndBaseIdle(t *testing.T) {
	h := newHarness(t)
	params := make(chan rig.Params, 1)
	idle := make(chan bool, 1)
	h.hub.SetHandlers(Handlers{
		OnUserParams: func(p rig.Params) { params <- p },
		OnBaseIdle:   func(on bool) { idle <- on },
	})

	h.send(t, Message{Type: TypeParams, Values: map[string]float64{"ParamAngleX": 10}})
	on := true
	h.send(t, Message{Type: TypeBaseIdle, Enabled: &on})

	select {
	case p := <-params:
		assert.Equal(t, rig.Params{rig.ParamAngleX: 10}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("params handler not called")
	}
	select {
	case got := <-idle:
		assert.True(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("base idle handler not called")
	}
}

func TestHub_RejectsUnknownAndMalformed(t *testing.T) {
	h := newHarness(t)

	h.send(t, Message{Type: "dance"})
	msg := h.next(t, TypeError)
	assert.Contains(t, msg.Error, "dance")

	require.NoError(t, h.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = h.next(t, TypeError)
	assert.Equal(t, "malformed message", msg.Error)
}

func TestHub_PhysicsToggleIsSent(t *testing.T) {
	h := newHarness(t)

	h.hub.SetPhysicsEnabled([]rig.ParameterID{rig.ParamHairFront}, false)

	msg := h.next(t, TypePhysics)
	require.NotNil(t, msg.Enabled)
	assert.False(t, *msg.Enabled)
	assert.Equal(t, []string{string(rig.ParamHairFront)}, msg.IDs)
}

func TestHub_DrivenThroughArbiter(t *testing.T) {
	h := newHarness(t)
	sched := scheduler.New(zerolog.Nop())
	arb := rig.NewArbiter(h.hub, rig.NewRegistry(), sched, rig.DefaultProtectionConfig(), zerolog.Nop())

	caps := arb.Capabilities()
	assert.NotNil(t, caps.Ranges)
	assert.NotNil(t, caps.Physics)
	assert.NotNil(t, caps.Flusher)

	res := arb.Apply(rig.Params{rig.ParamMouthOpenY: 3, rig.ParamMouthForm: -0.5}, rig.SourceLipSync)
	assert.Equal(t, 2, res.Written)

	msg := h.next(t, TypeParams)
	assert.Equal(t, 1.0, msg.Values[string(rig.ParamMouthOpenY)], "clamped by the mirrored range")
	assert.Equal(t, -0.5, msg.Values[string(rig.ParamMouthForm)])
}

func TestHub_ForwardsBusEventsAndAnnouncesClients(t *testing.T) {
	b := bus.NewEventBus()
	connected := make(chan struct{}, 1)
	b.Subscribe(bus.EventTypeViewerConnected, func(bus.Event) { connected <- struct{}{} })

	h := newHarness(t, WithEvents(b))
	h.hub.Forward(b)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not announced")
	}

	b.Publish(bus.Event{Type: bus.EventTypeClipFinished, Data: map[string]any{"clip": "hello"}})
	msg := h.next(t, TypeEvent)
	assert.Equal(t, string(bus.EventTypeClipFinished), msg.Event)
	assert.Equal(t, "hello", msg.Data["clip"])
}
