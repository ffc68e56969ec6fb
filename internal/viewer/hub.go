// Package viewer connects browser-hosted Live2D viewers over WebSocket. The
// Hub mirrors the parameters and transform of the model the viewer loaded and
// implements the arbiter's Model interface on top of that mirror: writes are
// batched and broadcast on Flush, transform and physics changes are sent
// immediately.
package viewer

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/rig"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Handlers receive viewer input. Any field may be nil.
type Handlers struct {
	// OnModel runs after a viewer reported a newly loaded model.
	OnModel func(specs []rig.ParameterSpec)
	// OnUserParams receives parameter values set from the viewer UI.
	OnUserParams func(params rig.Params)
	// OnBaseIdle receives the viewer's built-in idle motion state.
	OnBaseIdle func(on bool)
}

// Option customises a Hub.
type Option func(*Hub)

// WithEvents announces viewer connections on b.
func WithEvents(b *bus.EventBus) Option {
	return func(h *Hub) { h.events = b }
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is the server end of all viewer connections.
type Hub struct {
	mu       sync.RWMutex
	mirror   *rig.MemoryModel
	names    []string
	dirty    map[int]struct{}
	clients  map[string]*client
	handlers Handlers
	events   *bus.EventBus
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a hub whose mirror starts with specs, so writes succeed
// before any viewer has connected.
func NewHub(specs []rig.ParameterSpec, logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		dirty:   make(map[int]struct{}),
		clients: make(map[string]*client),
		logger:  logger.With().Str("component", "viewer").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	h.loadLocked(specs, nil)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetHandlers installs the viewer input callbacks.
func (h *Hub) SetHandlers(handlers Handlers) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = handlers
}

func (h *Hub) loadLocked(specs []rig.ParameterSpec, transform *rig.Transform) {
	h.mirror = rig.NewMemoryModel(specs...)
	h.names = make([]string, len(specs))
	for i, s := range specs {
		h.names[i] = s.ID
	}
	if transform != nil {
		h.mirror.SetTransform(*transform)
	}
	h.dirty = make(map[int]struct{})
}

// ParameterIndex implements rig.Model.
func (h *Hub) ParameterIndex(name string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.ParameterIndex(name)
}

// SetParameterValue implements rig.Model. The value is sent on the next Flush.
func (h *Hub) SetParameterValue(index int, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirror.SetParameterValue(index, value)
	if index >= 0 && index < len(h.names) {
		h.dirty[index] = struct{}{}
	}
}

func (h *Hub) ParameterMin(index int) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.ParameterMin(index)
}

func (h *Hub) ParameterMax(index int) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.ParameterMax(index)
}

func (h *Hub) ParameterDefault(index int) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.ParameterDefault(index)
}

// Transform implements rig.Model.
func (h *Hub) Transform() rig.Transform {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.Transform()
}

// SetTransform implements rig.Model and pushes the transform to every viewer.
func (h *Hub) SetTransform(t rig.Transform) {
	h.mu.Lock()
	h.mirror.SetTransform(t)
	h.mu.Unlock()
	h.broadcast(Message{Type: TypeTransform, Transform: &t})
}

// SetPhysicsEnabled implements rig.PhysicsController.
func (h *Hub) SetPhysicsEnabled(ids []rig.ParameterID, enabled bool) {
	h.mu.Lock()
	h.mirror.SetPhysicsEnabled(ids, enabled)
	h.mu.Unlock()

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	h.broadcast(Message{Type: TypePhysics, IDs: names, Enabled: &enabled})
}

// Flush implements rig.Flusher: it sends every value written since the last
// flush in one message.
func (h *Hub) Flush() {
	h.mu.Lock()
	if len(h.dirty) == 0 {
		h.mu.Unlock()
		return
	}
	values := make(map[string]float64, len(h.dirty))
	for idx := range h.dirty {
		if v, ok := h.mirror.Value(h.names[idx]); ok {
			values[h.names[idx]] = v
		}
	}
	h.dirty = make(map[int]struct{})
	h.mu.Unlock()

	h.broadcast(Message{Type: TypeParams, Values: values})
}

// Values returns the mirrored parameter values by name.
func (h *Hub) Values() map[string]float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror.Values()
}

// Parameters returns the mirrored parameter specs in model order.
func (h *Hub) Parameters() []rig.ParameterSpec {
	h.mu.RLock()
	defer h.mu.RUnlock()
	specs := make([]rig.ParameterSpec, len(h.names))
	for i, name := range h.names {
		specs[i] = rig.ParameterSpec{
			ID:      name,
			Min:     h.mirror.ParameterMin(i),
			Max:     h.mirror.ParameterMax(i),
			Default: h.mirror.ParameterDefault(i),
		}
	}
	return specs
}

// Clients returns the connected viewer ids.
func (h *Hub) Clients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forward relays every bus event to the connected viewers.
func (h *Hub) Forward(b *bus.EventBus) {
	b.SubscribeMultiple(bus.AllEventTypes(), func(e bus.Event) {
		h.broadcast(Message{Type: TypeEvent, Event: string(e.Type), Data: e.Data})
	})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode viewer message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Viewer send buffer full, dropping message")
		}
	}
}

// ServeHTTP upgrades the request and serves one viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{id: uuid.New().String(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Viewer connected")
	h.events.Publish(bus.Event{Type: bus.EventTypeViewerConnected, Data: map[string]any{"client": c.id}})

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		close(c.send)
		h.mu.Unlock()
		c.conn.Close()

		h.logger.Info().Str("client", c.id).Msg("Viewer disconnected")
		h.events.Publish(bus.Event{Type: bus.EventTypeViewerDisconnected, Data: map[string]any{"client": c.id}})
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("client", c.id).Msg("Viewer read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed viewer message")
			h.reply(c, Message{Type: TypeError, Error: "malformed message"})
			continue
		}
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *client, msg Message) {
	h.mu.RLock()
	handlers := h.handlers
	h.mu.RUnlock()

	switch msg.Type {
	case TypeModel:
		h.mu.Lock()
		h.loadLocked(msg.Parameters, msg.Transform)
		h.mu.Unlock()
		h.logger.Info().Str("client", c.id).Int("parameters", len(msg.Parameters)).Msg("Viewer model loaded")
		if handlers.OnModel != nil {
			handlers.OnModel(msg.Parameters)
		}

	case TypeTransform:
		if msg.Transform == nil {
			h.reply(c, Message{Type: TypeError, Error: "transform missing"})
			return
		}
		h.mu.Lock()
		h.mirror.SetTransform(*msg.Transform)
		h.mu.Unlock()

	case TypeParams:
		if handlers.OnUserParams != nil && len(msg.Values) > 0 {
			params := make(rig.Params, len(msg.Values))
			for name, v := range msg.Values {
				params[rig.ParameterID(name)] = v
			}
			handlers.OnUserParams(params)
		}

	case TypeBaseIdle:
		if msg.Enabled != nil && handlers.OnBaseIdle != nil {
			handlers.OnBaseIdle(*msg.Enabled)
		}

	default:
		h.reply(c, Message{Type: TypeError, Error: "unknown message type " + msg.Type})
	}
}

func (h *Hub) reply(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("Viewer write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
