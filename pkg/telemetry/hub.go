// Package telemetry streams session snapshots and race events to external
// viewers over WebSocket.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-spacerace/pkg/config"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/event"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/validation"
)

// Message types sent to viewers
const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
	TypePong     = "pong"
	TypeError    = "error"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
)

// errViewerBehind is the failure a viewer's breaker counts when its queue
// is full
var errViewerBehind = errors.New("viewer send queue full")

// Message is the envelope of everything written to a viewer
type Message struct {
	Type     string           `json:"type"`
	Tick     uint64           `json:"tick"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Event    *EventPayload    `json:"event,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// EventPayload is the viewer form of a session event
type EventPayload struct {
	Type        event.Type `json:"type"`
	SessionID   string     `json:"sessionId"`
	Gate        *int       `json:"gate,omitempty"`
	Obstacle    *int       `json:"obstacle,omitempty"`
	GatesPassed int        `json:"gatesPassed"`
	Status      string     `json:"status,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// streamedEvents are forwarded to viewers as they happen
var streamedEvents = []event.Type{
	event.SessionStarted,
	event.SessionStopped,
	event.GatePassed,
	event.RaceFinished,
	event.ObstacleCollision,
	event.BoundaryLeft,
}

// viewer is one connected WebSocket client
type viewer struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	breaker *gobreaker.CircuitBreaker
	once    sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() { close(v.send) })
}

// Hub fans snapshots and events out to connected viewers. A viewer that
// cannot keep up trips its own circuit breaker and misses messages until the
// breaker half-opens again; other viewers are unaffected.
type Hub struct {
	cfg       config.TelemetryConfig
	logger    *logging.Logger
	validator *validation.ControlValidator
	latest    atomic.Pointer[engine.Snapshot]

	mu      sync.RWMutex
	viewers map[string]*viewer
}

// NewHub creates a hub with no viewers
func NewHub(cfg config.TelemetryConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.BroadcastEvery < 1 {
		cfg.BroadcastEvery = 1
	}
	return &Hub{
		cfg:       cfg,
		logger:    logger.With("component", "telemetry"),
		validator: validation.NewControlValidator(),
		viewers:   make(map[string]*viewer),
	}
}

// Len returns the number of connected viewers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Publish broadcasts snap when its tick is a multiple of the broadcast
// interval. It never blocks and is safe to use as a session observer.
func (h *Hub) Publish(snap engine.Snapshot) {
	h.latest.Store(&snap)
	if snap.Tick%uint64(h.cfg.BroadcastEvery) != 0 {
		return
	}
	h.broadcast(Message{Type: TypeSnapshot, Tick: snap.Tick, Snapshot: &snap})
}

// Attach forwards session events from bus to viewers until the returned
// function is called
func (h *Hub) Attach(bus *event.Bus) func() {
	subs := make([]*event.Subscription, 0, len(streamedEvents))
	for _, typ := range streamedEvents {
		subs = append(subs, bus.Subscribe(typ, func(e event.Event) {
			if payload, tick, ok := newEventPayload(e); ok {
				h.broadcast(Message{Type: TypeEvent, Tick: tick, Event: payload})
			}
		}))
	}
	return func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}
}

// Close disconnects every viewer
func (h *Hub) Close() {
	h.mu.Lock()
	for id, v := range h.viewers {
		v.close()
		delete(h.viewers, id)
	}
	h.mu.Unlock()
	h.validator.Close()
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), "failed to encode telemetry message", err, "type", msg.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		h.enqueue(v, data)
	}
}

// enqueue hands data to the viewer's writer through its breaker. An open
// breaker drops the message without touching the queue.
func (h *Hub) enqueue(v *viewer, data []byte) {
	_, err := v.breaker.Execute(func() (interface{}, error) {
		select {
		case v.send <- data:
			return nil, nil
		default:
			return nil, errViewerBehind
		}
	})
	if err != nil && !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		h.logger.Debug(context.Background(), "telemetry message dropped", "viewer", v.id, "error", err)
	}
}

// register adds a viewer for conn and returns it
func (h *Hub) register(conn *websocket.Conn) *viewer {
	v := &viewer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	v.breaker = gobreaker.NewCircuitBreaker(h.breakerSettings(v.id))

	h.mu.Lock()
	h.viewers[v.id] = v
	h.mu.Unlock()

	h.logger.Info(context.Background(), "viewer connected", "viewer", v.id, "remote", conn.RemoteAddr().String())
	return v
}

func (h *Hub) unregister(v *viewer) {
	h.mu.Lock()
	if _, ok := h.viewers[v.id]; ok {
		delete(h.viewers, v.id)
		v.close()
	}
	h.mu.Unlock()
	h.validator.Forget(v.id)
	h.logger.Info(context.Background(), "viewer disconnected", "viewer", v.id)
}

func (h *Hub) breakerSettings(id string) gobreaker.Settings {
	maxFailures := h.cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}
	return gobreaker.Settings{
		Name:        "telemetry-" + id,
		MaxRequests: 1,
		Timeout:     h.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Info(context.Background(), "viewer circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
}

// serve runs the viewer's writer on the calling goroutine and its reader on
// a new one. It returns once the connection is closed.
func (h *Hub) serve(v *viewer) {
	go h.readLoop(v)
	h.writeLoop(v)
}

func (h *Hub) writeLoop(v *viewer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			if !ok {
				_ = v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := h.write(v, websocket.TextMessage, data); err != nil {
				h.logger.Warn(context.Background(), "viewer write failed", "viewer", v.id, "error", err)
				h.unregister(v)
				return
			}
		case <-ticker.C:
			if err := h.write(v, websocket.PingMessage, nil); err != nil {
				h.unregister(v)
				return
			}
		}
	}
}

func (h *Hub) write(v *viewer, messageType int, data []byte) error {
	if h.cfg.WriteTimeout > 0 {
		if err := v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return v.conn.WriteMessage(messageType, data)
}

func (h *Hub) readLoop(v *viewer) {
	defer h.unregister(v)

	v.conn.SetReadLimit(validation.MaxMessageSize + 1)
	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(context.Background(), "viewer read failed", "viewer", v.id, "error", err)
			}
			return
		}
		h.handleControl(v, data)
	}
}

// handleControl answers a viewer control message. Invalid messages get an
// error reply; the connection stays open.
func (h *Hub) handleControl(v *viewer, data []byte) {
	var reply Message
	msg, err := h.validator.Parse(data, v.id)
	switch {
	case err != nil:
		reply = Message{Type: TypeError, Error: err.Error()}
	case msg.Type == validation.ControlSnapshot:
		snap := h.latest.Load()
		if snap == nil {
			reply = Message{Type: TypeError, Error: "no snapshot published yet"}
		} else {
			reply = Message{Type: TypeSnapshot, Tick: snap.Tick, Snapshot: snap}
		}
	default:
		reply = Message{Type: TypePong}
		if snap := h.latest.Load(); snap != nil {
			reply.Tick = snap.Tick
		}
	}

	encoded, err := json.Marshal(reply)
	if err != nil {
		return
	}
	h.sendTo(v, encoded)
}

// sendTo queues data for a single viewer if it is still connected
func (h *Hub) sendTo(v *viewer, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.viewers[v.id]; ok {
		h.enqueue(v, data)
	}
}

func newEventPayload(e event.Event) (*EventPayload, uint64, bool) {
	switch ev := e.(type) {
	case *event.RaceEvent:
		payload := &EventPayload{
			Type:        ev.GetType(),
			SessionID:   ev.SessionID,
			GatesPassed: ev.GatesPassed,
			Status:      ev.Status,
		}
		if ev.Gate >= 0 {
			gate := ev.Gate
			payload.Gate = &gate
		}
		if ev.Obstacle >= 0 {
			obstacle := ev.Obstacle
			payload.Obstacle = &obstacle
		}
		return payload, ev.Tick, true
	case *event.SessionEvent:
		return &EventPayload{Type: ev.GetType(), SessionID: ev.SessionID, Reason: ev.Reason}, ev.Tick, true
	case *event.BoundaryEvent:
		return &EventPayload{Type: ev.GetType(), SessionID: ev.SessionID}, ev.Tick, true
	default:
		return nil, 0, false
	}
}
