// pkg/event/event.go
package event

import (
	"sync"
)

// Type represents the type of event
type Type string

// Simulation event types
const (
	SessionStarted     Type = "session_started"
	SessionStopped     Type = "session_stopped"
	GatePassed         Type = "gate_passed"
	RaceFinished       Type = "race_finished"
	ObstacleCollision  Type = "obstacle_collision"
	IntegrationAnomaly Type = "integration_anomaly"
	BoundaryLeft       Type = "boundary_left"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription identifies a registered handler. Cancel removes it.
type Subscription struct {
	ID     uint64
	Cancel func()
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching. Handlers run
// synchronously on the publishing goroutine.
type Bus struct {
	handlers map[Type][]subscriber
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]subscriber),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: id, handler: handler})

	var once sync.Once
	return &Subscription{
		ID: id,
		Cancel: func() {
			once.Do(func() { b.unsubscribe(eventType, id) })
		},
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, s := range handlers {
		if s.id == id {
			// Copy so a concurrent Publish keeps iterating its own slice
			remaining := make([]subscriber, 0, len(handlers)-1)
			remaining = append(remaining, handlers[:i]...)
			remaining = append(remaining, handlers[i+1:]...)
			b.handlers[eventType] = remaining
			return
		}
	}
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, s := range handlers {
		s.handler(event)
	}
}

// Specific event implementations

// SessionEvent marks the start or end of a simulation session
type SessionEvent struct {
	BaseEvent
	SessionID string
	Tick      uint64
	Reason    string
}

// NewSessionEvent creates a new session event
func NewSessionEvent(eventType Type, source interface{}, sessionID string, tick uint64, reason string) *SessionEvent {
	return &SessionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		SessionID: sessionID,
		Tick:      tick,
		Reason:    reason,
	}
}

// RaceEvent contains information about race progress
type RaceEvent struct {
	BaseEvent
	SessionID   string
	Tick        uint64
	Gate        int // gate passed, -1 when none
	Obstacle    int // obstacle hit, -1 when none
	GatesPassed int
	Status      string
}

// NewGateEvent creates a gate passage event
func NewGateEvent(source interface{}, sessionID string, tick uint64, gate, gatesPassed int, status string) *RaceEvent {
	return &RaceEvent{
		BaseEvent: BaseEvent{
			EventType: GatePassed,
			Source:    source,
		},
		SessionID:   sessionID,
		Tick:        tick,
		Gate:        gate,
		Obstacle:    -1,
		GatesPassed: gatesPassed,
		Status:      status,
	}
}

// NewFinishEvent creates a race finished event
func NewFinishEvent(source interface{}, sessionID string, tick uint64, gatesPassed int) *RaceEvent {
	return &RaceEvent{
		BaseEvent: BaseEvent{
			EventType: RaceFinished,
			Source:    source,
		},
		SessionID:   sessionID,
		Tick:        tick,
		Gate:        -1,
		Obstacle:    -1,
		GatesPassed: gatesPassed,
		Status:      "finished",
	}
}

// NewCollisionEvent creates an obstacle collision event
func NewCollisionEvent(source interface{}, sessionID string, tick uint64, obstacle, gatesPassed int) *RaceEvent {
	return &RaceEvent{
		BaseEvent: BaseEvent{
			EventType: ObstacleCollision,
			Source:    source,
		},
		SessionID:   sessionID,
		Tick:        tick,
		Gate:        -1,
		Obstacle:    obstacle,
		GatesPassed: gatesPassed,
		Status:      "collided",
	}
}

// AnomalyEvent reports a tick where part of the integration was skipped
type AnomalyEvent struct {
	BaseEvent
	SessionID          string
	Tick               uint64
	OrientationSkipped bool
	LinearRejected     bool
	AngularRejected    bool
	InputDropped       bool
}

// NewAnomalyEvent creates a new anomaly event
func NewAnomalyEvent(source interface{}, sessionID string, tick uint64) *AnomalyEvent {
	return &AnomalyEvent{
		BaseEvent: BaseEvent{
			EventType: IntegrationAnomaly,
			Source:    source,
		},
		SessionID: sessionID,
		Tick:      tick,
	}
}

// BoundaryEvent reports the craft leaving the course boundaries
type BoundaryEvent struct {
	BaseEvent
	SessionID string
	Tick      uint64
}

// NewBoundaryEvent creates a new boundary event
func NewBoundaryEvent(source interface{}, sessionID string, tick uint64) *BoundaryEvent {
	return &BoundaryEvent{
		BaseEvent: BaseEvent{
			EventType: BoundaryLeft,
			Source:    source,
		},
		SessionID: sessionID,
		Tick:      tick,
	}
}
