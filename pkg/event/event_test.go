// pkg/event/event_test.go
package event

import (
	"sync"
	"sync/atomic"
	"testing"
)

// recorder collects the types of the events it receives
type recorder struct {
	mu    sync.Mutex
	types []Type
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	r.types = append(r.types, e.GetType())
	r.mu.Unlock()
}

func (r *recorder) got() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Type(nil), r.types...)
}

func TestBus_DeliversOnlySubscribedTypes(t *testing.T) {
	bus := NewEventBus()
	gates, finish := &recorder{}, &recorder{}
	bus.Subscribe(GatePassed, gates.handle)
	bus.Subscribe(RaceFinished, finish.handle)

	bus.Publish(NewGateEvent(nil, "s1", 10, 0, 1, "racing"))
	bus.Publish(NewGateEvent(nil, "s1", 20, 1, 2, "racing"))
	bus.Publish(NewFinishEvent(nil, "s1", 20, 2))
	bus.Publish(NewBoundaryEvent(nil, "s1", 21))

	if got := gates.got(); len(got) != 2 {
		t.Errorf("gate handler saw %v", got)
	}
	if got := finish.got(); len(got) != 1 || got[0] != RaceFinished {
		t.Errorf("finish handler saw %v", got)
	}
}

func TestBus_HandlersRunInSubscriptionOrder(t *testing.T) {
	bus := NewEventBus()
	var order []int
	for i := 0; i < 3; i++ {
		bus.Subscribe(SessionStarted, func(Event) { order = append(order, i) })
	}

	bus.Publish(NewSessionEvent(SessionStarted, nil, "s1", 0, ""))

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("handlers ran in order %v", order)
	}
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	NewEventBus().Publish(NewAnomalyEvent(nil, "s1", 3))
}

func TestSubscription_Cancel(t *testing.T) {
	bus := NewEventBus()
	first, second := &recorder{}, &recorder{}
	sub := bus.Subscribe(GatePassed, first.handle)
	bus.Subscribe(GatePassed, second.handle)
	other := bus.Subscribe(RaceFinished, first.handle)

	if sub.ID == other.ID {
		t.Fatal("subscription IDs should be unique")
	}

	sub.Cancel()
	sub.Cancel()

	bus.Publish(NewGateEvent(nil, "s1", 1, 0, 1, "racing"))
	bus.Publish(NewFinishEvent(nil, "s1", 1, 1))

	if got := first.got(); len(got) != 1 || got[0] != RaceFinished {
		t.Errorf("cancelled handler saw %v", got)
	}
	if got := second.got(); len(got) != 1 {
		t.Errorf("remaining handler saw %v", got)
	}
}

// A handler may cancel its own subscription while being dispatched
func TestSubscription_CancelDuringPublish(t *testing.T) {
	bus := NewEventBus()
	var calls atomic.Int32
	var sub *Subscription
	sub = bus.Subscribe(ObstacleCollision, func(Event) {
		calls.Add(1)
		sub.Cancel()
	})
	late := &recorder{}
	bus.Subscribe(ObstacleCollision, late.handle)

	bus.Publish(NewCollisionEvent(nil, "s1", 5, 2, 0))
	bus.Publish(NewCollisionEvent(nil, "s1", 6, 2, 0))

	if calls.Load() != 1 {
		t.Errorf("self-cancelling handler ran %d times", calls.Load())
	}
	if len(late.got()) != 2 {
		t.Errorf("later handler should see both events, saw %v", late.got())
	}
}

func TestBus_ConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewEventBus()
	var calls atomic.Int64
	var wg sync.WaitGroup

	const subscribers = 10
	wg.Add(subscribers)
	for i := 0; i < subscribers; i++ {
		go func() {
			defer wg.Done()
			bus.Subscribe(GatePassed, func(Event) { calls.Add(1) })
		}()
	}
	wg.Wait()

	const publishers = 4
	wg.Add(publishers)
	for i := 0; i < publishers; i++ {
		go func() {
			defer wg.Done()
			bus.Publish(NewGateEvent(nil, "s1", 1, 0, 1, "racing"))
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != subscribers*publishers {
		t.Errorf("handlers ran %d times, want %d", got, subscribers*publishers)
	}
}

func TestRaceEventConstructors(t *testing.T) {
	source := struct{}{}
	tests := []struct {
		name     string
		event    *RaceEvent
		typ      Type
		gate     int
		obstacle int
		status   string
	}{
		{"gate", NewGateEvent(source, "s1", 30, 2, 3, "racing"), GatePassed, 2, -1, "racing"},
		{"finish", NewFinishEvent(source, "s1", 90, 4), RaceFinished, -1, -1, "finished"},
		{"collision", NewCollisionEvent(source, "s1", 45, 7, 1), ObstacleCollision, -1, 7, "collided"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			if e.GetType() != tt.typ || e.GetSource() != source {
				t.Errorf("type %v source %v", e.GetType(), e.GetSource())
			}
			if e.SessionID != "s1" || e.Gate != tt.gate || e.Obstacle != tt.obstacle || e.Status != tt.status {
				t.Errorf("unexpected event %+v", e)
			}
		})
	}
}

func TestSessionAndDiagnosticEvents(t *testing.T) {
	stopped := NewSessionEvent(SessionStopped, nil, "s1", 120, "finished")
	if stopped.GetType() != SessionStopped || stopped.Tick != 120 || stopped.Reason != "finished" {
		t.Errorf("unexpected session event %+v", stopped)
	}

	anomaly := NewAnomalyEvent(nil, "s1", 7)
	anomaly.OrientationSkipped = true
	if anomaly.GetType() != IntegrationAnomaly || anomaly.Tick != 7 {
		t.Errorf("unexpected anomaly event %+v", anomaly)
	}

	boundary := NewBoundaryEvent(nil, "s1", 8)
	if boundary.GetType() != BoundaryLeft || boundary.SessionID != "s1" {
		t.Errorf("unexpected boundary event %+v", boundary)
	}
}
