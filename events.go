package plume

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	UPDATE_TERSE EventType = iota
	UPDATE_STOPPED
	OUT_OF_BOUNDS
	CHARACTER_DEFECT
	COLLISIONS
)

type EventType uint8

func (t EventType) String() string {
	switch t {
	case UPDATE_TERSE:
		return "terse"
	case UPDATE_STOPPED:
		return "stopped"
	case OUT_OF_BOUNDS:
		return "out_of_bounds"
	case CHARACTER_DEFECT:
		return "defect"
	case COLLISIONS:
		return "collisions"
	}
	return "unknown"
}

// Event interface - all events implement this
type Event interface {
	Type() EventType
	Actor() uint32
}

// TerseUpdateEvent publishes the kinematics of an actor that moved
// significantly since its last update.
type TerseUpdateEvent struct {
	ActorID         uint32
	Position        mgl64.Vec3
	Orientation     mgl64.Quat
	Velocity        mgl64.Vec3
	Acceleration    mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

func (e TerseUpdateEvent) Type() EventType { return UPDATE_TERSE }
func (e TerseUpdateEvent) Actor() uint32   { return e.ActorID }

// StoppedEvent is sent once when an actor comes to rest.
type StoppedEvent struct {
	ActorID     uint32
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

func (e StoppedEvent) Type() EventType { return UPDATE_STOPPED }
func (e StoppedEvent) Actor() uint32   { return e.ActorID }

// OutOfBoundsEvent reports an actor the scene has to remove or recreate: it
// left the world too many times or lost its native resources.
type OutOfBoundsEvent struct {
	ActorID  uint32
	Position mgl64.Vec3
	Reason   string
}

func (e OutOfBoundsEvent) Type() EventType { return OUT_OF_BOUNDS }
func (e OutOfBoundsEvent) Actor() uint32   { return e.ActorID }

// DefectEvent reports a character whose body was torn down and must be rebuilt.
type DefectEvent struct {
	ActorID uint32
	Reason  string
}

func (e DefectEvent) Type() EventType { return CHARACTER_DEFECT }
func (e DefectEvent) Actor() uint32   { return e.ActorID }

// CollisionsEvent carries the contacts an actor accumulated since its last
// report. An empty batch marks the end of a collision.
type CollisionsEvent struct {
	ActorID    uint32
	Collisions []CollisionEvent
}

func (e CollisionsEvent) Type() EventType { return COLLISIONS }
func (e CollisionsEvent) Actor() uint32   { return e.ActorID }

// EventListener - callback for events
type EventListener func(event Event)

// Events buffers the events raised during a step and dispatches them once
// the step is over, on the step goroutine.
type Events struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventListener

	buffer []Event
}

func (e *Events) init() {
	e.listeners = make(map[EventType][]EventListener)
	e.buffer = make([]Event, 0, 256)
}

// Subscribe adds a listener for an event type. It may be called from any
// goroutine; listeners run on the step goroutine and must not block.
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

func (e *Events) emit(event Event) {
	e.buffer = append(e.buffer, event)
}

// flush sends all buffered events and clears the buffer. Listeners run
// outside the lock and may subscribe.
func (e *Events) flush() {
	for i, event := range e.buffer {
		for _, listener := range e.listenersOf(event.Type()) {
			listener(event)
		}
		e.buffer[i] = nil
	}
	e.buffer = e.buffer[:0]
}

// listenersOf returns the listeners of an event type. Subscribe only appends,
// so the returned slice stays valid after the lock is released.
func (e *Events) listenersOf(eventType EventType) []EventListener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listeners[eventType]
}
