package plume

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// CollisionEvent is one contact of an actor. OtherID is 0 for terrain.
// Normal points toward the actor.
type CollisionEvent struct {
	OtherID uint32
	Point   mgl64.Vec3
	Normal  mgl64.Vec3
}

// collisionAggregator accumulates the contacts of an actor between two
// reports. Without a subscription it holds no batch and drops contacts.
type collisionAggregator struct {
	mu sync.Mutex

	active     bool
	intervalMs float64
	lastSent   float64
	batch      []CollisionEvent
	// sentEmpty is set once the end of the last collision was reported.
	sentEmpty bool
}

func (a *collisionAggregator) subscribe(intervalMs int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = true
	a.intervalMs = math.Max(0, float64(intervalMs))
	a.lastSent = math.Inf(-1)
	a.sentEmpty = true
	if a.batch == nil {
		a.batch = make([]CollisionEvent, 0, 8)
	}
}

func (a *collisionAggregator) unsubscribe() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = false
	a.batch = nil
}

func (a *collisionAggregator) subscribed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *collisionAggregator) add(event CollisionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		a.batch = append(a.batch, event)
	}
}

// flush returns the batch to report at now (ms of simulated time), if any.
// After a non-empty report, the first flush without contacts returns one
// empty batch.
func (a *collisionAggregator) flush(now float64) ([]CollisionEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active || now-a.lastSent < a.intervalMs {
		return nil, false
	}

	if len(a.batch) == 0 {
		if a.sentEmpty {
			return nil, false
		}
		a.sentEmpty = true
		a.lastSent = now
		return []CollisionEvent{}, true
	}

	batch := a.batch
	a.batch = make([]CollisionEvent, 0, cap(batch))
	a.sentEmpty = false
	a.lastSent = now

	return batch, true
}
