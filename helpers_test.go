package plume

import (
	"math"
	"testing"

	"github.com/akmonengine/plume/config"
	"github.com/go-gl/mathgl/mgl64"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func vec3AlmostEqual(a, b mgl64.Vec3, tolerance float64) bool {
	return almostEqual(a.X(), b.X(), tolerance) &&
		almostEqual(a.Y(), b.Y(), tolerance) &&
		almostEqual(a.Z(), b.Z(), tolerance)
}

// newTestScene returns a scene with the default configuration over env.
func newTestScene(t *testing.T, env Environment) *Scene {
	t.Helper()
	s, err := NewScene(config.Default(), env)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	return s
}

func steps(s *Scene, n int) {
	for range n {
		s.Step()
	}
}

type eventCapture struct {
	events []Event
}

func (ec *eventCapture) capture(event Event) {
	ec.events = append(ec.events, event)
}

func (ec *eventCapture) reset() {
	ec.events = ec.events[:0]
}

func (ec *eventCapture) count() int {
	return len(ec.events)
}

// countFor returns the number of captured events of an actor.
func (ec *eventCapture) countFor(actor uint32) int {
	n := 0
	for _, e := range ec.events {
		if e.Actor() == actor {
			n++
		}
	}
	return n
}

func (ec *eventCapture) hasEventType(eventType EventType) bool {
	for _, e := range ec.events {
		if e.Type() == eventType {
			return true
		}
	}
	return false
}
