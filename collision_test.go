package plume

import (
	"testing"

	"github.com/akmonengine/plume/mass"
	"github.com/go-gl/mathgl/mgl64"
)

func TestCollisionAggregator_Unsubscribed(t *testing.T) {
	var a collisionAggregator

	a.add(CollisionEvent{OtherID: 2})
	if a.batch != nil {
		t.Errorf("Expected no batch without subscription, got %d events", len(a.batch))
	}
	if _, ok := a.flush(1000); ok {
		t.Error("Expected no report without subscription")
	}
}

func TestCollisionAggregator_Interval(t *testing.T) {
	var a collisionAggregator
	a.subscribe(100)

	a.add(CollisionEvent{OtherID: 2})
	a.add(CollisionEvent{OtherID: 2})
	batch, ok := a.flush(0)
	if !ok || len(batch) != 2 {
		t.Fatalf("Expected first report with 2 events, got %d (ok=%v)", len(batch), ok)
	}

	a.add(CollisionEvent{OtherID: 3})
	if _, ok := a.flush(50); ok {
		t.Fatal("Expected no report before the interval elapsed")
	}

	a.add(CollisionEvent{OtherID: 4})
	batch, ok = a.flush(100)
	if !ok || len(batch) != 2 {
		t.Fatalf("Expected accumulated report with 2 events, got %d (ok=%v)", len(batch), ok)
	}
	if batch[0].OtherID != 3 || batch[1].OtherID != 4 {
		t.Errorf("Expected events in order 3, 4, got %d, %d", batch[0].OtherID, batch[1].OtherID)
	}
}

func TestCollisionAggregator_CollisionEnd(t *testing.T) {
	var a collisionAggregator
	a.subscribe(0)

	a.add(CollisionEvent{OtherID: 5, Point: mgl64.Vec3{1, 2, 3}})
	if batch, ok := a.flush(10); !ok || len(batch) != 1 {
		t.Fatalf("Expected 1 event, got %d (ok=%v)", len(batch), ok)
	}

	batch, ok := a.flush(20)
	if !ok || len(batch) != 0 {
		t.Fatalf("Expected one empty batch when contacts stop, got %d (ok=%v)", len(batch), ok)
	}
	if _, ok := a.flush(30); ok {
		t.Error("Expected a single empty batch")
	}
}

func TestCollisionAggregator_NoDedup(t *testing.T) {
	var a collisionAggregator
	a.subscribe(0)

	for range 3 {
		a.add(CollisionEvent{OtherID: 7})
	}
	if batch, _ := a.flush(0); len(batch) != 3 {
		t.Errorf("Expected 3 events, got %d", len(batch))
	}
}

func TestCollisionAggregator_Unsubscribe(t *testing.T) {
	var a collisionAggregator
	a.subscribe(0)
	a.add(CollisionEvent{OtherID: 2})

	a.unsubscribe()
	if a.batch != nil {
		t.Error("Expected batch released on unsubscribe")
	}
	if a.subscribed() {
		t.Error("Expected subscribed() false")
	}
	a.add(CollisionEvent{OtherID: 2})
	if _, ok := a.flush(1000); ok {
		t.Error("Expected no report after unsubscribe")
	}
}

func TestScene_GroundCollisionReported(t *testing.T) {
	s := newTestScene(t, FlatEnvironment{Ground: 0, Water: -10})
	capture := &eventCapture{}
	s.Subscribe(COLLISIONS, capture.capture)

	p, err := s.AddPrim("crate", mgl64.Vec3{128, 128, 0.45}, mgl64.QuatIdent(), mass.Box(), mgl64.Vec3{1, 1, 1}, true)
	if err != nil {
		t.Fatalf("AddPrim: %v", err)
	}
	p.SubscribeEvents(0)

	s.Step()

	if capture.count() != 1 {
		t.Fatalf("Expected 1 collisions event, got %d", capture.count())
	}
	event := capture.events[0].(CollisionsEvent)
	if event.ActorID != p.LocalID() || len(event.Collisions) == 0 {
		t.Fatalf("Expected collisions of %d, got %+v", p.LocalID(), event)
	}
	if event.Collisions[0].OtherID != 0 {
		t.Errorf("Expected terrain contact, got other %d", event.Collisions[0].OtherID)
	}
	if !p.IsColliding() || !p.CollidingGround() {
		t.Error("Expected colliding ground flags")
	}
}
