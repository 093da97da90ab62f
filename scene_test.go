package plume

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/akmonengine/plume/config"
	"github.com/akmonengine/plume/mass"
	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
)

func TestScene_SimulateCapsSteps(t *testing.T) {
	s := newTestScene(t, nil)
	step := s.Config().Scene.StepSize

	if n := s.Simulate(step * 2.5); n != 2 {
		t.Errorf("Expected 2 steps, got %d", n)
	}
	if n := s.Simulate(1); n != s.Config().Scene.MaxStepsPerFrame {
		t.Errorf("Expected %d steps, got %d", s.Config().Scene.MaxStepsPerFrame, n)
	}
	if s.accumulator >= step {
		t.Errorf("Expected the dropped time discarded, accumulator %v", s.accumulator)
	}
	if n := s.Simulate(math.NaN()); n != 0 {
		t.Errorf("Expected no step for NaN, got %d", n)
	}
	if s.Frames() != uint64(2+s.Config().Scene.MaxStepsPerFrame) {
		t.Errorf("Expected %d frames, got %d", 2+s.Config().Scene.MaxStepsPerFrame, s.Frames())
	}
}

func TestScene_SimulateUsesReloadedStep(t *testing.T) {
	s := newTestScene(t, nil)

	cfg := config.Default()
	cfg.Scene.StepSize = 0.01
	if err := s.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	if n := s.Simulate(0.025); n != 2 {
		t.Errorf("Expected 2 steps of the reloaded size, got %d", n)
	}
	if !almostEqual(s.accumulator, 0.005, 1e-9) {
		t.Errorf("Expected 0.005 left over, got %v", s.accumulator)
	}
}

func TestScene_SetConfig(t *testing.T) {
	s := newTestScene(t, nil)

	invalid := config.Default()
	invalid.Scene.StepSize = -1
	if err := s.SetConfig(invalid); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}

	cfg := config.Default()
	cfg.Scene.Gravity = [3]float64{0, 0, -1.6}
	if err := s.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if s.world.Gravity.Z() != -9.8 {
		t.Errorf("Expected the new config to wait for the next step, gravity %v", s.world.Gravity)
	}

	s.Step()
	if s.world.Gravity.Z() != -1.6 {
		t.Errorf("Expected gravity -1.6 after a step, got %v", s.world.Gravity)
	}
}

func TestScene_PointGravity(t *testing.T) {
	cfg := config.Default()
	cfg.Scene.UsePointGravity = true
	cfg.Scene.PointGravityCenter = [3]float64{128, 128, 0}
	s, err := NewScene(cfg, FlatEnvironment{Ground: -50, Water: -60})
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}

	p := addTestPrim(t, s, "p", mgl64.Vec3{138, 128, 0}, true)
	steps(s, 5)

	if p.Position().X() >= 138 {
		t.Errorf("Expected the prim pulled toward the center, got %v", p.Position())
	}
	if !almostEqual(p.Position().Z(), 0, 1e-9) {
		t.Errorf("Expected no vertical pull, got %v", p.Position())
	}
}

func TestScene_AddRejectsNonFinite(t *testing.T) {
	s := newTestScene(t, nil)

	_, err := s.AddPrim("bad", mgl64.Vec3{math.Inf(1), 0, 0}, mgl64.QuatIdent(), mass.Box(), mgl64.Vec3{1, 1, 1}, false)
	if !errors.Is(err, taint.ErrNonFinite) {
		t.Errorf("Expected ErrNonFinite for prim, got %v", err)
	}
	_, err = s.AddCharacter("bad", mgl64.Vec3{0, 0, 0}, math.NaN(), false)
	if !errors.Is(err, taint.ErrNonFinite) {
		t.Errorf("Expected ErrNonFinite for character, got %v", err)
	}
	if s.ActorCount() != 0 {
		t.Errorf("Expected no actor, got %d", s.ActorCount())
	}
}

func TestScene_Lookups(t *testing.T) {
	s := newTestScene(t, nil)
	p := addTestPrim(t, s, "lamp", mgl64.Vec3{128, 128, 50}, false)
	c := addTestCharacter(t, s, mgl64.Vec3{120, 128, 50}, true)
	s.Step()

	if s.ActorCount() != 2 {
		t.Fatalf("Expected 2 actors, got %d", s.ActorCount())
	}
	if a, ok := s.Actor(c.LocalID()); !ok || a.Type() != ActorCharacter {
		t.Errorf("Expected the character by id, got %v", a)
	}
	if a, ok := s.ActorByGeom(p.GeomHandle()); !ok || a.LocalID() != p.LocalID() {
		t.Errorf("Expected the prim by geometry, got %v", a)
	}
	if name, ok := s.GeomName(p.GeomHandle()); !ok || name != "lamp" {
		t.Errorf("Expected name lamp, got %q", name)
	}
	if p.UUID() == c.UUID() {
		t.Error("Expected distinct actor UUIDs")
	}
}

func TestScene_PrimCharacterCollision(t *testing.T) {
	s := newTestScene(t, FlatEnvironment{Ground: 0, Water: -10})
	p := addTestPrim(t, s, "wall", mgl64.Vec3{128.5, 128, 0.9}, false)
	c := addTestCharacter(t, s, mgl64.Vec3{128, 128, 0.9}, false)
	c.SubscribeEvents(0)

	capture := &eventCapture{}
	s.Subscribe(COLLISIONS, capture.capture)
	s.Step()

	var others []uint32
	for _, e := range capture.events {
		if e.Actor() != c.LocalID() {
			continue
		}
		for _, collision := range e.(CollisionsEvent).Collisions {
			others = append(others, collision.OtherID)
		}
	}
	found := false
	for _, id := range others {
		found = found || id == p.LocalID()
	}
	if !found {
		t.Errorf("Expected a contact with prim %d, got %v", p.LocalID(), others)
	}
	if !c.CollidingObj() {
		t.Error("Expected CollidingObj on the character")
	}
}

func TestScene_RunStopsOnCancel(t *testing.T) {
	s := newTestScene(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Expected nil on cancel, got %v", err)
	}
	if s.Frames() == 0 {
		t.Error("Expected some steps")
	}
}

func TestHeightmap(t *testing.T) {
	h, err := NewHeightmap(2, 2, 10, []float64{0, 10, 20, 30}, 5)
	if err != nil {
		t.Fatalf("NewHeightmap: %v", err)
	}

	tests := []struct {
		name string
		x, y float64
		want float64
	}{
		{"origin", 0, 0, 0},
		{"corner x", 10, 0, 10},
		{"corner y", 0, 10, 20},
		{"center", 5, 5, 15},
		{"clamped", 100, -100, 10},
		{"nan", math.NaN(), 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.TerrainHeightAtXY(tt.x, tt.y); !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("TerrainHeightAtXY(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
	if h.WaterLevelAt(3, 3) != 5 {
		t.Errorf("Expected water 5, got %v", h.WaterLevelAt(3, 3))
	}

	if _, err := NewHeightmap(2, 2, 10, []float64{0, 1, 2}, 0); err == nil {
		t.Error("Expected an error for a short height list")
	}
	if _, err := NewHeightmap(2, 2, 0, []float64{0, 1, 2, 3}, 0); err == nil {
		t.Error("Expected an error for a zero spacing")
	}
}
