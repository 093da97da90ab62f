package kernel

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// =============================================================================
// Handle lifecycle Tests
// =============================================================================

func TestBody_InvalidHandle(t *testing.T) {
	w := NewWorld(mgl64.Vec3{0, 0, -9.8}, 1)

	if _, err := w.BodyPosition(42); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("BodyPosition on unknown handle: err = %v, want ErrInvalidHandle", err)
	}

	h := w.CreateBody()
	if err := w.DestroyBody(h); err != nil {
		t.Fatalf("DestroyBody: %v", err)
	}
	if err := w.BodySetLinearVel(h, mgl64.Vec3{1, 0, 0}); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("BodySetLinearVel after destroy: err = %v, want ErrInvalidHandle", err)
	}
	if err := w.DestroyBody(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("second DestroyBody: err = %v, want ErrInvalidHandle", err)
	}
	if w.BodyCount() != 0 {
		t.Errorf("BodyCount = %d, want 0", w.BodyCount())
	}
}

func TestBody_DestroyDetachesGeoms(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)
	b := w.CreateBody()
	g, err := w.CreateBox(mgl64.Vec3{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.GeomSetBody(g, b); err != nil {
		t.Fatal(err)
	}
	if err := w.GeomSetOffset(g, mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent()); err != nil {
		t.Fatal(err)
	}
	if err := w.BodySetPosition(b, mgl64.Vec3{10, 10, 10}); err != nil {
		t.Fatal(err)
	}
	m, _ := w.CreateAngularMotor(b)

	if err := w.DestroyBody(b); err != nil {
		t.Fatal(err)
	}

	owner, err := w.GeomBody(g)
	if err != nil {
		t.Fatalf("geom should survive body destruction: %v", err)
	}
	if owner != 0 {
		t.Errorf("GeomBody = %d, want 0", owner)
	}
	tr, _ := w.GeomTransform(g)
	if !vec3AlmostEqual(tr.Position, mgl64.Vec3{11, 10, 10}, 1e-9) {
		t.Errorf("detached geom position = %v, want {11 10 10}", tr.Position)
	}
	if _, err := w.MotorLockedAxes(m); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("motor should be destroyed with its body, err = %v", err)
	}
}

func TestBody_RejectsNonFinite(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)
	h := w.CreateBody()
	nan := math.NaN()

	tests := []struct {
		name string
		call func() error
	}{
		{"position", func() error { return w.BodySetPosition(h, mgl64.Vec3{nan, 0, 0}) }},
		{"velocity", func() error { return w.BodySetLinearVel(h, mgl64.Vec3{0, math.Inf(1), 0}) }},
		{"force", func() error { return w.BodyAddForce(h, mgl64.Vec3{0, 0, nan}) }},
		{"torque", func() error { return w.BodyAddTorque(h, mgl64.Vec3{nan, 0, 0}) }},
		{"rotation", func() error { return w.BodySetRotation(h, mgl64.Quat{W: nan}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrNonFinite) {
				t.Errorf("err = %v, want ErrNonFinite", err)
			}
		})
	}

	p, _ := w.BodyPosition(h)
	if p != (mgl64.Vec3{}) {
		t.Errorf("position changed to %v", p)
	}
}

func TestBody_SetMassRejectsZero(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)
	h := w.CreateBody()

	if err := w.BodySetMass(h, MassData{Mass: 0}); !errors.Is(err, ErrBadDimension) {
		t.Errorf("err = %v, want ErrBadDimension", err)
	}
	if err := w.BodySetMass(h, MassData{Mass: 4, Inertia: mgl64.Ident3()}); err != nil {
		t.Fatal(err)
	}
	m, _ := w.BodyMass(h)
	if m.Mass != 4 {
		t.Errorf("Mass = %v, want 4", m.Mass)
	}
}

// =============================================================================
// Integrate Tests
// =============================================================================

func TestIntegrate_WithGravity(t *testing.T) {
	w := NewWorld(mgl64.Vec3{0, 0, -10}, 1)
	h := w.CreateBody()

	for i := 0; i < 3; i++ {
		if err := w.Step(0.1); err != nil {
			t.Fatal(err)
		}
	}

	// v = -1, -2, -3 ; p = -0.1, -0.3, -0.6
	v, _ := w.BodyLinearVel(h)
	if !vec3AlmostEqual(v, mgl64.Vec3{0, 0, -3}, 1e-9) {
		t.Errorf("Velocity after 3 steps = %v, want {0 0 -3}", v)
	}
	p, _ := w.BodyPosition(h)
	if !vec3AlmostEqual(p, mgl64.Vec3{0, 0, -0.6}, 1e-9) {
		t.Errorf("Position after 3 steps = %v, want {0 0 -0.6}", p)
	}
}

func TestIntegrate_GravityModeOff(t *testing.T) {
	w := NewWorld(mgl64.Vec3{0, 0, -10}, 1)
	h := w.CreateBody()
	_ = w.BodySetGravityMode(h, false)
	_ = w.BodyAddForce(h, mgl64.Vec3{2, 0, 0})

	if err := w.Step(0.5); err != nil {
		t.Fatal(err)
	}

	// unit mass: a = F
	v, _ := w.BodyLinearVel(h)
	if !vec3AlmostEqual(v, mgl64.Vec3{1, 0, 0}, 1e-9) {
		t.Errorf("Velocity = %v, want {1 0 0}", v)
	}

	// forces are consumed by the step
	_ = w.Step(0.5)
	v, _ = w.BodyLinearVel(h)
	if !vec3AlmostEqual(v, mgl64.Vec3{1, 0, 0}, 1e-9) {
		t.Errorf("Velocity after second step = %v, want {1 0 0}", v)
	}
}

func TestIntegrate_DisabledBodyDoesNotMove(t *testing.T) {
	w := NewWorld(mgl64.Vec3{0, 0, -10}, 1)
	h := w.CreateBody()
	_ = w.BodyDisable(h)

	_ = w.Step(0.1)

	p, _ := w.BodyPosition(h)
	if p != (mgl64.Vec3{}) {
		t.Errorf("disabled body moved to %v", p)
	}
	enabled, _ := w.BodyIsEnabled(h)
	if enabled {
		t.Error("body should stay disabled")
	}

	_ = w.BodyAddForce(h, mgl64.Vec3{1, 0, 0})
	enabled, _ = w.BodyIsEnabled(h)
	if !enabled {
		t.Error("AddForce should wake the body")
	}
}

func TestMotor_LocksAxes(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)
	h := w.CreateBody()
	m, err := w.CreateAngularMotor(h)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.MotorSetLockedAxes(m, true, true, false); err != nil {
		t.Fatal(err)
	}
	_ = w.BodySetAngularVel(h, mgl64.Vec3{1, 2, 3})

	_ = w.Step(0.01)

	av, _ := w.BodyAngularVel(h)
	if av.X() != 0 || av.Y() != 0 {
		t.Errorf("locked axes still spinning: %v", av)
	}
	if !almostEqual(av.Z(), 3, 1e-9) {
		t.Errorf("free axis = %v, want 3", av.Z())
	}

	if err := w.DestroyMotor(m); err != nil {
		t.Fatal(err)
	}
	_ = w.BodySetAngularVel(h, mgl64.Vec3{1, 0, 0})
	_ = w.Step(0.01)
	av, _ = w.BodyAngularVel(h)
	if !almostEqual(av.X(), 1, 1e-9) {
		t.Errorf("axis should be free after motor destruction, got %v", av)
	}
}

func TestBody_AutoDisable(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)
	h := w.CreateBody()
	_ = w.BodySetAutoDisable(h, 3, 0.01, 0.01)

	for i := 0; i < 2; i++ {
		_ = w.Step(0.01)
	}
	enabled, _ := w.BodyIsEnabled(h)
	if !enabled {
		t.Fatal("body disabled too early")
	}

	_ = w.Step(0.01)
	enabled, _ = w.BodyIsEnabled(h)
	if enabled {
		t.Error("idle body should be disabled after 3 frames")
	}
}
