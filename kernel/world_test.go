package kernel

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func TestWorld_StepRejectsBadTimestep(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)
	for _, dt := range []float64{0, -1} {
		if err := w.Step(dt); !errors.Is(err, ErrBadDimension) {
			t.Errorf("Step(%v) err = %v, want ErrBadDimension", dt, err)
		}
	}
	if w.Frame() != 0 {
		t.Errorf("Frame = %d, want 0", w.Frame())
	}
}

func TestWorld_TerrainContact(t *testing.T) {
	w := NewWorld(mgl64.Vec3{0, 0, -9.8}, 1)
	w.Terrain = func(x, y float64) float64 { return 20 }

	var contacts []Contact
	w.OnContact = func(c Contact) { contacts = append(contacts, c) }

	b := w.CreateBody()
	g, _ := w.CreateSphere(0.5)
	_ = w.GeomSetBody(g, b)
	_ = w.BodySetPosition(b, mgl64.Vec3{128, 128, 20.6})

	for i := 0; i < 100; i++ {
		if err := w.Step(0.02); err != nil {
			t.Fatal(err)
		}
	}

	p, _ := w.BodyPosition(b)
	if p.Z() < 20.3 || p.Z() > 20.6 {
		t.Errorf("sphere should rest on terrain, z = %v", p.Z())
	}
	if len(contacts) == 0 {
		t.Fatal("expected terrain contacts")
	}
	last := contacts[len(contacts)-1]
	if last.GeomA != 0 || last.GeomB != g {
		t.Errorf("terrain contact geoms = %d/%d, want 0/%d", last.GeomA, last.GeomB, g)
	}
	if last.Normal != (mgl64.Vec3{0, 0, 1}) {
		t.Errorf("terrain normal = %v", last.Normal)
	}
}

func TestWorld_SphereSphereContact(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)

	var contacts []Contact
	w.OnContact = func(c Contact) { contacts = append(contacts, c) }

	a := w.CreateBody()
	ga, _ := w.CreateSphere(1)
	_ = w.GeomSetBody(ga, a)
	_ = w.BodySetPosition(a, mgl64.Vec3{0, 0, 0})
	_ = w.BodySetLinearVel(a, mgl64.Vec3{1, 0, 0})

	b := w.CreateBody()
	gb, _ := w.CreateSphere(1)
	_ = w.GeomSetBody(gb, b)
	_ = w.BodySetPosition(b, mgl64.Vec3{1.9, 0, 0})

	_ = w.Step(0.01)

	if len(contacts) != 1 {
		t.Fatalf("contacts = %d, want 1", len(contacts))
	}
	c := contacts[0]
	if !vec3AlmostEqual(c.Normal, mgl64.Vec3{1, 0, 0}, 1e-6) && !vec3AlmostEqual(c.Normal, mgl64.Vec3{-1, 0, 0}, 1e-6) {
		t.Errorf("normal = %v, want along X", c.Normal)
	}

	va, _ := w.BodyLinearVel(a)
	vb, _ := w.BodyLinearVel(b)
	if va.X() > vb.X() {
		t.Errorf("bodies still approaching: va = %v, vb = %v", va, vb)
	}
}

func TestWorld_SensorIsNotResolved(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)

	var contacts []Contact
	w.OnContact = func(c Contact) { contacts = append(contacts, c) }

	static, _ := w.CreateBox(mgl64.Vec3{2, 2, 2})
	_ = w.GeomSetSensor(static, true)
	if sensor, _ := w.GeomIsSensor(static); !sensor {
		t.Fatal("expected the box marked as sensor")
	}

	b := w.CreateBody()
	g, _ := w.CreateSphere(0.5)
	_ = w.GeomSetBody(g, b)
	_ = w.BodySetLinearVel(b, mgl64.Vec3{1, 0, 0})

	_ = w.Step(0.01)

	if len(contacts) != 1 || !contacts[0].Sensor {
		t.Fatalf("expected one sensor contact, got %+v", contacts)
	}
	v, _ := w.BodyLinearVel(b)
	if !almostEqual(v.X(), 1, 1e-9) {
		t.Errorf("sensor contact changed velocity to %v", v)
	}
}

func TestWorld_CategoryFilter(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)

	var contacts int
	w.OnContact = func(c Contact) { contacts++ }

	static, _ := w.CreateBox(mgl64.Vec3{2, 2, 2})
	_ = w.GeomSetCategory(static, CategoryStatic, CategoryCharacter)

	b := w.CreateBody()
	g, _ := w.CreateSphere(0.5)
	_ = w.GeomSetBody(g, b)
	_ = w.GeomSetCategory(g, CategoryBody, CategoryAll)

	_ = w.Step(0.01)

	if contacts != 0 {
		t.Errorf("contacts = %d, want 0 for filtered categories", contacts)
	}
}

func TestWorld_SpaceLockedDuringContacts(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)

	b := w.CreateBody()
	g, _ := w.CreateSphere(1)
	_ = w.GeomSetBody(g, b)
	other, _ := w.CreateBox(mgl64.Vec3{1, 1, 1})

	var destroyErr, createErr error
	w.OnContact = func(c Contact) {
		destroyErr = w.DestroyGeom(other)
		_, createErr = w.CreateSphere(1)
	}

	_ = w.Step(0.01)

	if !errors.Is(destroyErr, ErrSpaceLocked) {
		t.Errorf("DestroyGeom from handler: err = %v, want ErrSpaceLocked", destroyErr)
	}
	if !errors.Is(createErr, ErrSpaceLocked) {
		t.Errorf("CreateSphere from handler: err = %v, want ErrSpaceLocked", createErr)
	}
	if !w.WaitSpaceUnlock(time.Millisecond) {
		t.Error("space should be unlocked after Step")
	}
	if err := w.DestroyGeom(other); err != nil {
		t.Errorf("DestroyGeom after step: %v", err)
	}
}

func TestWorld_BadShapes(t *testing.T) {
	w := NewWorld(mgl64.Vec3{}, 1)

	tests := []struct {
		name string
		call func() error
	}{
		{"zero box", func() error { _, err := w.CreateBox(mgl64.Vec3{1, 0, 1}); return err }},
		{"negative sphere", func() error { _, err := w.CreateSphere(-1); return err }},
		{"zero capsule radius", func() error { _, err := w.CreateCapsule(0, 1); return err }},
		{"empty mesh", func() error { _, err := w.CreateTriMesh(nil, nil); return err }},
		{"mesh index out of range", func() error {
			_, err := w.CreateTriMesh([]mgl64.Vec3{{0, 0, 0}}, []int{0, 1, 2})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrBadDimension) {
				t.Errorf("err = %v, want ErrBadDimension", err)
			}
		})
	}
	if w.GeomCount() != 0 {
		t.Errorf("GeomCount = %d, want 0", w.GeomCount())
	}
}

func TestClosestSegmentPoints(t *testing.T) {
	tests := []struct {
		name           string
		p1, q1, p2, q2 mgl64.Vec3
		wantA, wantB   mgl64.Vec3
	}{
		{
			name: "points",
			p1:   mgl64.Vec3{0, 0, 0}, q1: mgl64.Vec3{0, 0, 0},
			p2: mgl64.Vec3{1, 0, 0}, q2: mgl64.Vec3{1, 0, 0},
			wantA: mgl64.Vec3{0, 0, 0}, wantB: mgl64.Vec3{1, 0, 0},
		},
		{
			name: "parallel vertical",
			p1:   mgl64.Vec3{0, 0, 0}, q1: mgl64.Vec3{0, 0, 2},
			p2: mgl64.Vec3{1, 0, 3}, q2: mgl64.Vec3{1, 0, 5},
			wantA: mgl64.Vec3{0, 0, 2}, wantB: mgl64.Vec3{1, 0, 3},
		},
		{
			name: "crossing",
			p1:   mgl64.Vec3{-1, 0, 0}, q1: mgl64.Vec3{1, 0, 0},
			p2: mgl64.Vec3{0, -1, 1}, q2: mgl64.Vec3{0, 1, 1},
			wantA: mgl64.Vec3{0, 0, 0}, wantB: mgl64.Vec3{0, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := closestSegmentPoints(tt.p1, tt.q1, tt.p2, tt.q2)
			if !vec3AlmostEqual(a, tt.wantA, 1e-9) || !vec3AlmostEqual(b, tt.wantB, 1e-9) {
				t.Errorf("closest = %v/%v, want %v/%v", a, b, tt.wantA, tt.wantB)
			}
		})
	}
}
