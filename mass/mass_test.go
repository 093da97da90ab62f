package mass

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func mat3AlmostEqual(a, b mgl64.Mat3, tolerance float64) bool {
	for i := range a {
		if !almostEqual(a[i], b[i], tolerance) {
			return false
		}
	}
	return true
}

// =============================================================================
// Volume Tests
// =============================================================================

func TestVolume_BasicProfiles(t *testing.T) {
	size := mgl64.Vec3{2, 2, 2}

	tests := []struct {
		name    string
		profile Profile
		want    float64
	}{
		{"box", Box(), 8},
		{"zero value profile is a box", Profile{}, 8},
		{"cylinder", Cylinder(), 8 * math.Pi / 4},
		{"sphere", Sphere(), 8 * math.Pi / 6},
		{"prism", Prism(), 8 * 0.32475953},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Volume(tt.profile, size)
			if !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("Volume = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolume_Modifiers(t *testing.T) {
	size := mgl64.Vec3{1, 1, 1}
	full := Volume(Box(), size)

	hollow := Box()
	hollow.Hollow = 0.5
	if got := Volume(hollow, size); !almostEqual(got, 0.75, 1e-9) {
		t.Errorf("hollow box volume = %v, want 0.75", got)
	}

	roundHole := hollow
	roundHole.HollowShape = HollowCircle
	if got := Volume(roundHole, size); !(got > Volume(hollow, size) && got < full) {
		t.Errorf("round hole should remove less than a square one, got %v", got)
	}

	cut := Box()
	cut.PathBegin = 0.25
	cut.PathEnd = 0.75
	if got := Volume(cut, size); !almostEqual(got, 0.5, 1e-9) {
		t.Errorf("path cut volume = %v, want 0.5", got)
	}

	// a full taper to a point gives a pyramid: one third of the box
	tapered := Box()
	tapered.Extrusion = ExtrusionTapered
	tapered.TaperX = 1
	tapered.TaperY = 1
	if got := Volume(tapered, size); !almostEqual(got, 1.0/3, 1e-9) {
		t.Errorf("pyramid volume = %v, want 1/3", got)
	}

	ring := Sphere()
	ring.HoleSizeY = 0.25
	if got := Volume(ring, size); !(got > 0 && got < Volume(Sphere(), size)) {
		t.Errorf("ring volume = %v, want between 0 and the sphere volume", got)
	}
}

func TestVolume_DegenerateSize(t *testing.T) {
	got := Volume(Box(), mgl64.Vec3{0, math.NaN(), -3})
	want := MinimumDimension * MinimumDimension * MinimumDimension
	if !almostEqual(got, want, 1e-15) {
		t.Errorf("Volume = %v, want %v", got, want)
	}
}

// =============================================================================
// Compute Tests
// =============================================================================

func TestCompute_UnitBox(t *testing.T) {
	d := Compute(Box(), mgl64.Vec3{1, 1, 1}, 10, DefaultLimits)

	if !almostEqual(d.Mass, 10, 1e-9) {
		t.Errorf("Mass = %v, want 10", d.Mass)
	}
	if !almostEqual(d.Volume, 1, 1e-9) {
		t.Errorf("Volume = %v, want 1", d.Volume)
	}

	// I = m/12 * (1 + 1)
	want := mgl64.Mat3{10.0 / 6, 0, 0, 0, 10.0 / 6, 0, 0, 0, 10.0 / 6}
	if !mat3AlmostEqual(d.Inertia, want, 1e-9) {
		t.Errorf("Inertia = %v, want %v", d.Inertia, want)
	}
}

func TestCompute_MassAlwaysInLimits(t *testing.T) {
	limits := Limits{Minimum: 0.01, Maximum: 1000}
	profiles := map[string]Profile{
		"box":      Box(),
		"cylinder": Cylinder(),
		"sphere":   Sphere(),
		"prism":    Prism(),
		"hollow": {Base: ProfileCircle, Hollow: 0.95, HollowShape: HollowSquare,
			PathEnd: 1, ProfileEnd: 1},
		"cut torus": {Base: ProfileCircle, Extrusion: ExtrusionCurved, HoleSizeY: 0.05,
			PathBegin: 0.9, PathEnd: 1, ProfileBegin: 0.5, ProfileEnd: 0.55},
		"garbage": {Base: ProfileSquare, Hollow: math.NaN(), TaperX: 7, PathBegin: 3},
	}
	sizes := []mgl64.Vec3{
		{0, 0, 0},
		{1, 1, 1},
		{0.001, 10, 10},
		{64, 64, 64},
		{math.Inf(1), 1, 1},
	}
	densities := []float64{0, 1000, 1e9, math.NaN(), -5}

	for name, p := range profiles {
		for _, size := range sizes {
			for _, density := range densities {
				d := Compute(p, size, density, limits)
				if !(d.Mass > 0) || d.Mass > limits.Maximum || d.Mass < limits.Minimum {
					t.Errorf("%s size=%v density=%v: Mass = %v out of [%v, %v]",
						name, size, density, d.Mass, limits.Minimum, limits.Maximum)
				}
				if !(d.Volume > 0) {
					t.Errorf("%s size=%v: Volume = %v, want > 0", name, size, d.Volume)
				}
				for i, v := range d.Inertia {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						t.Errorf("%s size=%v: Inertia[%d] = %v", name, size, i, v)
					}
				}
			}
		}
	}
}

func TestCompute_BadLimitsAreSanitized(t *testing.T) {
	d := Compute(Box(), mgl64.Vec3{}, 0, Limits{Minimum: 0, Maximum: -1})
	if d.Mass != DefaultLimits.Minimum {
		t.Errorf("Mass = %v, want %v", d.Mass, DefaultLimits.Minimum)
	}
}

// =============================================================================
// Combine Tests
// =============================================================================

func TestCombine_NoParts(t *testing.T) {
	root := Compute(Box(), mgl64.Vec3{1, 2, 3}, 5, DefaultLimits)
	got := Combine(root, nil)

	if got.Mass != root.Mass || !mat3AlmostEqual(got.Inertia, root.Inertia, 1e-12) {
		t.Errorf("Combine without parts changed the descriptor: %+v", got)
	}
}

func TestCombine_ParallelAxis(t *testing.T) {
	root := Compute(Box(), mgl64.Vec3{1, 1, 1}, 10, DefaultLimits)
	child := Compute(Box(), mgl64.Vec3{1, 1, 1}, 10, DefaultLimits)

	got := Combine(root, []Part{{Descriptor: child, Offset: mgl64.Vec3{2, 0, 0}, Rotation: mgl64.QuatIdent()}})

	if !almostEqual(got.Mass, 20, 1e-9) {
		t.Errorf("Mass = %v, want 20", got.Mass)
	}
	if !almostEqual(got.CenterOfMass.X(), 1, 1e-9) {
		t.Errorf("CenterOfMass = %v, want {1 0 0}", got.CenterOfMass)
	}

	// each cube is 1m from the combined center along X
	own := 10.0 / 6
	wantX := 2 * own
	wantYZ := 2 * (own + 10*1)
	if !almostEqual(got.Inertia[0], wantX, 1e-9) {
		t.Errorf("Ixx = %v, want %v", got.Inertia[0], wantX)
	}
	if !almostEqual(got.Inertia[4], wantYZ, 1e-9) || !almostEqual(got.Inertia[8], wantYZ, 1e-9) {
		t.Errorf("Iyy/Izz = %v/%v, want %v", got.Inertia[4], got.Inertia[8], wantYZ)
	}
}

func TestCombine_RotatesChildInertia(t *testing.T) {
	root := Descriptor{Mass: 1, Volume: 1, Inertia: mgl64.Ident3()}
	rod := Compute(Box(), mgl64.Vec3{0.1, 0.1, 4}, 100, DefaultLimits)

	// a rod lying along X once rotated 90° around Y
	rotation := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})
	got := Combine(root, []Part{{Descriptor: rod, Rotation: rotation}})

	if !(got.Inertia[0] < got.Inertia[8]) {
		t.Errorf("rotated rod should be easiest to spin around X: Ixx = %v, Izz = %v", got.Inertia[0], got.Inertia[8])
	}
}
