package mass

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MinimumDimension replaces any missing, zero or negative size component.
const MinimumDimension = 0.01

// Limits bounds the mass of a single prim.
type Limits struct {
	Minimum float64
	Maximum float64
}

// DefaultLimits keeps every body solvable: never zero, never enormous.
var DefaultLimits = Limits{Minimum: 0.01, Maximum: 10000}

func (l Limits) sanitized() Limits {
	if !(l.Minimum > 0) {
		l.Minimum = DefaultLimits.Minimum
	}
	if !(l.Maximum >= l.Minimum) || math.IsInf(l.Maximum, 0) {
		l.Maximum = math.Max(DefaultLimits.Maximum, l.Minimum)
	}
	return l
}

// Descriptor is the derived mass description of a prim or a linkset.
// Inertia is about CenterOfMass, in the prim's local frame.
type Descriptor struct {
	Volume       float64
	Density      float64
	Mass         float64
	Inertia      mgl64.Mat3
	CenterOfMass mgl64.Vec3
}

// area of each base profile relative to its bounding square
var profileArea = map[ProfileShape]float64{
	ProfileSquare:              1,
	ProfileCircle:              math.Pi / 4,
	ProfileHalfCircle:          math.Pi / 8,
	ProfileEquilateralTriangle: 0.32475953,
}

// fraction of the bounding cube filled by a curved extrusion with a closed hole
var revolvedArea = map[ProfileShape]float64{
	ProfileSquare:              math.Pi / 4,
	ProfileCircle:              math.Pi * math.Pi / 32,
	ProfileHalfCircle:          math.Pi / 6,
	ProfileEquilateralTriangle: math.Pi / 12,
}

// hollowArea is the area of a unit hole of the given shape, inscribed in the
// base profile, relative to the area of that profile.
func hollowArea(base ProfileShape, hollow HollowShape) float64 {
	switch base {
	case ProfileSquare:
		switch hollow {
		case HollowCircle:
			return math.Pi / 4
		case HollowTriangle:
			return 0.5
		}
	case ProfileCircle, ProfileHalfCircle:
		switch hollow {
		case HollowSquare:
			return 2 / math.Pi
		case HollowTriangle:
			return 0.41349667
		}
	case ProfileEquilateralTriangle:
		switch hollow {
		case HollowSquare:
			return 0.5
		case HollowCircle:
			return 0.60459979
		}
	}
	return 1
}

// ClampSize returns size with every component at least MinimumDimension.
func ClampSize(size mgl64.Vec3) mgl64.Vec3 {
	for i, c := range size {
		if !(c >= MinimumDimension) || math.IsInf(c, 0) {
			size[i] = MinimumDimension
		}
	}
	return size
}

// Volume estimates the volume of a parametric prim of the given size. It
// starts from the bounding box, then applies the profile area factor, the
// hollow, the taper and the cuts.
func Volume(p Profile, size mgl64.Vec3) float64 {
	p = p.normalized()
	size = ClampSize(size)
	volume := size.X() * size.Y() * size.Z()

	switch p.Extrusion {
	case ExtrusionCurved:
		volume *= revolvedArea[p.Base]
		// ring left around the sweep axis: 1 when the hole is closed
		inner := 1 - 2*p.HoleSizeY
		volume *= 1 - inner*inner
	default:
		volume *= profileArea[p.Base]

		topX := 1 - math.Abs(p.TaperX)
		topY := 1 - math.Abs(p.TaperY)
		volume *= 1 + (topX-1)/2 + (topY-1)/2 + (topX-1)*(topY-1)/3
	}

	if p.Hollow > 0 {
		volume *= 1 - p.Hollow*p.Hollow*hollowArea(p.Base, p.HollowShape)
	}

	volume *= p.PathEnd - p.PathBegin
	volume *= p.ProfileEnd - p.ProfileBegin

	return volume
}

// Compute derives volume, mass and inertia of a prim. The mass is clamped
// to limits so it is always strictly positive.
func Compute(p Profile, size mgl64.Vec3, density float64, limits Limits) Descriptor {
	limits = limits.sanitized()
	p = p.normalized()
	size = ClampSize(size)

	volume := Volume(p, size)
	m := volume * density
	if !(m >= limits.Minimum) {
		m = limits.Minimum
	}
	if m > limits.Maximum {
		m = limits.Maximum
	}

	return Descriptor{
		Volume:  volume,
		Density: m / volume,
		Mass:    m,
		Inertia: inertia(p, size, m),
	}
}

func inertia(p Profile, size mgl64.Vec3, m float64) mgl64.Mat3 {
	x, y, z := size.X(), size.Y(), size.Z()
	// a hollow moves mass outwards
	h := 1 + p.Hollow*p.Hollow

	var ix, iy, iz float64
	switch {
	case p.Extrusion == ExtrusionCurved:
		// ellipsoid of semi-axes a, b, c: I = m(b²+c²)/5
		a, b, c := x/2, y/2, z/2
		ix = m * (b*b + c*c) * h / 5
		iy = m * (a*a + c*c) * h / 5
		iz = m * (a*a + b*b) * h / 5
	case p.Base == ProfileCircle || p.Base == ProfileHalfCircle:
		// elliptic cylinder along Z
		rx, ry := x/2, y/2
		ix = m * (ry*ry*h/4 + z*z/12)
		iy = m * (rx*rx*h/4 + z*z/12)
		iz = m * (rx*rx + ry*ry) * h / 4
	default:
		// I = (m/12) * (dimension1² + dimension2²)
		factor := m / 12.0
		ix = factor * (y*y*h + z*z)
		iy = factor * (x*x*h + z*z)
		iz = factor * (x*x + y*y) * h
	}

	return mgl64.Mat3{
		ix, 0, 0,
		0, iy, 0,
		0, 0, iz,
	}
}
