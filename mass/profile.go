package mass

import "fmt"

// ProfileShape is the cross-section swept along the path.
type ProfileShape int

const (
	ProfileSquare ProfileShape = iota
	ProfileCircle
	ProfileHalfCircle
	ProfileEquilateralTriangle
)

func (p ProfileShape) String() string {
	switch p {
	case ProfileSquare:
		return "square"
	case ProfileCircle:
		return "circle"
	case ProfileHalfCircle:
		return "half-circle"
	case ProfileEquilateralTriangle:
		return "triangle"
	}
	return fmt.Sprintf("ProfileShape(%d)", int(p))
}

// HollowShape is the shape of the hole cut through the profile.
type HollowShape int

const (
	HollowSame HollowShape = iota
	HollowCircle
	HollowSquare
	HollowTriangle
)

// Extrusion is the path along which the profile is swept.
type Extrusion int

const (
	// ExtrusionStraight sweeps along a line: box, cylinder, prism.
	ExtrusionStraight Extrusion = iota
	// ExtrusionCurved sweeps around a circle: sphere, torus, tube, ring.
	ExtrusionCurved
	// ExtrusionTapered is a straight sweep whose top scale is given by TaperX/TaperY.
	ExtrusionTapered
)

// Profile describes a parametric primitive. Fractions are in [0, 1] except
// the tapers, which are in [-1, 1].
type Profile struct {
	Base        ProfileShape
	Extrusion   Extrusion
	Hollow      float64 // fraction of the profile removed, at most MaxHollow
	HollowShape HollowShape

	PathBegin    float64 // path cut start
	PathEnd      float64 // path cut end, 1 for an uncut path
	ProfileBegin float64
	ProfileEnd   float64 // 1 for an uncut profile

	TaperX float64
	TaperY float64
	// HoleSizeY is the thickness of the ring swept by a curved extrusion,
	// as a fraction of the bounding size; 0.5 gives a sphere.
	HoleSizeY float64

	// Mesh marks a non-parametric shape (sculpt or mesh asset) whose collision
	// geometry comes from a mesher; mass still uses the parametric estimate.
	Mesh bool
}

const (
	// MaxHollow is the largest hollow fraction accepted.
	MaxHollow = 0.95
	// MinHoleSize is the thinnest ring a curved extrusion may sweep.
	MinHoleSize = 0.05
)

// Box returns the profile of a plain box.
func Box() Profile {
	return Profile{Base: ProfileSquare, Extrusion: ExtrusionStraight, PathEnd: 1, ProfileEnd: 1}
}

// Cylinder returns the profile of a plain cylinder.
func Cylinder() Profile {
	return Profile{Base: ProfileCircle, Extrusion: ExtrusionStraight, PathEnd: 1, ProfileEnd: 1}
}

// Sphere returns the profile of a plain sphere.
func Sphere() Profile {
	return Profile{Base: ProfileHalfCircle, Extrusion: ExtrusionCurved, PathEnd: 1, ProfileEnd: 1, HoleSizeY: 0.5}
}

// Prism returns the profile of a triangular prism.
func Prism() Profile {
	return Profile{Base: ProfileEquilateralTriangle, Extrusion: ExtrusionStraight, PathEnd: 1, ProfileEnd: 1}
}

// IsSphere reports whether the profile can be represented by a sphere geom.
func (p Profile) IsSphere() bool {
	return p.Base == ProfileHalfCircle && p.Extrusion == ExtrusionCurved && p.Hollow == 0 &&
		p.PathBegin == 0 && p.PathEnd == 1 && p.ProfileBegin == 0 && p.ProfileEnd == 1 && !p.Mesh
}

// IsBox reports whether the profile can be represented by a box geom.
func (p Profile) IsBox() bool {
	return p.Base == ProfileSquare && p.Extrusion == ExtrusionStraight && p.Hollow == 0 &&
		p.PathBegin == 0 && p.PathEnd == 1 && p.ProfileBegin == 0 && p.ProfileEnd == 1 &&
		p.TaperX == 0 && p.TaperY == 0 && !p.Mesh
}

// normalized returns a copy with every fraction clamped into range and an
// empty cut range widened to the full path.
func (p Profile) normalized() Profile {
	p.Hollow = clamp(p.Hollow, 0, MaxHollow)
	p.PathBegin = clamp(p.PathBegin, 0, 1)
	p.PathEnd = clamp(p.PathEnd, 0, 1)
	p.ProfileBegin = clamp(p.ProfileBegin, 0, 1)
	p.ProfileEnd = clamp(p.ProfileEnd, 0, 1)
	if p.PathEnd <= p.PathBegin {
		p.PathBegin, p.PathEnd = 0, 1
	}
	if p.ProfileEnd <= p.ProfileBegin {
		p.ProfileBegin, p.ProfileEnd = 0, 1
	}
	p.TaperX = clamp(p.TaperX, -1, 1)
	p.TaperY = clamp(p.TaperY, -1, 1)
	p.HoleSizeY = clamp(p.HoleSizeY, MinHoleSize, 0.5)

	return p
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
