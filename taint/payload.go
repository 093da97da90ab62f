package taint

import (
	"math"

	"github.com/akmonengine/plume/mass"
	"github.com/go-gl/mathgl/mgl64"
)

// Payload carries the argument of a change. Each Kind expects one concrete
// payload type; Finite reports whether every float in it is usable.
type Payload interface {
	Finite() bool
}

// None is the payload of kinds without argument (Add, Remove, Delink).
type None struct{}

func (None) Finite() bool { return true }

// Vector is a position, velocity, force or torque.
type Vector mgl64.Vec3

func (v Vector) Finite() bool { return finiteVec(mgl64.Vec3(v)) }

// Rotation is an orientation.
type Rotation mgl64.Quat

func (r Rotation) Finite() bool {
	return finite(r.W) && finiteVec(r.V)
}

// Flag toggles a boolean property (Physical, Selected, VolumeDetect, Flying, Disable).
type Flag bool

func (Flag) Finite() bool { return true }

// Scalar carries a single number (Buoyancy).
type Scalar float64

func (s Scalar) Finite() bool { return finite(float64(s)) }

// ShapeChange replaces the geometric description of a prim.
type ShapeChange struct {
	Profile mass.Profile
	Size    mgl64.Vec3
}

func (s ShapeChange) Finite() bool {
	p := s.Profile
	return finiteVec(s.Size) &&
		finite(p.Hollow) && finite(p.PathBegin) && finite(p.PathEnd) &&
		finite(p.ProfileBegin) && finite(p.ProfileEnd) &&
		finite(p.TaperX) && finite(p.TaperY) && finite(p.HoleSizeY)
}

// LinkTo attaches a prim under the linkset whose member has ParentID.
type LinkTo struct {
	ParentID uint32
}

func (LinkTo) Finite() bool { return true }

// Axes flags world rotation axes; true locks the axis.
type Axes struct {
	X, Y, Z bool
}

func (Axes) Finite() bool { return true }

// MoveTarget starts (Active) or stops a move-to PID toward Position. Tau is
// the time constant in seconds.
type MoveTarget struct {
	Active   bool
	Position mgl64.Vec3
	Tau      float64
}

func (m MoveTarget) Finite() bool {
	return finiteVec(m.Position) && finite(m.Tau)
}

// HoverMode selects the reference surface of a hover target.
type HoverMode uint8

const (
	HoverGround HoverMode = iota
	HoverGroundAndWater
	HoverWater
	HoverAbsolute
)

// HoverTarget starts (Active) or stops a hover PID keeping the prim Height
// meters above the surface chosen by Mode.
type HoverTarget struct {
	Active bool
	Height float64
	Mode   HoverMode
	Tau    float64
}

func (h HoverTarget) Finite() bool {
	return finite(h.Height) && finite(h.Tau)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}
