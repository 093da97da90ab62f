package kernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform represents a position and rotation in 3D space
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.QuatIdent(),
	}
}

// Compose returns the world transform of a child expressed by local in t's frame.
func (t Transform) Compose(local Transform) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(local.Position)),
		Rotation: t.Rotation.Mul(local.Rotation).Normalize(),
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func finiteQuat(q mgl64.Quat) bool {
	return finiteVec(q.V) && finite(q.W)
}
