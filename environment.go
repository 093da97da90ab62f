package plume

import (
	"fmt"
	"math"

	"github.com/akmonengine/plume/mass"
	"github.com/go-gl/mathgl/mgl64"
)

// Environment answers the terrain and water queries of the actors.
type Environment interface {
	TerrainHeightAtXY(x, y float64) float64
	WaterLevelAt(x, y float64) float64
}

// FlatEnvironment is a flat ground at Ground with a water plane at Water.
type FlatEnvironment struct {
	Ground float64
	Water  float64
}

func (f FlatEnvironment) TerrainHeightAtXY(x, y float64) float64 { return f.Ground }
func (f FlatEnvironment) WaterLevelAt(x, y float64) float64      { return f.Water }

// Heightmap is a regular grid of terrain heights, Spacing meters apart,
// stored row by row from the origin. Heights are interpolated bilinearly and
// clamped at the edges.
type Heightmap struct {
	Width   int
	Depth   int
	Spacing float64
	Heights []float64
	Water   float64
}

func NewHeightmap(width, depth int, spacing float64, heights []float64, water float64) (*Heightmap, error) {
	if width < 2 || depth < 2 || spacing <= 0 || len(heights) != width*depth {
		return nil, fmt.Errorf("heightmap %dx%d with %d heights, spacing %v", width, depth, len(heights), spacing)
	}
	for i, h := range heights {
		if !finite(h) {
			return nil, fmt.Errorf("heightmap height %d is %v", i, h)
		}
	}
	return &Heightmap{Width: width, Depth: depth, Spacing: spacing, Heights: heights, Water: water}, nil
}

func (h *Heightmap) at(i, j int) float64 {
	i = min(max(i, 0), h.Width-1)
	j = min(max(j, 0), h.Depth-1)
	return h.Heights[j*h.Width+i]
}

func (h *Heightmap) TerrainHeightAtXY(x, y float64) float64 {
	if !finite(x) || !finite(y) {
		return h.at(0, 0)
	}
	fx := math.Min(math.Max(x/h.Spacing, 0), float64(h.Width-1))
	fy := math.Min(math.Max(y/h.Spacing, 0), float64(h.Depth-1))
	i, j := int(fx), int(fy)
	tx, ty := fx-float64(i), fy-float64(j)

	h00, h10 := h.at(i, j), h.at(i+1, j)
	h01, h11 := h.at(i, j+1), h.at(i+1, j+1)

	return (h00*(1-tx)+h10*tx)*(1-ty) + (h01*(1-tx)+h11*tx)*ty
}

func (h *Heightmap) WaterLevelAt(x, y float64) float64 { return h.Water }

// Vehicle computes the vehicle-dynamics contribution of a prim each step.
type Vehicle interface {
	Step(state VehicleState, dt float64) (force, torque mgl64.Vec3)
}

// VehicleState is the body state handed to a Vehicle.
type VehicleState struct {
	Position        mgl64.Vec3
	Orientation     mgl64.Quat
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
	Mass            float64
}

// Mesh is a triangle mesh produced by a Mesher.
type Mesh interface {
	GetVertices() []mgl64.Vec3
	GetIndices() []int
}

// Mesher builds the collision mesh of prims that are not a plain box or
// sphere.
type Mesher interface {
	CreateMesh(name string, profile mass.Profile, size mgl64.Vec3) (Mesh, error)
}
