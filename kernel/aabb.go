package kernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// ContainsPoint checks if a point is inside the AABB
func (a AABB) ContainsPoint(point mgl64.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Overlaps checks if two AABBs overlap
func (a AABB) Overlaps(other AABB) bool {
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// Center returns the midpoint of the box.
func (a AABB) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Penetration returns the minimum translation that pushes b out of a along a
// single axis, as a unit normal (from a to b) and a depth.
func (a AABB) Penetration(b AABB) (mgl64.Vec3, float64) {
	best := math.MaxFloat64
	var normal mgl64.Vec3

	for axis := 0; axis < 3; axis++ {
		// b pushed towards +axis
		if d := a.Max[axis] - b.Min[axis]; d < best {
			best = d
			normal = mgl64.Vec3{}
			normal[axis] = 1
		}
		// b pushed towards -axis
		if d := b.Max[axis] - a.Min[axis]; d < best {
			best = d
			normal = mgl64.Vec3{}
			normal[axis] = -1
		}
	}

	return normal, best
}

// Intersection returns the overlapping region of two boxes. The result is
// only meaningful when Overlaps is true.
func (a AABB) Intersection(b AABB) AABB {
	return AABB{
		Min: mgl64.Vec3{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1]), math.Max(a.Min[2], b.Min[2])},
		Max: mgl64.Vec3{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1]), math.Min(a.Max[2], b.Max[2])},
	}
}

// boundsOfCorners transforms the 8 corners of a local box and returns the
// world-space bounding box.
func boundsOfCorners(local AABB, transform Transform) AABB {
	corners := [8]mgl64.Vec3{
		{local.Min.X(), local.Min.Y(), local.Min.Z()},
		{local.Max.X(), local.Min.Y(), local.Min.Z()},
		{local.Min.X(), local.Max.Y(), local.Min.Z()},
		{local.Max.X(), local.Max.Y(), local.Min.Z()},
		{local.Min.X(), local.Min.Y(), local.Max.Z()},
		{local.Max.X(), local.Min.Y(), local.Max.Z()},
		{local.Min.X(), local.Max.Y(), local.Max.Z()},
		{local.Max.X(), local.Max.Y(), local.Max.Z()},
	}

	worldCorner := transform.Rotation.Rotate(corners[0]).Add(transform.Position)
	min := worldCorner
	max := worldCorner

	for i := 1; i < 8; i++ {
		worldCorner = transform.Rotation.Rotate(corners[i]).Add(transform.Position)

		min[0] = math.Min(min[0], worldCorner[0])
		min[1] = math.Min(min[1], worldCorner[1])
		min[2] = math.Min(min[2], worldCorner[2])

		max[0] = math.Max(max[0], worldCorner[0])
		max[1] = math.Max(max[1], worldCorner[1])
		max[2] = math.Max(max[2], worldCorner[2])
	}

	return AABB{Min: min, Max: max}
}
