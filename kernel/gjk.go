package kernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// gjkMaxIterations bounds the simplex refinement.
const gjkMaxIterations = 32

// simplex holds 1-4 points of the Minkowski difference, most recent last.
type simplex struct {
	points [4]mgl64.Vec3
	count  int
}

// support returns the world-space point of the geom furthest along direction.
// Meshes are treated as the convex hull of their vertices.
func (g *geom) support(direction mgl64.Vec3) mgl64.Vec3 {
	switch g.shape {
	case ShapeTypeSphere, ShapeTypeCapsule:
		a, b := g.segment()
		point := a
		if b.Dot(direction) > a.Dot(direction) {
			point = b
		}
		if l := direction.Len(); l > 1e-12 {
			point = point.Add(direction.Mul(g.radius / l))
		}
		return point
	}

	local := g.transform.Rotation.Conjugate().Rotate(direction)
	var point mgl64.Vec3
	if g.shape == ShapeTypeBox {
		for axis := 0; axis < 3; axis++ {
			point[axis] = math.Copysign(g.halfExtents[axis], local[axis])
		}
	} else {
		best := math.Inf(-1)
		for _, v := range g.vertices {
			if d := v.Dot(local); d > best {
				best, point = d, v
			}
		}
	}

	return g.transform.Position.Add(g.transform.Rotation.Rotate(point))
}

// minkowskiSupport returns the support point of a - b along direction.
func minkowskiSupport(a, b *geom, direction mgl64.Vec3) mgl64.Vec3 {
	return a.support(direction).Sub(b.support(direction.Mul(-1)))
}

// gjk reports whether two convex geoms overlap. On overlap s holds the
// tetrahedron enclosing the origin that epa expands.
func gjk(a, b *geom, s *simplex) bool {
	direction := b.transform.Position.Sub(a.transform.Position)
	if direction.LenSqr() < 1e-8 {
		direction = mgl64.Vec3{1, 0, 0}
	}

	s.points[0] = minkowskiSupport(a, b, direction)
	s.count = 1

	direction = s.points[0].Mul(-1)
	if direction.LenSqr() < 1e-16 {
		return true
	}

	for i := 0; i < gjkMaxIterations; i++ {
		point := minkowskiSupport(a, b, direction)
		// the origin lies beyond the furthest reachable point
		if point.Dot(direction) <= 0 {
			return false
		}

		s.points[s.count] = point
		s.count++

		if s.containsOrigin(&direction) {
			return true
		}
	}

	return false
}

// containsOrigin reduces the simplex to the feature closest to the origin
// and points direction at it.
func (s *simplex) containsOrigin(direction *mgl64.Vec3) bool {
	switch s.count {
	case 2:
		return s.line(direction)
	case 3:
		return s.triangle(direction)
	case 4:
		return s.tetrahedron(direction)
	}
	return false
}

func (s *simplex) line(direction *mgl64.Vec3) bool {
	a := s.points[1]
	b := s.points[0]
	ab := b.Sub(a)
	ao := a.Mul(-1)

	if ab.LenSqr() < 1e-8 {
		if ao.LenSqr() < 1e-8 {
			return true
		}
		s.points[0] = a
		s.count = 1
		*direction = ao
		return false
	}

	if ab.Dot(ao) <= 0 {
		s.points[0] = a
		s.count = 1
		*direction = ao
		return false
	}

	perp := ab.Cross(ao).Cross(ab)
	if perp.LenSqr() < 1e-8 {
		// origin on the segment
		return true
	}
	*direction = perp

	return false
}

func (s *simplex) triangle(direction *mgl64.Vec3) bool {
	a := s.points[2]
	b := s.points[1]
	c := s.points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ao := a.Mul(-1)
	abc := ab.Cross(ac)

	if abc.LenSqr() < 1e-10 {
		s.points[0] = b
		s.points[1] = a
		s.count = 2
		return s.line(direction)
	}

	if ab.Cross(abc).Dot(ao) > 0 {
		s.points[0] = b
		s.points[1] = a
		s.count = 2
		*direction = ab.Cross(ao).Cross(ab)
		return false
	}

	if abc.Cross(ac).Dot(ao) > 0 {
		s.points[0] = c
		s.points[1] = a
		s.count = 2
		*direction = ac.Cross(ao).Cross(ac)
		return false
	}

	if abc.Dot(ao) > 0 {
		*direction = abc
	} else {
		s.points[0] = a
		s.points[1] = c
		s.points[2] = b
		*direction = abc.Mul(-1)
	}

	return false
}

func (s *simplex) tetrahedron(direction *mgl64.Vec3) bool {
	a := s.points[3]
	b := s.points[2]
	c := s.points[1]
	d := s.points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ad := d.Sub(a)
	ao := a.Mul(-1)

	// face normals point away from the opposite vertex
	abc := ab.Cross(ac)
	if abc.Dot(ad) > 0 {
		abc = abc.Mul(-1)
	}
	acd := ac.Cross(ad)
	if acd.Dot(ab) > 0 {
		acd = acd.Mul(-1)
	}
	adb := ad.Cross(ab)
	if adb.Dot(ac) > 0 {
		adb = adb.Mul(-1)
	}

	reduce := func(p0, p1, p2 mgl64.Vec3) bool {
		s.points[0], s.points[1], s.points[2] = p0, p1, p2
		s.count = 3
		return s.triangle(direction)
	}

	switch {
	case abc.LenSqr() < 1e-10 || acd.LenSqr() < 1e-10 || adb.LenSqr() < 1e-10:
		return reduce(c, b, a)
	case abc.Dot(ao) > 0:
		return reduce(c, b, a)
	case acd.Dot(ao) > 0:
		return reduce(d, c, a)
	case adb.Dot(ao) > 0:
		return reduce(b, d, a)
	}

	return true
}
