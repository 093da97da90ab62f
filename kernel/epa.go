package kernel

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	epaMaxIterations = 32
	epaTolerance     = 0.001
	epaMinDistance   = 0.0001
)

type face struct {
	points   [3]mgl64.Vec3
	normal   mgl64.Vec3
	distance float64
}

type edge struct {
	a, b  mgl64.Vec3
	count int
}

// polytope is the expanding hull of the Minkowski difference. Its buffers
// are reused across pairs.
type polytope struct {
	faces   []face
	edges   []edge
	visible []int
}

var polytopePool = sync.Pool{
	New: func() interface{} {
		return &polytope{
			faces:   make([]face, 0, 16),
			edges:   make([]edge, 0, 16),
			visible: make([]int, 0, 8),
		}
	},
}

func (p *polytope) reset() {
	p.faces = p.faces[:0]
	p.edges = p.edges[:0]
	p.visible = p.visible[:0]
}

// epa expands the gjk simplex of two overlapping geoms and returns the
// contact normal, from a towards b, with the penetration depth. It fails on
// degenerate simplices or when the expansion does not converge.
func epa(a, b *geom, s *simplex) (mgl64.Vec3, float64, bool) {
	if s.count < 4 {
		return mgl64.Vec3{}, 0, false
	}

	p := polytopePool.Get().(*polytope)
	defer polytopePool.Put(p)
	p.reset()

	p0, p1, p2, p3 := s.points[0], s.points[1], s.points[2], s.points[3]
	candidates := [4]face{
		newFace(p0, p1, p2, p3),
		newFace(p0, p2, p3, p1),
		newFace(p0, p3, p1, p2),
		newFace(p1, p3, p2, p0),
	}
	for _, f := range candidates {
		if f.distance >= epaMinDistance {
			p.faces = append(p.faces, f)
		}
	}
	if len(p.faces) < 3 {
		p.faces = append(p.faces[:0], candidates[:]...)
	}

	for i := 0; i < epaMaxIterations && len(p.faces) > 0; i++ {
		closest := p.closest()
		f := p.faces[closest]

		support := minkowskiSupport(a, b, f.normal)
		if support.Dot(f.normal)-f.distance < epaTolerance {
			return f.normal, f.distance, true
		}

		p.expand(support, closest)
	}

	return mgl64.Vec3{}, 0, false
}

// newFace builds a face whose normal points away from opposite and from the
// origin.
func newFace(a, b, c, opposite mgl64.Vec3) face {
	f := face{points: [3]mgl64.Vec3{a, b, c}}

	normal := b.Sub(a).Cross(c.Sub(a))
	length := normal.Len()
	if length < 1e-8 {
		f.normal = mgl64.Vec3{0, 0, 1}
		f.distance = epaMinDistance
		return f
	}
	normal = normal.Mul(1 / length)

	if normal.Dot(opposite.Sub(a)) > 0 {
		normal = normal.Mul(-1)
	}
	distance := a.Dot(normal)
	if distance < 0 {
		normal = normal.Mul(-1)
		distance = -distance
	}

	f.normal = snapNormal(normal)
	f.distance = math.Max(distance, epaMinDistance)

	return f
}

func (p *polytope) closest() int {
	index := 0
	for i := 1; i < len(p.faces); i++ {
		if p.faces[i].distance < p.faces[index].distance {
			index = i
		}
	}
	return index
}

func (p *polytope) centroid() mgl64.Vec3 {
	var sum mgl64.Vec3
	for _, f := range p.faces {
		sum = sum.Add(f.points[0]).Add(f.points[1]).Add(f.points[2])
	}
	return sum.Mul(1 / float64(3*len(p.faces)))
}

// expand removes the faces the support point sees and stitches the hole's
// boundary to it.
func (p *polytope) expand(support mgl64.Vec3, closest int) {
	centroid := p.centroid()

	p.visible = p.visible[:0]
	for i, f := range p.faces {
		if support.Sub(f.points[0]).Dot(f.normal) > 0 {
			p.visible = append(p.visible, i)
		}
	}
	if len(p.visible) == 0 || len(p.visible) >= len(p.faces) {
		p.visible = append(p.visible[:0], closest)
	}

	p.edges = p.edges[:0]
	for _, i := range p.visible {
		f := p.faces[i]
		p.addEdge(f.points[0], f.points[1])
		p.addEdge(f.points[1], f.points[2])
		p.addEdge(f.points[2], f.points[0])
	}

	// visible is ascending, remove from the end so swaps stay valid
	for j := len(p.visible) - 1; j >= 0; j-- {
		i := p.visible[j]
		p.faces[i] = p.faces[len(p.faces)-1]
		p.faces = p.faces[:len(p.faces)-1]
	}

	for _, e := range p.edges {
		if e.count == 1 {
			p.faces = append(p.faces, newFace(e.a, e.b, support, centroid))
		}
	}
}

func (p *polytope) addEdge(a, b mgl64.Vec3) {
	if compareVec3(a, b) > 0 {
		a, b = b, a
	}
	for i := range p.edges {
		if p.edges[i].a == a && p.edges[i].b == b {
			p.edges[i].count++
			return
		}
	}
	p.edges = append(p.edges, edge{a: a, b: b, count: 1})
}

func compareVec3(a, b mgl64.Vec3) int {
	for axis := 0; axis < 3; axis++ {
		switch {
		case a[axis] < b[axis]:
			return -1
		case a[axis] > b[axis]:
			return 1
		}
	}
	return 0
}

// snapNormal zeroes components lost in rounding so axis-aligned contacts
// report exact axis normals.
func snapNormal(n mgl64.Vec3) mgl64.Vec3 {
	const threshold = 1e-8
	for axis := 0; axis < 3; axis++ {
		if math.Abs(n[axis]) < threshold {
			n[axis] = 0
		}
	}
	if l := n.Len(); l > 1e-8 {
		return n.Mul(1 / l)
	}
	return mgl64.Vec3{0, 0, 1}
}
