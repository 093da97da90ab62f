package kernel

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeType represents the type of collision shape
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypeBox
	ShapeTypeCapsule
	ShapeTypeTriMesh
)

func (s ShapeType) String() string {
	switch s {
	case ShapeTypeSphere:
		return "sphere"
	case ShapeTypeBox:
		return "box"
	case ShapeTypeCapsule:
		return "capsule"
	case ShapeTypeTriMesh:
		return "trimesh"
	}
	return fmt.Sprintf("ShapeType(%d)", int(s))
}

type geom struct {
	handle GeomHandle
	shape  ShapeType

	halfExtents mgl64.Vec3 // box
	radius      float64    // sphere, capsule
	length      float64    // capsule cylinder length, along local Z
	vertices    []mgl64.Vec3
	indices     []int
	localBounds AABB

	body      BodyHandle
	offset    Transform // relative to the body when attached
	transform Transform // world
	aabb      AABB

	category uint32
	collide  uint32
	sensor   bool
	data     uint32
}

func (g *geom) computeAABB() {
	switch g.shape {
	case ShapeTypeSphere:
		r := mgl64.Vec3{g.radius, g.radius, g.radius}
		g.aabb = AABB{Min: g.transform.Position.Sub(r), Max: g.transform.Position.Add(r)}
	case ShapeTypeCapsule:
		a, b := g.segment()
		r := mgl64.Vec3{g.radius, g.radius, g.radius}
		g.aabb = AABB{
			Min: mgl64.Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}.Sub(r),
			Max: mgl64.Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}.Add(r),
		}
	default:
		g.aabb = boundsOfCorners(g.localBounds, g.transform)
	}
}

// segment returns the world-space core segment of a round shape; a sphere
// degenerates to a point.
func (g *geom) segment() (mgl64.Vec3, mgl64.Vec3) {
	if g.shape != ShapeTypeCapsule {
		return g.transform.Position, g.transform.Position
	}
	half := g.transform.Rotation.Rotate(mgl64.Vec3{0, 0, g.length / 2})
	return g.transform.Position.Sub(half), g.transform.Position.Add(half)
}

func (g *geom) round() bool {
	return g.shape == ShapeTypeSphere || g.shape == ShapeTypeCapsule
}

func (w *World) geom(h GeomHandle) (*geom, error) {
	g, ok := w.geoms[h]
	if !ok {
		return nil, fmt.Errorf("geom %d: %w", h, ErrInvalidHandle)
	}
	return g, nil
}

func (w *World) addGeom(g *geom) (GeomHandle, error) {
	if w.space.Locked() {
		return 0, ErrSpaceLocked
	}
	g.handle = GeomHandle(w.allocate())
	g.transform = NewTransform()
	g.offset = NewTransform()
	g.category = CategoryStatic
	g.collide = CategoryAll
	g.computeAABB()
	w.geoms[g.handle] = g
	w.space.insert(g)

	return g.handle, nil
}

func positive(values ...float64) bool {
	for _, v := range values {
		if !finite(v) || v <= 0 {
			return false
		}
	}
	return true
}

// CreateBox creates a box geom with the given full size.
func (w *World) CreateBox(size mgl64.Vec3) (GeomHandle, error) {
	if !positive(size[0], size[1], size[2]) {
		return 0, fmt.Errorf("box %v: %w", size, ErrBadDimension)
	}
	half := size.Mul(0.5)
	return w.addGeom(&geom{
		shape:       ShapeTypeBox,
		halfExtents: half,
		localBounds: AABB{Min: half.Mul(-1), Max: half},
	})
}

func (w *World) CreateSphere(radius float64) (GeomHandle, error) {
	if !positive(radius) {
		return 0, fmt.Errorf("sphere radius %v: %w", radius, ErrBadDimension)
	}
	r := mgl64.Vec3{radius, radius, radius}
	return w.addGeom(&geom{
		shape:       ShapeTypeSphere,
		radius:      radius,
		localBounds: AABB{Min: r.Mul(-1), Max: r},
	})
}

// CreateCapsule creates a capsule aligned with the local Z axis; length is
// the cylinder part, excluding the hemispherical caps.
func (w *World) CreateCapsule(radius, length float64) (GeomHandle, error) {
	if !positive(radius) || !finite(length) || length < 0 {
		return 0, fmt.Errorf("capsule %v/%v: %w", radius, length, ErrBadDimension)
	}
	extent := mgl64.Vec3{radius, radius, radius + length/2}
	return w.addGeom(&geom{
		shape:       ShapeTypeCapsule,
		radius:      radius,
		length:      length,
		localBounds: AABB{Min: extent.Mul(-1), Max: extent},
	})
}

// CreateTriMesh creates a triangle mesh geom. Meshes collide as the convex
// hull of their vertices.
func (w *World) CreateTriMesh(vertices []mgl64.Vec3, indices []int) (GeomHandle, error) {
	if len(vertices) == 0 || len(indices) < 3 || len(indices)%3 != 0 {
		return 0, fmt.Errorf("trimesh with %d vertices and %d indices: %w", len(vertices), len(indices), ErrBadDimension)
	}
	for _, i := range indices {
		if i < 0 || i >= len(vertices) {
			return 0, fmt.Errorf("trimesh index %d out of range: %w", i, ErrBadDimension)
		}
	}

	for _, v := range vertices {
		if !finiteVec(v) {
			return 0, fmt.Errorf("trimesh vertex %v: %w", v, ErrNonFinite)
		}
	}

	bounds := AABB{Min: vertices[0], Max: vertices[0]}
	for _, v := range vertices[1:] {
		for axis := 0; axis < 3; axis++ {
			bounds.Min[axis] = math.Min(bounds.Min[axis], v[axis])
			bounds.Max[axis] = math.Max(bounds.Max[axis], v[axis])
		}
	}

	return w.addGeom(&geom{
		shape:       ShapeTypeTriMesh,
		vertices:    append([]mgl64.Vec3(nil), vertices...),
		indices:     append([]int(nil), indices...),
		localBounds: bounds,
	})
}

// DestroyGeom detaches the geom from its body and removes it from the space.
func (w *World) DestroyGeom(h GeomHandle) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	if w.space.Locked() {
		return ErrSpaceLocked
	}
	if b, ok := w.bodies[g.body]; ok {
		b.geoms = removeHandle(b.geoms, h)
	}
	w.space.remove(g)
	delete(w.geoms, h)

	return nil
}

// GeomSetBody attaches the geom to a body with an identity offset, or
// detaches it when b is the nil handle.
func (w *World) GeomSetBody(h GeomHandle, bh BodyHandle) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	if old, ok := w.bodies[g.body]; ok {
		g.transform = old.transform.Compose(g.offset)
		old.geoms = removeHandle(old.geoms, h)
	}
	g.body = 0
	g.offset = NewTransform()

	if bh != 0 {
		b, err := w.body(bh)
		if err != nil {
			return err
		}
		g.body = bh
		b.geoms = append(b.geoms, h)
		g.transform = b.transform
	}
	g.computeAABB()

	return nil
}

// GeomSetOffset places an attached geom relative to its body.
func (w *World) GeomSetOffset(h GeomHandle, position mgl64.Vec3, rotation mgl64.Quat) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	b, err := w.body(g.body)
	if err != nil {
		return err
	}
	if !finiteVec(position) || !finiteQuat(rotation) {
		return fmt.Errorf("geom %d offset: %w", h, ErrNonFinite)
	}
	g.offset = Transform{Position: position, Rotation: rotation.Normalize()}
	g.transform = b.transform.Compose(g.offset)
	g.computeAABB()

	return nil
}

// GeomSetPosition moves a geom that is not attached to a body.
func (w *World) GeomSetPosition(h GeomHandle, p mgl64.Vec3) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	if g.body != 0 {
		return ErrGeomAttached
	}
	if !finiteVec(p) {
		return fmt.Errorf("geom %d position: %w", h, ErrNonFinite)
	}
	g.transform.Position = p
	g.computeAABB()

	return nil
}

func (w *World) GeomSetRotation(h GeomHandle, q mgl64.Quat) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	if g.body != 0 {
		return ErrGeomAttached
	}
	if !finiteQuat(q) || q.Len() == 0 {
		return fmt.Errorf("geom %d rotation: %w", h, ErrNonFinite)
	}
	g.transform.Rotation = q.Normalize()
	g.computeAABB()

	return nil
}

// GeomTransform returns the world transform of the geom.
func (w *World) GeomTransform(h GeomHandle) (Transform, error) {
	g, err := w.geom(h)
	if err != nil {
		return Transform{}, err
	}
	return g.transform, nil
}

func (w *World) GeomBody(h GeomHandle) (BodyHandle, error) {
	g, err := w.geom(h)
	if err != nil {
		return 0, err
	}
	return g.body, nil
}

func (w *World) GeomAABB(h GeomHandle) (AABB, error) {
	g, err := w.geom(h)
	if err != nil {
		return AABB{}, err
	}
	return g.aabb, nil
}

func (w *World) GeomShape(h GeomHandle) (ShapeType, error) {
	g, err := w.geom(h)
	if err != nil {
		return 0, err
	}
	return g.shape, nil
}

// GeomSetCategory sets the category bits of the geom and the mask of
// categories it collides with. Two geoms collide when each one's category
// overlaps the other's mask.
func (w *World) GeomSetCategory(h GeomHandle, category, collide uint32) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	g.category = category
	g.collide = collide

	return nil
}

// GeomSetSensor marks the geom as a sensor: contacts are reported but
// never resolved.
func (w *World) GeomSetSensor(h GeomHandle, sensor bool) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	g.sensor = sensor

	return nil
}

func (w *World) GeomIsSensor(h GeomHandle) (bool, error) {
	g, err := w.geom(h)
	if err != nil {
		return false, err
	}
	return g.sensor, nil
}

// GeomSetData stores an opaque user value, typically the owner's local id.
func (w *World) GeomSetData(h GeomHandle, data uint32) error {
	g, err := w.geom(h)
	if err != nil {
		return err
	}
	g.data = data

	return nil
}

func (w *World) GeomData(h GeomHandle) (uint32, error) {
	g, err := w.geom(h)
	if err != nil {
		return 0, err
	}
	return g.data, nil
}

func (w *World) refreshBodyGeoms(b *body) {
	for _, gh := range b.geoms {
		if g, ok := w.geoms[gh]; ok {
			g.transform = b.transform.Compose(g.offset)
			g.computeAABB()
		}
	}
}

func removeHandle[T ~uint32](handles []T, h T) []T {
	for i, other := range handles {
		if other == h {
			return append(handles[:i], handles[i+1:]...)
		}
	}
	return handles
}
