package plume

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/akmonengine/plume/kernel"
	"github.com/akmonengine/plume/mass"
	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
)

// PrimState is the lifecycle state of a prim.
type PrimState uint8

const (
	// PrimNonPhysical has a collision geometry and no body.
	PrimNonPhysical PrimState = iota
	// PrimPhysical is a linkset root (or unlinked prim) owning a body.
	PrimPhysical
	// PrimChild is a linkset member whose geometry hangs off the root's body.
	PrimChild
	// PrimFrozen lost its native resources and only accepts Add and Remove.
	PrimFrozen
)

func (s PrimState) String() string {
	switch s {
	case PrimNonPhysical:
		return "non-physical"
	case PrimPhysical:
		return "physical"
	case PrimChild:
		return "child"
	case PrimFrozen:
		return "frozen"
	}
	return fmt.Sprintf("PrimState(%d)", int(s))
}

type vehicleHolder struct {
	vehicle Vehicle
}

// Prim is a rigid-body actor. Every field below baseActor belongs to the step
// goroutine.
type Prim struct {
	baseActor

	profile mass.Profile
	size    mgl64.Vec3

	position        mgl64.Vec3
	orientation     mgl64.Quat
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3
	acceleration    mgl64.Vec3

	physical     bool
	selected     bool
	disabled     bool
	volumeDetect bool
	flying       bool
	buoyancy     float64

	built   bool
	removed bool
	state   PrimState

	geom  kernel.GeomHandle
	body  kernel.BodyHandle
	motor kernel.MotorHandle
	locks taint.Axes

	own     mass.Descriptor
	linkset mass.Descriptor

	// rootID is the non-owning back-reference of a linkset member; the root
	// owns children in link order.
	rootID         uint32
	children       []*Prim
	offsetPosition mgl64.Vec3
	offsetRotation mgl64.Quat

	force      mgl64.Vec3
	torque     mgl64.Vec3
	pushForce  mgl64.Vec3
	pushTorque mgl64.Vec3
	lastForce  mgl64.Vec3
	moveTo     taint.MoveTarget
	hover      taint.HoverTarget
	vehicle    atomic.Pointer[vehicleHolder]

	crossingFailures int
	stopped          bool
	sent             sentState
}

func newPrim(scene *Scene, localID uint32, name string, position mgl64.Vec3, orientation mgl64.Quat, profile mass.Profile, size mgl64.Vec3) *Prim {
	p := &Prim{
		profile:        profile,
		size:           size,
		position:       position,
		orientation:    orientation,
		offsetRotation: mgl64.QuatIdent(),
	}
	p.init(scene, p, localID, name, position, orientation)

	return p
}

func (p *Prim) Type() ActorType { return ActorPrim }

// State, BodyHandle, GeomHandle, RootID and Children expose step goroutine
// state; read them between steps only.
func (p *Prim) State() PrimState              { return p.state }
func (p *Prim) BodyHandle() kernel.BodyHandle { return p.body }
func (p *Prim) GeomHandle() kernel.GeomHandle { return p.geom }
func (p *Prim) RootID() uint32                { return p.rootID }

func (p *Prim) Children() []uint32 {
	ids := make([]uint32, len(p.children))
	for i, c := range p.children {
		ids[i] = c.localID
	}
	return ids
}

// MassDescriptor returns the mass of the prim alone, or of the whole
// linkset for a root. Between steps only.
func (p *Prim) MassDescriptor() mass.Descriptor {
	if p.rootID == 0 && len(p.children) > 0 {
		return p.linkset
	}
	return p.own
}

func (p *Prim) SetShape(profile mass.Profile, size mgl64.Vec3) {
	p.enqueue(taint.Shape, taint.ShapeChange{Profile: profile, Size: size})
}

func (p *Prim) SetSize(size mgl64.Vec3) {
	p.enqueue(taint.Size, taint.ShapeChange{Size: size})
}

func (p *Prim) SetDisabled(disabled bool) {
	p.enqueue(taint.Disable, taint.Flag(disabled))
}

func (p *Prim) LockAngularMotion(axes taint.Axes) {
	p.enqueue(taint.AngularLock, axes)
}

func (p *Prim) MoveTo(target mgl64.Vec3, tau float64) {
	p.enqueue(taint.MoveTo, taint.MoveTarget{Active: true, Position: target, Tau: tau})
}

func (p *Prim) StopMoveTo() {
	p.enqueue(taint.MoveTo, taint.MoveTarget{})
}

func (p *Prim) SetHover(height float64, mode taint.HoverMode, tau float64) {
	p.enqueue(taint.Hover, taint.HoverTarget{Active: true, Height: height, Mode: mode, Tau: tau})
}

func (p *Prim) StopHover() {
	p.enqueue(taint.Hover, taint.HoverTarget{})
}

// SetVehicle installs the vehicle-dynamics collaborator; nil removes it.
func (p *Prim) SetVehicle(vehicle Vehicle) {
	if vehicle == nil {
		p.vehicle.Store(nil)
		return
	}
	p.vehicle.Store(&vehicleHolder{vehicle: vehicle})
}

func (p *Prim) currentVehicle() Vehicle {
	if h := p.vehicle.Load(); h != nil {
		return h.vehicle
	}
	return nil
}

// Link queues the prim, and its own children, into the linkset of parent.
func (p *Prim) Link(parent PhysicsActor) {
	if parent == nil {
		return
	}
	p.enqueue(taint.Link, taint.LinkTo{ParentID: parent.LocalID()})
}

func (p *Prim) Delink() {
	p.enqueue(taint.Delink, nil)
}

// ApplyChange applies one queued change. It runs on the step goroutine.
func (p *Prim) ApplyChange(kind taint.Kind, payload taint.Payload) error {
	switch kind {
	case taint.Add:
		return p.add()
	case taint.Remove:
		return p.remove()
	}
	if !p.built {
		return ErrNotBuilt
	}

	var err error
	switch kind {
	case taint.Position:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			err = p.setPosition(mgl64.Vec3(v))
		}
	case taint.Orientation:
		var r taint.Rotation
		if r, err = payloadAs[taint.Rotation](kind, payload); err == nil {
			err = p.setOrientation(mgl64.Quat(r))
		}
	case taint.Velocity:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			err = p.setVelocity(mgl64.Vec3(v))
		}
	case taint.Size:
		var c taint.ShapeChange
		if c, err = payloadAs[taint.ShapeChange](kind, payload); err == nil {
			err = p.reshape(p.profile, c.Size)
		}
	case taint.Shape:
		var c taint.ShapeChange
		if c, err = payloadAs[taint.ShapeChange](kind, payload); err == nil {
			err = p.reshape(c.Profile, c.Size)
		}
	case taint.Physical:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			root := p.linkRoot()
			root.physical = bool(f)
			err = root.rebuildBody()
		}
	case taint.Selected:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			err = p.linkRoot().setSelected(bool(f))
		}
	case taint.Disable:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			err = p.linkRoot().setDisabled(bool(f))
		}
	case taint.VolumeDetect:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			p.volumeDetect = bool(f)
			err = p.scene.world.GeomSetSensor(p.geom, p.volumeDetect)
		}
	case taint.Flying:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			p.linkRoot().flying = bool(f)
		}
	case taint.Buoyancy:
		var b taint.Scalar
		if b, err = payloadAs[taint.Scalar](kind, payload); err == nil {
			p.linkRoot().buoyancy = math.Min(math.Max(float64(b), -1), 1)
		}
	case taint.Force:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			p.linkRoot().force = mgl64.Vec3(v)
		}
	case taint.Torque:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			p.linkRoot().torque = mgl64.Vec3(v)
		}
	case taint.AddForce:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			root := p.linkRoot()
			root.pushForce = root.pushForce.Add(mgl64.Vec3(v))
		}
	case taint.AddAngularForce:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			root := p.linkRoot()
			root.pushTorque = root.pushTorque.Add(mgl64.Vec3(v))
		}
	case taint.AngularLock:
		var axes taint.Axes
		if axes, err = payloadAs[taint.Axes](kind, payload); err == nil {
			err = p.linkRoot().setLocks(axes)
		}
	case taint.MoveTo:
		var target taint.MoveTarget
		if target, err = payloadAs[taint.MoveTarget](kind, payload); err == nil {
			err = p.linkRoot().setMoveTo(target)
		}
	case taint.Hover:
		var target taint.HoverTarget
		if target, err = payloadAs[taint.HoverTarget](kind, payload); err == nil {
			err = p.linkRoot().setHover(target)
		}
	case taint.Link:
		var link taint.LinkTo
		if link, err = payloadAs[taint.LinkTo](kind, payload); err == nil {
			err = p.link(link.ParentID)
		}
	case taint.Delink:
		err = p.delink()
	default:
		return fmt.Errorf("prim %s: %w", kind, ErrUnsupported)
	}

	if err != nil {
		return err
	}
	p.publishLinkset()

	return nil
}

// add builds the collision geometry, and the body when physical. It is a
// no-op on a built prim and rebuilds a frozen one.
func (p *Prim) add() error {
	if p.built {
		return nil
	}
	p.frozen.Store(false)
	p.removed = false
	p.crossingFailures = 0
	p.state = PrimNonPhysical

	if err := p.createGeom(); err != nil {
		p.fail("create geometry", err)
		return err
	}
	p.built = true
	p.scene.register(p)

	if err := p.linkRoot().rebuildBody(); err != nil {
		p.fail("create body", err)
		return err
	}
	p.publishLinkset()

	return nil
}

// remove destroys the prim's native resources and unregisters it. Removing a
// root promotes its first child.
func (p *Prim) remove() error {
	if p.removed {
		return nil
	}
	rebuild := p.leaveLinkset()
	p.teardown()
	p.built = false
	p.removed = true
	p.scene.unregister(p)

	for _, r := range rebuild {
		if err := r.rebuildBody(); err != nil {
			r.fail("rebuild after remove", err)
		}
		r.publishLinkset()
	}

	return nil
}

// fail freezes the prim after a native failure or an unrecoverable state,
// tears down its resources and reports it to the scene. A failing root
// takes its whole linkset down since they share one body.
func (p *Prim) fail(reason string, err error) {
	members := []*Prim{p}
	if p.rootID == 0 {
		members = append(members, p.children...)
	} else {
		for _, r := range p.leaveLinkset() {
			if rerr := r.rebuildBody(); rerr != nil {
				log.Printf("Prim %d: rebuild after member failure: %v", r.localID, rerr)
			}
		}
	}

	for _, m := range members {
		if err != nil {
			log.Printf("Prim %d: %s: %v, frozen", m.localID, reason, err)
		} else {
			log.Printf("Prim %d: %s, frozen", m.localID, reason)
		}
		m.frozen.Store(true)
		m.teardown()
		m.built = false
		m.state = PrimFrozen
		m.velocity = mgl64.Vec3{}
		m.angularVelocity = mgl64.Vec3{}
		m.acceleration = mgl64.Vec3{}
		m.publishState()
		m.scene.events.emit(OutOfBoundsEvent{ActorID: m.localID, Position: m.position, Reason: reason})
	}
}

func (p *Prim) teardown() {
	w := p.scene.world
	if err := p.destroyBody(); err != nil {
		log.Printf("Prim %d: destroy body: %v", p.localID, err)
	}
	if p.geom != 0 {
		if err := p.scene.waitSpace(); err != nil {
			log.Printf("Prim %d: destroy geometry: %v", p.localID, err)
			return
		}
		if err := w.DestroyGeom(p.geom); err != nil {
			log.Printf("Prim %d: destroy geometry: %v", p.localID, err)
		}
		p.scene.unregisterGeom(p.geom)
		p.geom = 0
	}
}

// createGeom builds the collision geometry from the profile, or from the
// mesher for shapes that are neither a box nor a sphere, and computes the
// prim's own mass.
func (p *Prim) createGeom() error {
	s := p.scene
	w := s.world
	cfg := s.cfg()

	size := mass.ClampSize(p.size)
	if size != p.size {
		log.Printf("Prim %d: size %v clamped to %v", p.localID, p.size, size)
		p.size = size
	}

	if err := s.waitSpace(); err != nil {
		return err
	}

	var g kernel.GeomHandle
	var err error
	switch {
	case !p.profile.Mesh && p.profile.IsBox():
		g, err = w.CreateBox(size)
	case !p.profile.Mesh && p.profile.IsSphere() && size.X() == size.Y() && size.Y() == size.Z():
		g, err = w.CreateSphere(size.X() / 2)
	default:
		g, err = p.createMeshGeom(size)
	}
	if err != nil {
		return err
	}

	p.geom = g
	s.registerGeom(g, p.localID, p.name)

	if err := w.GeomSetData(g, p.localID); err != nil {
		return err
	}
	if err := w.GeomSetSensor(g, p.volumeDetect); err != nil {
		return err
	}
	if err := w.GeomSetPosition(g, p.position); err != nil {
		return err
	}
	if err := w.GeomSetRotation(g, p.orientation); err != nil {
		return err
	}

	limits := mass.Limits{Minimum: cfg.Prim.MinimumMass, Maximum: cfg.Prim.MaximumMass}
	p.own = mass.Compute(p.profile, size, cfg.Prim.Density, limits)

	return nil
}

// createMeshGeom asks the mesher for a trimesh and falls back to the
// bounding box when there is none.
func (p *Prim) createMeshGeom(size mgl64.Vec3) (kernel.GeomHandle, error) {
	w := p.scene.world
	mesher := p.scene.currentMesher()
	if mesher == nil {
		log.Printf("Prim %d: no mesher for %s profile, using a box", p.localID, p.profile.Base)
		return w.CreateBox(size)
	}

	mesh, err := mesher.CreateMesh(p.name, p.profile, size)
	if err != nil || mesh == nil {
		log.Printf("Prim %d: mesh failed (%v), using a box", p.localID, err)
		return w.CreateBox(size)
	}

	g, err := w.CreateTriMesh(mesh.GetVertices(), mesh.GetIndices())
	if err != nil {
		log.Printf("Prim %d: trimesh rejected (%v), using a box", p.localID, err)
		return w.CreateBox(size)
	}
	return g, nil
}

// reshape replaces the geometry and rebuilds the linkset body. Applying the
// same shape twice yields the same geometry and mass.
func (p *Prim) reshape(profile mass.Profile, size mgl64.Vec3) error {
	root := p.linkRoot()
	if err := root.destroyBody(); err != nil {
		return err
	}

	if p.geom != 0 {
		if err := p.scene.waitSpace(); err != nil {
			return err
		}
		if err := p.scene.world.DestroyGeom(p.geom); err != nil {
			return err
		}
		p.scene.unregisterGeom(p.geom)
		p.geom = 0
	}

	p.profile = profile
	p.size = size
	if err := p.createGeom(); err != nil {
		p.fail("reshape", err)
		return err
	}

	return root.rebuildBody()
}

func (p *Prim) setPosition(v mgl64.Vec3) error {
	p.position = v
	p.crossingFailures = 0
	p.stopped = false

	if p.rootID != 0 {
		root := p.linkRoot()
		p.offsetPosition, p.offsetRotation = relativePose(root, p)
		return root.rebuildBody()
	}
	if p.body != 0 {
		return p.scene.world.BodySetPosition(p.body, p.bodyOrigin(v, p.orientation))
	}
	return p.placeStatic()
}

func (p *Prim) setOrientation(q mgl64.Quat) error {
	if q.Len() == 0 {
		return fmt.Errorf("orientation %v: %w", q, ErrBadPayload)
	}
	p.orientation = q.Normalize()
	p.stopped = false

	if p.rootID != 0 {
		root := p.linkRoot()
		p.offsetPosition, p.offsetRotation = relativePose(root, p)
		return root.rebuildBody()
	}
	if p.body != 0 {
		if err := p.scene.world.BodySetRotation(p.body, p.orientation); err != nil {
			return err
		}
		// keep the root in place, the body turns about the center of mass
		return p.scene.world.BodySetPosition(p.body, p.bodyOrigin(p.position, p.orientation))
	}
	return p.placeStatic()
}

func (p *Prim) setVelocity(v mgl64.Vec3) error {
	root := p.linkRoot()
	root.velocity = v
	root.stopped = false
	if root.body != 0 && !root.selected && !root.disabled {
		return p.scene.world.BodySetLinearVel(root.body, v)
	}
	return nil
}

// setSelected soft-disables a physical linkset while selected and restores
// its collision categories when deselected.
func (p *Prim) setSelected(selected bool) error {
	p.selected = selected
	w := p.scene.world

	if p.body != 0 {
		if selected {
			p.velocity = mgl64.Vec3{}
			p.angularVelocity = mgl64.Vec3{}
			if err := w.BodyDisable(p.body); err != nil {
				return err
			}
		} else if !p.disabled {
			if err := w.BodyEnable(p.body); err != nil {
				return err
			}
		}
	}

	return p.applyCategories()
}

func (p *Prim) setDisabled(disabled bool) error {
	p.disabled = disabled
	if p.body == 0 {
		return nil
	}
	if disabled {
		return p.scene.world.BodyDisable(p.body)
	}
	if !p.selected {
		return p.scene.world.BodyEnable(p.body)
	}
	return nil
}

func (p *Prim) setLocks(axes taint.Axes) error {
	p.locks = axes
	if p.body == 0 {
		return nil
	}
	return p.refreshMotor()
}

// refreshMotor creates the angular motor when an axis is locked and destroys
// it when none is.
func (p *Prim) refreshMotor() error {
	w := p.scene.world
	locked := p.locks.X || p.locks.Y || p.locks.Z

	if !locked {
		if p.motor != 0 {
			err := w.DestroyMotor(p.motor)
			p.motor = 0
			return err
		}
		return nil
	}

	if p.motor == 0 {
		m, err := w.CreateAngularMotor(p.body)
		if err != nil {
			return err
		}
		p.motor = m
	}
	return w.MotorSetLockedAxes(p.motor, p.locks.X, p.locks.Y, p.locks.Z)
}

func (p *Prim) setMoveTo(target taint.MoveTarget) error {
	p.moveTo = target
	if target.Active {
		p.hover = taint.HoverTarget{}
		p.stopped = false
		if p.body != 0 && !p.selected && !p.disabled {
			return p.scene.world.BodyEnable(p.body)
		}
	}
	return nil
}

func (p *Prim) setHover(target taint.HoverTarget) error {
	p.hover = target
	if target.Active {
		p.moveTo = taint.MoveTarget{}
		p.stopped = false
		if p.body != 0 && !p.selected && !p.disabled {
			return p.scene.world.BodyEnable(p.body)
		}
	}
	return nil
}

// publishState copies the prim's state for other goroutines.
func (p *Prim) publishState() {
	root := p.linkRoot()
	m := p.own.Mass
	if root == p {
		m = p.linkset.Mass
	}

	p.publish(func(s *actorState) {
		s.position = p.position
		s.orientation = p.orientation
		s.velocity = p.velocity
		s.angularVelocity = p.angularVelocity
		s.acceleration = p.acceleration
		s.mass = m
		s.physical = root.physical
		s.selected = root.selected
		s.flying = root.flying
		s.volumeDetect = p.volumeDetect
		s.colliding = p.colliding
		s.collidingGround = p.collidingGround
		s.collidingObj = p.collidingObj
		s.stopped = root.stopped
	})
}

func (p *Prim) publishLinkset() {
	root := p.linkRoot()
	root.publishState()
	for _, c := range root.children {
		c.publishState()
	}
}
