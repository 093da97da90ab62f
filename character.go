package plume

import (
	"fmt"
	"log"
	"math"

	"github.com/akmonengine/plume/kernel"
	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
)

// Regime is the locomotion regime of a character for the current step.
type Regime uint8

const (
	Grounded Regime = iota
	Falling
	Flying
	Underwater
	Stopped
)

func (r Regime) String() string {
	switch r {
	case Grounded:
		return "grounded"
	case Falling:
		return "falling"
	case Flying:
		return "flying"
	case Underwater:
		return "underwater"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("Regime(%d)", int(r))
}

// minimumCapsuleLength replaces the cylinder length of a capsule whose
// height leaves no room between the caps.
const minimumCapsuleLength = 0.01

// Character is an upright capsule driven by a target velocity. Fields below
// baseActor belong to the step goroutine.
type Character struct {
	baseActor

	height float64
	radius float64
	length float64
	mass   float64

	position     mgl64.Vec3
	orientation  mgl64.Quat
	velocity     mgl64.Vec3
	acceleration mgl64.Vec3
	target       mgl64.Vec3

	flying       bool
	selected     bool
	volumeDetect bool
	buoyancy     float64

	force     mgl64.Vec3
	pushForce mgl64.Vec3
	lastForce mgl64.Vec3

	built   bool
	removed bool

	geom  kernel.GeomHandle
	body  kernel.BodyHandle
	motor kernel.MotorHandle

	regime     Regime
	nearGround bool
	treading   bool
	stopped    bool
	stopSent   bool
	sent       sentState
}

func newCharacter(scene *Scene, localID uint32, name string, position mgl64.Vec3, height float64, flying bool) *Character {
	c := &Character{
		height:      height,
		position:    position,
		orientation: mgl64.QuatIdent(),
		flying:      flying,
	}
	c.init(scene, c, localID, name, position, c.orientation)
	c.publish(func(s *actorState) {
		s.physical = true
		s.flying = flying
	})

	return c
}

func (c *Character) Type() ActorType { return ActorCharacter }

// Regime, Treading, LastForce and BodyHandle expose step goroutine state;
// read them between steps only.
func (c *Character) Regime() Regime                { return c.regime }
func (c *Character) Treading() bool                { return c.treading }
func (c *Character) LastForce() mgl64.Vec3         { return c.lastForce }
func (c *Character) BodyHandle() kernel.BodyHandle { return c.body }
func (c *Character) GeomHandle() kernel.GeomHandle { return c.geom }
func (c *Character) Height() float64               { return c.height }

// SetHeight resizes the capsule.
func (c *Character) SetHeight(height float64) {
	c.enqueue(taint.Size, taint.ShapeChange{Size: mgl64.Vec3{0, 0, height}})
}

// ApplyChange applies one queued change. It runs on the step goroutine.
func (c *Character) ApplyChange(kind taint.Kind, payload taint.Payload) error {
	switch kind {
	case taint.Add:
		return c.add()
	case taint.Remove:
		return c.remove()
	}
	if !c.built {
		return ErrNotBuilt
	}

	var err error
	switch kind {
	case taint.Position:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			err = c.setPosition(mgl64.Vec3(v))
		}
	case taint.Orientation:
		var r taint.Rotation
		if r, err = payloadAs[taint.Rotation](kind, payload); err == nil {
			c.orientation = mgl64.Quat(r).Normalize()
		}
	case taint.Velocity:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			c.target = mgl64.Vec3(v)
		}
	case taint.Size:
		var s taint.ShapeChange
		if s, err = payloadAs[taint.ShapeChange](kind, payload); err == nil {
			err = c.resize(s.Size.Z())
		}
	case taint.Flying:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			c.flying = bool(f)
		}
	case taint.Selected:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			err = c.setSelected(bool(f))
		}
	case taint.Buoyancy:
		var b taint.Scalar
		if b, err = payloadAs[taint.Scalar](kind, payload); err == nil {
			c.buoyancy = math.Min(math.Max(float64(b), -1), 1)
		}
	case taint.Force:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			c.force = mgl64.Vec3(v)
		}
	case taint.AddForce:
		var v taint.Vector
		if v, err = payloadAs[taint.Vector](kind, payload); err == nil {
			c.pushForce = c.pushForce.Add(mgl64.Vec3(v))
		}
	case taint.VolumeDetect:
		var f taint.Flag
		if f, err = payloadAs[taint.Flag](kind, payload); err == nil {
			c.volumeDetect = bool(f)
			if c.geom != 0 {
				err = c.scene.world.GeomSetSensor(c.geom, c.volumeDetect)
			}
		}
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return err
	}

	c.publishState()
	return nil
}

// capsule returns the radius and cylinder length for a height, substituting
// safe values for invalid dimensions.
func (c *Character) capsule(height float64) (float64, float64, float64) {
	cfg := c.scene.cfg().Avatar
	radius := cfg.CapsuleRadius

	if !finite(height) || height <= 0 {
		log.Printf("Character %d: invalid height %v, using %v", c.localID, height, cfg.Height)
		height = cfg.Height
	}
	length := height - 2*radius
	if length < minimumCapsuleLength {
		log.Printf("Character %d: height %v too small for radius %v, using the minimum capsule", c.localID, height, radius)
		length = minimumCapsuleLength
		height = length + 2*radius
	}

	return height, radius, length
}

func capsuleVolume(radius, length float64) float64 {
	return math.Pi*radius*radius*length + 4.0/3.0*math.Pi*radius*radius*radius
}

// capsuleInertia approximates the capsule by a solid cylinder of the full
// height.
func capsuleInertia(m, radius, height float64) mgl64.Mat3 {
	side := m * (3*radius*radius + height*height) / 12
	return mgl64.Diag3(mgl64.Vec3{side, side, m * radius * radius / 2})
}

func (c *Character) add() error {
	if c.built {
		return nil
	}
	c.frozen.Store(false)
	c.removed = false
	c.stopped = false
	c.stopSent = false
	c.sent = sentState{}

	if err := c.build(); err != nil {
		c.defect("create body", err)
		return err
	}
	c.built = true
	c.scene.register(c)
	c.publishState()

	return nil
}

// build creates the capsule geometry, its body and the motor holding it
// upright.
func (c *Character) build() error {
	s := c.scene
	w := s.world
	cfg := s.cfg().Avatar

	c.height, c.radius, c.length = c.capsule(c.height)
	c.mass = cfg.Density * capsuleVolume(c.radius, c.length)

	if err := s.waitSpace(); err != nil {
		return err
	}
	g, err := w.CreateCapsule(c.radius, c.length)
	if err != nil {
		return err
	}
	c.geom = g
	s.registerGeom(g, c.localID, c.name)

	c.body = w.CreateBody()
	steps := []func() error{
		func() error { return w.GeomSetData(g, c.localID) },
		func() error { return w.GeomSetSensor(g, c.volumeDetect) },
		func() error { return w.BodySetPosition(c.body, c.position) },
		func() error {
			return w.BodySetMass(c.body, kernel.MassData{Mass: c.mass, Inertia: capsuleInertia(c.mass, c.radius, c.height)})
		},
		func() error { return w.BodySetGravityMode(c.body, false) },
		func() error { return w.BodySetAutoDisable(c.body, 0, 0, 0) },
		func() error { return w.GeomSetBody(g, c.body) },
		func() error { return w.BodySetLinearVel(c.body, c.velocity) },
		func() error {
			m, err := w.CreateAngularMotor(c.body)
			if err != nil {
				return err
			}
			c.motor = m
			return w.MotorSetLockedAxes(m, true, true, true)
		},
		c.applyCategories,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Character) remove() error {
	if c.removed {
		return nil
	}
	c.teardown()
	c.built = false
	c.removed = true
	c.scene.unregister(c)

	return nil
}

// teardown releases the native handles.
func (c *Character) teardown() {
	s := c.scene
	w := s.world

	if err := s.waitSpace(); err != nil {
		log.Printf("Character %d: teardown: %v", c.localID, err)
		return
	}
	if c.body != 0 {
		if err := w.DestroyBody(c.body); err != nil {
			log.Printf("Character %d: destroy body: %v", c.localID, err)
		}
		c.body = 0
		c.motor = 0
	}
	if c.geom != 0 {
		if err := w.DestroyGeom(c.geom); err != nil {
			log.Printf("Character %d: destroy geometry: %v", c.localID, err)
		}
		s.unregisterGeom(c.geom)
		c.geom = 0
	}
}

// defect freezes the character after a native failure or a non-finite
// force. The scene has to remove and recreate it.
func (c *Character) defect(reason string, err error) {
	if err != nil {
		log.Printf("Character %d: %s: %v, defective", c.localID, reason, err)
	} else {
		log.Printf("Character %d: %s, defective", c.localID, reason)
	}
	c.frozen.Store(true)
	c.teardown()
	c.built = false
	c.velocity = mgl64.Vec3{}
	c.acceleration = mgl64.Vec3{}
	c.publishState()
	c.scene.events.emit(DefectEvent{ActorID: c.localID, Reason: reason})
}

func (c *Character) resize(height float64) error {
	if height == c.height && c.body != 0 {
		return nil
	}
	c.teardown()
	c.height = height
	if err := c.build(); err != nil {
		c.defect("resize", err)
		return err
	}
	return nil
}

func (c *Character) setPosition(v mgl64.Vec3) error {
	c.position = v
	c.velocity = mgl64.Vec3{}
	c.stopped = false
	if err := c.scene.world.BodySetPosition(c.body, v); err != nil {
		return err
	}
	return c.scene.world.BodySetLinearVel(c.body, mgl64.Vec3{})
}

func (c *Character) setSelected(selected bool) error {
	c.selected = selected
	if selected {
		c.velocity = mgl64.Vec3{}
		if err := c.scene.world.BodySetLinearVel(c.body, mgl64.Vec3{}); err != nil {
			return err
		}
	}
	return c.applyCategories()
}

func (c *Character) applyCategories() error {
	if c.selected {
		return c.scene.world.GeomSetCategory(c.geom, kernel.CategorySelected, kernel.CategoryNone)
	}
	return c.scene.world.GeomSetCategory(c.geom, kernel.CategoryCharacter, kernel.CategoryAll)
}

func (c *Character) publishState() {
	c.publish(func(s *actorState) {
		s.position = c.position
		s.orientation = c.orientation
		s.velocity = c.velocity
		s.acceleration = c.acceleration
		s.angularVelocity = mgl64.Vec3{}
		s.mass = c.mass
		s.physical = true
		s.selected = c.selected
		s.flying = c.flying
		s.volumeDetect = c.volumeDetect
		s.colliding = c.colliding
		s.collidingGround = c.collidingGround || c.nearGround
		s.collidingObj = c.collidingObj
		s.stopped = c.stopped
	})
}
