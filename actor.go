package plume

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

var (
	// ErrUnsupported is returned by ApplyChange for kinds an actor does not handle.
	ErrUnsupported = errors.New("plume: change not supported by actor")
	ErrBadPayload  = errors.New("plume: unexpected payload")
	ErrNotBuilt    = errors.New("plume: actor is not in the scene")
)

type ActorType uint8

const (
	ActorPrim ActorType = iota
	ActorCharacter
)

func (t ActorType) String() string {
	switch t {
	case ActorPrim:
		return "prim"
	case ActorCharacter:
		return "character"
	}
	return fmt.Sprintf("ActorType(%d)", int(t))
}

// PhysicsActor is the contract the scene programs against. Getters return the
// state published by the last step and are safe from any goroutine. Setters
// and commands are queued and applied at the start of the next step; invalid
// values are logged and dropped.
type PhysicsActor interface {
	LocalID() uint32
	UUID() uuid.UUID
	Name() string
	Type() ActorType

	Position() mgl64.Vec3
	SetPosition(position mgl64.Vec3)
	Orientation() mgl64.Quat
	SetOrientation(orientation mgl64.Quat)
	// Velocity is the body velocity. For characters SetVelocity sets the
	// target walking velocity.
	Velocity() mgl64.Vec3
	SetVelocity(velocity mgl64.Vec3)
	AngularVelocity() mgl64.Vec3
	Acceleration() mgl64.Vec3
	Mass() float64

	IsPhysical() bool
	SetPhysical(physical bool)
	IsSelected() bool
	SetSelected(selected bool)
	IsFlying() bool
	SetFlying(flying bool)
	IsVolumeDetect() bool
	SetVolumeDetect(volumeDetect bool)
	IsColliding() bool
	CollidingGround() bool
	CollidingObj() bool
	IsStopped() bool
	IsFrozen() bool

	SetBuoyancy(buoyancy float64)
	AddForce(force mgl64.Vec3)
	AddAngularForce(torque mgl64.Vec3)
	SetMovementForce(force mgl64.Vec3)
	SetTorque(torque mgl64.Vec3)
	LockAngularMotion(axes taint.Axes)

	MoveTo(target mgl64.Vec3, tau float64)
	StopMoveTo()
	SetHover(height float64, mode taint.HoverMode, tau float64)
	StopHover()
	SetVehicle(vehicle Vehicle)

	Link(parent PhysicsActor)
	Delink()

	SubscribeEvents(intervalMs int)
	UnSubscribeEvents()
	SubscribedEvents() bool
}

// stepActor is the step-goroutine side of an actor.
type stepActor interface {
	PhysicsActor
	taint.Target

	move(dt float64)
	updatePositionAndVelocity(dt float64)
	sendCollisions(now float64)
	addCollision(other uint32, point, normal mgl64.Vec3, ground bool)
	clearCollisions()
}

// actorState is the copy of an actor's kinematics published to other
// goroutines at the end of each step.
type actorState struct {
	position        mgl64.Vec3
	orientation     mgl64.Quat
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3
	acceleration    mgl64.Vec3
	mass            float64

	physical        bool
	selected        bool
	flying          bool
	volumeDetect    bool
	colliding       bool
	collidingGround bool
	collidingObj    bool
	stopped         bool
}

// baseActor carries what prims and characters share: identity, the published
// state, the collision aggregator and the no-op defaults of the commands only
// prims implement.
type baseActor struct {
	localID uint32
	uuid    uuid.UUID
	name    string
	scene   *Scene
	self    taint.Target

	mu    sync.RWMutex
	state actorState

	frozen atomic.Bool

	collisions collisionAggregator

	// colliding flags of the current step, published by updatePositionAndVelocity
	colliding       bool
	collidingGround bool
	collidingObj    bool
}

func (a *baseActor) init(scene *Scene, self taint.Target, localID uint32, name string, position mgl64.Vec3, orientation mgl64.Quat) {
	a.localID = localID
	a.uuid = uuid.New()
	a.name = name
	a.scene = scene
	a.self = self
	a.state = actorState{
		position:    position,
		orientation: orientation,
	}
}

func (a *baseActor) LocalID() uint32 { return a.localID }
func (a *baseActor) UUID() uuid.UUID { return a.uuid }
func (a *baseActor) Name() string    { return a.name }
func (a *baseActor) IsFrozen() bool  { return a.frozen.Load() }

func (a *baseActor) read() actorState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *baseActor) publish(fn func(s *actorState)) {
	a.mu.Lock()
	fn(&a.state)
	a.mu.Unlock()
}

func (a *baseActor) Position() mgl64.Vec3        { return a.read().position }
func (a *baseActor) Orientation() mgl64.Quat     { return a.read().orientation }
func (a *baseActor) Velocity() mgl64.Vec3        { return a.read().velocity }
func (a *baseActor) AngularVelocity() mgl64.Vec3 { return a.read().angularVelocity }
func (a *baseActor) Acceleration() mgl64.Vec3    { return a.read().acceleration }
func (a *baseActor) Mass() float64               { return a.read().mass }
func (a *baseActor) IsPhysical() bool            { return a.read().physical }
func (a *baseActor) IsSelected() bool            { return a.read().selected }
func (a *baseActor) IsFlying() bool              { return a.read().flying }
func (a *baseActor) IsVolumeDetect() bool        { return a.read().volumeDetect }
func (a *baseActor) IsColliding() bool           { return a.read().colliding }
func (a *baseActor) CollidingGround() bool       { return a.read().collidingGround }
func (a *baseActor) CollidingObj() bool          { return a.read().collidingObj }
func (a *baseActor) IsStopped() bool             { return a.read().stopped }

// enqueue posts a change for the actor. Rejections are logged by the queue
// or here; the caller never sees them.
func (a *baseActor) enqueue(kind taint.Kind, payload taint.Payload) {
	if err := a.scene.queue.Enqueue(a.self, kind, payload); err != nil && !errors.Is(err, taint.ErrNonFinite) {
		log.Printf("Actor %d: %s dropped: %v", a.localID, kind, err)
	}
}

func (a *baseActor) SetPosition(position mgl64.Vec3) {
	a.enqueue(taint.Position, taint.Vector(position))
}

func (a *baseActor) SetOrientation(orientation mgl64.Quat) {
	a.enqueue(taint.Orientation, taint.Rotation(orientation))
}

func (a *baseActor) SetVelocity(velocity mgl64.Vec3) {
	a.enqueue(taint.Velocity, taint.Vector(velocity))
}

func (a *baseActor) SetPhysical(physical bool) {
	a.enqueue(taint.Physical, taint.Flag(physical))
}

func (a *baseActor) SetSelected(selected bool) {
	a.enqueue(taint.Selected, taint.Flag(selected))
}

func (a *baseActor) SetFlying(flying bool) {
	a.enqueue(taint.Flying, taint.Flag(flying))
}

func (a *baseActor) SetVolumeDetect(volumeDetect bool) {
	a.enqueue(taint.VolumeDetect, taint.Flag(volumeDetect))
}

func (a *baseActor) SetBuoyancy(buoyancy float64) {
	a.enqueue(taint.Buoyancy, taint.Scalar(buoyancy))
}

func (a *baseActor) AddForce(force mgl64.Vec3) {
	a.enqueue(taint.AddForce, taint.Vector(force))
}

func (a *baseActor) AddAngularForce(torque mgl64.Vec3) {
	a.enqueue(taint.AddAngularForce, taint.Vector(torque))
}

func (a *baseActor) SetMovementForce(force mgl64.Vec3) {
	a.enqueue(taint.Force, taint.Vector(force))
}

func (a *baseActor) SetTorque(torque mgl64.Vec3) {
	a.enqueue(taint.Torque, taint.Vector(torque))
}

// Defaults for the commands characters ignore.

func (a *baseActor) LockAngularMotion(taint.Axes)               {}
func (a *baseActor) MoveTo(mgl64.Vec3, float64)                 {}
func (a *baseActor) StopMoveTo()                                {}
func (a *baseActor) SetHover(float64, taint.HoverMode, float64) {}
func (a *baseActor) StopHover()                                 {}
func (a *baseActor) SetVehicle(Vehicle)                         {}
func (a *baseActor) Link(PhysicsActor)                          {}
func (a *baseActor) Delink()                                    {}

func (a *baseActor) SubscribeEvents(intervalMs int) {
	a.collisions.subscribe(intervalMs)
}

func (a *baseActor) UnSubscribeEvents() {
	a.collisions.unsubscribe()
}

func (a *baseActor) SubscribedEvents() bool {
	return a.collisions.subscribed()
}

func (a *baseActor) addCollision(other uint32, point, normal mgl64.Vec3, ground bool) {
	a.colliding = true
	if ground {
		a.collidingGround = true
	} else {
		a.collidingObj = true
	}
	a.collisions.add(CollisionEvent{OtherID: other, Point: point, Normal: normal})
}

func (a *baseActor) clearCollisions() {
	a.colliding = false
	a.collidingGround = false
	a.collidingObj = false
}

func (a *baseActor) sendCollisions(now float64) {
	if batch, ok := a.collisions.flush(now); ok {
		a.scene.events.emit(CollisionsEvent{ActorID: a.localID, Collisions: batch})
	}
}

// payloadAs extracts the payload a kind expects.
func payloadAs[T taint.Payload](kind taint.Kind, payload taint.Payload) (T, error) {
	v, ok := payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s with %T: %w", kind, payload, ErrBadPayload)
	}
	return v, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func finiteQuat(q mgl64.Quat) bool {
	return finite(q.W) && finiteVec(q.V)
}

// sentState is the kinematics of the last update an actor published.
type sentState struct {
	valid       bool
	position    mgl64.Vec3
	velocity    mgl64.Vec3
	orientation mgl64.Quat
}

// significant reports whether the state moved further than the scene
// tolerances since the last published update.
func (s sentState) significant(tolerance [3]float64, position, velocity mgl64.Vec3, orientation mgl64.Quat) bool {
	if !s.valid {
		return true
	}
	if position.Sub(s.position).Len() > tolerance[0] {
		return true
	}
	if velocity.Sub(s.velocity).Len() > tolerance[1] {
		return true
	}
	// q and -q are the same rotation
	dot := math.Abs(orientation.Dot(s.orientation))
	return 1-dot > tolerance[2]
}
