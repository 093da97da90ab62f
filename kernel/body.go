package kernel

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MassData describes the mass distribution handed to a body. Inertia is
// expressed in the body's local frame, about the body origin.
type MassData struct {
	Mass    float64
	Inertia mgl64.Mat3
}

type body struct {
	handle BodyHandle

	previous  Transform
	transform Transform

	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3

	mass                float64
	inertiaLocal        mgl64.Mat3
	inverseInertiaLocal mgl64.Mat3

	accumulatedForce  mgl64.Vec3
	accumulatedTorque mgl64.Vec3

	enabled        bool
	gravity        bool
	linearDamping  float64
	angularDamping float64

	autoDisableFrames  int
	autoDisableLinear  float64
	autoDisableAngular float64
	idleFrames         int

	// locked marks world axes whose angular velocity is held at zero by a motor.
	locked [3]bool

	geoms  []GeomHandle
	motors []MotorHandle
}

func newBody(handle BodyHandle) *body {
	b := &body{
		handle:    handle,
		previous:  NewTransform(),
		transform: NewTransform(),
		enabled:   true,
		gravity:   true,
	}
	b.setMass(MassData{Mass: 1, Inertia: mgl64.Ident3()})

	return b
}

func (b *body) setMass(m MassData) {
	b.mass = m.Mass
	b.inertiaLocal = m.Inertia
	if b.inertiaLocal.Det() == 0 {
		b.inertiaLocal = mgl64.Ident3().Mul(m.Mass)
	}
	b.inverseInertiaLocal = b.inertiaLocal.Inv()
}

func (b *body) integrate(h float64, gravity mgl64.Vec3) {
	if !b.enabled {
		return
	}

	b.previous = b.transform

	// linear
	accel := b.accumulatedForce.Mul(1.0 / b.mass)
	if b.gravity {
		accel = accel.Add(gravity)
	}
	b.velocity = b.velocity.Add(accel.Mul(h))
	b.velocity = b.velocity.Mul(math.Exp(-b.linearDamping * h))
	b.transform.Position = b.transform.Position.Add(b.velocity.Mul(h))

	// angular
	angularAccel := b.inverseInertiaWorld().Mul3x1(b.accumulatedTorque)
	b.angularVelocity = b.angularVelocity.Add(angularAccel.Mul(h))
	b.angularVelocity = b.angularVelocity.Mul(math.Exp(-b.angularDamping * h))
	for axis, locked := range b.locked {
		if locked {
			b.angularVelocity[axis] = 0
		}
	}

	omegaQuat := mgl64.Quat{V: b.angularVelocity, W: 0}
	qDot := omegaQuat.Mul(b.transform.Rotation).Scale(0.5)
	b.transform.Rotation = b.transform.Rotation.Add(qDot.Scale(h)).Normalize()

	b.clearForces()
}

// trySleep disables the body once it stayed under both velocity thresholds
// for autoDisableFrames consecutive steps.
func (b *body) trySleep() bool {
	if !b.enabled || b.autoDisableFrames <= 0 {
		return false
	}
	if b.velocity.Len() < b.autoDisableLinear && b.angularVelocity.Len() < b.autoDisableAngular {
		b.idleFrames++
		if b.idleFrames >= b.autoDisableFrames {
			b.sleep()
			return true
		}
	} else {
		b.idleFrames = 0
	}

	return false
}

func (b *body) sleep() {
	b.enabled = false
	b.idleFrames = 0
	b.velocity = mgl64.Vec3{}
	b.angularVelocity = mgl64.Vec3{}
	b.clearForces()
}

func (b *body) wake() {
	b.enabled = true
	b.idleFrames = 0
}

func (b *body) clearForces() {
	b.accumulatedForce = mgl64.Vec3{0, 0, 0}
	b.accumulatedTorque = mgl64.Vec3{0, 0, 0}
}

func (b *body) inverseMass() float64 {
	if !b.enabled || b.mass <= 0 {
		return 0
	}
	return 1.0 / b.mass
}

// inverseInertiaWorld returns R * I_local^-1 * R^T
func (b *body) inverseInertiaWorld() mgl64.Mat3 {
	R := b.transform.Rotation.Mat4().Mat3()
	return R.Mul3(b.inverseInertiaLocal).Mul3(R.Transpose())
}

func (w *World) body(h BodyHandle) (*body, error) {
	b, ok := w.bodies[h]
	if !ok {
		return nil, fmt.Errorf("body %d: %w", h, ErrInvalidHandle)
	}
	return b, nil
}

// CreateBody creates an enabled unit-mass body at the origin.
func (w *World) CreateBody() BodyHandle {
	h := BodyHandle(w.allocate())
	b := newBody(h)
	w.bodies[h] = b
	w.bodyOrder = append(w.bodyOrder, b)

	return h
}

// DestroyBody destroys the body, its motors, and detaches its geoms. Detached
// geoms keep their last world transform and stay in the space.
func (w *World) DestroyBody(h BodyHandle) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if w.space.Locked() {
		return ErrSpaceLocked
	}

	for _, gh := range b.geoms {
		if g, ok := w.geoms[gh]; ok {
			g.transform = b.transform.Compose(g.offset)
			g.offset = NewTransform()
			g.body = 0
			g.computeAABB()
		}
	}
	for _, mh := range b.motors {
		delete(w.motors, mh)
	}

	delete(w.bodies, h)
	for i, other := range w.bodyOrder {
		if other == b {
			w.bodyOrder = append(w.bodyOrder[:i], w.bodyOrder[i+1:]...)
			break
		}
	}

	return nil
}

// BodyPosition returns the body origin in world space.
func (w *World) BodyPosition(h BodyHandle) (mgl64.Vec3, error) {
	b, err := w.body(h)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return b.transform.Position, nil
}

// BodySetPosition teleports the body.
func (w *World) BodySetPosition(h BodyHandle, p mgl64.Vec3) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finiteVec(p) {
		return fmt.Errorf("body %d position: %w", h, ErrNonFinite)
	}
	b.transform.Position = p
	b.previous.Position = p
	w.refreshBodyGeoms(b)

	return nil
}

func (w *World) BodyRotation(h BodyHandle) (mgl64.Quat, error) {
	b, err := w.body(h)
	if err != nil {
		return mgl64.QuatIdent(), err
	}
	return b.transform.Rotation, nil
}

func (w *World) BodySetRotation(h BodyHandle, q mgl64.Quat) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finiteQuat(q) || q.Len() == 0 {
		return fmt.Errorf("body %d rotation: %w", h, ErrNonFinite)
	}
	b.transform.Rotation = q.Normalize()
	b.previous.Rotation = b.transform.Rotation
	w.refreshBodyGeoms(b)

	return nil
}

func (w *World) BodyLinearVel(h BodyHandle) (mgl64.Vec3, error) {
	b, err := w.body(h)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return b.velocity, nil
}

// BodySetLinearVel sets the linear velocity and wakes the body when the
// velocity is non-zero.
func (w *World) BodySetLinearVel(h BodyHandle, v mgl64.Vec3) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finiteVec(v) {
		return fmt.Errorf("body %d velocity: %w", h, ErrNonFinite)
	}
	b.velocity = v
	if v.Len() > 0 {
		b.wake()
	}

	return nil
}

func (w *World) BodyAngularVel(h BodyHandle) (mgl64.Vec3, error) {
	b, err := w.body(h)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return b.angularVelocity, nil
}

func (w *World) BodySetAngularVel(h BodyHandle, v mgl64.Vec3) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finiteVec(v) {
		return fmt.Errorf("body %d angular velocity: %w", h, ErrNonFinite)
	}
	b.angularVelocity = v
	if v.Len() > 0 {
		b.wake()
	}

	return nil
}

// BodySetMass replaces the mass and inertia tensor of the body.
func (w *World) BodySetMass(h BodyHandle, m MassData) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finite(m.Mass) || m.Mass <= 0 {
		return fmt.Errorf("body %d mass %v: %w", h, m.Mass, ErrBadDimension)
	}
	b.setMass(m)

	return nil
}

func (w *World) BodyMass(h BodyHandle) (MassData, error) {
	b, err := w.body(h)
	if err != nil {
		return MassData{}, err
	}
	return MassData{Mass: b.mass, Inertia: b.inertiaLocal}, nil
}

// BodyAddForce accumulates a force (N) applied at the body origin during the
// next step.
func (w *World) BodyAddForce(h BodyHandle, f mgl64.Vec3) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finiteVec(f) {
		return fmt.Errorf("body %d force: %w", h, ErrNonFinite)
	}
	if f.Len() > 0 {
		b.wake()
		b.accumulatedForce = b.accumulatedForce.Add(f)
	}

	return nil
}

// BodyAddTorque accumulates a torque (N·m) applied during the next step.
func (w *World) BodyAddTorque(h BodyHandle, t mgl64.Vec3) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	if !finiteVec(t) {
		return fmt.Errorf("body %d torque: %w", h, ErrNonFinite)
	}
	if t.Len() > 0 {
		b.wake()
		b.accumulatedTorque = b.accumulatedTorque.Add(t)
	}

	return nil
}

func (w *World) BodyEnable(h BodyHandle) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	b.wake()

	return nil
}

// BodyDisable stops simulating the body and zeroes its velocities.
func (w *World) BodyDisable(h BodyHandle) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	b.sleep()

	return nil
}

func (w *World) BodyIsEnabled(h BodyHandle) (bool, error) {
	b, err := w.body(h)
	if err != nil {
		return false, err
	}
	return b.enabled, nil
}

// BodySetGravityMode toggles whether World.Gravity acts on the body.
func (w *World) BodySetGravityMode(h BodyHandle, on bool) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	b.gravity = on

	return nil
}

// BodySetAutoDisable configures the idle detection. frames <= 0 turns it off.
func (w *World) BodySetAutoDisable(h BodyHandle, frames int, linear, angular float64) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	b.autoDisableFrames = frames
	b.autoDisableLinear = linear
	b.autoDisableAngular = angular
	b.idleFrames = 0

	return nil
}

// BodySetDamping sets exponential linear and angular damping rates (1/s).
func (w *World) BodySetDamping(h BodyHandle, linear, angular float64) error {
	b, err := w.body(h)
	if err != nil {
		return err
	}
	b.linearDamping = math.Max(0, linear)
	b.angularDamping = math.Max(0, angular)

	return nil
}
