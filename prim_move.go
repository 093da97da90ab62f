package plume

import (
	"math"

	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
)

// move computes and applies the forces of a physical root for the coming
// step: gravity, drag, the move-to or hover controller, external forces and
// the vehicle, each component capped in proportion to the mass.
func (p *Prim) move(dt float64) {
	if p.body == 0 || p.rootID != 0 || p.IsFrozen() || p.selected || p.disabled {
		p.pushForce = mgl64.Vec3{}
		p.pushTorque = mgl64.Vec3{}
		return
	}

	w := p.scene.world
	cfg := p.scene.cfg()

	origin, err := w.BodyPosition(p.body)
	if err != nil {
		p.fail("read position", err)
		return
	}
	rot, err := w.BodyRotation(p.body)
	if err != nil {
		p.fail("read orientation", err)
		return
	}
	vel, err := w.BodyLinearVel(p.body)
	if err != nil {
		p.fail("read velocity", err)
		return
	}
	enabled, err := w.BodyIsEnabled(p.body)
	if err != nil {
		p.fail("read state", err)
		return
	}
	// controllers target the root, the body sits at the center of mass
	pos := p.rootPosition(origin, rot)

	vehicle := p.currentVehicle()
	controlled := p.moveTo.Active || p.hover.Active
	pushed := p.force.Len() > 0 || p.torque.Len() > 0 || p.pushForce.Len() > 0 || p.pushTorque.Len() > 0
	if !enabled && !controlled && !pushed && vehicle == nil {
		// auto-disabled and nothing to wake it up
		return
	}

	m := p.linkset.Mass
	var force mgl64.Vec3

	if !p.flying {
		force = p.gravity(origin).Mul(m * (1 - p.buoyancy))
	}
	force = force.Sub(vel.Mul(cfg.Prim.LinearDrag * m))

	switch {
	case p.moveTo.Active:
		f, snapped := p.moveToForce(pos, rot, vel, m, dt)
		if snapped {
			p.pushForce = mgl64.Vec3{}
			p.pushTorque = mgl64.Vec3{}
			p.lastForce = mgl64.Vec3{}
			return
		}
		force = f
	case p.hover.Active:
		fz, snapped := p.hoverForce(pos, rot, vel, m, dt)
		if snapped {
			force[2] = 0
		} else {
			force[2] = fz
		}
	}

	force = force.Add(p.force).Add(p.pushForce)
	torque := p.torque.Add(p.pushTorque)
	p.pushForce = mgl64.Vec3{}
	p.pushTorque = mgl64.Vec3{}

	if vehicle != nil {
		angular, err := w.BodyAngularVel(p.body)
		if err != nil {
			p.fail("read angular velocity", err)
			return
		}
		vf, vt := vehicle.Step(VehicleState{
			Position:        pos,
			Orientation:     rot,
			Velocity:        vel,
			AngularVelocity: angular,
			Mass:            m,
		}, dt)
		force = force.Add(vf)
		torque = torque.Add(vt)
	}

	if !finiteVec(force) || !finiteVec(torque) {
		p.fail("non-finite force", nil)
		return
	}

	limit := m * cfg.Prim.MaxForcePerMass
	force = clampComponents(force, limit)
	torque = clampComponents(torque, limit)
	p.lastForce = force

	if err := w.BodyAddForce(p.body, force); err != nil {
		p.fail("apply force", err)
		return
	}
	if err := w.BodyAddTorque(p.body, torque); err != nil {
		p.fail("apply torque", err)
	}
}

// gravity returns the gravity acceleration at pos, toward the configured
// center when point gravity is on.
func (p *Prim) gravity(pos mgl64.Vec3) mgl64.Vec3 {
	scene := p.scene.cfg().Scene
	g := mgl64.Vec3(scene.Gravity)
	if !scene.UsePointGravity {
		return g
	}

	toCenter := mgl64.Vec3(scene.PointGravityCenter).Sub(pos)
	if toCenter.Len() < 1e-6 {
		return mgl64.Vec3{}
	}
	return toCenter.Normalize().Mul(g.Len())
}

// moveToForce returns the force driving the body toward the move-to target.
// Once the target is reached with a small residual velocity the body is
// pinned on it instead.
func (p *Prim) moveToForce(pos mgl64.Vec3, rot mgl64.Quat, vel mgl64.Vec3, m, dt float64) (mgl64.Vec3, bool) {
	cfg := p.scene.cfg().Prim
	w := p.scene.world

	offset := p.moveTo.Position.Sub(pos)
	desired := offset.Mul(1 / math.Max(p.moveTo.Tau, dt))
	if speed := desired.Len(); speed > cfg.PIDMaxSpeed {
		desired = desired.Mul(cfg.PIDMaxSpeed / speed)
	}
	residual := desired.Sub(vel)

	if offset.Len() <= cfg.SnapDistance && residual.Len() <= cfg.SnapVelocity {
		if err := w.BodySetPosition(p.body, p.bodyOrigin(p.moveTo.Position, rot)); err != nil {
			p.fail("snap to target", err)
			return mgl64.Vec3{}, true
		}
		if err := w.BodySetLinearVel(p.body, mgl64.Vec3{}); err != nil {
			p.fail("snap to target", err)
		}
		return mgl64.Vec3{}, true
	}

	return residual.Mul(cfg.PIDGain * m), false
}

// hoverHeight returns the altitude a hover target holds over (x, y).
func (p *Prim) hoverHeight(x, y float64) float64 {
	env := p.scene.env
	base := 0.0
	switch p.hover.Mode {
	case taint.HoverGround:
		base = env.TerrainHeightAtXY(x, y)
	case taint.HoverGroundAndWater:
		base = math.Max(env.TerrainHeightAtXY(x, y), env.WaterLevelAt(x, y))
	case taint.HoverWater:
		base = env.WaterLevelAt(x, y)
	}
	return base + p.hover.Height
}

// hoverForce returns the vertical force of the hover controller, replacing
// gravity on Z, with the same snap fallback as move-to.
func (p *Prim) hoverForce(pos mgl64.Vec3, rot mgl64.Quat, vel mgl64.Vec3, m, dt float64) (float64, bool) {
	cfg := p.scene.cfg().Prim
	w := p.scene.world

	target := p.hoverHeight(pos.X(), pos.Y())
	offset := target - pos.Z()
	desired := offset / math.Max(p.hover.Tau, dt)
	desired = math.Min(math.Max(desired, -cfg.PIDMaxSpeed), cfg.PIDMaxSpeed)
	residual := desired - vel.Z()

	if math.Abs(offset) <= cfg.SnapDistance && math.Abs(residual) <= cfg.SnapVelocity {
		if err := w.BodySetPosition(p.body, p.bodyOrigin(mgl64.Vec3{pos.X(), pos.Y(), target}, rot)); err != nil {
			p.fail("snap to hover height", err)
			return 0, true
		}
		if err := w.BodySetLinearVel(p.body, mgl64.Vec3{vel.X(), vel.Y(), 0}); err != nil {
			p.fail("snap to hover height", err)
		}
		return 0, true
	}

	return residual * cfg.PIDGain * m, false
}

func clampComponents(v mgl64.Vec3, limit float64) mgl64.Vec3 {
	for i := range v {
		v[i] = math.Min(math.Max(v[i], -limit), limit)
	}
	return v
}

// updatePositionAndVelocity reads the body back after the step, keeps the
// linkset inside the world and publishes the new state.
func (p *Prim) updatePositionAndVelocity(dt float64) {
	if !p.built || p.rootID != 0 {
		return
	}

	if p.body != 0 {
		if !p.readBody(dt) {
			return
		}
	} else {
		p.velocity = mgl64.Vec3{}
		p.angularVelocity = mgl64.Vec3{}
		p.acceleration = mgl64.Vec3{}
	}

	for _, c := range p.children {
		c.position = p.position.Add(p.orientation.Rotate(c.offsetPosition))
		c.orientation = p.orientation.Mul(c.offsetRotation).Normalize()
		c.velocity = p.velocity
		c.angularVelocity = p.angularVelocity
		c.acceleration = p.acceleration
	}

	p.publishLinkset()
	p.publishUpdates()
}

// readBody copies the body state into the prim. It returns false when the
// prim was frozen.
func (p *Prim) readBody(dt float64) bool {
	w := p.scene.world
	cfg := p.scene.cfg()

	origin, err := w.BodyPosition(p.body)
	if err != nil {
		p.fail("read position", err)
		return false
	}
	rot, err := w.BodyRotation(p.body)
	if err != nil {
		p.fail("read orientation", err)
		return false
	}
	vel, err := w.BodyLinearVel(p.body)
	if err != nil {
		p.fail("read velocity", err)
		return false
	}
	angular, err := w.BodyAngularVel(p.body)
	if err != nil {
		p.fail("read angular velocity", err)
		return false
	}
	enabled, err := w.BodyIsEnabled(p.body)
	if err != nil {
		p.fail("read state", err)
		return false
	}

	if !finiteVec(origin) || !finiteQuat(rot) || !finiteVec(vel) || !finiteVec(angular) {
		p.fail("non-finite body state", nil)
		return false
	}
	pos := p.rootPosition(origin, rot)

	if clamped, ok := p.scene.inBounds(pos); !ok {
		p.crossingFailures++
		if p.crossingFailures > cfg.Scene.CrossingFailureLimit {
			p.position = pos
			p.fail("out of bounds", nil)
			return false
		}
		if err := w.BodySetPosition(p.body, p.bodyOrigin(clamped, rot)); err != nil {
			p.fail("reposition", err)
			return false
		}
		if err := w.BodySetLinearVel(p.body, mgl64.Vec3{}); err != nil {
			p.fail("reposition", err)
			return false
		}
		pos, vel = clamped, mgl64.Vec3{}
	} else {
		p.crossingFailures = 0
	}

	p.acceleration = vel.Sub(p.velocity).Mul(1 / dt)
	p.position = pos
	p.orientation = rot
	p.velocity = vel
	p.angularVelocity = angular
	p.stopped = !enabled && !p.selected

	return true
}

// publishUpdates raises the terse or stopped update of the linkset members.
func (p *Prim) publishUpdates() {
	cfg := p.scene.cfg().Scene
	tolerance := [3]float64{cfg.PositionTolerance, cfg.VelocityTolerance, cfg.RotationTolerance}

	members := append([]*Prim{p}, p.children...)
	for _, m := range members {
		if p.stopped {
			if !m.sent.valid || m.sent.velocity.Len() > 0 || m.sent.position != m.position {
				m.scene.events.emit(StoppedEvent{ActorID: m.localID, Position: m.position, Orientation: m.orientation})
				m.sent = sentState{valid: true, position: m.position, orientation: m.orientation}
			}
			continue
		}
		if !m.sent.significant(tolerance, m.position, m.velocity, m.orientation) {
			continue
		}
		m.scene.events.emit(TerseUpdateEvent{
			ActorID:         m.localID,
			Position:        m.position,
			Orientation:     m.orientation,
			Velocity:        m.velocity,
			Acceleration:    m.acceleration,
			AngularVelocity: m.angularVelocity,
		})
		m.sent = sentState{valid: true, position: m.position, velocity: m.velocity, orientation: m.orientation}
	}
}
