package plume

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// move drives the capsule toward its target velocity for the coming step.
func (c *Character) move(dt float64) {
	if !c.built || c.body == 0 || c.IsFrozen() {
		return
	}
	if c.selected {
		c.pushForce = mgl64.Vec3{}
		c.lastForce = mgl64.Vec3{}
		return
	}

	s := c.scene
	w := s.world
	cfg := s.cfg()
	av := cfg.Avatar

	pos, err := w.BodyPosition(c.body)
	if err != nil {
		c.defect("read position", err)
		return
	}
	vel, err := w.BodyLinearVel(c.body)
	if err != nil {
		c.defect("read velocity", err)
		return
	}

	if av.EnforceFlightCeiling && pos.Z() > av.FlightCeiling {
		pos[2] = av.FlightCeiling
		vel[2] = math.Min(vel.Z(), 0)
		if err := c.reposition(pos, vel); err != nil {
			c.defect("flight ceiling", err)
			return
		}
	}

	halfHeight := c.length/2 + c.radius
	bottom := pos.Z() - halfHeight
	ground := s.env.TerrainHeightAtXY(pos.X(), pos.Y())
	c.nearGround = bottom <= ground+av.GroundTolerance
	sunk := math.Max(ground-bottom, 0)

	water := s.env.WaterLevelAt(pos.X(), pos.Y())
	depth := water - (pos.Z() + av.ShoulderHeight)
	underwater := depth > 0
	if underwater && !c.flying {
		c.flying = true
	}
	c.treading = underwater && !c.nearGround

	target := c.target
	pushed := c.force.Len() > 0 || c.pushForce.Len() > 0
	if target.Len() < av.StopVelocity && !pushed && !c.treading &&
		(c.nearGround || c.colliding || c.flying) {
		c.regime = Stopped
		c.stopped = true
		c.lastForce = mgl64.Vec3{}
		if err := w.BodySetLinearVel(c.body, mgl64.Vec3{}); err != nil {
			c.defect("stop", err)
		}
		return
	}
	c.stopped = false

	m := c.mass
	g := mgl64.Vec3(cfg.Scene.Gravity)
	gain := av.PIDDamping
	velocityError := target.Sub(vel)

	switch {
	case underwater:
		c.regime = Underwater
		gain *= av.FlyFactor
	case c.flying && c.colliding:
		c.regime = Flying
		gain *= av.CollidingFlyFactor
	case c.flying:
		c.regime = Flying
		gain *= av.FlyFactor
	case c.nearGround || c.collidingGround:
		c.regime = Grounded
		// walking leaves Z to gravity unless jumping
		if target.Z() <= 0 {
			velocityError[2] = 0
		}
	default:
		c.regime = Falling
		gain *= av.FallFactor
		velocityError[2] = 0
	}

	force := velocityError.Mul(gain * m)
	if !c.flying {
		force = force.Add(g.Mul(m * (1 - c.buoyancy)))
	}
	if sunk > 0 {
		force[2] += sunk * av.PIDStand * m
	}

	if c.flying {
		if av.AllowAvGravity && pos.Z() > av.AvGravityHeight {
			factor := math.Min(av.AvGravityMax, (pos.Z()-av.AvGravityHeight)/av.AvGravityRamp)
			force = force.Add(g.Mul(m * factor))
		}

		horizontal := mgl64.Vec2{target.X(), target.Y()}
		floor := ground + av.MinimumGroundFlightOffset - av.FlightCheatMargin
		if horizontal.Len() > av.StopVelocity && bottom < floor {
			force[2] += (floor - bottom) * av.PIDStand * m
		}
	}

	if underwater {
		lift := av.TreadLift
		if c.nearGround {
			lift = av.StandLift
		}
		force[2] += math.Min(depth, 1) * g.Len() * m * lift
	}

	force = force.Add(c.force).Add(c.pushForce)
	c.pushForce = mgl64.Vec3{}

	if vel.Z() < -av.MaxFallSpeed {
		vel[2] = -av.MaxFallSpeed
		if err := w.BodySetLinearVel(c.body, vel); err != nil {
			c.defect("fall clamp", err)
			return
		}
	}

	if !finiteVec(force) {
		c.defect("non-finite force", nil)
		return
	}

	c.lastForce = force
	if err := w.BodyAddForce(c.body, force); err != nil {
		c.defect("apply force", err)
	}
}

func (c *Character) reposition(pos, vel mgl64.Vec3) error {
	w := c.scene.world
	if err := w.BodySetPosition(c.body, pos); err != nil {
		return err
	}
	return w.BodySetLinearVel(c.body, vel)
}

// updatePositionAndVelocity reads the capsule back after the step, keeps it
// inside the world and publishes the new state.
func (c *Character) updatePositionAndVelocity(dt float64) {
	if !c.built || c.body == 0 || c.IsFrozen() {
		return
	}
	w := c.scene.world
	scene := c.scene.cfg().Scene

	pos, err := w.BodyPosition(c.body)
	if err != nil {
		c.defect("read position", err)
		return
	}
	vel, err := w.BodyLinearVel(c.body)
	if err != nil {
		c.defect("read velocity", err)
		return
	}
	if !finiteVec(pos) || !finiteVec(vel) {
		c.defect("non-finite body state", nil)
		return
	}

	if clamped, ok := c.scene.inBounds(pos); !ok {
		vel = mgl64.Vec3{}
		if err := c.reposition(clamped, vel); err != nil {
			c.defect("reposition", err)
			return
		}
		pos = clamped
	}

	if c.stopped {
		c.position = pos
		c.velocity = mgl64.Vec3{}
		c.acceleration = mgl64.Vec3{}
		c.publishState()
		if !c.stopSent {
			c.scene.events.emit(StoppedEvent{ActorID: c.localID, Position: c.position, Orientation: c.orientation})
			c.stopSent = true
			c.sent = sentState{valid: true, position: c.position, orientation: c.orientation}
		}
		return
	}
	c.stopSent = false

	c.acceleration = vel.Sub(c.velocity).Mul(1 / dt)
	c.position = pos
	c.velocity = vel
	c.orientation = c.heading(vel)
	c.publishState()

	tolerance := [3]float64{scene.PositionTolerance, scene.VelocityTolerance, scene.RotationTolerance}
	if !c.sent.significant(tolerance, c.position, c.velocity, c.orientation) {
		return
	}
	c.scene.events.emit(TerseUpdateEvent{
		ActorID:      c.localID,
		Position:     c.position,
		Orientation:  c.orientation,
		Velocity:     c.velocity,
		Acceleration: c.acceleration,
	})
	c.sent = sentState{valid: true, position: c.position, velocity: c.velocity, orientation: c.orientation}
}

// heading turns the reported orientation toward the horizontal motion and
// leans it forward with speed. A still avatar keeps its orientation.
func (c *Character) heading(vel mgl64.Vec3) mgl64.Quat {
	av := c.scene.cfg().Avatar
	speed := mgl64.Vec2{vel.X(), vel.Y()}.Len()
	if speed <= av.StopVelocity {
		return c.orientation
	}

	yaw := mgl64.QuatRotate(math.Atan2(vel.Y(), vel.X()), mgl64.Vec3{0, 0, 1})
	if av.Tilt == 0 {
		return yaw
	}
	tilt := mgl64.QuatRotate(math.Min(av.Tilt*speed, math.Pi/4), mgl64.Vec3{0, 1, 0})
	return yaw.Mul(tilt).Normalize()
}
