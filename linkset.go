package plume

import (
	"errors"
	"fmt"
	"log"

	"github.com/akmonengine/plume/kernel"
	"github.com/akmonengine/plume/mass"
	"github.com/go-gl/mathgl/mgl64"
)

// linkRoot returns the root of the prim's linkset, the prim itself when
// unlinked.
func (p *Prim) linkRoot() *Prim {
	if p.rootID == 0 {
		return p
	}
	if root := p.scene.prim(p.rootID); root != nil {
		return root
	}
	return p
}

// relativePose returns the pose of m in the frame of root.
func relativePose(root, m *Prim) (mgl64.Vec3, mgl64.Quat) {
	inverse := root.orientation.Inverse()
	position := inverse.Rotate(m.position.Sub(root.position))
	rotation := inverse.Mul(m.orientation).Normalize()
	return position, rotation
}

// link moves the prim, with its own children, under the linkset of parentID.
func (p *Prim) link(parentID uint32) error {
	parent := p.scene.prim(parentID)
	if parent == nil || !parent.built {
		return fmt.Errorf("link %d to %d: %w", p.localID, parentID, ErrNotBuilt)
	}
	root := parent.linkRoot()
	if root == p {
		return fmt.Errorf("link %d to its own member %d: %w", p.localID, parentID, ErrBadPayload)
	}
	if p.rootID == root.localID {
		return nil
	}

	if p.rootID != 0 {
		for _, r := range p.leaveLinkset() {
			if err := r.rebuildBody(); err != nil {
				return err
			}
			r.publishLinkset()
		}
	}

	if err := p.destroyBody(); err != nil {
		return err
	}
	if err := root.destroyBody(); err != nil {
		return err
	}

	members := append([]*Prim{p}, p.children...)
	p.children = nil
	for _, m := range members {
		m.rootID = root.localID
		m.offsetPosition, m.offsetRotation = relativePose(root, m)
		m.state = PrimChild
		m.moveTo.Active = false
		m.hover.Active = false
	}
	root.children = append(root.children, members...)

	return root.rebuildBody()
}

// delink takes the prim out of its linkset and rebuilds both sides.
func (p *Prim) delink() error {
	if p.rootID == 0 && len(p.children) == 0 {
		return nil
	}

	var errs []error
	for _, r := range p.leaveLinkset() {
		errs = append(errs, r.rebuildBody())
		r.publishLinkset()
	}
	errs = append(errs, p.rebuildBody())

	return errors.Join(errs...)
}

// leaveLinkset detaches the prim from its linkset without rebuilding and
// returns the roots whose body must be rebuilt. A child simply leaves its
// root; a root hands its children over to the first of them.
func (p *Prim) leaveLinkset() []*Prim {
	if p.rootID != 0 {
		root := p.scene.prim(p.rootID)
		p.rootID = 0
		p.offsetPosition = mgl64.Vec3{}
		p.offsetRotation = mgl64.QuatIdent()
		p.state = PrimNonPhysical
		if root == nil {
			return nil
		}

		if err := root.destroyBody(); err != nil {
			log.Printf("Prim %d: destroy body on delink: %v", root.localID, err)
		}
		root.children = removePrim(root.children, p)
		p.physical = root.physical
		p.velocity = root.velocity

		return []*Prim{root}
	}

	if len(p.children) == 0 {
		return nil
	}
	if err := p.destroyBody(); err != nil {
		log.Printf("Prim %d: destroy body on delink: %v", p.localID, err)
	}

	newRoot := p.children[0]
	rest := p.children[1:]
	p.children = nil

	newRoot.rootID = 0
	newRoot.offsetPosition = mgl64.Vec3{}
	newRoot.offsetRotation = mgl64.QuatIdent()
	newRoot.physical = p.physical
	newRoot.selected = p.selected
	newRoot.velocity = p.velocity
	newRoot.state = PrimNonPhysical
	newRoot.children = make([]*Prim, 0, len(rest))
	for _, c := range rest {
		c.rootID = newRoot.localID
		c.offsetPosition, c.offsetRotation = relativePose(newRoot, c)
		newRoot.children = append(newRoot.children, c)
	}

	return []*Prim{newRoot}
}

func removePrim(prims []*Prim, p *Prim) []*Prim {
	for i, other := range prims {
		if other == p {
			return append(prims[:i], prims[i+1:]...)
		}
	}
	return prims
}

// destroyBody releases the body and motor of a root. Attached geometries stay
// in the space, static at their last pose.
func (p *Prim) destroyBody() error {
	if p.body == 0 {
		return nil
	}
	if err := p.scene.waitSpace(); err != nil {
		return err
	}
	err := p.scene.world.DestroyBody(p.body)
	p.body = 0
	p.motor = 0
	if p.state == PrimPhysical {
		p.state = PrimNonPhysical
	}
	return err
}

// rebuildBody recomputes the linkset mass and, for a physical root, creates
// its body at the linkset center of mass with every member geometry
// attached. It must be called on a root.
func (p *Prim) rebuildBody() error {
	if p.rootID != 0 {
		return p.linkRoot().rebuildBody()
	}
	if err := p.destroyBody(); err != nil {
		return err
	}

	parts := make([]mass.Part, 0, len(p.children))
	for _, c := range p.children {
		if c.geom == 0 {
			continue
		}
		parts = append(parts, mass.Part{Descriptor: c.own, Offset: c.offsetPosition, Rotation: c.offsetRotation})
	}
	p.linkset = mass.Combine(p.own, parts)

	if !p.physical || !p.built || p.IsFrozen() || p.geom == 0 {
		p.state = PrimNonPhysical
		for _, c := range p.children {
			c.state = PrimChild
		}
		if err := p.placeStatic(); err != nil {
			return err
		}
		return p.applyCategories()
	}

	w := p.scene.world
	cfg := p.scene.cfg()

	// the body origin is the linkset center of mass; geoms hang off it
	com := p.linkset.CenterOfMass
	b := w.CreateBody()
	p.body = b
	p.state = PrimPhysical

	steps := []func() error{
		func() error { return w.BodySetPosition(b, p.bodyOrigin(p.position, p.orientation)) },
		func() error { return w.BodySetRotation(b, p.orientation) },
		func() error {
			return w.BodySetMass(b, kernel.MassData{Mass: p.linkset.Mass, Inertia: p.linkset.Inertia})
		},
		func() error { return w.BodySetGravityMode(b, false) },
		func() error { return w.BodySetDamping(b, 0, cfg.Prim.AngularDamping) },
		func() error {
			return w.BodySetAutoDisable(b, cfg.Prim.AutoDisableFrames, cfg.Prim.AutoDisableLinear, cfg.Prim.AutoDisableAngular)
		},
		func() error { return w.GeomSetBody(p.geom, b) },
		func() error { return w.GeomSetOffset(p.geom, com.Mul(-1), mgl64.QuatIdent()) },
	}
	for _, c := range p.children {
		if c.geom == 0 {
			continue
		}
		c.state = PrimChild
		steps = append(steps,
			func() error { return w.GeomSetBody(c.geom, b) },
			func() error { return w.GeomSetOffset(c.geom, c.offsetPosition.Sub(com), c.offsetRotation) },
		)
	}
	steps = append(steps,
		p.refreshMotor,
		func() error { return w.BodySetLinearVel(b, p.velocity) },
		func() error { return w.BodySetAngularVel(b, p.angularVelocity) },
		p.applyCategories,
	)
	if p.selected || p.disabled {
		steps = append(steps, func() error { return w.BodyDisable(b) })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			// never leave a half-built body behind
			if derr := p.destroyBody(); derr != nil {
				log.Printf("Prim %d: destroy half-built body: %v", p.localID, derr)
			}
			return err
		}
	}

	return nil
}

// bodyOrigin returns where the body of a root sits for the given root pose.
func (p *Prim) bodyOrigin(position mgl64.Vec3, orientation mgl64.Quat) mgl64.Vec3 {
	return position.Add(orientation.Rotate(p.linkset.CenterOfMass))
}

// rootPosition converts a body origin back to the position of the root.
func (p *Prim) rootPosition(origin mgl64.Vec3, orientation mgl64.Quat) mgl64.Vec3 {
	return origin.Sub(orientation.Rotate(p.linkset.CenterOfMass))
}

// placeStatic poses the geometries of a linkset without body from the
// root's pose and the members' offsets.
func (p *Prim) placeStatic() error {
	w := p.scene.world
	if p.geom != 0 {
		if err := w.GeomSetPosition(p.geom, p.position); err != nil {
			return err
		}
		if err := w.GeomSetRotation(p.geom, p.orientation); err != nil {
			return err
		}
	}
	for _, c := range p.children {
		c.position = p.position.Add(p.orientation.Rotate(c.offsetPosition))
		c.orientation = p.orientation.Mul(c.offsetRotation).Normalize()
		if c.geom == 0 {
			continue
		}
		if err := w.GeomSetPosition(c.geom, c.position); err != nil {
			return err
		}
		if err := w.GeomSetRotation(c.geom, c.orientation); err != nil {
			return err
		}
	}
	return nil
}

// applyCategories sets the collision category of every linkset geometry
// from the root's state.
func (p *Prim) applyCategories() error {
	category, collide := kernel.CategoryStatic, kernel.CategoryAll
	switch {
	case p.selected:
		category, collide = kernel.CategorySelected, kernel.CategoryNone
	case p.body != 0:
		category = kernel.CategoryBody
	}

	w := p.scene.world
	members := append([]*Prim{p}, p.children...)
	for _, m := range members {
		if m.geom == 0 {
			continue
		}
		if err := w.GeomSetCategory(m.geom, category, collide); err != nil {
			return err
		}
	}
	return nil
}
