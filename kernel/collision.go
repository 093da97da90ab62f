package kernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// penetrationSlop is the depth tolerated without positional correction.
const penetrationSlop = 0.001

// positionCorrection is the fraction of the remaining depth removed per substep.
const positionCorrection = 0.8

// Contact is one contact reported by a step. GeomA is the nil handle for
// terrain contacts. Normal points from A towards B.
type Contact struct {
	GeomA    GeomHandle
	GeomB    GeomHandle
	Position mgl64.Vec3
	Normal   mgl64.Vec3
	Depth    float64
	Sensor   bool
}

// ContactHandler receives the contacts of a step. It runs while the space is
// locked, so geoms cannot be created or destroyed from it.
type ContactHandler func(contact Contact)

func (w *World) acceptPair(a, b *geom) bool {
	if a.body == 0 && b.body == 0 {
		return false
	}
	if a.body == b.body {
		return false
	}
	if a.category&b.collide == 0 || b.category&a.collide == 0 {
		return false
	}

	ba, bb := w.bodies[a.body], w.bodies[b.body]
	enabledA := ba != nil && ba.enabled
	enabledB := bb != nil && bb.enabled

	return enabledA || enabledB
}

type narrowResult struct {
	contact Contact
	hit     bool
}

func (w *World) detectCollision() []Contact {
	contacts := w.contacts[:0]

	// narrow phase per pair in parallel, gathered in pair order
	pairs := w.space.findPairs(w.acceptPair)
	results := make([]narrowResult, len(pairs))
	parallel(w.Workers, len(pairs), func(i int) {
		results[i].contact, results[i].hit = collide(pairs[i].A, pairs[i].B)
	})
	for _, r := range results {
		if r.hit {
			contacts = append(contacts, r.contact)
		}
	}

	if w.Terrain != nil {
		for _, g := range w.space.members {
			b := w.bodies[g.body]
			if b == nil || !b.enabled || g.collide&CategoryStatic == 0 {
				continue
			}
			center := g.aabb.Center()
			ground := w.Terrain(center.X(), center.Y())
			depth := ground - g.aabb.Min.Z()
			if depth <= 0 {
				continue
			}
			contacts = append(contacts, Contact{
				GeomB:    g.handle,
				Position: mgl64.Vec3{center.X(), center.Y(), ground},
				Normal:   mgl64.Vec3{0, 0, 1},
				Depth:    depth,
				Sensor:   g.sensor,
			})
		}
	}

	w.contacts = contacts
	return contacts
}

// collide runs the narrow phase on a pair. Round shapes (spheres, capsules)
// are tested analytically on their core segments; anything involving a box
// or a mesh goes through gjk and epa, with bounding-box penetration as the
// fallback when epa cannot converge.
func collide(a, b *geom) (Contact, bool) {
	contact := Contact{GeomA: a.handle, GeomB: b.handle, Sensor: a.sensor || b.sensor}

	if a.round() && b.round() {
		a0, a1 := a.segment()
		b0, b1 := b.segment()
		pa, pb := closestSegmentPoints(a0, a1, b0, b1)

		d := pb.Sub(pa)
		dist := d.Len()
		depth := a.radius + b.radius - dist
		if depth <= 0 {
			return contact, false
		}

		normal := mgl64.Vec3{0, 0, 1}
		if dist > 1e-9 {
			normal = d.Mul(1 / dist)
		}
		contact.Normal = normal
		contact.Depth = depth
		contact.Position = pa.Add(normal.Mul(a.radius - depth/2))

		return contact, true
	}

	var s simplex
	if !gjk(a, b, &s) {
		return contact, false
	}
	normal, depth, ok := epa(a, b, &s)
	if !ok {
		normal, depth = a.aabb.Penetration(b.aabb)
	}
	if depth <= 0 {
		return contact, false
	}
	contact.Normal = normal
	contact.Depth = depth
	contact.Position = a.aabb.Intersection(b.aabb).Center()

	return contact, true
}

func (w *World) resolve(contacts []Contact) {
	for _, c := range contacts {
		if c.Sensor {
			continue
		}

		var ba, bb *body
		if g, ok := w.geoms[c.GeomA]; ok {
			ba = w.bodies[g.body]
		}
		if g, ok := w.geoms[c.GeomB]; ok {
			bb = w.bodies[g.body]
		}
		wakeOnContact(ba, bb)
		wakeOnContact(bb, ba)

		var invA, invB float64
		if ba != nil {
			invA = ba.inverseMass()
		}
		if bb != nil {
			invB = bb.inverseMass()
		}
		total := invA + invB
		if total == 0 {
			continue
		}

		correction := math.Max(c.Depth-penetrationSlop, 0) * positionCorrection / total
		var vA, vB mgl64.Vec3
		if ba != nil {
			ba.transform.Position = ba.transform.Position.Sub(c.Normal.Mul(correction * invA))
			vA = ba.velocity
		}
		if bb != nil {
			bb.transform.Position = bb.transform.Position.Add(c.Normal.Mul(correction * invB))
			vB = bb.velocity
		}

		vn := vB.Sub(vA).Dot(c.Normal)
		if vn < 0 {
			j := -vn / total
			if ba != nil {
				ba.velocity = ba.velocity.Sub(c.Normal.Mul(j * invA))
			}
			if bb != nil {
				bb.velocity = bb.velocity.Add(c.Normal.Mul(j * invB))
			}
		}

		if c.GeomA == 0 && bb != nil && w.Friction > 0 {
			tangential := bb.velocity.Sub(c.Normal.Mul(bb.velocity.Dot(c.Normal)))
			bb.velocity = bb.velocity.Sub(tangential.Mul(math.Min(w.Friction, 1)))
		}

		if ba != nil {
			w.refreshBodyGeoms(ba)
		}
		if bb != nil {
			w.refreshBodyGeoms(bb)
		}
	}
}

// wakeOnContact re-enables a disabled body touched by a moving one.
func wakeOnContact(sleeping, other *body) {
	if sleeping == nil || sleeping.enabled || other == nil || !other.enabled {
		return
	}
	if other.velocity.Len() > other.autoDisableLinear {
		sleeping.wake()
	}
}

// closestSegmentPoints returns the closest points between segments p1q1 and
// p2q2.
func closestSegmentPoints(p1, q1, p2, q2 mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	const epsilon = 1e-12

	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	var s, t float64
	switch {
	case a <= epsilon && e <= epsilon:
		return p1, p2
	case a <= epsilon:
		t = clamp01(f / e)
	default:
		c := d1.Dot(r)
		if e <= epsilon {
			s = clamp01(-c / a)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom != 0 {
				s = clamp01((b*f - c*e) / denom)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}

	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
