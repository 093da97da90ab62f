package mass

import "github.com/go-gl/mathgl/mgl64"

// Part is a linkset child expressed in the root's frame.
type Part struct {
	Descriptor
	Offset   mgl64.Vec3
	Rotation mgl64.Quat
}

// Combine folds the children of a linkset into the root descriptor. Each
// child's inertia is rotated into the root frame, then moved to the
// combined center of mass with the parallel axis theorem.
func Combine(root Descriptor, parts []Part) Descriptor {
	total := root.Mass
	volume := root.Volume
	weighted := root.CenterOfMass.Mul(root.Mass)

	centers := make([]mgl64.Vec3, len(parts))
	for i, part := range parts {
		rotation := normalizedRotation(part.Rotation)
		centers[i] = part.Offset.Add(rotation.Rotate(part.CenterOfMass))
		weighted = weighted.Add(centers[i].Mul(part.Mass))
		total += part.Mass
		volume += part.Volume
	}
	if total <= 0 {
		return root
	}
	com := weighted.Mul(1 / total)

	inertia := translate(root.Inertia, root.CenterOfMass.Sub(com), root.Mass)
	for i, part := range parts {
		R := normalizedRotation(part.Rotation).Mat4().Mat3()
		rotated := R.Mul3(part.Inertia).Mul3(R.Transpose())
		inertia = inertia.Add(translate(rotated, centers[i].Sub(com), part.Mass))
	}

	density := root.Density
	if volume > 0 {
		density = total / volume
	}

	return Descriptor{
		Volume:       volume,
		Density:      density,
		Mass:         total,
		Inertia:      inertia,
		CenterOfMass: com,
	}
}

// translate applies the parallel axis theorem: I + m(|d|²E - d⊗d)
func translate(I mgl64.Mat3, d mgl64.Vec3, m float64) mgl64.Mat3 {
	shift := mgl64.Ident3().Mul(d.Dot(d)).Sub(d.OuterProd3(d)).Mul(m)
	return I.Add(shift)
}

func normalizedRotation(q mgl64.Quat) mgl64.Quat {
	if q.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return q.Normalize()
}
