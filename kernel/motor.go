package kernel

import "fmt"

type motor struct {
	handle MotorHandle
	body   BodyHandle
	locked [3]bool
}

func (w *World) motor(h MotorHandle) (*motor, error) {
	m, ok := w.motors[h]
	if !ok {
		return nil, fmt.Errorf("motor %d: %w", h, ErrInvalidHandle)
	}
	return m, nil
}

// CreateAngularMotor creates an angular motor joint on the body. A new motor
// locks nothing.
func (w *World) CreateAngularMotor(bh BodyHandle) (MotorHandle, error) {
	b, err := w.body(bh)
	if err != nil {
		return 0, err
	}
	h := MotorHandle(w.allocate())
	w.motors[h] = &motor{handle: h, body: bh}
	b.motors = append(b.motors, h)

	return h, nil
}

// MotorSetLockedAxes holds the angular velocity of the body at zero around
// every world axis flagged true.
func (w *World) MotorSetLockedAxes(h MotorHandle, x, y, z bool) error {
	m, err := w.motor(h)
	if err != nil {
		return err
	}
	m.locked = [3]bool{x, y, z}
	if b, ok := w.bodies[m.body]; ok {
		w.refreshLocks(b)
	}

	return nil
}

func (w *World) MotorLockedAxes(h MotorHandle) ([3]bool, error) {
	m, err := w.motor(h)
	if err != nil {
		return [3]bool{}, err
	}
	return m.locked, nil
}

func (w *World) DestroyMotor(h MotorHandle) error {
	m, err := w.motor(h)
	if err != nil {
		return err
	}
	delete(w.motors, h)
	if b, ok := w.bodies[m.body]; ok {
		b.motors = removeHandle(b.motors, h)
		w.refreshLocks(b)
	}

	return nil
}

func (w *World) refreshLocks(b *body) {
	b.locked = [3]bool{}
	for _, mh := range b.motors {
		if m, ok := w.motors[mh]; ok {
			for axis := range b.locked {
				b.locked[axis] = b.locked[axis] || m.locked[axis]
			}
		}
	}
}
