package stream

import (
	"github.com/akmonengine/plume"
	"github.com/go-gl/mathgl/mgl64"
)

// Frame is the JSON message sent to observers for every scene event.
type Frame struct {
	Type            string      `json:"type"`
	Actor           uint32      `json:"actor"`
	Position        *[3]float64 `json:"position,omitempty"`
	Orientation     *[4]float64 `json:"orientation,omitempty"`
	Velocity        *[3]float64 `json:"velocity,omitempty"`
	Acceleration    *[3]float64 `json:"acceleration,omitempty"`
	AngularVelocity *[3]float64 `json:"angular_velocity,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Collisions      []Contact   `json:"collisions,omitempty"`
}

type Contact struct {
	Other  uint32     `json:"other"`
	Point  [3]float64 `json:"point"`
	Normal [3]float64 `json:"normal"`
}

func vec(v mgl64.Vec3) *[3]float64 {
	a := [3]float64(v)
	return &a
}

func quat(q mgl64.Quat) *[4]float64 {
	return &[4]float64{q.W, q.V.X(), q.V.Y(), q.V.Z()}
}

// NewFrame converts a scene event.
func NewFrame(event plume.Event) Frame {
	f := Frame{Type: event.Type().String(), Actor: event.Actor()}

	switch e := event.(type) {
	case plume.TerseUpdateEvent:
		f.Position = vec(e.Position)
		f.Orientation = quat(e.Orientation)
		f.Velocity = vec(e.Velocity)
		f.Acceleration = vec(e.Acceleration)
		f.AngularVelocity = vec(e.AngularVelocity)
	case plume.StoppedEvent:
		f.Position = vec(e.Position)
		f.Orientation = quat(e.Orientation)
	case plume.OutOfBoundsEvent:
		f.Position = vec(e.Position)
		f.Reason = e.Reason
	case plume.DefectEvent:
		f.Reason = e.Reason
	case plume.CollisionsEvent:
		f.Collisions = make([]Contact, len(e.Collisions))
		for i, c := range e.Collisions {
			f.Collisions[i] = Contact{Other: c.OtherID, Point: [3]float64(c.Point), Normal: [3]float64(c.Normal)}
		}
	}

	return f
}
