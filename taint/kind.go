package taint

import "fmt"

// Kind is the mutation a Record requests.
type Kind uint8

const (
	Add Kind = iota
	Remove
	Position
	Orientation
	Velocity
	Size
	Shape
	Physical
	Selected
	Force
	Torque
	AddForce
	AddAngularForce
	AngularLock
	Link
	Delink
	VolumeDetect
	Disable
	Flying
	MoveTo
	Hover
	Buoyancy
)

var kindNames = [...]string{
	Add:             "add",
	Remove:          "remove",
	Position:        "position",
	Orientation:     "orientation",
	Velocity:        "velocity",
	Size:            "size",
	Shape:           "shape",
	Physical:        "physical",
	Selected:        "selected",
	Force:           "force",
	Torque:          "torque",
	AddForce:        "addforce",
	AddAngularForce: "addangularforce",
	AngularLock:     "angularlock",
	Link:            "link",
	Delink:          "delink",
	VolumeDetect:    "volumedetect",
	Disable:         "disable",
	Flying:          "flying",
	MoveTo:          "moveto",
	Hover:           "hover",
	Buoyancy:        "buoyancy",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// lifecycle reports whether the kind is accepted on a frozen target.
func (k Kind) lifecycle() bool {
	return k == Add || k == Remove
}
