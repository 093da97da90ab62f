package kernel

import "errors"

// BodyHandle identifies a rigid body owned by a World. The zero value is the nil handle.
type BodyHandle uint32

// GeomHandle identifies a collision geometry owned by a World. The zero value is the nil handle.
type GeomHandle uint32

// MotorHandle identifies an angular motor joint owned by a World. The zero value is the nil handle.
type MotorHandle uint32

var (
	ErrInvalidHandle = errors.New("kernel: invalid handle")
	ErrBadDimension  = errors.New("kernel: invalid shape dimension")
	ErrSpaceLocked   = errors.New("kernel: space is locked")
	ErrGeomAttached  = errors.New("kernel: geom is attached to a body")
	ErrNonFinite     = errors.New("kernel: non-finite value")
)

// Category bits used by GeomSetCategory. The actor layer may define its own;
// the kernel only tests category&collide overlap.
const (
	CategoryNone      uint32 = 0
	CategoryStatic    uint32 = 1 << 0
	CategoryBody      uint32 = 1 << 1
	CategoryCharacter uint32 = 1 << 2
	CategorySelected  uint32 = 1 << 3
	CategoryAll       uint32 = 0xffffffff
)
