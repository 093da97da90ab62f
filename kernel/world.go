package kernel

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

const DEFAULT_WORKERS = 1

// World owns every body, geom and motor. It is not safe for concurrent use:
// all calls must come from the goroutine that steps it.
type World struct {
	// Gravity acceleration (m/s², or N/kg)
	Gravity  mgl64.Vec3
	Substeps int
	Workers  int
	// Friction is the fraction of tangential velocity removed by a terrain contact.
	Friction float64

	// Terrain returns the ground height under (x, y). Nil disables terrain contacts.
	Terrain   func(x, y float64) float64
	OnContact ContactHandler

	bodies    map[BodyHandle]*body
	bodyOrder []*body
	geoms     map[GeomHandle]*geom
	motors    map[MotorHandle]*motor
	space     *Space
	contacts  []Contact

	nextID uint32
	frame  uint64
}

// NewWorld creates an empty world. cellSize is the broad-phase grid cell edge.
func NewWorld(gravity mgl64.Vec3, cellSize float64) *World {
	return &World{
		Gravity:  gravity,
		Substeps: 1,
		Workers:  DEFAULT_WORKERS,
		bodies:   make(map[BodyHandle]*body),
		geoms:    make(map[GeomHandle]*geom),
		motors:   make(map[MotorHandle]*motor),
		space:    NewSpace(cellSize, 4096),
	}
}

func (w *World) allocate() uint32 {
	w.nextID++
	return w.nextID
}

// Space returns the broad-phase partition.
func (w *World) Space() *Space {
	return w.space
}

// WaitSpaceUnlock spins until no collide phase holds the space, up to timeout.
func (w *World) WaitSpaceUnlock(timeout time.Duration) bool {
	return w.space.waitUnlock(timeout)
}

func (w *World) BodyCount() int  { return len(w.bodies) }
func (w *World) GeomCount() int  { return len(w.geoms) }
func (w *World) MotorCount() int { return len(w.motors) }

// Frame returns the number of completed steps.
func (w *World) Frame() uint64 {
	return w.frame
}

// Step advances the world by dt seconds and reports the contacts of the last
// substep to OnContact.
func (w *World) Step(dt float64) error {
	if !finite(dt) || dt <= 0 {
		return fmt.Errorf("step %v: %w", dt, ErrBadDimension)
	}
	w.Workers = max(DEFAULT_WORKERS, w.Workers)
	w.Substeps = max(1, w.Substeps)
	h := dt / float64(w.Substeps)

	w.space.lock()
	defer w.space.unlock()

	var contacts []Contact
	for range w.Substeps {
		w.integrate(h)
		w.refreshGeoms()

		contacts = w.detectCollision()
		w.resolve(contacts)
	}

	w.trySleep()
	w.frame++

	if w.OnContact != nil {
		for _, c := range contacts {
			w.OnContact(c)
		}
	}

	return nil
}

func (w *World) integrate(h float64) {
	parallel(w.Workers, len(w.bodyOrder), func(i int) {
		w.bodyOrder[i].integrate(h, w.Gravity)
	})
}

func (w *World) refreshGeoms() {
	for _, b := range w.bodyOrder {
		if b.enabled {
			w.refreshBodyGeoms(b)
		}
	}
}

// trySleep is too cheap to split over workers
func (w *World) trySleep() {
	for _, b := range w.bodyOrder {
		b.trySleep()
	}
}
