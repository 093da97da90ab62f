package plume

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akmonengine/plume/config"
	"github.com/akmonengine/plume/kernel"
	"github.com/akmonengine/plume/mass"
	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
)

// spaceUnlockTimeout bounds the wait before a geom is inserted in or removed
// from the kernel space.
const spaceUnlockTimeout = 50 * time.Millisecond

// Scene is the step driver. It owns the kernel world, the change queue and
// the actor registries. Exactly one goroutine, the one calling Step,
// Simulate or Run, touches the kernel; every other goroutine goes through the
// actors' setters or the read-only lookups.
type Scene struct {
	world  *kernel.World
	env    Environment
	mesher atomic.Value // Mesher
	queue  *taint.Queue
	events Events

	config  atomic.Pointer[config.Config]
	applied *config.Config

	// registries, mutated on the step goroutine only
	mu         sync.RWMutex
	actors     map[uint32]stepActor
	order      []stepActor
	geomActors map[kernel.GeomHandle]uint32
	geomNames  map[kernel.GeomHandle]string

	contacts    []kernel.Contact
	nextID      atomic.Uint32
	accumulator float64
	simTime     float64
	steps       atomic.Uint64
}

// NewScene creates an empty scene. A nil env is a flat ground at 0 with the
// configured water level.
func NewScene(cfg config.Config, env Environment) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if env == nil {
		env = FlatEnvironment{Water: cfg.Scene.WaterLevel}
	}

	s := &Scene{
		env:        env,
		queue:      taint.NewQueue(),
		actors:     make(map[uint32]stepActor),
		geomActors: make(map[kernel.GeomHandle]uint32),
		geomNames:  make(map[kernel.GeomHandle]string),
	}
	s.events.init()
	s.queue.OnError = s.changeFailed

	s.world = kernel.NewWorld(mgl64.Vec3(cfg.Scene.Gravity), cfg.Scene.CellSize)
	s.world.Terrain = env.TerrainHeightAtXY
	s.world.OnContact = func(c kernel.Contact) {
		s.contacts = append(s.contacts, c)
	}

	s.config.Store(&cfg)
	s.applyConfig()

	return s, nil
}

// SetConfig validates cfg and makes it effective from the next step.
func (s *Scene) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.config.Store(&cfg)
	return nil
}

// Config returns the last accepted configuration.
func (s *Scene) Config() config.Config {
	return *s.config.Load()
}

// SetMesher sets the collaborator building the collision mesh of non-primitive
// prims. Prims created before keep their geometry until reshaped.
func (s *Scene) SetMesher(m Mesher) {
	s.mesher.Store(&m)
}

func (s *Scene) currentMesher() Mesher {
	if m, ok := s.mesher.Load().(*Mesher); ok {
		return *m
	}
	return nil
}

// Subscribe adds a listener for an event type.
func (s *Scene) Subscribe(eventType EventType, listener EventListener) {
	s.events.Subscribe(eventType, listener)
}

func (s *Scene) applyConfig() {
	cfg := s.config.Load()
	if cfg == s.applied {
		return
	}
	if s.applied != nil && s.applied.Scene.CellSize != cfg.Scene.CellSize {
		log.Printf("Scene: cell_size changes need a new scene, keeping %v", s.applied.Scene.CellSize)
	}
	s.world.Gravity = mgl64.Vec3(cfg.Scene.Gravity)
	s.world.Substeps = cfg.Scene.Substeps
	s.world.Workers = cfg.Scene.Workers
	s.world.Friction = cfg.Scene.TerrainFriction
	s.applied = cfg
}

// cfg is the configuration of the running step.
func (s *Scene) cfg() *config.Config {
	return s.applied
}

// Frames returns the number of completed steps.
func (s *Scene) Frames() uint64 {
	return s.steps.Load()
}

// AddPrim creates a prim and queues its construction. Its collision geometry
// exists after the next step.
func (s *Scene) AddPrim(name string, position mgl64.Vec3, orientation mgl64.Quat, profile mass.Profile, size mgl64.Vec3, physical bool) (*Prim, error) {
	if !finiteVec(position) || !finiteQuat(orientation) || !finiteVec(size) {
		return nil, fmt.Errorf("prim %q: %w", name, taint.ErrNonFinite)
	}
	if orientation.Len() == 0 {
		orientation = mgl64.QuatIdent()
	}

	p := newPrim(s, s.nextID.Add(1), name, position, orientation.Normalize(), profile, size)
	if err := s.queue.Enqueue(p, taint.Add, nil); err != nil {
		return nil, err
	}
	if physical {
		p.SetPhysical(true)
	}

	return p, nil
}

// AddCharacter creates an avatar of the given height and queues its
// construction.
func (s *Scene) AddCharacter(name string, position mgl64.Vec3, height float64, flying bool) (*Character, error) {
	if !finiteVec(position) || !finite(height) {
		return nil, fmt.Errorf("character %q: %w", name, taint.ErrNonFinite)
	}

	c := newCharacter(s, s.nextID.Add(1), name, position, height, flying)
	if err := s.queue.Enqueue(c, taint.Add, nil); err != nil {
		return nil, err
	}

	return c, nil
}

// RemoveActor queues the destruction of an actor.
func (s *Scene) RemoveActor(actor PhysicsActor) {
	if err := s.Enqueue(actor, taint.Remove, nil); err != nil {
		log.Printf("Scene: remove %d: %v", actor.LocalID(), err)
	}
}

// Enqueue posts a raw change and reports its rejection, for callers that
// need it; the actor setters drop rejected changes silently.
func (s *Scene) Enqueue(actor PhysicsActor, kind taint.Kind, payload taint.Payload) error {
	target, ok := actor.(taint.Target)
	if !ok {
		return fmt.Errorf("actor %d: %w", actor.LocalID(), ErrUnsupported)
	}
	return s.queue.Enqueue(target, kind, payload)
}

// Actor returns a registered actor.
func (s *Scene) Actor(localID uint32) (PhysicsActor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[localID]
	return a, ok
}

// ActorByGeom returns the actor owning a collision geometry.
func (s *Scene) ActorByGeom(g kernel.GeomHandle) (PhysicsActor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[s.geomActors[g]]
	return a, ok
}

// GeomName returns the name of the actor owning a collision geometry.
func (s *Scene) GeomName(g kernel.GeomHandle) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.geomNames[g]
	return name, ok
}

func (s *Scene) ActorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actors)
}

func (s *Scene) register(a stepActor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[a.LocalID()]; ok {
		return
	}
	s.actors[a.LocalID()] = a
	s.order = append(s.order, a)
}

func (s *Scene) unregister(a stepActor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actors, a.LocalID())
	for i, other := range s.order {
		if other == a {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Scene) registerGeom(g kernel.GeomHandle, localID uint32, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geomActors[g] = localID
	s.geomNames[g] = name
}

func (s *Scene) unregisterGeom(g kernel.GeomHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.geomActors, g)
	delete(s.geomNames, g)
}

// waitSpace applies the space discipline before a geom insert or removal.
// changeFailed logs a rejected change. A kernel error leaves the actor's
// handles in an unknown state, so the actor is frozen like any other native
// failure.
func (s *Scene) changeFailed(r taint.Record, err error) {
	log.Printf("Scene: %v", err)
	if r.Kind == taint.Remove || !nativeFailure(err) {
		return
	}

	reason := fmt.Sprintf("apply %s", r.Kind)
	switch actor := r.Target.(type) {
	case *Prim:
		if !actor.IsFrozen() {
			actor.fail(reason, err)
		}
	case *Character:
		if !actor.IsFrozen() {
			actor.defect(reason, err)
		}
	}
}

func nativeFailure(err error) bool {
	for _, target := range []error{
		kernel.ErrInvalidHandle,
		kernel.ErrBadDimension,
		kernel.ErrSpaceLocked,
		kernel.ErrGeomAttached,
		kernel.ErrNonFinite,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Scene) waitSpace() error {
	if !s.world.WaitSpaceUnlock(spaceUnlockTimeout) {
		return kernel.ErrSpaceLocked
	}
	return nil
}

func (s *Scene) prim(localID uint32) *Prim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.actors[localID].(*Prim)
	return p
}

// Step runs one fixed step: apply queued changes, let actors compute their
// forces, advance the kernel, read the results back and report collisions.
func (s *Scene) Step() {
	s.applyConfig()
	dt := s.cfg().Scene.StepSize

	s.queue.Drain()

	for _, a := range s.order {
		a.move(dt)
	}

	s.contacts = s.contacts[:0]
	if err := s.world.Step(dt); err != nil {
		log.Printf("Scene: step: %v", err)
	}
	s.dispatchContacts()
	s.simTime += dt

	for _, a := range s.order {
		a.updatePositionAndVelocity(dt)
	}
	now := s.simTime * 1000
	for _, a := range s.order {
		a.sendCollisions(now)
	}

	s.events.flush()
	s.steps.Add(1)
}

// dispatchContacts hands every contact of the step to the actors on both
// sides. Terrain and upward facing contacts count as ground.
func (s *Scene) dispatchContacts() {
	for _, a := range s.order {
		a.clearCollisions()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		a := s.actors[s.geomActors[c.GeomA]]
		b := s.actors[s.geomActors[c.GeomB]]

		var idA, idB uint32
		if a != nil {
			idA = a.LocalID()
		}
		if b != nil {
			idB = b.LocalID()
		}

		if b != nil {
			ground := c.GeomA == 0 || c.Normal.Z() > groundNormal
			b.addCollision(idA, c.Position, c.Normal, ground)
		}
		if a != nil {
			inverted := c.Normal.Mul(-1)
			a.addCollision(idB, c.Position, inverted, inverted.Z() > groundNormal)
		}
	}
}

// groundNormal is the minimum Z of a contact normal standing on it.
const groundNormal = 0.7

// Simulate advances the scene by elapsed seconds in fixed steps and returns
// the number of steps run. At most MaxStepsPerFrame steps run per call; the
// remaining time is dropped.
func (s *Scene) Simulate(elapsed float64) int {
	if !finite(elapsed) || elapsed <= 0 {
		return 0
	}
	// a reload takes effect from this frame on
	s.applyConfig()
	cfg := s.cfg()
	step := cfg.Scene.StepSize

	s.accumulator += elapsed
	n := 0
	for s.accumulator >= step && n < cfg.Scene.MaxStepsPerFrame {
		s.Step()
		s.accumulator -= step
		n++
	}
	if s.accumulator >= step {
		s.accumulator = math.Mod(s.accumulator, step)
	}

	return n
}

// Run steps the scene in real time until ctx is done.
func (s *Scene) Run(ctx context.Context) error {
	s.applyConfig()
	interval := s.cfg().Scene.StepSize
	ticker := time.NewTicker(time.Duration(interval * float64(time.Second)))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			s.Simulate(now.Sub(last).Seconds())
			last = now
			if step := s.cfg().Scene.StepSize; step != interval {
				interval = step
				ticker.Reset(time.Duration(interval * float64(time.Second)))
			}
		}
	}
}

// inBounds reports whether a position lies inside the world extents and
// returns the closest position that does.
func (s *Scene) inBounds(p mgl64.Vec3) (mgl64.Vec3, bool) {
	size := s.cfg().Scene.WorldSize
	clamped := mgl64.Vec3{
		math.Min(math.Max(p.X(), 0), size[0]),
		math.Min(math.Max(p.Y(), 0), size[1]),
		math.Min(math.Max(p.Z(), s.cfg().Scene.MinimumZ), size[2]),
	}
	return clamped, clamped == p
}
