package kernel

import (
	"math"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// CellKey is the integer coordinate of a grid cell
type CellKey struct {
	X, Y, Z int
}

// Cell holds indices into Space.members
type Cell struct {
	indices []int
}

// Pair is a pair of geoms whose bounds overlap
type Pair struct {
	A *geom
	B *geom
}

// Space is the broad-phase partition holding every geom of a World: a
// uniform hashed grid rebuilt each step. Insertion and removal are refused
// while the space is locked by a running collide phase.
type Space struct {
	cellSize float64
	cells    []Cell
	cellMask int

	members []*geom
	index   map[*geom]int

	locked atomic.Bool
}

// NewSpace creates a space whose grid holds numCells buckets (rounded to a
// power of two) of cellSize metres.
func NewSpace(cellSize float64, numCells int) *Space {
	numCells = nextPowerOfTwo(numCells)

	cells := make([]Cell, numCells)
	for i := range cells {
		cells[i].indices = make([]int, 0, 8)
	}

	return &Space{
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
		index:    make(map[*geom]int),
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// Locked reports whether a collide phase currently owns the space.
func (s *Space) Locked() bool {
	return s.locked.Load()
}

func (s *Space) lock()   { s.locked.Store(true) }
func (s *Space) unlock() { s.locked.Store(false) }

// waitUnlock spins until the space is unlocked or the timeout elapses.
func (s *Space) waitUnlock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for s.locked.Load() {
		if time.Now().After(deadline) {
			return false
		}
		runtime.Gosched()
	}
	return true
}

// Len returns the number of geoms in the space.
func (s *Space) Len() int {
	return len(s.members)
}

func (s *Space) insert(g *geom) {
	if _, ok := s.index[g]; ok {
		return
	}
	s.index[g] = len(s.members)
	s.members = append(s.members, g)
}

func (s *Space) remove(g *geom) {
	i, ok := s.index[g]
	if !ok {
		return
	}
	last := len(s.members) - 1
	s.members[i] = s.members[last]
	s.index[s.members[i]] = i
	s.members = s.members[:last]
	delete(s.index, g)
}

func (s *Space) clear() {
	for i := range s.cells {
		s.cells[i].indices = s.cells[i].indices[:0]
	}
}

func (s *Space) rebuild() {
	s.clear()
	for i, g := range s.members {
		minCell := s.worldToCell(g.aabb.Min)
		maxCell := s.worldToCell(g.aabb.Max)

		for x := minCell.X; x <= maxCell.X; x++ {
			for y := minCell.Y; y <= maxCell.Y; y++ {
				for z := minCell.Z; z <= maxCell.Z; z++ {
					cellIdx := s.hashCell(CellKey{x, y, z})
					s.cells[cellIdx].indices = append(s.cells[cellIdx].indices, i)
				}
			}
		}
	}
	for i := range s.cells {
		if len(s.cells[i].indices) > 1 {
			sort.Ints(s.cells[i].indices)
		}
	}
}

// findPairs returns overlapping pairs accepted by the filter, each pair once.
func (s *Space) findPairs(accept func(a, b *geom) bool) []Pair {
	s.rebuild()

	pairs := make([]Pair, 0, len(s.members)/2)
	seen := make([]bool, len(s.members))

	for idx, a := range s.members {
		clear(seen)

		minCell := s.worldToCell(a.aabb.Min)
		maxCell := s.worldToCell(a.aabb.Max)

		for x := minCell.X; x <= maxCell.X; x++ {
			for y := minCell.Y; y <= maxCell.Y; y++ {
				for z := minCell.Z; z <= maxCell.Z; z++ {
					cellIdx := s.hashCell(CellKey{x, y, z})

					for _, otherIdx := range s.cells[cellIdx].indices {
						// Avoid duplicates
						if otherIdx <= idx || seen[otherIdx] {
							continue
						}
						seen[otherIdx] = true

						b := s.members[otherIdx]
						if !a.aabb.Overlaps(b.aabb) || !accept(a, b) {
							continue
						}
						pairs = append(pairs, Pair{A: a, B: b})
					}
				}
			}
		}
	}

	return pairs
}

func (s *Space) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(pos.X() / s.cellSize)),
		Y: int(math.Floor(pos.Y() / s.cellSize)),
		Z: int(math.Floor(pos.Z() / s.cellSize)),
	}
}

func (s *Space) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & s.cellMask
}
