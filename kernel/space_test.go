package kernel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestWorldToCell(t *testing.T) {
	space := NewSpace(1.0, 16)

	tests := []struct {
		name     string
		position mgl64.Vec3
		expected CellKey
	}{
		{"origin", mgl64.Vec3{0, 0, 0}, CellKey{0, 0, 0}},
		{"positive", mgl64.Vec3{1.5, 2.3, 3.7}, CellKey{1, 2, 3}},
		{"negative", mgl64.Vec3{-1.5, -2.3, -3.7}, CellKey{-2, -3, -4}},
		{"fractional", mgl64.Vec3{0.5, 0.5, 0.5}, CellKey{0, 0, 0}},
		{"large", mgl64.Vec3{100.7, -200.3, 50.1}, CellKey{100, -201, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := space.worldToCell(tt.position)
			if result != tt.expected {
				t.Errorf("worldToCell(%v) = %v, want %v", tt.position, result, tt.expected)
			}
		})
	}
}

func TestHashCellInRange(t *testing.T) {
	space := NewSpace(1.0, 100) // rounded up to 128

	if len(space.cells) != 128 {
		t.Fatalf("cells = %d, want 128", len(space.cells))
	}
	for x := -20; x <= 20; x++ {
		for y := -20; y <= 20; y++ {
			h := space.hashCell(CellKey{x, y, x - y})
			if h < 0 || h >= len(space.cells) {
				t.Fatalf("hashCell out of range: %d", h)
			}
		}
	}
}

func TestSpace_InsertRemove(t *testing.T) {
	space := NewSpace(1.0, 16)
	a := &geom{handle: 1}
	b := &geom{handle: 2}
	c := &geom{handle: 3}

	space.insert(a)
	space.insert(b)
	space.insert(c)
	space.insert(b)
	if space.Len() != 3 {
		t.Fatalf("Len = %d, want 3", space.Len())
	}

	space.remove(a)
	space.remove(a)
	if space.Len() != 2 {
		t.Fatalf("Len = %d, want 2", space.Len())
	}
	for g, i := range space.index {
		if space.members[i] != g {
			t.Errorf("index of geom %d is stale", g.handle)
		}
	}
}

func TestSpace_FindPairsOnce(t *testing.T) {
	space := NewSpace(1.0, 64)
	// a box spanning many cells overlapping a small one
	big := &geom{handle: 1, aabb: AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{4, 4, 4}}}
	small := &geom{handle: 2, aabb: AABB{Min: mgl64.Vec3{1, 1, 1}, Max: mgl64.Vec3{3, 3, 3}}}
	far := &geom{handle: 3, aabb: AABB{Min: mgl64.Vec3{10, 10, 10}, Max: mgl64.Vec3{11, 11, 11}}}
	space.insert(big)
	space.insert(small)
	space.insert(far)

	pairs := space.findPairs(func(a, b *geom) bool { return true })
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	if pairs[0].A != big || pairs[0].B != small {
		t.Errorf("unexpected pair %d/%d", pairs[0].A.handle, pairs[0].B.handle)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 3: 4, 16: 16, 17: 32, 1000: 1024}
	for in, want := range tests {
		if got := nextPowerOfTwo(in); got != want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}
