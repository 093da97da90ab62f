package kernel

import (
	"sync/atomic"
	"testing"
)

func TestParallel_VisitsEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 8, 64} {
		for _, n := range []int{0, 1, 7, 100} {
			visits := make([]atomic.Int32, n)
			parallel(workers, n, func(i int) {
				visits[i].Add(1)
			})
			for i := range visits {
				if got := visits[i].Load(); got != 1 {
					t.Errorf("workers=%d n=%d: index %d visited %d times", workers, n, i, got)
				}
			}
		}
	}
}
