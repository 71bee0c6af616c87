package ops

import (
	"sync"
	"sync/atomic"
)

var convWorkers atomic.Int32

// SetConvWorkers bounds the goroutines the convolution and attention kernels
// split output channels (or heads) across. n <= 1 runs them on the caller.
func SetConvWorkers(n int) {
	convWorkers.Store(int32(max(1, min(n, 1<<10))))
}

// ConvWorkers reports the current bound.
func ConvWorkers() int { return max(1, int(convWorkers.Load())) }

// splitWork runs fn over [0, n) in at most ConvWorkers contiguous ranges.
func splitWork(n int, fn func(lo, hi int)) {
	w := min(ConvWorkers(), n)
	if w <= 1 {
		fn(0, n)
		return
	}

	step := (n + w - 1) / w
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += step {
		hi := min(lo+step, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(lo, hi)
		}()
	}
	wg.Wait()
}
