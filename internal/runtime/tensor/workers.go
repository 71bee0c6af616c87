package tensor

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var workers atomic.Int32

func init() { workers.Store(1) }

// SetWorkers bounds the goroutines Linear splits its rows across. n < 1
// means one; n is capped at GOMAXPROCS.
func SetWorkers(n int) {
	n = max(1, min(n, runtime.GOMAXPROCS(0)))
	workers.Store(int32(n))
}

// Workers reports the current SetWorkers bound.
func Workers() int { return int(workers.Load()) }

// minRowsPerWorker keeps tiny matrices on the calling goroutine.
const minRowsPerWorker = 8

// eachRange runs fn over [0, n) in contiguous ranges, one per worker.
func eachRange(n int, fn func(lo, hi int)) {
	w := min(Workers(), n/minRowsPerWorker)
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
