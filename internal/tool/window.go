package tool

import (
	"slices"
	"sync"
)

const defaultWindowSize = 100

// rollingWindow keeps the last size call latencies and their error flags in a
// ring buffer. All methods are safe for concurrent use.
type rollingWindow struct {
	mu      sync.Mutex
	samples []int64
	failed  []bool
	pos     int
	count   int
	size    int
}

func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &rollingWindow{
		samples: make([]int64, size),
		failed:  make([]bool, size),
		size:    size,
	}
}

// Record overwrites the oldest slot once the buffer is full.
func (w *rollingWindow) Record(latencyMs int64, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = latencyMs
	w.failed[w.pos] = isError
	w.pos = (w.pos + 1) % w.size
	w.count++
}

func (w *rollingWindow) windowLen() int {
	return min(w.count, w.size)
}

func (w *rollingWindow) sorted() []int64 {
	n := w.windowLen()
	if n == 0 {
		return nil
	}
	cp := slices.Clone(w.samples[:n])
	slices.Sort(cp)
	return cp
}

// P50 returns the median latency in ms, or 0 with no samples.
func (w *rollingWindow) P50() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.sorted()
	if len(s) == 0 {
		return 0
	}
	return s[len(s)/2]
}

// P99 returns the 99th-percentile latency in ms, or 0 with no samples.
func (w *rollingWindow) P99() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.sorted()
	if len(s) == 0 {
		return 0
	}
	return s[int(float64(len(s)-1)*0.99)]
}

// ErrorRate returns the fraction of failed calls in the window.
func (w *rollingWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.windowLen()
	if n == 0 {
		return 0
	}
	errs := 0
	for _, f := range w.failed[:n] {
		if f {
			errs++
		}
	}
	return float64(errs) / float64(n)
}

// Count returns the total number of calls recorded, including evicted ones.
func (w *rollingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
