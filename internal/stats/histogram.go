package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SafeHistogram is a thread-safe wrapper around hdrhistogram
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1us to 10min, 3 significant figures
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &SafeHistogram{hist: h}
}

// RecordValue records a latency in microseconds
func (h *SafeHistogram) RecordValue(v int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.RecordValue(v)
}

// RecordMs records a millisecond latency as reported by the generator.
// Values outside 1us..10min are clamped to the nearest bound; the result says
// whether that happened.
func (h *SafeHistogram) RecordMs(ms float64) (clamped bool) {
	us := int64(ms*1000 + 0.5)
	h.mu.Lock()
	defer h.mu.Unlock()
	lo, hi := h.hist.LowestTrackableValue(), h.hist.HighestTrackableValue()
	switch {
	case us < lo:
		us = lo
	case us > hi:
		us, clamped = hi, true
	}
	if err := h.hist.RecordValue(us); err != nil {
		// clamped above, so out of range cannot happen
		panic(fmt.Sprintf("recording %dus: %s", us, err))
	}
	return clamped
}

// QuantileMs is ValueAtQuantile converted back to milliseconds
func (h *SafeHistogram) QuantileMs(q float64) float64 {
	return float64(h.ValueAtQuantile(q)) / 1000.0
}

func (h *SafeHistogram) MaxMs() float64 {
	return float64(h.Max()) / 1000.0
}

func (h *SafeHistogram) ValueAtQuantile(q float64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.ValueAtQuantile(q)
}

func (h *SafeHistogram) Max() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Max()
}
