package latency

import "sync"

// DefaultWindowSize is the tracker capacity callers use unless they have a
// reason not to. Draft-room sessions are short; a small window already
// stabilizes the estimate.
const DefaultWindowSize = 10

// Stats is a snapshot of the tracker's window, recomputed on every read.
// All fields are zero when the window is empty.
type Stats struct {
	Count     int     `json:"count"`
	AverageMS float64 `json:"average_ms"`
	MinMS     float64 `json:"min_ms"`
	MaxMS     float64 `json:"max_ms"`
	CurrentMS float64 `json:"current_ms"`
}

// Tracker maintains a bounded sliding window of the most recent round-trip
// measurements for a single draft-room session. Capacity is fixed at
// construction and eviction is strict FIFO: when the window is full the
// oldest measurement is dropped first.
//
// A Tracker is safe for concurrent use; the gateway feeds it from pong
// handlers while stats endpoints read it.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	window   []Measurement
}

// NewTracker creates a tracker holding at most capacity measurements.
// Non-positive capacities fall back to DefaultWindowSize.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Tracker{
		capacity: capacity,
		window:   make([]Measurement, 0, capacity),
	}
}

// Add appends a measurement to the window, evicting the oldest entry first
// when the window is at capacity.
func (t *Tracker) Add(m Measurement) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) >= t.capacity {
		copy(t.window, t.window[1:])
		t.window = t.window[:len(t.window)-1]
	}
	t.window = append(t.window, m)
}

// Clear empties the window. Subsequent reads return zero-valued stats until
// a new measurement arrives.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = t.window[:0]
}

// Stats computes count, average, min, max and the most recent RTT over the
// current window. Nothing is cached; every call reflects the window as-is.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == 0 {
		return Stats{}
	}

	var sum float64
	min := t.window[0].RoundTripTimeMS
	max := t.window[0].RoundTripTimeMS
	for _, m := range t.window {
		sum += m.RoundTripTimeMS
		if m.RoundTripTimeMS < min {
			min = m.RoundTripTimeMS
		}
		if m.RoundTripTimeMS > max {
			max = m.RoundTripTimeMS
		}
	}

	return Stats{
		Count:     len(t.window),
		AverageMS: sum / float64(len(t.window)),
		MinMS:     min,
		MaxMS:     max,
		CurrentMS: t.window[len(t.window)-1].RoundTripTimeMS,
	}
}

// EstimatedLatency returns the single scalar used for timer compensation:
// the simple moving average of the window. A plain average is a deliberate
// choice over exponential smoothing - sessions are short-lived, a handful
// of samples stabilizes the estimate, and the window bound already ages out
// stale samples. Returns 0 when no measurements exist.
func (t *Tracker) EstimatedLatency() float64 {
	return t.Stats().AverageMS
}
