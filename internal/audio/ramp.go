package audio

import (
	"sync"
	"time"
)

// Ramp is a linearly automated gain parameter. Scheduling a new ramp first
// cancels any in-flight automation and snapshots the current value as the
// new start point, so overlapping transitions never produce discontinuities.
type Ramp struct {
	mu      sync.Mutex
	value   float64 // value at ramp start, or the settled value
	target  float64
	start   time.Time
	end     time.Time
	ramping bool
}

// NewRamp creates a gain parameter settled at v.
func NewRamp(v float64) *Ramp {
	return &Ramp{value: v}
}

// Value returns the gain at the given instant. It never mutates the ramp:
// renderers peek at future instants (block ends), and a peek must not
// settle automation that is still in flight.
func (r *Ramp) Value(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valueLocked(now)
}

func (r *Ramp) valueLocked(now time.Time) float64 {
	if !r.ramping {
		return r.value
	}
	if !now.Before(r.end) {
		return r.target
	}
	if !now.After(r.start) {
		return r.value
	}
	frac := float64(now.Sub(r.start)) / float64(r.end.Sub(r.start))
	return r.value + (r.target-r.value)*frac
}

// RampTo schedules a linear ramp from the current value to target over d,
// replacing any automation already in flight.
func (r *Ramp) RampTo(target float64, d time.Duration, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Cancellation before schedule: the current value becomes the new start.
	cur := r.valueLocked(now)
	if d <= 0 {
		r.value = target
		r.ramping = false
		return
	}
	r.value = cur
	r.target = target
	r.start = now
	r.end = now.Add(d)
	r.ramping = true
}

// Set forces the gain to v immediately, cancelling any ramp.
func (r *Ramp) Set(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = v
	r.ramping = false
}

// Settled reports whether no automation is in flight at the given instant.
func (r *Ramp) Settled(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ramping {
		return true
	}
	return !now.Before(r.end)
}
