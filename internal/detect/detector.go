// Package detect converts raw viewport-geometry samples into a stable,
// debounced "active chunk" identifier suitable for driving audio transitions.
//
// The host reports a Sample whenever a tracked region's geometry changes
// (scroll, resize, intersection). Each pass scores every tracked chunk by
// visibility and by proximity to a sentinel line fixed at a fraction of the
// viewport height; the top-scoring chunk becomes the candidate, and only
// after it has held the top score continuously for the dwell window is it
// committed as active and announced to listeners. The dwell window exists
// specifically to prevent rapid audio flapping during fast scroll-through.
package detect

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Theeojeong/READNING/internal/clock"
)

const (
	// DefaultDwell is the minimum continuous time a candidate must stay
	// top-scoring before it is committed.
	DefaultDwell = 550 * time.Millisecond
	// DefaultSentinelFrac places the sentinel line at 20% of viewport height.
	DefaultSentinelFrac = 0.2

	visibilityWeight = 0.7
	proximityWeight  = 0.3
)

// Sample is one geometry measurement for a tracked chunk. Visibility and
// top-edge offset always arrive together so the two signals cannot go stale
// independently.
type Sample struct {
	// ChunkID identifies the measured region.
	ChunkID string
	// VisibleRatio is the fraction of the region inside the viewport, [0,1].
	VisibleRatio float64
	// TopOffset is the signed pixel distance from the region's top edge to
	// the sentinel line.
	TopOffset float64
	// ViewportHeight is the viewport (or scroll container) height in pixels.
	ViewportHeight float64
}

// Options configures a Detector. Zero values fall back to defaults.
type Options struct {
	Dwell        time.Duration
	SentinelFrac float64
	Clock        clock.Clock
	Logger       *slog.Logger
}

type listener struct {
	id int
	fn func(chunkID string)
}

// Detector tracks chunk regions and emits debounced active-chunk changes.
// All methods are safe for concurrent use; scoring passes are serialized so
// the last reported geometry wins for any given instant.
type Detector struct {
	mu sync.Mutex

	dwell        time.Duration
	sentinelFrac float64
	clk          clock.Clock
	logger       *slog.Logger

	order   []string          // observation order, used for tie-breaking
	samples map[string]Sample // keyed by chunk ID

	candidateID string
	since       time.Time
	dwellTimer  clock.Timer

	activeID string

	listeners    []listener
	nextListener int

	disconnected bool
}

// New creates a Detector.
func New(opts Options) *Detector {
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.SentinelFrac <= 0 {
		opts.SentinelFrac = DefaultSentinelFrac
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Detector{
		dwell:        opts.Dwell,
		sentinelFrac: opts.SentinelFrac,
		clk:          opts.Clock,
		logger:       opts.Logger,
		samples:      make(map[string]Sample),
	}
}

// Observe registers a content region for tracking. An empty chunk ID is
// silently ignored; observing an already tracked ID is a no-op.
func (d *Detector) Observe(chunkID string) {
	if chunkID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disconnected {
		return
	}
	for _, id := range d.order {
		if id == chunkID {
			return
		}
	}
	d.order = append(d.order, chunkID)
}

// Unobserve deregisters a region and purges its samples. If it was the
// candidate, dwell credit is discarded; the committed active ID is retained
// until a different chunk wins a full dwell window.
func (d *Detector) Unobserve(chunkID string) {
	d.mu.Lock()
	delete(d.samples, chunkID)
	for i, id := range d.order {
		if id == chunkID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	if d.candidateID == chunkID {
		d.resetCandidateLocked()
	}
	commit, fns := d.recomputeLocked()
	d.mu.Unlock()

	d.fire(commit, fns)
}

// Report feeds one geometry sample and runs a scoring pass. Samples for
// untracked IDs are ignored.
func (d *Detector) Report(s Sample) {
	d.mu.Lock()
	if d.disconnected || !d.trackedLocked(s.ChunkID) {
		d.mu.Unlock()
		return
	}
	d.samples[s.ChunkID] = s
	commit, fns := d.recomputeLocked()
	d.mu.Unlock()

	d.fire(commit, fns)
}

// OnChange registers a listener invoked exactly once per committed
// active-chunk change, in registration order. The returned function
// unsubscribes the listener and is safe to call more than once.
func (d *Detector) OnChange(fn func(chunkID string)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextListener
	d.nextListener++
	d.listeners = append(d.listeners, listener{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, l := range d.listeners {
			if l.id == id {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// Active returns the committed active chunk ID, or "" if none has been
// committed yet.
func (d *Detector) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeID
}

// Disconnect stops all observation and releases listeners. Idempotent.
func (d *Detector) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disconnected {
		return
	}
	d.disconnected = true
	d.resetCandidateLocked()
	d.order = nil
	d.samples = make(map[string]Sample)
	d.listeners = nil
}

func (d *Detector) trackedLocked(chunkID string) bool {
	for _, id := range d.order {
		if id == chunkID {
			return true
		}
	}
	return false
}

func (d *Detector) resetCandidateLocked() {
	d.candidateID = ""
	if d.dwellTimer != nil {
		d.dwellTimer.Stop()
		d.dwellTimer = nil
	}
}

// recomputeLocked runs one scoring pass. It returns the chunk ID to announce
// (or "") and a snapshot of the listeners to invoke outside the lock.
func (d *Detector) recomputeLocked() (string, []func(string)) {
	if len(d.order) == 0 {
		return "", nil
	}

	// With every tracked chunk fully out of view there is no meaningful
	// winner; retain the last active chunk and emit nothing.
	anyVisible := false
	for _, s := range d.samples {
		if s.VisibleRatio > 0 {
			anyVisible = true
			break
		}
	}
	if !anyVisible {
		return "", nil
	}

	winner := ""
	best := -1.0
	for _, id := range d.order {
		s, ok := d.samples[id]
		if !ok {
			continue
		}
		sc := score(s, d.sentinelFrac)
		switch {
		case sc > best:
			best = sc
			winner = id
		case sc == best && id == d.candidateID:
			// Exact tie with the current candidate: the candidate keeps
			// its position (first winner in observation order otherwise).
			winner = id
		}
	}
	if winner == "" {
		return "", nil
	}

	now := d.clk.Now()
	if winner != d.candidateID {
		d.resetCandidateLocked()
		d.candidateID = winner
		d.since = now
		// Commit happens at the dwell deadline even if no further geometry
		// arrives, so the timer re-checks then.
		d.dwellTimer = d.clk.AfterFunc(d.dwell, d.onDwellElapsed)
		return "", nil
	}

	if now.Sub(d.since) >= d.dwell && d.candidateID != d.activeID {
		return d.commitLocked()
	}
	return "", nil
}

func (d *Detector) onDwellElapsed() {
	d.mu.Lock()
	if d.disconnected || d.candidateID == "" || d.candidateID == d.activeID {
		d.mu.Unlock()
		return
	}
	if d.clk.Now().Sub(d.since) < d.dwell {
		d.mu.Unlock()
		return
	}
	commit, fns := d.commitLocked()
	d.mu.Unlock()

	d.fire(commit, fns)
}

func (d *Detector) commitLocked() (string, []func(string)) {
	d.activeID = d.candidateID
	fns := make([]func(string), len(d.listeners))
	for i, l := range d.listeners {
		fns[i] = l.fn
	}
	d.logger.Debug("active chunk committed", slog.String("chunk_id", d.activeID))
	return d.activeID, fns
}

func (d *Detector) fire(chunkID string, fns []func(string)) {
	if chunkID == "" {
		return
	}
	for _, fn := range fns {
		fn(chunkID)
	}
}

// score combines visibility and sentinel-line proximity:
//
//	0.7*visibleRatio + 0.3*clamp(1 - |top| / (frac*viewportHeight + 1), 0, 1)
func score(s Sample, sentinelFrac float64) float64 {
	span := sentinelFrac*s.ViewportHeight + 1
	dist := s.TopOffset
	if dist < 0 {
		dist = -dist
	}
	prox := 1 - dist/span
	if prox < 0 {
		prox = 0
	} else if prox > 1 {
		prox = 1
	}
	return visibilityWeight*s.VisibleRatio + proximityWeight*prox
}
