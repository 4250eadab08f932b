package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Theeojeong/READNING/internal/clock"
)

// Defaults for controller timing.
const (
	// DefaultFade is the crossfade duration used when a chunk carries no
	// override.
	DefaultFade = 600 * time.Millisecond
	// DefaultStopFade is the fade-out used by StopAll.
	DefaultStopFade = 300 * time.Millisecond
	// volumeRampDur is the short ramp applied by SetVolume and Mute to
	// avoid audible clicks.
	volumeRampDur = 150 * time.Millisecond
	// stopMargin is the safety margin added after a fade-out before the
	// outgoing source is stopped and discarded.
	stopMargin = 30 * time.Millisecond
)

// Fetcher retrieves raw audio data for a track URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// TrackRef pairs a chunk ID with its audio URL, in manifest order.
type TrackRef struct {
	ID  string
	URL string
}

type trackState int

const (
	trackUnloaded trackState = iota
	trackLoading
	trackStopped
	trackPlaying
)

// track is the controller-owned entry for one chunk's audio. The buffer and
// gain are exclusively owned by the entry; the source exists only while
// actively playing and is recreated on every play.
type track struct {
	id        string
	state     trackState
	buf       *Buffer
	gain      *Ramp
	src       *source
	stopTimer clock.Timer
	loadDone  chan struct{} // closed when an in-flight load settles
}

// Controller plays exactly one current ambient, looping track at a time,
// transitioning between tracks with simultaneous linear fades. It owns all
// track entries and the master bus; nothing it does under normal operation
// surfaces an error to the host beyond a log line and silence.
type Controller struct {
	mu sync.Mutex

	engine  *Engine
	output  Output
	fetcher Fetcher
	clk     clock.Clock
	logger  *slog.Logger

	fade time.Duration

	tracks     map[string]*track
	currentID  string
	unlocked   bool
	autoSwitch bool
	volume     float64 // last requested master level; Mute does not change it
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock sets the clock used for ramps and stop scheduling.
func WithClock(clk clock.Clock) ControllerOption {
	return func(c *Controller) { c.clk = clk }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithDefaultFade sets the crossfade duration used when no override is given.
func WithDefaultFade(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.fade = d
		}
	}
}

// WithVolume sets the initial master level applied on unlock.
func WithVolume(v float64) ControllerOption {
	return func(c *Controller) { c.volume = clampUnit(v) }
}

// NewController creates a Controller over an engine, an output device and a
// fetcher. No audio is audible until Unlock is called.
func NewController(engine *Engine, output Output, fetcher Fetcher, opts ...ControllerOption) *Controller {
	c := &Controller{
		engine:     engine,
		output:     output,
		fetcher:    fetcher,
		clk:        clock.New(),
		logger:     slog.Default(),
		fade:       DefaultFade,
		tracks:     make(map[string]*track),
		autoSwitch: true,
		volume:     1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unlock enables playback. It must be called from (or as a direct
// continuation of) a user gesture on platforms that gate autoplay.
// Idempotent; calling it again is a no-op.
func (c *Controller) Unlock(ctx context.Context) error {
	c.mu.Lock()
	if c.unlocked {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.output.Start(ctx, c.engine.Stream()); err != nil {
		return fmt.Errorf("audio: unlock: %w", err)
	}

	c.mu.Lock()
	c.unlocked = true
	c.engine.Master().Set(c.volume)
	c.mu.Unlock()

	c.logger.Info("audio unlocked")
	return nil
}

// Enabled reports whether Unlock has completed.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked
}

// SetVolume ramps the master gain to v over a short duration. Out-of-range
// values are clamped to [0,1]; the clamped value becomes the stored
// preferred level.
func (c *Controller) SetVolume(v float64) {
	v = clampUnit(v)
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
	c.engine.Master().RampTo(v, volumeRampDur, c.clk.Now())
}

// Volume returns the stored preferred master level. Mute leaves it
// untouched, so a host can restore it afterwards.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Mute ramps the master gain to zero without altering the stored preferred
// level. Unmuting is the host's job: SetVolume(Volume()).
func (c *Controller) Mute() {
	c.engine.Master().RampTo(0, volumeRampDur, c.clk.Now())
}

// SetAutoSwitch toggles whether the host should react to active-chunk
// changes. The flag is advisory; the controller never consults it itself.
func (c *Controller) SetAutoSwitch(enabled bool) {
	c.mu.Lock()
	c.autoSwitch = enabled
	c.mu.Unlock()
}

// AutoSwitch reports the advisory auto-switch flag.
func (c *Controller) AutoSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSwitch
}

// CurrentID returns the id of the most recently requested track, or "".
func (c *Controller) CurrentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// EnsureLoaded fetches and decodes a track if it is not already loaded or
// loading. Concurrent calls for the same id share a single load. Before
// unlock the call is dropped (there is no graph to decode into); callers
// that preload early must retry after unlock. Load failures are logged and
// leave the track unloaded.
func (c *Controller) EnsureLoaded(ctx context.Context, id, url string) error {
	c.mu.Lock()
	if !c.unlocked {
		c.mu.Unlock()
		return nil
	}

	t, ok := c.tracks[id]
	if ok {
		switch t.state {
		case trackLoading:
			done := t.loadDone
			c.mu.Unlock()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case trackStopped, trackPlaying:
			c.mu.Unlock()
			return nil
		case trackUnloaded:
			// Previous load failed; retry below.
		}
	} else {
		t = &track{id: id, gain: NewRamp(0)}
		c.tracks[id] = t
	}
	t.state = trackLoading
	t.loadDone = make(chan struct{})
	c.mu.Unlock()

	buf, err := c.load(ctx, url)

	c.mu.Lock()
	if err != nil {
		t.state = trackUnloaded
		c.logger.Warn("track load failed",
			slog.String("track_id", id),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	} else {
		t.buf = buf
		t.state = trackStopped
		c.logger.Debug("track loaded",
			slog.String("track_id", id),
			slog.Int("frames", buf.Frames()),
		)
	}
	close(t.loadDone)
	c.mu.Unlock()

	return err
}

func (c *Controller) load(ctx context.Context, url string) (*Buffer, error) {
	rc, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return DecodeWAV(bytes.NewReader(raw))
}

// Play makes the track with the given id current, crossfading from whatever
// was playing before. fade <= 0 selects the controller default. A missing
// or failed track, or a locked controller, results in silence rather than
// an error: the reading experience continues without audio.
func (c *Controller) Play(ctx context.Context, id, url string, fade time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.EnsureLoaded(ctx, id, url); err != nil {
		return
	}

	c.mu.Lock()
	t := c.tracks[id]
	if t == nil || t.buf == nil {
		c.mu.Unlock()
		return
	}
	if fade <= 0 {
		fade = c.fade
	}
	now := c.clk.Now()

	// currentID reflects "requested current" immediately, not "audibly
	// dominant".
	prevID := c.currentID
	c.currentID = id

	if prevID != "" && prevID != id {
		if prev := c.tracks[prevID]; prev != nil {
			c.fadeOutLocked(prev, fade)
		}
	}

	// A pending stop for this track belongs to a superseded transition.
	if t.stopTimer != nil {
		t.stopTimer.Stop()
		t.stopTimer = nil
	}

	if t.src == nil || t.src.isStopped() {
		// Sources are single-use: always a fresh one, started at zero gain.
		t.src = newSource(t.buf, true)
		c.engine.attach(t.src, t.gain)
	}
	t.state = trackPlaying
	t.gain.RampTo(1, fade, now)
	c.mu.Unlock()

	c.logger.Debug("track playing",
		slog.String("track_id", id),
		slog.Duration("fade", fade),
	)
}

// fadeOutLocked ramps a track to silence and schedules its source to stop
// after the fade plus a safety margin. The scheduled stop verifies, under
// the controller lock and before touching the source, that it is still the
// pending stop for that source: a timer that expired just as a new Play
// re-adopted the fading source must do nothing.
func (c *Controller) fadeOutLocked(t *track, fade time.Duration) {
	if t.state == trackLoading || t.state == trackUnloaded {
		return
	}
	if t.src == nil || t.src.isStopped() {
		t.state = trackStopped
		t.src = nil
		return
	}

	now := c.clk.Now()
	t.gain.RampTo(0, fade, now)

	if t.stopTimer != nil {
		t.stopTimer.Stop()
	}
	src := t.src
	var timer clock.Timer
	timer = c.clk.AfterFunc(fade+stopMargin, func() {
		c.mu.Lock()
		if t.src != src || t.stopTimer != timer {
			c.mu.Unlock()
			return
		}
		t.src = nil
		t.state = trackStopped
		t.stopTimer = nil
		c.mu.Unlock()

		src.stop()
		c.engine.detach(src)
	})
	t.stopTimer = timer
}

// StopAll fades out and stops every playing track. fade <= 0 selects the
// 300ms default. The current track id is cleared.
func (c *Controller) StopAll(fade time.Duration) {
	if fade <= 0 {
		fade = DefaultStopFade
	}
	c.mu.Lock()
	for _, t := range c.tracks {
		c.fadeOutLocked(t, fade)
	}
	c.currentID = ""
	c.mu.Unlock()
}

// PreloadNeighbors loads the tracks at activeIndex-1, activeIndex and
// activeIndex+1 (clamped to the list bounds) in parallel. Failures are
// isolated per neighbor: one bad URL never blocks the others.
func (c *Controller) PreloadNeighbors(ctx context.Context, tracks []TrackRef, activeIndex int) {
	if len(tracks) == 0 {
		return
	}

	lo := activeIndex - 1
	if lo < 0 {
		lo = 0
	}
	hi := activeIndex + 1
	if hi > len(tracks)-1 {
		hi = len(tracks) - 1
	}
	if lo > hi {
		return
	}

	var wg sync.WaitGroup
	for i := lo; i <= hi; i++ {
		ref := tracks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Errors already logged by EnsureLoaded; a failed neighbor
			// simply stays unloaded.
			_ = c.EnsureLoaded(ctx, ref.ID, ref.URL)
		}()
	}
	wg.Wait()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
