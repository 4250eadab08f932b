package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Theeojeong/READNING/internal/clock"
)

const outputChannels = 2

// source is a single-use playable voice over a decoded buffer. It cannot be
// restarted after stop; a fresh source is created for every play.
type source struct {
	mu      sync.Mutex
	buf     *Buffer
	pos     float64 // frame cursor into buf, advanced by the resample step
	loop    bool
	stopped bool
}

func newSource(buf *Buffer, loop bool) *source {
	return &source{buf: buf, loop: loop}
}

// stop marks the source dead. Stopping an already stopped (or naturally
// ended) source is a no-op.
func (s *source) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *source) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// next returns the next stereo frame, advancing the cursor by step source
// frames per output frame. It reports false once the source is exhausted.
func (s *source) next(step float64) (left, right float32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, 0, false
	}

	frames := s.buf.Frames()
	if frames == 0 {
		s.stopped = true
		return 0, 0, false
	}
	if int(s.pos) >= frames {
		if !s.loop {
			s.stopped = true
			return 0, 0, false
		}
		s.pos = math.Mod(s.pos, float64(frames))
	}

	i := int(s.pos) * s.buf.Channels
	left = s.buf.Data[i]
	if s.buf.Channels > 1 {
		right = s.buf.Data[i+1]
	} else {
		right = left
	}
	s.pos += step
	return left, right, true
}

type voice struct {
	src  *source
	gain *Ramp
}

// Engine is the software audio graph: every active voice feeds the shared
// master bus through its own gain. Rendering is pull-based; the output
// device drains Stream() in real time.
type Engine struct {
	mu         sync.Mutex
	sampleRate int
	master     *Ramp
	clk        clock.Clock
	voices     []voice
}

// NewEngine creates an engine rendering at the given sample rate.
func NewEngine(sampleRate int, clk clock.Clock) *Engine {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		sampleRate: sampleRate,
		master:     NewRamp(0),
		clk:        clk,
	}
}

// Master returns the master bus gain. Only the Controller mutates it.
func (e *Engine) Master() *Ramp { return e.master }

// SampleRate returns the output sample rate.
func (e *Engine) SampleRate() int { return e.sampleRate }

func (e *Engine) attach(src *source, gain *Ramp) {
	e.mu.Lock()
	e.voices = append(e.voices, voice{src: src, gain: gain})
	e.mu.Unlock()
}

// Render mixes all active voices into dst (interleaved stereo float32).
// Stopped and exhausted voices are dropped from the graph.
func (e *Engine) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	frames := len(dst) / outputChannels
	if frames == 0 {
		return
	}

	e.mu.Lock()
	active := make([]voice, len(e.voices))
	copy(active, e.voices)
	e.mu.Unlock()

	now := e.clk.Now()
	blockDur := frameDuration(frames, e.sampleRate)
	end := now.Add(blockDur)
	masterStart := e.master.Value(now)
	masterEnd := e.master.Value(end)

	var dead []*source
	for _, v := range active {
		step := float64(v.src.buf.SampleRate) / float64(e.sampleRate)
		gStart := v.gain.Value(now) * masterStart
		gEnd := v.gain.Value(end) * masterEnd
		alive := true
		for f := 0; f < frames; f++ {
			l, r, ok := v.src.next(step)
			if !ok {
				alive = false
				break
			}
			g := gStart
			if frames > 1 {
				g += (gEnd - gStart) * float64(f) / float64(frames-1)
			}
			dst[f*outputChannels] += l * float32(g)
			dst[f*outputChannels+1] += r * float32(g)
		}
		if !alive {
			dead = append(dead, v.src)
		}
	}

	if len(dead) > 0 {
		e.mu.Lock()
		for _, src := range dead {
			e.removeLocked(src)
		}
		e.mu.Unlock()
	}
}

// detach removes a source from the graph.
func (e *Engine) detach(src *source) {
	e.mu.Lock()
	e.removeLocked(src)
	e.mu.Unlock()
}

func (e *Engine) removeLocked(src *source) {
	for i, v := range e.voices {
		if v.src == src {
			e.voices = append(e.voices[:i], e.voices[i+1:]...)
			return
		}
	}
}

// Stream returns a reader producing 16-bit little-endian interleaved stereo
// PCM, suitable for an output device.
func (e *Engine) Stream() io.Reader {
	return &pcmStream{engine: e}
}

type pcmStream struct {
	engine *Engine
	block  []float32
}

func (p *pcmStream) Read(b []byte) (int, error) {
	frames := len(b) / (outputChannels * 2)
	if frames == 0 {
		return 0, nil
	}
	need := frames * outputChannels
	if cap(p.block) < need {
		p.block = make([]float32, need)
	}
	block := p.block[:need]
	p.engine.Render(block)

	for i, s := range block {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(v*32767)))
	}
	return need * 2, nil
}

func frameDuration(frames, sampleRate int) time.Duration {
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}
