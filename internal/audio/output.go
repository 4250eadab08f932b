package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

// Output is the playback device behind the engine. Start begins draining
// the PCM stream; it corresponds to resuming the platform audio context and
// is only invoked from Controller.Unlock.
type Output interface {
	// Start begins real-time playback of the stream. It blocks until the
	// device is ready or ctx is done. Idempotent.
	Start(ctx context.Context, stream io.Reader) error

	// Close stops playback and releases the device. Idempotent.
	Close() error
}

// OtoOutput plays the engine stream on the system audio device via oto.
type OtoOutput struct {
	mu         sync.Mutex
	sampleRate int
	ctx        *oto.Context
	player     oto.Player
	started    bool
}

// NewOtoOutput creates an output for the given sample rate.
func NewOtoOutput(sampleRate int) *OtoOutput {
	return &OtoOutput{sampleRate: sampleRate}
}

// Start initializes the oto context on first use and begins playback.
func (o *OtoOutput) Start(ctx context.Context, stream io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}

	otoCtx, ready, err := oto.NewContext(o.sampleRate, outputChannels, 2)
	if err != nil {
		return fmt.Errorf("audio: open output: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return fmt.Errorf("audio: output not ready: %w", ctx.Err())
	}

	o.ctx = otoCtx
	o.player = otoCtx.NewPlayer(stream)
	o.player.Play()
	o.started = true
	return nil
}

// Close stops the player.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	o.started = false
	return err
}

// NullOutput is a no-op device for tests and silent sessions; the graph
// state (gains, sources, current track) behaves identically without any
// real-time rendering.
type NullOutput struct{}

// Start implements Output.
func (NullOutput) Start(ctx context.Context, stream io.Reader) error { return nil }

// Close implements Output.
func (NullOutput) Close() error { return nil }
