// Package audio implements the crossfading ambient playback engine: decoded
// track buffers, linear gain automation, a software mixing graph with a
// single master bus, and the Controller that owns track lifecycle, crossfade
// transitions, neighbor preloading and the user-gesture unlock gate.
package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when decoded data is not a usable WAV stream.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// Buffer holds decoded PCM samples as interleaved float32 in [-1,1].
// Once attached to a track entry the buffer is owned by that entry and
// never mutated.
type Buffer struct {
	Data       []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// DecodeWAV decodes a WAV stream into a Buffer. The backend generates
// 16-bit PCM WAV files; other bit depths supported by the decoder are
// normalized the same way.
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, ErrInvalidWAV
	}

	bitDepth := pcm.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInvalidWAV, bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))

	data := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		data[i] = float32(v) / scale
	}

	return &Buffer{
		Data:       data,
		Channels:   pcm.Format.NumChannels,
		SampleRate: pcm.Format.SampleRate,
	}, nil
}
