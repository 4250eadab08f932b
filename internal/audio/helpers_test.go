package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// makeWAV builds a PCM16 WAV file with the given frames of a constant
// sample value.
func makeWAV(frames, channels, sampleRate int, value int16) []byte {
	dataSize := frames * channels * 2
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < frames*channels; i++ {
		binary.Write(&buf, binary.LittleEndian, value)
	}
	return buf.Bytes()
}

// fakeFetcher serves canned WAV bytes per URL and records every fetch.
type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  map[string]bool
	calls []string
	gate  chan struct{} // when set, Fetch blocks until the gate closes
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data: make(map[string][]byte),
		fail: make(map[string]bool),
	}
}

func (f *fakeFetcher) add(url string, wav []byte) { f.data[url] = wav }

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gate
	failing := f.fail[url]
	body, ok := f.data[url]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failing || !ok {
		return nil, errors.New("fetch failed")
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) calledURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeOutput counts device starts.
type fakeOutput struct {
	mu     sync.Mutex
	starts int
}

func (o *fakeOutput) Start(ctx context.Context, stream io.Reader) error {
	o.mu.Lock()
	o.starts++
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Close() error { return nil }

func (o *fakeOutput) startCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.starts
}
