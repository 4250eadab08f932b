// Package manifest defines the reading-session manifest: the ordered list of
// text chunks and their generated ambient tracks. A manifest is loaded once
// per session, validated at the load boundary, and treated as immutable
// afterwards.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
)

// Static errors for manifest loading.
var (
	// ErrEmptyManifest is returned when a manifest contains no chunks.
	ErrEmptyManifest = errors.New("manifest: no chunks")
	// ErrDuplicateChunkID is returned when two chunks share an ID.
	ErrDuplicateChunkID = errors.New("manifest: duplicate chunk id")
)

// Chunk is one unit of reading content paired with an ambient track.
// ID must be stable across reloads; FadeMs, when present, overrides the
// controller's default crossfade duration for transitions into this chunk.
type Chunk struct {
	ID       string  `json:"id" validate:"required"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text" validate:"required"`
	Emotion  string  `json:"emotion,omitempty"`
	AudioURL string  `json:"audioUrl" validate:"required"`
	FadeMs   int     `json:"fadeMs,omitempty" validate:"omitempty,gt=0"`
	Duration float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
}

// Manifest is the ordered chunk list for one reading session.
type Manifest struct {
	Title  string  `json:"title"`
	Chunks []Chunk `json:"chunks" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Parse decodes and validates a manifest from JSON. It fails fast on a
// structurally invalid manifest so that missing audio URLs or IDs never
// reach playback logic.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if len(m.Chunks) == 0 {
		return nil, ErrEmptyManifest
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("manifest: validate: %w", err)
	}

	seen := make(map[string]struct{}, len(m.Chunks))
	for _, c := range m.Chunks {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChunkID, c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	return &m, nil
}

// Load reads and parses a manifest from a local file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Fetch retrieves and parses a manifest over HTTP. A nil client falls back
// to http.DefaultClient.
func Fetch(ctx context.Context, url string, client *http.Client) (*Manifest, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest: fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return Parse(resp.Body)
}

// Index returns the position of the chunk with the given ID.
func (m *Manifest) Index(id string) (int, bool) {
	for i, c := range m.Chunks {
		if c.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Chunk returns the chunk with the given ID.
func (m *Manifest) Chunk(id string) (Chunk, bool) {
	if i, ok := m.Index(id); ok {
		return m.Chunks[i], true
	}
	return Chunk{}, false
}

// AudioURLs returns the chunk audio URLs in manifest order, for neighbor
// preloading.
func (m *Manifest) AudioURLs() []string {
	urls := make([]string, len(m.Chunks))
	for i, c := range m.Chunks {
		urls[i] = c.AudioURL
	}
	return urls
}
