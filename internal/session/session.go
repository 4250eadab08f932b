// Package session composes a reading session: it owns the manifest, wires
// active-chunk changes from the detector into crossfade transitions on the
// controller, and handles the unlock handshake. It is the thin host layer
// between the UI shell and the playback core.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Theeojeong/READNING/internal/audio"
	"github.com/Theeojeong/READNING/internal/detect"
	"github.com/Theeojeong/READNING/internal/manifest"
)

// Session drives one reading of one manifest.
type Session struct {
	// ID identifies this session in logs.
	ID string

	mu       sync.Mutex
	ctx      context.Context
	manifest *manifest.Manifest
	detector *detect.Detector
	ctrl     *audio.Controller
	logger   *slog.Logger
	refs     []audio.TrackRef
	unsub    func()
	closed   bool
}

// New creates a session over an already constructed detector and controller.
// Every manifest chunk is registered with the detector, and committed
// active-chunk changes start crossfades when auto-switch is enabled.
func New(ctx context.Context, m *manifest.Manifest, det *detect.Detector, ctrl *audio.Controller, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	refs := make([]audio.TrackRef, len(m.Chunks))
	for i, c := range m.Chunks {
		refs[i] = audio.TrackRef{ID: c.ID, URL: c.AudioURL}
		det.Observe(c.ID)
	}

	s := &Session{
		ID:       uuid.NewString(),
		ctx:      ctx,
		manifest: m,
		detector: det,
		ctrl:     ctrl,
		logger:   logger,
		refs:     refs,
	}
	s.unsub = det.OnChange(s.onActiveChange)

	logger.Info("session created",
		slog.String("session_id", s.ID),
		slog.String("title", m.Title),
		slog.Int("chunks", len(m.Chunks)),
	)
	return s
}

// Manifest returns the session's manifest.
func (s *Session) Manifest() *manifest.Manifest { return s.manifest }

// Unlock enables audio playback and warms the cache around the current
// active chunk. The controller drops preloads issued before unlock, so
// they are reissued here.
func (s *Session) Unlock(ctx context.Context) error {
	if err := s.ctrl.Unlock(ctx); err != nil {
		return err
	}
	if id := s.detector.Active(); id != "" {
		if idx, ok := s.manifest.Index(id); ok {
			s.ctrl.PreloadNeighbors(ctx, s.refs, idx)
		}
	}
	return nil
}

// Report forwards one geometry sample to the detector.
func (s *Session) Report(sample detect.Sample) {
	s.detector.Report(sample)
}

// Active returns the committed active chunk ID.
func (s *Session) Active() string { return s.detector.Active() }

func (s *Session) onActiveChange(id string) {
	chunk, ok := s.manifest.Chunk(id)
	if !ok {
		// The detector only tracks manifest chunks, so this indicates a
		// wiring bug in the host rather than a runtime condition.
		s.logger.Error("active chunk not in manifest",
			slog.String("session_id", s.ID),
			slog.String("chunk_id", id),
		)
		return
	}

	s.logger.Info("active chunk changed",
		slog.String("session_id", s.ID),
		slog.String("chunk_id", id),
		slog.String("emotion", chunk.Emotion),
	)

	if !s.ctrl.AutoSwitch() {
		return
	}

	fade := time.Duration(chunk.FadeMs) * time.Millisecond
	s.ctrl.Play(s.ctx, chunk.ID, chunk.AudioURL, fade)

	if idx, ok := s.manifest.Index(id); ok {
		s.ctrl.PreloadNeighbors(s.ctx, s.refs, idx)
	}
}

// Close tears the session down: listeners removed, detection stopped, all
// tracks faded out. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsub()
	s.detector.Disconnect()
	s.ctrl.StopAll(0)
	s.logger.Info("session closed", slog.String("session_id", s.ID))
}
