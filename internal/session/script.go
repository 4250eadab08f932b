package session

import (
	"context"
	"time"

	"github.com/Theeojeong/READNING/internal/detect"
	"github.com/Theeojeong/READNING/internal/manifest"
)

// Step is one simulated geometry frame: the samples a viewport would report
// at a given offset into the script.
type Step struct {
	At      time.Duration
	Samples []detect.Sample
}

// Script is a scripted scroll: an ordered sequence of geometry frames. It
// stands in for a real scrolling viewport when running headless.
type Script struct {
	Steps []Step
}

// ScrollThrough builds a script that scrolls steadily through every chunk
// of the manifest, holding each one at the sentinel line for hold before
// moving on. Chunks are modeled as viewport-height regions stacked
// vertically.
func ScrollThrough(m *manifest.Manifest, viewportHeight float64, hold time.Duration) Script {
	const framesPerChunk = 4
	frame := hold / framesPerChunk

	var steps []Step
	at := time.Duration(0)

	for active := range m.Chunks {
		for f := 0; f < framesPerChunk; f++ {
			samples := make([]detect.Sample, 0, len(m.Chunks))
			for i, c := range m.Chunks {
				// Top edge of chunk i relative to the sentinel line while
				// chunk `active` sits on it.
				top := float64(i-active) * viewportHeight
				ratio := 0.0
				switch i {
				case active:
					ratio = 1
				case active - 1, active + 1:
					ratio = 0.15
				}
				samples = append(samples, detect.Sample{
					ChunkID:        c.ID,
					VisibleRatio:   ratio,
					TopOffset:      top,
					ViewportHeight: viewportHeight,
				})
			}
			steps = append(steps, Step{At: at, Samples: samples})
			at += frame
		}
	}
	return Script{Steps: steps}
}

// Run feeds the script into the session in real time, sleeping between
// frames, until the script ends or ctx is cancelled.
func (sc Script) Run(ctx context.Context, s *Session) error {
	start := time.Now()
	for _, step := range sc.Steps {
		wait := step.At - time.Since(start)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, sample := range step.Samples {
			s.Report(sample)
		}
	}
	return nil
}
