package detect

import (
	"testing"
	"time"

	"github.com/Theeojeong/READNING/internal/clock"
)

func newTestDetector(dwell time.Duration) (*Detector, *clock.Fake) {
	clk := clock.NewFake()
	d := New(Options{Dwell: dwell, Clock: clk})
	return d, clk
}

// sampleFor builds a fully visible sample sitting on the sentinel line.
func sampleFor(id string) Sample {
	return Sample{ChunkID: id, VisibleRatio: 1, TopOffset: 0, ViewportHeight: 1000}
}

func TestDetector_CommitAfterDwell(t *testing.T) {
	d, clk := newTestDetector(500 * time.Millisecond)
	d.Observe("c1")
	d.Observe("c2")
	d.Observe("c3")

	var changes []string
	d.OnChange(func(id string) { changes = append(changes, id) })

	// c2 becomes top-scoring at t=0 and stays there.
	d.Report(sampleFor("c2"))
	d.Report(Sample{ChunkID: "c1", VisibleRatio: 0.2, TopOffset: -800, ViewportHeight: 1000})
	d.Report(Sample{ChunkID: "c3", VisibleRatio: 0.2, TopOffset: 800, ViewportHeight: 1000})

	clk.Advance(499 * time.Millisecond)
	if len(changes) != 0 {
		t.Fatalf("commit before dwell window: %v", changes)
	}

	clk.Advance(1 * time.Millisecond)
	if len(changes) != 1 || changes[0] != "c2" {
		t.Fatalf("expected single commit of c2, got %v", changes)
	}
	if got := d.Active(); got != "c2" {
		t.Errorf("expected active c2, got %q", got)
	}

	// c2 keeps winning: no further emissions by t=1000ms.
	d.Report(sampleFor("c2"))
	clk.Advance(500 * time.Millisecond)
	d.Report(sampleFor("c2"))
	if len(changes) != 1 {
		t.Errorf("expected exactly one commit, got %v", changes)
	}
}

func TestDetector_NoFlappingUnderRapidChanges(t *testing.T) {
	d, clk := newTestDetector(500 * time.Millisecond)
	d.Observe("a")
	d.Observe("b")

	fired := 0
	d.OnChange(func(string) { fired++ })

	// Top-scoring id alternates every 100ms for 2 seconds.
	ids := []string{"a", "b"}
	for i := 0; i < 20; i++ {
		winner := ids[i%2]
		loser := ids[(i+1)%2]
		d.Report(sampleFor(winner))
		d.Report(Sample{ChunkID: loser, VisibleRatio: 0.1, TopOffset: 900, ViewportHeight: 1000})
		clk.Advance(100 * time.Millisecond)
	}

	if fired != 0 {
		t.Errorf("expected zero commits under flapping, got %d", fired)
	}
}

func TestDetector_ScoreDeterminism(t *testing.T) {
	s := Sample{VisibleRatio: 0.6, TopOffset: 120, ViewportHeight: 900}
	first := score(s, DefaultSentinelFrac)
	for i := 0; i < 10; i++ {
		if got := score(s, DefaultSentinelFrac); got != first {
			t.Fatalf("score not deterministic: %v != %v", got, first)
		}
	}

	// Full visibility on the sentinel line is the maximum score.
	if got := score(Sample{VisibleRatio: 1, TopOffset: 0, ViewportHeight: 900}, DefaultSentinelFrac); got != 1 {
		t.Errorf("expected score 1.0, got %v", got)
	}

	// Proximity clamps to zero far from the sentinel.
	far := score(Sample{VisibleRatio: 0.5, TopOffset: 5000, ViewportHeight: 900}, DefaultSentinelFrac)
	if far != 0.7*0.5 {
		t.Errorf("expected proximity-clamped score %v, got %v", 0.7*0.5, far)
	}
}

func TestDetector_TieKeepsCandidate(t *testing.T) {
	d, clk := newTestDetector(500 * time.Millisecond)
	d.Observe("first")
	d.Observe("second")

	var changes []string
	d.OnChange(func(id string) { changes = append(changes, id) })

	// second wins, then first ties it exactly: second keeps the candidacy
	// and its dwell credit.
	d.Report(sampleFor("second"))
	clk.Advance(300 * time.Millisecond)
	d.Report(sampleFor("first"))

	clk.Advance(200 * time.Millisecond)
	if len(changes) != 1 || changes[0] != "second" {
		t.Fatalf("expected tie to keep candidate second, got %v", changes)
	}
}

func TestDetector_TieBreaksByObservationOrder(t *testing.T) {
	d, clk := newTestDetector(500 * time.Millisecond)
	d.Observe("first")
	d.Observe("second")
	d.Observe("third")

	var changes []string
	d.OnChange(func(id string) { changes = append(changes, id) })

	// third holds the candidacy while first and second sit at identical
	// lower scores; when third drops below them, the earliest observed of
	// the tied pair wins.
	d.Report(sampleFor("third"))
	d.Report(Sample{ChunkID: "second", VisibleRatio: 0.5, TopOffset: 600, ViewportHeight: 1000})
	d.Report(Sample{ChunkID: "first", VisibleRatio: 0.5, TopOffset: 600, ViewportHeight: 1000})
	clk.Advance(100 * time.Millisecond)

	d.Report(Sample{ChunkID: "third", VisibleRatio: 0.1, TopOffset: 900, ViewportHeight: 1000})

	clk.Advance(500 * time.Millisecond)
	if len(changes) != 1 || changes[0] != "first" {
		t.Fatalf("expected observation-order tie-break to pick first, got %v", changes)
	}
}

func TestDetector_AllInvisibleRetainsActive(t *testing.T) {
	d, clk := newTestDetector(100 * time.Millisecond)
	d.Observe("c1")

	fired := 0
	d.OnChange(func(string) { fired++ })

	d.Report(sampleFor("c1"))
	clk.Advance(100 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected c1 committed, got %d commits", fired)
	}

	// User scrolls into empty space: every ratio drops to zero.
	d.Report(Sample{ChunkID: "c1", VisibleRatio: 0, TopOffset: -3000, ViewportHeight: 1000})
	clk.Advance(time.Second)

	if got := d.Active(); got != "c1" {
		t.Errorf("expected active retained as c1, got %q", got)
	}
	if fired != 1 {
		t.Errorf("expected no emission on no-candidate frames, got %d", fired)
	}
}

func TestDetector_InvisibleFrameKeepsDwellCredit(t *testing.T) {
	d, clk := newTestDetector(500 * time.Millisecond)
	d.Observe("c1")
	d.Observe("c2")

	var changes []string
	d.OnChange(func(id string) { changes = append(changes, id) })

	d.Report(sampleFor("c1"))
	d.Report(Sample{ChunkID: "c2", VisibleRatio: 0.2, TopOffset: 800, ViewportHeight: 1000})
	clk.Advance(300 * time.Millisecond)

	// A momentary all-invisible frame mid-dwell (fast scrolls produce
	// empty frames between intersection callbacks) must not cancel the
	// pending commit: the candidate keeps its credit and commits at the
	// dwell deadline.
	d.Report(Sample{ChunkID: "c1", VisibleRatio: 0, TopOffset: -3000, ViewportHeight: 1000})
	d.Report(Sample{ChunkID: "c2", VisibleRatio: 0, TopOffset: -2000, ViewportHeight: 1000})

	clk.Advance(200 * time.Millisecond)
	if len(changes) != 1 || changes[0] != "c1" {
		t.Fatalf("expected c1 committed at the dwell deadline, got %v", changes)
	}
}

func TestDetector_UnobserveDropsDwellCredit(t *testing.T) {
	d, clk := newTestDetector(500 * time.Millisecond)
	d.Observe("a")
	d.Observe("b")

	var changes []string
	d.OnChange(func(id string) { changes = append(changes, id) })

	d.Report(sampleFor("a"))
	d.Report(Sample{ChunkID: "b", VisibleRatio: 0.4, TopOffset: 700, ViewportHeight: 1000})
	clk.Advance(400 * time.Millisecond)

	// a disappears before committing; b must start a fresh dwell window.
	d.Unobserve("a")
	clk.Advance(200 * time.Millisecond)
	if len(changes) != 0 {
		t.Fatalf("expected no commit yet, got %v", changes)
	}

	clk.Advance(300 * time.Millisecond)
	if len(changes) != 1 || changes[0] != "b" {
		t.Fatalf("expected b committed after full dwell, got %v", changes)
	}
}

func TestDetector_ObserveEmptyIDIsNoop(t *testing.T) {
	d, clk := newTestDetector(100 * time.Millisecond)
	d.Observe("")

	fired := 0
	d.OnChange(func(string) { fired++ })

	d.Report(Sample{ChunkID: "", VisibleRatio: 1, ViewportHeight: 1000})
	clk.Advance(time.Second)

	if fired != 0 || d.Active() != "" {
		t.Errorf("expected nothing tracked, active=%q fired=%d", d.Active(), fired)
	}
}

func TestDetector_ListenersOrderAndUnsubscribe(t *testing.T) {
	d, clk := newTestDetector(100 * time.Millisecond)
	d.Observe("c1")

	var order []string
	unsub := d.OnChange(func(id string) { order = append(order, "first:"+id) })
	d.OnChange(func(id string) { order = append(order, "second:"+id) })

	d.Report(sampleFor("c1"))
	clk.Advance(100 * time.Millisecond)

	if len(order) != 2 || order[0] != "first:c1" || order[1] != "second:c1" {
		t.Fatalf("expected insertion-order delivery, got %v", order)
	}

	// Unsubscribe is safe to call twice and stops delivery.
	unsub()
	unsub()
	order = nil

	d.Observe("c2")
	d.Report(sampleFor("c2"))
	d.Report(Sample{ChunkID: "c1", VisibleRatio: 0.1, TopOffset: 900, ViewportHeight: 1000})
	clk.Advance(100 * time.Millisecond)

	if len(order) != 1 || order[0] != "second:c2" {
		t.Fatalf("expected only remaining listener, got %v", order)
	}
}

func TestDetector_DisconnectIdempotent(t *testing.T) {
	d, clk := newTestDetector(100 * time.Millisecond)
	d.Observe("c1")

	fired := 0
	d.OnChange(func(string) { fired++ })

	d.Disconnect()
	d.Disconnect()

	d.Report(sampleFor("c1"))
	clk.Advance(time.Second)
	if fired != 0 {
		t.Errorf("expected no commits after disconnect, got %d", fired)
	}
}
