package match

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// fakeFeedback records every call in order.
type fakeFeedback struct {
	calls   []string
	results []Result
}

func (f *fakeFeedback) MarkSuccess(h any) { f.calls = append(f.calls, "success:"+h.(string)) }
func (f *fakeFeedback) MarkFailed(h any)  { f.calls = append(f.calls, "failed:"+h.(string)) }
func (f *fakeFeedback) Report(r Result)   { f.results = append(f.results, r) }

func (f *fakeFeedback) last() Result {
	if len(f.results) == 0 {
		return Result{Outcome: -1}
	}
	return f.results[len(f.results)-1]
}

func sec(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func newTestEngine(tol time.Duration) (*Engine, *fakeFeedback) {
	fb := &fakeFeedback{}
	return NewEngine(Config{LowKey: 21, HighKey: 108, Tolerance: tol}, fb), fb
}

// TestOnKeyPress_MatchWindow: a note at 10.0s with a 0.5s window is hit at
// 10.3s and missed-timed at 10.6s.
func TestOnKeyPress_MatchWindow(t *testing.T) {
	t.Run("press at 10.3s hits", func(t *testing.T) {
		e, fb := newTestEngine(sec(0.5))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(10.0), sec(1.0), "n1")

		if got := e.OnKeyPress(60, 100, sec(10.3)); got != Hit {
			t.Fatalf("outcome = %v, want hit", got)
		}
		if len(fb.calls) != 1 || fb.calls[0] != "success:n1" {
			t.Errorf("calls = %v", fb.calls)
		}
		head, ok := e.Head(60)
		if !ok || head.AwaitingPress {
			t.Fatalf("head = %+v, ok = %v", head, ok)
		}
		if head.FireAt != sec(11.0) || head.Duration != 0 {
			t.Errorf("FireAt = %v, Duration = %v; want 11s, 0", head.FireAt, head.Duration)
		}
		if off := fb.last().Offset; off != sec(0.3) {
			t.Errorf("offset = %v, want 300ms", off)
		}
	})

	t.Run("press at 10.6s is a mistake", func(t *testing.T) {
		e, fb := newTestEngine(sec(0.5))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(10.0), sec(1.0), "n1")

		if got := e.OnKeyPress(60, 100, sec(10.6)); got != Mistake {
			t.Fatalf("outcome = %v, want mistake", got)
		}
		if e.Pending(60) != 1 {
			t.Errorf("mistake must leave the note queued")
		}
		if len(fb.calls) != 0 {
			t.Errorf("calls = %v", fb.calls)
		}
		// The sweep then resolves it.
		if n := e.Sweep(sec(10.6)); n != 1 {
			t.Errorf("Sweep = %d, want 1", n)
		}
		if fb.last().Outcome != Missed {
			t.Errorf("last outcome = %v", fb.last().Outcome)
		}
	})
}

// TestOnKeyPress_MistakeThenDequeue: an early press drops the pressed note
// only when some other note is due right now.
func TestOnKeyPress_MistakeThenDequeue(t *testing.T) {
	t.Run("another note due", func(t *testing.T) {
		e, fb := newTestEngine(sec(0.5))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(12.0), sec(1.0), "late-note")
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 64, sec(10.1), sec(1.0), "due-note")

		if got := e.OnKeyPress(60, 100, sec(10.0)); got != TooEarly {
			t.Fatalf("outcome = %v, want too-early", got)
		}
		if e.Pending(60) != 0 {
			t.Errorf("mis-pressed note still queued")
		}
		if e.Pending(64) != 1 {
			t.Errorf("due note was touched")
		}
		if len(fb.calls) != 1 || fb.calls[0] != "failed:late-note" {
			t.Errorf("calls = %v", fb.calls)
		}
	})

	t.Run("due note behind a held head", func(t *testing.T) {
		e, _ := newTestEngine(sec(0.5))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 64, sec(9.8), sec(1.0), "held")
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 64, sec(10.1), sec(1.0), "behind")
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(12.0), sec(1.0), "late-note")
		if got := e.OnKeyPress(64, 100, sec(9.8)); got != Hit {
			t.Fatalf("press of 64 = %v, want hit", got)
		}

		if got := e.OnKeyPress(60, 100, sec(10.0)); got != Mistake {
			t.Fatalf("outcome = %v, want mistake", got)
		}
		if e.Pending(60) != 1 || e.Pending(64) != 2 {
			t.Errorf("pending 60/64 = %d/%d, want 1/2", e.Pending(60), e.Pending(64))
		}
	})

	t.Run("nothing imminent", func(t *testing.T) {
		e, _ := newTestEngine(sec(0.5))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(12.0), sec(1.0), "late-note")
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 64, sec(11.0), sec(1.0), "other")

		before := e.Pending(60)
		if got := e.OnKeyPress(60, 100, sec(10.0)); got != Mistake {
			t.Fatalf("outcome = %v, want mistake", got)
		}
		if e.Pending(60) != before {
			t.Errorf("queue length changed: %d -> %d", before, e.Pending(60))
		}
	})
}

func TestOnKeyPress_EmptyAndAwaitingRelease(t *testing.T) {
	e, fb := newTestEngine(sec(0.5))

	if got := e.OnKeyPress(60, 100, sec(1)); got != Unexpected {
		t.Errorf("press on empty queue = %v, want unexpected", got)
	}
	if fb.last().Outcome != Unexpected {
		t.Errorf("unexpected press not reported")
	}

	e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(2), sec(1), "n")
	e.OnKeyPress(60, 100, sec(2))
	calls := len(fb.calls)
	if got := e.OnKeyPress(60, 100, sec(2.5)); got != Ignored {
		t.Errorf("press while awaiting release = %v, want ignored", got)
	}
	if len(fb.calls) != calls || e.Pending(60) != 1 {
		t.Errorf("press while awaiting release changed state")
	}
}

func TestOnKeyRelease(t *testing.T) {
	tests := []struct {
		name    string
		release float64
		want    Outcome
	}{
		{"early", 2.0, ReleaseEarly},
		{"on time", 3.1, ReleaseOnTime},
		{"late", 3.6, ReleaseLate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, fb := newTestEngine(sec(0.5))
			e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(2.0), sec(1.0), "n")
			e.OnKeyPress(60, 100, sec(2.0))

			if got := e.OnKeyRelease(60, 0, sec(tc.release)); got != tc.want {
				t.Fatalf("outcome = %v, want %v", got, tc.want)
			}
			if e.Pending(60) != 0 {
				t.Errorf("release did not dequeue")
			}
			// A release marks the visual failed whatever its timing.
			if fb.calls[len(fb.calls)-1] != "failed:n" {
				t.Errorf("calls = %v", fb.calls)
			}
		})
	}

	e, _ := newTestEngine(sec(0.5))
	if got := e.OnKeyRelease(60, 0, sec(1)); got != Ignored {
		t.Errorf("release on empty queue = %v", got)
	}
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(5), sec(1), "n")
	if got := e.OnKeyRelease(60, 0, sec(5)); got != Ignored || e.Pending(60) != 1 {
		t.Errorf("release while awaiting press = %v, pending = %d", got, e.Pending(60))
	}
}

func TestSweep(t *testing.T) {
	e, fb := newTestEngine(sec(0.5))
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(1.0), 0, "a")
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(1.2), 0, "b")
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(5.0), 0, "c")
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 62, sec(1.0), sec(1), "d")
	e.OnKeyPress(62, 100, sec(1.0))

	// Exactly at fire+tolerance nothing expires yet.
	if n := e.Sweep(sec(1.5)); n != 0 {
		t.Errorf("Sweep(1.5) = %d, want 0", n)
	}
	if n := e.Sweep(sec(2.0)); n != 2 {
		t.Errorf("Sweep(2.0) = %d, want 2", n)
	}
	if e.Pending(60) != 1 {
		t.Errorf("pending(60) = %d, want 1", e.Pending(60))
	}
	// A pressed note is never swept.
	if n := e.Sweep(sec(100)); n != 1 || e.Pending(62) != 1 {
		t.Errorf("Sweep(100) = %d, pending(62) = %d", n, e.Pending(62))
	}
	missed := 0
	for _, r := range fb.results {
		if r.Outcome == Missed {
			missed++
		}
	}
	if missed != 3 {
		t.Errorf("missed reports = %d", missed)
	}
}

func TestEngine_ShiftAndRescale(t *testing.T) {
	t.Run("shift moves fire times", func(t *testing.T) {
		e, _ := newTestEngine(sec(0.3))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(1.0), sec(0.5), "a")
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 62, sec(2.0), sec(0.5), "b")
		e.Shift(sec(4))

		if n := e.Sweep(sec(4.0)); n != 0 {
			t.Fatalf("Sweep(4.0) = %d after shift, want 0", n)
		}
		if got := e.OnKeyPress(60, 100, sec(5.0)); got != Hit {
			t.Errorf("press at shifted time = %v, want hit", got)
		}
		head, _ := e.Head(62)
		if head.FireAt != sec(6.0) || head.Duration != sec(0.5) {
			t.Errorf("head(62) = %v/%v, want 6s/0.5s", head.FireAt, head.Duration)
		}
	})

	t.Run("rescale stretches around now", func(t *testing.T) {
		e, _ := newTestEngine(sec(0.3))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(2.0), sec(0.5), "a")
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 62, sec(0.5), sec(1.0), "b")
		e.Rescale(sec(1.0), 2)

		if head, _ := e.Head(60); head.FireAt != sec(3.0) || head.Duration != sec(1.0) {
			t.Errorf("head(60) = %v/%v, want 3s/1s", head.FireAt, head.Duration)
		}
		// A note already past its fire time moves further into the past.
		if head, _ := e.Head(62); head.FireAt != 0 || head.Duration != sec(2.0) {
			t.Errorf("head(62) = %v/%v, want 0s/2s", head.FireAt, head.Duration)
		}
	})

	t.Run("rescale ignores non-positive factors", func(t *testing.T) {
		e, _ := newTestEngine(sec(0.3))
		e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(2.0), sec(0.5), "a")
		e.Rescale(sec(1.0), 0)
		e.Rescale(sec(1.0), -1)
		if head, _ := e.Head(60); head.FireAt != sec(2.0) || head.Duration != sec(0.5) {
			t.Errorf("head(60) = %v/%v, want unchanged", head.FireAt, head.Duration)
		}
	})
}

func TestEngine_ClearAndRange(t *testing.T) {
	e, fb := newTestEngine(sec(0.5))
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 21, sec(1), 0, "low")
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 108, sec(1), 0, "high")
	if e.PendingTotal() != 2 {
		t.Errorf("PendingTotal = %d", e.PendingTotal())
	}
	if dropped := e.Clear(); len(dropped) != 2 {
		t.Errorf("Clear dropped %d", len(dropped))
	}
	if e.PendingTotal() != 0 || len(fb.results) != 0 {
		t.Errorf("Clear left state or sent feedback")
	}

	if idx, ok := e.KeyIndex(21); !ok || idx != 0 {
		t.Errorf("KeyIndex(21) = %d, %v", idx, ok)
	}
	if _, ok := e.KeyIndex(109); ok {
		t.Error("KeyIndex(109) in range")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range key")
		}
	}()
	e.OnKeyPress(20, 100, 0)
}

// TestTimeoutAlwaysResolvesProperty: any unpressed note is gone after a sweep
// past fire+tolerance, reported as missed.
func TestTimeoutAlwaysResolvesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("unpressed notes resolve as missed", prop.ForAll(
		func(keys []int, fireMs []int, tolMs int) bool {
			rec := NewRecorder(0)
			e := NewEngine(Config{LowKey: 21, HighKey: 108, Tolerance: time.Duration(tolMs) * time.Millisecond}, rec)
			n := len(keys)
			if len(fireMs) < n {
				n = len(fireMs)
			}
			var latest time.Duration
			for i := 0; i < n; i++ {
				fire := time.Duration(fireMs[i]) * time.Millisecond
				e.NotifyUpcomingNote(timeline.TimedEvent{}, keys[i], fire, 0, nil)
				if fire > latest {
					latest = fire
				}
			}
			e.Sweep(latest + e.Tolerance() + time.Millisecond)
			return e.PendingTotal() == 0 && rec.Score().Missed == n
		},
		gen.SliceOfN(20, gen.IntRange(21, 108)),
		gen.SliceOfN(20, gen.IntRange(0, 60000)),
		gen.IntRange(1, 2000),
	))

	properties.TestingRun(t)
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder(2)
	e := NewEngine(Config{LowKey: 60, HighKey: 72, Tolerance: sec(0.2)}, rec)

	e.NotifyUpcomingNote(timeline.TimedEvent{}, 60, sec(1), sec(0.5), nil)
	e.NotifyUpcomingNote(timeline.TimedEvent{}, 62, sec(2), 0, nil)
	e.OnKeyPress(60, 100, sec(1.1))
	e.OnKeyRelease(60, 0, sec(1.6))
	e.OnKeyPress(64, 100, sec(1.7))
	e.Sweep(sec(3))

	s := rec.Score()
	if s.Hits != 1 || s.Unexpected != 1 || s.Missed != 1 || s.ReleaseOnTime != 1 {
		t.Errorf("score = %+v", s)
	}
	if s.Accuracy() != 0.5 {
		t.Errorf("Accuracy = %v", s.Accuracy())
	}
	if s.MeanAbsOffset() != sec(0.1) {
		t.Errorf("MeanAbsOffset = %v", s.MeanAbsOffset())
	}
	if got := rec.Recent(); len(got) != 2 || got[1].Outcome != Missed {
		t.Errorf("Recent = %+v", got)
	}
	if success, failed := rec.Marks(); success != 1 || failed != 2 {
		t.Errorf("marks = %d/%d", success, failed)
	}
	rec.Reset()
	if rec.Score().Judged() != 0 {
		t.Error("Reset kept the score")
	}
}
