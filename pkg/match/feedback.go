package match

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// Outcome classifies a press, release or timeout.
type Outcome int

const (
	// Hit is a press inside the window.
	Hit Outcome = iota
	// Mistake is a press outside the window; the note stays queued.
	Mistake
	// TooEarly is a mistaken press while another note was due; the pressed
	// note is dropped.
	TooEarly
	// Unexpected is a press on a key with nothing queued.
	Unexpected
	// Ignored is an action the head note was not waiting for.
	Ignored
	ReleaseEarly
	ReleaseLate
	ReleaseOnTime
	// Missed is a note nobody pressed in time.
	Missed
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Mistake:
		return "mistake"
	case TooEarly:
		return "too-early"
	case Unexpected:
		return "unexpected"
	case Ignored:
		return "ignored"
	case ReleaseEarly:
		return "release-early"
	case ReleaseLate:
		return "release-late"
	case ReleaseOnTime:
		return "release-on-time"
	case Missed:
		return "missed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one classification.
type Result struct {
	Outcome  Outcome
	Note     int
	Velocity uint8
	At       time.Duration
	// Offset is At minus the expected time; negative means early.
	Offset time.Duration
	Event  timeline.TimedEvent
	Handle any
}

// FeedbackSink receives match results. Handles are whatever was given to
// NotifyUpcomingNote and may be nil.
type FeedbackSink interface {
	MarkSuccess(handle any)
	MarkFailed(handle any)
	Report(r Result)
}

// NopFeedback discards feedback.
type NopFeedback struct{}

func (NopFeedback) MarkSuccess(any) {}
func (NopFeedback) MarkFailed(any)  {}
func (NopFeedback) Report(Result)   {}

// MultiFeedback fans out to several sinks in order.
type MultiFeedback []FeedbackSink

func (m MultiFeedback) MarkSuccess(h any) {
	for _, s := range m {
		s.MarkSuccess(h)
	}
}

func (m MultiFeedback) MarkFailed(h any) {
	for _, s := range m {
		s.MarkFailed(h)
	}
}

func (m MultiFeedback) Report(r Result) {
	for _, s := range m {
		s.Report(r)
	}
}

// LogFeedback logs each result.
type LogFeedback struct {
	Logger *slog.Logger
}

func (LogFeedback) MarkSuccess(any) {}
func (LogFeedback) MarkFailed(any)  {}

func (f LogFeedback) Report(r Result) {
	log := f.Logger
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	if r.Outcome == Ignored {
		level = slog.LevelDebug
	}
	log.Log(context.Background(), level, "match",
		"outcome", r.Outcome,
		"note", r.Note,
		"at", r.At,
		"offset", r.Offset,
	)
}

// Score is a tally of results.
type Score struct {
	Hits          int
	Mistakes      int
	TooEarly      int
	Unexpected    int
	Missed        int
	ReleaseEarly  int
	ReleaseLate   int
	ReleaseOnTime int
	// TotalAbsOffset sums |Offset| over hits.
	TotalAbsOffset time.Duration
}

// Judged returns the number of notes that reached a terminal press verdict.
func (s Score) Judged() int {
	return s.Hits + s.TooEarly + s.Missed
}

// Accuracy is hits over judged notes, 0 when nothing was judged.
func (s Score) Accuracy() float64 {
	n := s.Judged()
	if n == 0 {
		return 0
	}
	return float64(s.Hits) / float64(n)
}

// MeanAbsOffset is the average timing error of hits.
func (s Score) MeanAbsOffset() time.Duration {
	if s.Hits == 0 {
		return 0
	}
	return s.TotalAbsOffset / time.Duration(s.Hits)
}

func (s Score) String() string {
	return fmt.Sprintf("hits=%d mistakes=%d early=%d unexpected=%d missed=%d accuracy=%.1f%% mean_offset=%s",
		s.Hits, s.Mistakes, s.TooEarly, s.Unexpected, s.Missed, s.Accuracy()*100, s.MeanAbsOffset())
}

// Recorder tallies results into a Score and keeps the most recent ones.
type Recorder struct {
	score   Score
	recent  []Result
	keep    int
	success int
	failed  int
}

// NewRecorder keeps up to keep recent results (0 keeps none).
func NewRecorder(keep int) *Recorder {
	return &Recorder{keep: keep}
}

func (r *Recorder) MarkSuccess(any) { r.success++ }
func (r *Recorder) MarkFailed(any)  { r.failed++ }

func (r *Recorder) Report(res Result) {
	switch res.Outcome {
	case Hit:
		r.score.Hits++
		r.score.TotalAbsOffset += abs(res.Offset)
	case Mistake:
		r.score.Mistakes++
	case TooEarly:
		r.score.TooEarly++
	case Unexpected:
		r.score.Unexpected++
	case Missed:
		r.score.Missed++
	case ReleaseEarly:
		r.score.ReleaseEarly++
	case ReleaseLate:
		r.score.ReleaseLate++
	case ReleaseOnTime:
		r.score.ReleaseOnTime++
	}
	if r.keep > 0 && res.Outcome != Ignored {
		r.recent = append(r.recent, res)
		if len(r.recent) > r.keep {
			r.recent = r.recent[len(r.recent)-r.keep:]
		}
	}
}

// Score returns the tally.
func (r *Recorder) Score() Score { return r.score }

// Recent returns the kept results, oldest first.
func (r *Recorder) Recent() []Result {
	out := make([]Result, len(r.recent))
	copy(out, r.recent)
	return out
}

// Marks returns the MarkSuccess and MarkFailed counts.
func (r *Recorder) Marks() (success, failed int) { return r.success, r.failed }

// Reset clears the tally.
func (r *Recorder) Reset() {
	*r = Recorder{keep: r.keep}
}
