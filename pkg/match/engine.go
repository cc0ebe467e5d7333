// Package match scores live key presses against the notes a player is
// expected to play.
//
// Each key in the instrument's span owns a FIFO of anticipated notes. A
// note waits for a press within the tolerance window of its fire time, then
// for a release at the end of its duration. Notes nobody presses are swept
// as missed once the window has passed. All methods are meant to be called
// from one goroutine (the frame loop); live input is marshalled there first.
package match

import (
	"fmt"
	"time"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// Config configures an Engine.
type Config struct {
	// LowKey and HighKey are the inclusive note range of the instrument.
	LowKey  int
	HighKey int
	// Tolerance is the symmetric window around a fire time.
	Tolerance time.Duration
}

// DefaultConfig is an 88-key piano with a 300ms window.
func DefaultConfig() Config {
	return Config{LowKey: 21, HighKey: 108, Tolerance: 300 * time.Millisecond}
}

// Anticipated is a note the user is expected to play.
type Anticipated struct {
	Event timeline.TimedEvent
	Note  int
	// FireAt is the expected press time, or the expected release time once
	// the press has matched.
	FireAt   time.Duration
	Duration time.Duration
	// AwaitingPress is true until a press matches.
	AwaitingPress bool
	// Handle is passed back to the FeedbackSink untouched.
	Handle any
}

// Engine holds one queue per key. It is not safe for concurrent use.
type Engine struct {
	cfg    Config
	queues [][]*Anticipated
	fb     FeedbackSink
}

// NewEngine creates an engine. A nil sink discards feedback.
func NewEngine(cfg Config, fb FeedbackSink) *Engine {
	if cfg.HighKey < cfg.LowKey {
		panic(fmt.Sprintf("match: invalid key range %d..%d", cfg.LowKey, cfg.HighKey))
	}
	if fb == nil {
		fb = NopFeedback{}
	}
	return &Engine{
		cfg:    cfg,
		queues: make([][]*Anticipated, cfg.HighKey-cfg.LowKey+1),
		fb:     fb,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Tolerance returns the matching window.
func (e *Engine) Tolerance() time.Duration { return e.cfg.Tolerance }

// SetTolerance changes the matching window for future decisions.
func (e *Engine) SetTolerance(d time.Duration) {
	if d < 0 {
		d = -d
	}
	e.cfg.Tolerance = d
}

// InRange reports whether note belongs to the instrument's span.
func (e *Engine) InRange(note int) bool {
	return note >= e.cfg.LowKey && note <= e.cfg.HighKey
}

// KeyIndex maps a note number to its queue index.
func (e *Engine) KeyIndex(note int) (int, bool) {
	if !e.InRange(note) {
		return -1, false
	}
	return note - e.cfg.LowKey, true
}

func (e *Engine) index(note int) int {
	idx, ok := e.KeyIndex(note)
	if !ok {
		panic(fmt.Sprintf("match: note %d outside key range %d..%d", note, e.cfg.LowKey, e.cfg.HighKey))
	}
	return idx
}

// NotifyUpcomingNote enqueues a note expected at fireAt.
func (e *Engine) NotifyUpcomingNote(ev timeline.TimedEvent, note int, fireAt, duration time.Duration, handle any) {
	idx := e.index(note)
	e.queues[idx] = append(e.queues[idx], &Anticipated{
		Event:         ev,
		Note:          note,
		FireAt:        fireAt,
		Duration:      duration,
		AwaitingPress: true,
		Handle:        handle,
	})
}

// OnKeyPress classifies a press at now.
func (e *Engine) OnKeyPress(note int, velocity uint8, now time.Duration) Outcome {
	idx := e.index(note)
	q := e.queues[idx]
	if len(q) == 0 {
		e.fb.Report(Result{Outcome: Unexpected, Note: note, Velocity: velocity, At: now})
		return Unexpected
	}

	head := q[0]
	if !head.AwaitingPress {
		e.fb.Report(e.result(Ignored, head, velocity, now))
		return Ignored
	}

	offset := head.FireAt - now
	if abs(offset) < e.cfg.Tolerance {
		r := e.result(Hit, head, velocity, now)
		e.fb.MarkSuccess(head.Handle)
		head.AwaitingPress = false
		head.FireAt += head.Duration
		head.Duration = 0
		e.fb.Report(r)
		return Hit
	}

	if e.dueNow(now) {
		e.dequeue(idx)
		e.fb.MarkFailed(head.Handle)
		e.fb.Report(e.result(TooEarly, head, velocity, now))
		return TooEarly
	}
	e.fb.Report(e.result(Mistake, head, velocity, now))
	return Mistake
}

// dueNow reports whether any note awaiting a press is within the window.
func (e *Engine) dueNow(now time.Duration) bool {
	for _, q := range e.queues {
		if len(q) > 0 && q[0].AwaitingPress && abs(q[0].FireAt-now) < e.cfg.Tolerance {
			return true
		}
	}
	return false
}

// OnKeyRelease classifies a release at now. A release always ends the
// head note, whatever its timing.
func (e *Engine) OnKeyRelease(note int, velocity uint8, now time.Duration) Outcome {
	idx := e.index(note)
	q := e.queues[idx]
	if len(q) == 0 || q[0].AwaitingPress {
		return Ignored
	}

	head := q[0]
	offset := head.FireAt - now
	outcome := ReleaseOnTime
	switch {
	case offset > e.cfg.Tolerance:
		outcome = ReleaseEarly
	case offset < -e.cfg.Tolerance:
		outcome = ReleaseLate
	}
	e.dequeue(idx)
	e.fb.MarkFailed(head.Handle)
	e.fb.Report(e.result(outcome, head, velocity, now))
	return outcome
}

// Sweep dequeues every note whose press window has passed and returns how
// many were missed. A queue is swept up to its first note that is still
// pending or already pressed.
func (e *Engine) Sweep(now time.Duration) int {
	missed := 0
	for idx := range e.queues {
		for len(e.queues[idx]) > 0 {
			head := e.queues[idx][0]
			if !head.AwaitingPress || now-e.cfg.Tolerance <= head.FireAt {
				break
			}
			e.dequeue(idx)
			e.fb.MarkFailed(head.Handle)
			e.fb.Report(e.result(Missed, head, 0, now))
			missed++
		}
	}
	return missed
}

// Head returns the first pending note of a key.
func (e *Engine) Head(note int) (Anticipated, bool) {
	q := e.queues[e.index(note)]
	if len(q) == 0 {
		return Anticipated{}, false
	}
	return *q[0], true
}

// Pending returns the queue length of a key.
func (e *Engine) Pending(note int) int {
	return len(e.queues[e.index(note)])
}

// PendingTotal returns the number of queued notes over all keys.
func (e *Engine) PendingTotal() int {
	n := 0
	for _, q := range e.queues {
		n += len(q)
	}
	return n
}

// Shift moves every queued fire time by d. It keeps the queues aligned with
// the music while playback is frozen.
func (e *Engine) Shift(d time.Duration) {
	if d == 0 {
		return
	}
	for _, q := range e.queues {
		for _, a := range q {
			a.FireAt += d
		}
	}
}

// Rescale stretches the queued timing around now by factor: the distance of
// each fire time from now and each remaining duration are multiplied by it.
// A speed change from old to new rescales by old/new.
func (e *Engine) Rescale(now time.Duration, factor float64) {
	if factor <= 0 || factor == 1 {
		return
	}
	for _, q := range e.queues {
		for _, a := range q {
			a.FireAt = now + time.Duration(float64(a.FireAt-now)*factor)
			a.Duration = time.Duration(float64(a.Duration) * factor)
		}
	}
}

// Clear empties every queue without feedback and returns the dropped notes
// so their visuals can be released.
func (e *Engine) Clear() []Anticipated {
	var dropped []Anticipated
	for idx, q := range e.queues {
		for _, a := range q {
			dropped = append(dropped, *a)
		}
		e.queues[idx] = nil
	}
	return dropped
}

func (e *Engine) dequeue(idx int) {
	q := e.queues[idx]
	q[0] = nil
	e.queues[idx] = q[1:]
}

func (e *Engine) result(o Outcome, a *Anticipated, velocity uint8, now time.Duration) Result {
	return Result{
		Outcome:  o,
		Note:     a.Note,
		Velocity: velocity,
		At:       now,
		Offset:   now - a.FireAt,
		Event:    a.Event,
		Handle:   a.Handle,
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
