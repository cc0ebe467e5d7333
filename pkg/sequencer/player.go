// Package sequencer plays a loaded timeline against wall-clock time.
//
// A Player is driven by calling Advance once per frame with the real time
// elapsed since the previous call. It converts accumulated time to ticks
// through the timeline's tempo map (scaled by the playback speed) and returns
// every event whose tick has been passed. Seeking, pausing and speed changes
// are explicit states and operations; nothing blocks.
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// ErrInvalidSpeed is returned for a speed multiplier outside [MinSpeed, MaxSpeed].
var ErrInvalidSpeed = errors.New("invalid speed multiplier")

// ErrInvalidQuantization is returned for a quantization level outside 0..6.
var ErrInvalidQuantization = errors.New("invalid quantization level")

const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// State is the playback state of a Player.
type State int

const (
	Stopped State = iota
	Playing
	Paused
	Seeking
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Seeking:
		return "seeking"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// noSeek marks an empty SeekTargetTick.
const noSeek = -1

// Cursor is the playback position. It is only mutated by the Player.
type Cursor struct {
	CurrentTick    float64
	NextEventIndex int
	// StartTimeOffsetMs is the real time accumulated while playing since the
	// last Play.
	StartTimeOffsetMs float64
	QuantizationTicks int64
	SpeedMultiplier   float64
	// SeekTargetTick is the pending seek, or -1.
	SeekTargetTick int64
	EndReached     bool
}

// Options configures a Player.
type Options struct {
	// Speed is the initial speed multiplier; 0 means 1.0.
	Speed float64
	// Quantization is the initial grid level (0..6).
	Quantization int
	// StartAtFirstNote makes Play jump over leading silence. Events before the
	// first NoteOn are still emitted, all in the first batch.
	StartAtFirstNote bool
	Logger           *slog.Logger
}

// Player is a cursor over a timeline. It is not safe for concurrent use; the
// timeline it reads may be shared.
type Player struct {
	tl    *timeline.Timeline
	tempo *timeline.TempoMap
	log   *slog.Logger

	state  State
	resume State // state to return to after Seeking or Paused
	cursor Cursor
	grid   timeline.Grid
	level  int

	startAtFirstNote bool
	startTick        int64 // one-shot start position from a seek while stopped

	// Tick/time baseline: at real time anchorMs the cursor was at anchorTick
	// inside tempo segment seg.
	anchorTick float64
	anchorMs   float64
	seg        int

	pauseBounded bool
	pauseLeftMs  float64

	inclusive bool // next drain includes events exactly at the cursor
}

// New creates a stopped player over tl. A nil timeline is accepted, but
// Advance will panic until one is set with SetTimeline.
func New(tl *timeline.Timeline, opts Options) (*Player, error) {
	speed := opts.Speed
	if speed == 0 {
		speed = 1
	}
	if speed < MinSpeed || speed > MaxSpeed {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	if opts.Quantization < 0 || opts.Quantization > timeline.MaxQuantizationLevel {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantization, opts.Quantization)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Player{
		log:              log,
		level:            opts.Quantization,
		startAtFirstNote: opts.StartAtFirstNote,
		startTick:        noSeek,
		cursor: Cursor{
			SpeedMultiplier: speed,
			SeekTargetTick:  noSeek,
		},
	}
	p.SetTimeline(tl)
	return p, nil
}

// SetTimeline replaces the timeline and stops the player.
func (p *Player) SetTimeline(tl *timeline.Timeline) {
	p.tl = tl
	p.tempo = nil
	p.grid = timeline.NoGrid
	if tl != nil {
		p.tempo = tl.TempoMap()
		p.grid, _ = timeline.GridForLevel(tl.TicksPerQuarter(), p.level)
	}
	p.cursor.QuantizationTicks = p.grid.Ticks
	p.state = Stopped
	p.cursor.SeekTargetTick = noSeek
	p.startTick = noSeek
	p.rewind(0)
}

// Timeline returns the timeline being played.
func (p *Player) Timeline() *timeline.Timeline { return p.tl }

// State returns the playback state.
func (p *Player) State() State { return p.state }

// Cursor returns a copy of the cursor.
func (p *Player) Cursor() Cursor { return p.cursor }

// CurrentTick returns the cursor tick.
func (p *Player) CurrentTick() float64 { return p.cursor.CurrentTick }

// Speed returns the speed multiplier.
func (p *Player) Speed() float64 { return p.cursor.SpeedMultiplier }

// Grid returns the grid applied to future events.
func (p *Player) Grid() timeline.Grid { return p.grid }

// QuantizationLevel returns the current level.
func (p *Player) QuantizationLevel() int { return p.level }

// PositionMs returns the timeline time at the cursor, independent of speed.
func (p *Player) PositionMs() float64 {
	if p.tempo == nil {
		return 0
	}
	return p.tempo.TickToMs(p.cursor.CurrentTick)
}

// Progress returns the cursor position as a fraction of the timeline.
func (p *Player) Progress() float64 {
	if p.tl == nil || p.tl.TickLast() == 0 {
		return 0
	}
	f := p.cursor.CurrentTick / float64(p.tl.TickLast())
	if f > 1 {
		return 1
	}
	return f
}

// Play starts playback from the beginning (or from the first note when
// StartAtFirstNote is set). A pending seek still applies on the next Advance.
func (p *Player) Play() {
	switch p.state {
	case Stopped, Finished:
		p.start()
		p.setState(Playing)
	case Seeking:
		if p.resume == Stopped || p.resume == Finished {
			p.start()
			p.resume = Playing
		}
	case Paused:
		p.Unpause()
	}
}

// start rewinds to the configured start position.
func (p *Player) start() {
	switch {
	case p.startTick != noSeek:
		p.rewind(0)
		p.jump(p.startTick)
		p.startTick = noSeek
	case p.startAtFirstNote && p.tl != nil:
		p.rewind(float64(p.tl.TickFirstNoteOn()))
	default:
		p.rewind(0)
	}
}

// rewind resets the cursor to the first event with the baseline at tick.
func (p *Player) rewind(tick float64) {
	p.cursor.NextEventIndex = 0
	p.cursor.EndReached = false
	p.cursor.StartTimeOffsetMs = 0
	p.cursor.CurrentTick = tick
	p.anchorTick = tick
	p.anchorMs = 0
	p.seg = 0
	if p.tempo != nil {
		p.seg = p.tempo.SegmentIndexAt(tick)
	}
	p.inclusive = tick > 0
}

// Advance accumulates elapsedRealMs of wall-clock time and returns the events
// passed, in tick order. It returns nil unless the player is playing.
func (p *Player) Advance(elapsedRealMs float64) []timeline.TimedEvent {
	if p.tl == nil {
		panic("sequencer: Advance called without a loaded timeline")
	}
	if elapsedRealMs < 0 {
		elapsedRealMs = 0
	}

	if p.state == Seeking {
		p.applySeek()
	}
	if p.state == Paused {
		if !p.pauseBounded {
			return nil
		}
		p.pauseLeftMs -= elapsedRealMs
		if p.pauseLeftMs > 0 {
			return nil
		}
		elapsedRealMs = -p.pauseLeftMs
		p.Unpause()
	}
	if p.state != Playing {
		return nil
	}

	p.cursor.StartTimeOffsetMs += elapsedRealMs
	p.cursor.CurrentTick = p.tickAt(p.cursor.StartTimeOffsetMs)
	return p.drain()
}

// tickAt converts accumulated real time to a tick by walking tempo segments
// from the baseline. Each segment's rate is divided by the speed. The
// baseline moves forward to the last boundary crossed.
func (p *Player) tickAt(ms float64) float64 {
	remaining := ms - p.anchorMs
	tick := p.anchorTick
	speed := p.cursor.SpeedMultiplier

	for remaining > 0 {
		seg := p.tempo.Segment(p.seg)
		msPerTick := seg.MsPerTick / speed
		if p.seg+1 >= p.tempo.Len() {
			return tick + remaining/msPerTick
		}
		boundary := float64(p.tempo.Segment(p.seg + 1).FromTick)
		toBoundary := (boundary - tick) * msPerTick
		if remaining < toBoundary {
			return tick + remaining/msPerTick
		}
		remaining -= toBoundary
		tick = boundary
		p.seg++
		p.anchorTick = tick
		p.anchorMs = ms - remaining
	}
	return tick
}

// drain returns the events from NextEventIndex whose snapped tick has been
// passed.
func (p *Player) drain() []timeline.TimedEvent {
	cur := p.cursor.CurrentTick
	var batch []timeline.TimedEvent
	i := p.cursor.NextEventIndex
	for ; i < p.tl.Len(); i++ {
		ev := p.tl.Event(i)
		q := float64(p.grid.Snap(ev.Tick))
		if q > cur || (q == cur && !p.inclusive) {
			break
		}
		ev.QuantizedTick = int64(q)
		batch = append(batch, ev)
	}
	p.cursor.NextEventIndex = i
	p.inclusive = false

	if i >= p.tl.Len() {
		p.cursor.EndReached = true
		p.setState(Finished)
	}
	return batch
}

// SeekTick moves the cursor to targetTick on the next Advance. Events before the
// target are skipped without being emitted.
func (p *Player) SeekTick(targetTick int64) {
	if targetTick < 0 {
		targetTick = 0
	}
	if p.state != Seeking {
		p.resume = p.state
	}
	p.cursor.SeekTargetTick = targetTick
	p.setState(Seeking)
}

// SeekMs seeks to the first event at or after the timeline time ms.
func (p *Player) SeekMs(ms float64) {
	if p.tl == nil {
		panic("sequencer: SeekMs called without a loaded timeline")
	}
	p.SeekTick(p.tl.SearchTickFromTime(ms))
}

// applySeek moves the cursor to the pending target and restores the state
// from before the seek.
func (p *Player) applySeek() {
	target := p.cursor.SeekTargetTick
	p.cursor.SeekTargetTick = noSeek
	if last := p.tl.TickLast(); target > last {
		target = last
	}

	next := p.resume
	switch next {
	case Stopped, Finished:
		// Remember the position for the next Play.
		p.startTick = target
		p.cursor.CurrentTick = float64(target)
		next = Stopped
	default:
		p.jump(target)
	}
	p.log.Debug("seek applied", "tick", target, "next_index", p.cursor.NextEventIndex, "state", next)
	p.setState(next)
}

// jump places the cursor at target, skipping earlier events, and re-anchors
// the baseline there.
func (p *Player) jump(target int64) {
	p.cursor.NextEventIndex = sort.Search(p.tl.Len(), func(i int) bool {
		return p.grid.Snap(p.tl.Event(i).Tick) >= target
	})
	p.cursor.EndReached = false
	p.cursor.CurrentTick = float64(target)
	p.anchorTick = float64(target)
	p.anchorMs = p.cursor.StartTimeOffsetMs
	p.seg = p.tempo.SegmentIndexAt(float64(target))
	p.inclusive = true
}

// SetSpeed changes the speed multiplier. The baseline is re-anchored at the
// current position so playback continues without a jump.
func (p *Player) SetSpeed(m float64) error {
	if m < MinSpeed || m > MaxSpeed {
		return fmt.Errorf("%w: %v (want %v..%v)", ErrInvalidSpeed, m, MinSpeed, MaxSpeed)
	}
	p.anchorTick = p.cursor.CurrentTick
	p.anchorMs = p.cursor.StartTimeOffsetMs
	if p.tempo != nil {
		p.seg = p.tempo.SegmentIndexAt(p.cursor.CurrentTick)
	}
	p.cursor.SpeedMultiplier = m
	return nil
}

// SetQuantization changes the grid used for events not yet emitted.
func (p *Player) SetQuantization(level int) error {
	if level < 0 || level > timeline.MaxQuantizationLevel {
		return fmt.Errorf("%w: %d", ErrInvalidQuantization, level)
	}
	p.level = level
	if p.tl != nil {
		p.grid, _ = timeline.GridForLevel(p.tl.TicksPerQuarter(), level)
	}
	p.cursor.QuantizationTicks = p.grid.Ticks
	return nil
}

// Pause freezes playback. A positive d resumes automatically after d of
// Advance time; zero pauses until Unpause.
func (p *Player) Pause(d time.Duration) {
	if p.state != Playing {
		return
	}
	p.pauseBounded = d > 0
	p.pauseLeftMs = float64(d) / float64(time.Millisecond)
	p.resume = Playing
	p.setState(Paused)
}

// Unpause resumes a paused player.
func (p *Player) Unpause() {
	if p.state != Paused {
		return
	}
	p.pauseBounded = false
	p.pauseLeftMs = 0
	p.setState(Playing)
}

// Stop stops playback and drops any pending seek. The cursor keeps its
// position until the next Play.
func (p *Player) Stop() {
	p.cursor.SeekTargetTick = noSeek
	p.pauseBounded = false
	p.setState(Stopped)
}

func (p *Player) setState(s State) {
	if p.state == s {
		return
	}
	p.log.Debug("player state", "from", p.state, "to", s, "tick", p.cursor.CurrentTick)
	p.state = s
}
