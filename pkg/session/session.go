// Package session wires a loaded timeline to its players, sinks and note
// matcher, and advances all of them with one Frame call per frame.
//
// A Session owns two players over the same timeline. The main player drives
// the accompaniment sinks; a second player runs Lead ahead of it and feeds
// the user's part to the match engine as anticipated notes, so each note is
// queued before its press window opens.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zurustar/holokeys/pkg/fileutil"
	"github.com/zurustar/holokeys/pkg/input"
	"github.com/zurustar/holokeys/pkg/match"
	"github.com/zurustar/holokeys/pkg/sequencer"
	"github.com/zurustar/holokeys/pkg/timeline"
)

// ErrNotLoaded is returned by transport operations before a file is loaded.
var ErrNotLoaded = errors.New("no MIDI file loaded")

// NoUserChannel disables note matching.
const NoUserChannel = -1

// DefaultLead is how far ahead of playback user notes are anticipated.
const DefaultLead = time.Second

// Options configures a Session.
type Options struct {
	Load         timeline.LoadOptions
	Speed        float64
	Quantization int
	// UserChannel is the MIDI channel (0..15) the user plays, or
	// NoUserChannel.
	UserChannel int
	// PlayUserPart also sends the user channel's notes to the playback sinks.
	PlayUserPart bool
	Match        match.Config
	Lead         time.Duration
	// SkipSilence starts playback at the first note.
	SkipSilence bool
	// Loop restarts playback when the end is reached.
	Loop bool
	// InboxSize is the capacity of the live input inbox.
	InboxSize int
}

// DefaultOptions returns the options used by the command line.
func DefaultOptions() Options {
	return Options{
		Load:        timeline.DefaultLoadOptions(),
		Speed:       1,
		UserChannel: NoUserChannel,
		Match:       match.DefaultConfig(),
		Lead:        DefaultLead,
	}
}

// LiveSink sounds keys as they are played.
type LiveSink interface {
	NoteOn(ch uint8, key int, velocity uint8)
	NoteOff(ch uint8, key int)
}

// Tracker creates the visual handle for a note entering a match queue.
type Tracker interface {
	Track(ev timeline.TimedEvent, fireAt time.Duration) any
}

// Sinks are the collaborators a Session reports to. Nil fields are skipped.
type Sinks struct {
	Playback sequencer.PlaybackSink
	Feedback match.FeedbackSink
	Live     LiveSink
	Tracker  Tracker
}

// FrameStats summarises one Frame.
type FrameStats struct {
	Inputs      int
	Emitted     int
	Anticipated int
	Missed      int
}

// Session is the context object for one practice run. It is not safe for
// concurrent use; live input reaches it through Inbox.
type Session struct {
	id    uuid.UUID
	log   *slog.Logger
	opts  Options
	sinks Sinks

	tl     *timeline.Timeline
	main   *sequencer.Player
	ahead  *sequencer.Player
	engine *match.Engine
	inbox  *input.Inbox

	clockSet   bool
	lastNow    time.Duration
	primeAhead bool
	loops      int
	closed     bool
}

// New creates a session with nothing loaded.
func New(opts Options, sinks Sinks, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Lead <= 0 {
		opts.Lead = DefaultLead
	}
	if opts.UserChannel > 15 {
		return nil, fmt.Errorf("invalid user channel: %d", opts.UserChannel)
	}
	if opts.Match.HighKey == 0 && opts.Match.LowKey == 0 {
		opts.Match = match.DefaultConfig()
	}

	id := uuid.New()
	log = log.With("session", id.String())

	playerOpts := sequencer.Options{
		Speed:            opts.Speed,
		Quantization:     opts.Quantization,
		StartAtFirstNote: opts.SkipSilence,
		Logger:           log.With("player", "main"),
	}
	main, err := sequencer.New(nil, playerOpts)
	if err != nil {
		return nil, err
	}
	playerOpts.Logger = log.With("player", "ahead")
	ahead, err := sequencer.New(nil, playerOpts)
	if err != nil {
		return nil, err
	}

	if sinks.Playback == nil {
		sinks.Playback = sequencer.NopSink{}
	}
	return &Session{
		id:     id,
		log:    log,
		opts:   opts,
		sinks:  sinks,
		main:   main,
		ahead:  ahead,
		engine: match.NewEngine(opts.Match, sinks.Feedback),
		inbox:  input.NewInbox(opts.InboxSize),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Inbox returns the queue live key events are pushed into.
func (s *Session) Inbox() *input.Inbox { return s.inbox }

// Engine returns the match engine.
func (s *Session) Engine() *match.Engine { return s.engine }

// Player returns the main player.
func (s *Session) Player() *sequencer.Player { return s.main }

// Timeline returns the loaded timeline, or nil.
func (s *Session) Timeline() *timeline.Timeline { return s.tl }

// Options returns the session options.
func (s *Session) Options() Options { return s.opts }

// Matching reports whether a user channel is configured.
func (s *Session) Matching() bool { return s.opts.UserChannel != NoUserChannel }

// State returns the main player's state.
func (s *Session) State() sequencer.State { return s.main.State() }

// Loops returns how many times playback has wrapped around.
func (s *Session) Loops() int { return s.loops }

// Load parses a MIDI file and makes it the session's timeline. Playback
// stops.
func (s *Session) Load(data []byte) error {
	tl, err := timeline.Load(data, s.opts.Load)
	if err != nil {
		return err
	}
	s.setTimeline(tl)
	return nil
}

// LoadFile reads and loads name from fsys.
func (s *Session) LoadFile(fsys fileutil.FileSystem, name string) error {
	tl, err := timeline.LoadFile(fsys, name, s.opts.Load)
	if err != nil {
		return err
	}
	s.setTimeline(tl)
	return nil
}

func (s *Session) setTimeline(tl *timeline.Timeline) {
	s.reset()
	s.tl = tl
	s.main.SetTimeline(tl)
	s.ahead.SetTimeline(tl)
	s.loops = 0
	s.log.Info("timeline loaded",
		"events", tl.Len(),
		"notes", tl.NoteOnCount(),
		"duration_ms", tl.DurationMs(),
		"ticks_per_quarter", tl.TicksPerQuarter(),
		"tempo_segments", tl.TempoMap().Len())
}

// Play starts or resumes playback.
func (s *Session) Play() error {
	if s.tl == nil {
		return ErrNotLoaded
	}
	switch s.main.State() {
	case sequencer.Stopped, sequencer.Finished:
		s.primeAhead = true
	}
	s.main.Play()
	s.ahead.Play()
	return nil
}

// Pause freezes playback; a positive d resumes automatically.
func (s *Session) Pause(d time.Duration) {
	s.main.Pause(d)
	s.ahead.Pause(d)
}

// Resume ends a pause.
func (s *Session) Resume() {
	s.main.Unpause()
	s.ahead.Unpause()
}

// SeekTick moves playback to tick. Pending notes are dropped and sinks silenced.
func (s *Session) SeekTick(tick int64) error {
	if s.tl == nil {
		return ErrNotLoaded
	}
	s.main.SeekTick(tick)
	s.ahead.SeekTick(tick)
	s.reset()
	s.primeAhead = true
	return nil
}

// SeekMs seeks to the first event at or after the timeline time ms.
func (s *Session) SeekMs(ms float64) error {
	if s.tl == nil {
		return ErrNotLoaded
	}
	return s.SeekTick(s.tl.SearchTickFromTime(ms))
}

// speedSetter is implemented by sinks that scale note lengths.
type speedSetter interface {
	SetSpeed(float64)
}

// SetSpeed changes the speed of both players. Queued notes are re-timed from
// the last frame at the new speed.
func (s *Session) SetSpeed(m float64) error {
	old := s.main.Speed()
	if err := s.main.SetSpeed(m); err != nil {
		return err
	}
	if err := s.ahead.SetSpeed(m); err != nil {
		return err
	}
	s.engine.Rescale(s.lastNow, old/m)
	s.opts.Speed = m
	if ss, ok := s.sinks.Playback.(speedSetter); ok {
		ss.SetSpeed(m)
	}
	return nil
}

// SetQuantization changes the grid of both players.
func (s *Session) SetQuantization(level int) error {
	if err := s.main.SetQuantization(level); err != nil {
		return err
	}
	if err := s.ahead.SetQuantization(level); err != nil {
		return err
	}
	s.opts.Quantization = level
	return nil
}

// Stop stops playback, drops pending notes and silences the sinks.
func (s *Session) Stop() {
	s.main.Stop()
	s.ahead.Stop()
	s.reset()
}

// Close stops the session. Later frames do nothing.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.Stop()
	s.closed = true
	s.log.Info("session closed", "loops", s.loops)
	return nil
}

// reset clears the match queues and silences the playback sinks.
func (s *Session) reset() {
	s.engine.Clear()
	s.guard("silence", s.sinks.Playback.Silence)
}

// Frame runs one step at session time now: live input, playback,
// anticipation, then the miss sweep.
func (s *Session) Frame(now time.Duration) FrameStats {
	var st FrameStats
	if s.closed {
		return st
	}
	if !s.clockSet {
		s.clockSet = true
		s.lastNow = now
	}
	elapsed := now - s.lastNow
	if elapsed < 0 {
		elapsed = 0
	}
	s.lastNow = now
	elapsedMs := float64(elapsed) / float64(time.Millisecond)

	st.Inputs = s.inbox.Drain(func(ev input.KeyEvent) { s.handleKey(ev, now) })
	if s.tl == nil {
		return st
	}

	// Time spent frozen in a pause moves the queued notes with the music.
	wasPaused := s.main.State() == sequencer.Paused
	playedBefore := s.main.Cursor().StartTimeOffsetMs
	batch := s.main.Advance(elapsedMs)
	if wasPaused {
		played := s.main.Cursor().StartTimeOffsetMs - playedBefore
		s.engine.Shift(msToDuration(elapsedMs - max(played, 0)))
	}
	if out := s.accompaniment(batch); len(out) > 0 {
		st.Emitted = len(out)
		s.guard("emit", func() { s.sinks.Playback.Emit(out) })
	}

	upcoming := s.ahead.Advance(elapsedMs)
	if s.primeAhead {
		switch s.ahead.State() {
		case sequencer.Playing:
			upcoming = append(upcoming, s.ahead.Advance(float64(s.opts.Lead)/float64(time.Millisecond))...)
			s.primeAhead = false
		case sequencer.Finished:
			s.primeAhead = false
		}
	}
	if s.Matching() {
		st.Anticipated = s.anticipate(upcoming, now)
	}

	switch s.main.State() {
	case sequencer.Paused, sequencer.Seeking:
	default:
		s.guard("sweep", func() { st.Missed = s.engine.Sweep(now) })
	}

	if s.main.State() == sequencer.Finished && s.opts.Loop {
		s.loops++
		s.log.Info("looping", "count", s.loops)
		s.reset()
		s.main.Play()
		s.ahead.Play()
		s.primeAhead = true
	}
	return st
}

func (s *Session) handleKey(ev input.KeyEvent, now time.Duration) {
	if s.sinks.Live != nil {
		ch := uint8(0)
		if s.Matching() {
			ch = uint8(s.opts.UserChannel)
		}
		if ev.Pressed {
			s.guard("live", func() { s.sinks.Live.NoteOn(ch, ev.Note, ev.Velocity) })
		} else {
			s.guard("live", func() { s.sinks.Live.NoteOff(ch, ev.Note) })
		}
	}
	if !s.Matching() || s.tl == nil {
		return
	}
	if !s.engine.InRange(ev.Note) {
		s.log.Debug("key outside range ignored", "event", ev.String())
		return
	}
	at := ev.At
	if at <= 0 || at > now {
		at = now
	}
	s.guard("match", func() {
		var o match.Outcome
		if ev.Pressed {
			o = s.engine.OnKeyPress(ev.Note, ev.Velocity, at)
		} else {
			o = s.engine.OnKeyRelease(ev.Note, ev.Velocity, at)
		}
		s.log.Debug("key", "event", ev.String(), "outcome", o)
	})
}

// accompaniment filters out the user's notes unless they should be heard.
func (s *Session) accompaniment(batch []timeline.TimedEvent) []timeline.TimedEvent {
	if !s.Matching() || s.opts.PlayUserPart {
		return batch
	}
	out := batch[:0:0]
	for _, ev := range batch {
		if s.isUserNote(ev) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (s *Session) isUserNote(ev timeline.TimedEvent) bool {
	if ev.Command != timeline.CommandNoteOn && ev.Command != timeline.CommandNoteOff {
		return false
	}
	return int(ev.Channel) == s.opts.UserChannel
}

// anticipate queues the user's upcoming NoteOns. Fire times are measured
// from the main player's position at the current speed.
func (s *Session) anticipate(upcoming []timeline.TimedEvent, now time.Duration) int {
	if len(upcoming) == 0 {
		return 0
	}
	tempo := s.tl.TempoMap()
	speed := s.main.Speed()
	mainMs := tempo.TickToMs(s.main.CurrentTick())

	n := 0
	for _, ev := range upcoming {
		if !ev.IsNoteOn() || int(ev.Channel) != s.opts.UserChannel {
			continue
		}
		note := int(ev.Key)
		if !s.engine.InRange(note) {
			s.log.Debug("note outside key range not anticipated", "event", ev.String())
			continue
		}
		evMs := tempo.TickToMs(float64(ev.QuantizedTick))
		fireAt := now + msToDuration((evMs-mainMs)/speed)
		duration := msToDuration(ev.DurationMs / speed)

		var handle any
		if s.sinks.Tracker != nil {
			s.guard("track", func() { handle = s.sinks.Tracker.Track(ev, fireAt) })
		}
		s.engine.NotifyUpcomingNote(ev, note, fireAt, duration, handle)
		n++
	}
	return n
}

// guard runs fn, logging and swallowing a panic from a sink.
func (s *Session) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sink panicked", "stage", what, "panic", r)
		}
	}()
	fn()
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
