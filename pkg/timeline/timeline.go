// Package timeline loads Standard MIDI Files into an immutable, time-ordered
// event list with a tempo map for tick/millisecond conversion.
package timeline

import (
	"sort"
)

// TimeSignature is the first time signature of a file (4/4 when absent).
type TimeSignature struct {
	Numerator   uint8
	Denominator uint8
}

// KeySignature is the first key signature of a file. Sharps is negative for
// flats.
type KeySignature struct {
	Sharps int8
	Minor  bool
}

// Timeline is a loaded file. It is read-only after Load returns and may be
// shared by several players.
type Timeline struct {
	ticksPerQuarter int
	format          int
	trackCount      int
	tempo           *TempoMap
	grid            Grid
	options         LoadOptions
	events          []TimedEvent

	trackNames []string
	timeSig    TimeSignature
	keySig     KeySignature

	tickLast        int64
	tickFirstNoteOn int64
	tickLastNoteOn  int64
	msLast          float64
	msFirstNoteOn   float64
	msLastNoteOn    float64

	noteOnCount int
	channels    [16]bool
}

// deriveFacts fills the summary fields from the sorted events.
func (tl *Timeline) deriveFacts() {
	tl.timeSig = TimeSignature{Numerator: 4, Denominator: 4}
	seenTime, seenKey := false, false
	firstNote := true

	for _, ev := range tl.events {
		if ev.Tick > tl.tickLast {
			tl.tickLast = ev.Tick
		}
		switch {
		case ev.IsNoteOn():
			tl.noteOnCount++
			tl.channels[ev.Channel&0x0F] = true
			if firstNote {
				tl.tickFirstNoteOn = ev.Tick
				firstNote = false
			}
			tl.tickLastNoteOn = ev.Tick
		case ev.IsMeta(MetaTrackName):
			if ev.Track < len(tl.trackNames) && tl.trackNames[ev.Track] == "" {
				tl.trackNames[ev.Track] = ev.Text
			}
		case ev.IsMeta(MetaTimeSignature) && !seenTime && len(ev.MetaData) >= 2:
			seenTime = true
			tl.timeSig = TimeSignature{Numerator: ev.MetaData[0], Denominator: 1 << (ev.MetaData[1] & 0x07)}
		case ev.IsMeta(MetaKeySignature) && !seenKey && len(ev.MetaData) >= 2:
			seenKey = true
			tl.keySig = KeySignature{Sharps: int8(ev.MetaData[0]), Minor: ev.MetaData[1] == 1}
		}
	}

	tl.msLast = tl.tempo.TickToMs(float64(tl.tickLast))
	tl.msFirstNoteOn = tl.tempo.TickToMs(float64(tl.tickFirstNoteOn))
	tl.msLastNoteOn = tl.tempo.TickToMs(float64(tl.tickLastNoteOn))
}

// TicksPerQuarter returns the file's time division.
func (tl *Timeline) TicksPerQuarter() int { return tl.ticksPerQuarter }

// Format returns the SMF format (0 or 1).
func (tl *Timeline) Format() int { return tl.format }

// TrackCount returns the number of tracks in the file.
func (tl *Timeline) TrackCount() int { return tl.trackCount }

// TempoMap returns the tempo map built at load.
func (tl *Timeline) TempoMap() *TempoMap { return tl.tempo }

// Grid returns the quantization grid used for QuantizedTick.
func (tl *Timeline) Grid() Grid { return tl.grid }

// Options returns the options the timeline was loaded with.
func (tl *Timeline) Options() LoadOptions { return tl.options }

// Len returns the number of events.
func (tl *Timeline) Len() int { return len(tl.events) }

// Event returns event i.
func (tl *Timeline) Event(i int) TimedEvent { return tl.events[i] }

// Events returns a copy of all events.
func (tl *Timeline) Events() []TimedEvent {
	out := make([]TimedEvent, len(tl.events))
	copy(out, tl.events)
	return out
}

// TickLast is the tick of the last kept event.
func (tl *Timeline) TickLast() int64 { return tl.tickLast }

// TickFirstNoteOn is the tick of the first NoteOn, 0 when there is none.
func (tl *Timeline) TickFirstNoteOn() int64 { return tl.tickFirstNoteOn }

// TickLastNoteOn is the tick of the last NoteOn, 0 when there is none.
func (tl *Timeline) TickLastNoteOn() int64 { return tl.tickLastNoteOn }

// DurationMs is the real time of TickLast.
func (tl *Timeline) DurationMs() float64 { return tl.msLast }

// FirstNoteOnMs is the real time of TickFirstNoteOn.
func (tl *Timeline) FirstNoteOnMs() float64 { return tl.msFirstNoteOn }

// LastNoteOnMs is the real time of TickLastNoteOn.
func (tl *Timeline) LastNoteOnMs() float64 { return tl.msLastNoteOn }

// NoteOnCount returns the number of NoteOn events.
func (tl *Timeline) NoteOnCount() int { return tl.noteOnCount }

// TrackName returns the first TrackName meta text of track i.
func (tl *Timeline) TrackName(i int) string {
	if i < 0 || i >= len(tl.trackNames) {
		return ""
	}
	return tl.trackNames[i]
}

// TimeSignature returns the first time signature.
func (tl *Timeline) TimeSignature() TimeSignature { return tl.timeSig }

// KeySignature returns the first key signature.
func (tl *Timeline) KeySignature() KeySignature { return tl.keySig }

// Channels returns the channels with at least one NoteOn, ascending.
func (tl *Timeline) Channels() []uint8 {
	var out []uint8
	for ch, used := range tl.channels {
		if used {
			out = append(out, uint8(ch))
		}
	}
	return out
}

// EventsInTickRange returns the events whose tick, snapped to grid, lies in
// [from, to]. The result is a copy.
func (tl *Timeline) EventsInTickRange(from, to int64, grid Grid) []TimedEvent {
	if to < from {
		return nil
	}
	// Snap is monotonic, so the snapped ticks stay sorted.
	start := sort.Search(len(tl.events), func(i int) bool {
		return grid.Snap(tl.events[i].Tick) >= from
	})
	var out []TimedEvent
	for i := start; i < len(tl.events); i++ {
		q := grid.Snap(tl.events[i].Tick)
		if q > to {
			break
		}
		ev := tl.events[i]
		ev.QuantizedTick = q
		out = append(out, ev)
	}
	return out
}

// SearchEventNearTime returns the event whose RealTimeMs is closest to ms.
// It reports false when ms is outside [0, DurationMs].
func (tl *Timeline) SearchEventNearTime(ms float64) (TimedEvent, bool) {
	if ms < 0 || ms > tl.msLast || len(tl.events) == 0 {
		return TimedEvent{}, false
	}
	i := sort.Search(len(tl.events), func(i int) bool {
		return tl.events[i].RealTimeMs >= ms
	})
	if i == len(tl.events) {
		return tl.events[i-1], true
	}
	if i > 0 && ms-tl.events[i-1].RealTimeMs <= tl.events[i].RealTimeMs-ms {
		return tl.events[i-1], true
	}
	return tl.events[i], true
}

// searchEpsilon absorbs float noise when ms was itself derived from a tick.
const searchEpsilon = 1e-9

// SearchTickFromTime returns the tick of the first event at or after ms. It
// returns 0 below the timeline and TickLast beyond it. This is a linear scan:
// exact under any tempo map, meant for explicit seeks rather than per frame.
func (tl *Timeline) SearchTickFromTime(ms float64) int64 {
	if ms <= 0 {
		return 0
	}
	if ms > tl.msLast {
		return tl.tickLast
	}
	for _, ev := range tl.events {
		if ev.RealTimeMs+searchEpsilon >= ms {
			return ev.Tick
		}
	}
	return tl.tickLast
}
