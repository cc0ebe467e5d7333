// Package timelinetest builds Standard MIDI Files in memory for tests.
package timelinetest

import (
	"bytes"
	"sort"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Event is a message placed at an absolute tick.
type Event struct {
	Tick uint32
	Msg  []byte
}

// Track is a list of events plus the tick of its End Of Track. An End of 0
// closes the track right after its last event.
type Track struct {
	Events []Event
	End    uint32
}

// NoteOn returns a NoteOn event.
func NoteOn(tick uint32, ch, key, vel uint8) Event {
	return Event{Tick: tick, Msg: midi.NoteOn(ch, key, vel)}
}

// NoteOff returns a NoteOff event.
func NoteOff(tick uint32, ch, key uint8) Event {
	return Event{Tick: tick, Msg: midi.NoteOff(ch, key)}
}

// Note returns a NoteOn/NoteOff pair.
func Note(tick, length uint32, ch, key, vel uint8) []Event {
	return []Event{NoteOn(tick, ch, key, vel), NoteOff(tick+length, ch, key)}
}

// Tempo returns a Set Tempo meta event with an exact µs per quarter value.
func Tempo(tick uint32, microsPerQuarter int) Event {
	return Event{Tick: tick, Msg: []byte{
		0xFF, 0x51, 0x03,
		byte(microsPerQuarter >> 16), byte(microsPerQuarter >> 8), byte(microsPerQuarter),
	}}
}

// TrackName returns a TrackName meta event with a raw payload.
func TrackName(tick uint32, name []byte) Event {
	return Meta(tick, 0x03, name)
}

// Meta returns a meta event of the given type with a short payload.
func Meta(tick uint32, typ byte, data []byte) Event {
	msg := append([]byte{0xFF, typ, byte(len(data))}, data...)
	return Event{Tick: tick, Msg: msg}
}

// Build writes an SMF with the given resolution using the gomidi writer.
func Build(t testing.TB, ticksPerQuarter uint16, tracks ...Track) []byte {
	t.Helper()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	for _, tr := range tracks {
		events := append([]Event(nil), tr.Events...)
		sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })

		var track smf.Track
		var last uint32
		for _, ev := range events {
			track.Add(ev.Tick-last, ev.Msg)
			last = ev.Tick
		}
		end := uint32(0)
		if tr.End > last {
			end = tr.End - last
		}
		track.Close(end)
		if err := s.Add(track); err != nil {
			t.Fatalf("failed to add track: %v", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write SMF: %v", err)
	}
	return buf.Bytes()
}

// Simple returns a one-track file at 480 ticks per quarter and 120 BPM with
// quarter notes on channel 0 at the given keys, one per beat.
func Simple(t testing.TB, keys ...uint8) []byte {
	t.Helper()
	events := []Event{Tempo(0, 500000)}
	for i, key := range keys {
		events = append(events, Note(uint32(i)*480, 240, 0, key, 100)...)
	}
	return Build(t, 480, Track{Events: events})
}

// EncodeVarLen encodes a variable-length quantity.
func EncodeVarLen(value int) []byte {
	if value == 0 {
		return []byte{0}
	}
	var out []byte
	for value > 0 {
		b := byte(value & 0x7F)
		value >>= 7
		if len(out) > 0 {
			b |= 0x80
		}
		out = append([]byte{b}, out...)
	}
	return out
}

// RawFile wraps hand-encoded track bodies in MThd/MTrk chunks.
func RawFile(format uint16, division uint16, bodies ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	buf.Write([]byte{0, 0, 0, 6})
	buf.Write([]byte{byte(format >> 8), byte(format)})
	buf.Write([]byte{byte(len(bodies) >> 8), byte(len(bodies))})
	buf.Write([]byte{byte(division >> 8), byte(division)})
	for _, body := range bodies {
		buf.WriteString("MTrk")
		n := len(body)
		buf.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
		buf.Write(body)
	}
	return buf.Bytes()
}
