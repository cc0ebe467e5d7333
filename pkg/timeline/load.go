package timeline

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/zurustar/holokeys/pkg/fileutil"
)

// ErrParse is returned when the MIDI header or track data is malformed.
var ErrParse = errors.New("invalid MIDI data")

// ErrEmptyTimeline is returned when a file parses but yields no events.
var ErrEmptyTimeline = errors.New("MIDI file contains no events")

// LoadOptions controls how a file is turned into a timeline.
type LoadOptions struct {
	// KeepNoteOff keeps NoteOff events (and NoteOn with velocity 0) in the
	// timeline. Note durations are computed either way.
	KeepNoteOff bool
	// KeepEndTrack keeps End Of Track meta events. Dropping them makes the
	// duration end at the last meaningful event.
	KeepEndTrack bool
	// EnableTempoChanges honours every Set Tempo event. When false only the
	// first one is used for the whole file.
	EnableTempoChanges bool
	// Quantization is the grid level (0..6) used for TimedEvent.QuantizedTick.
	Quantization int
	// TextEncoding selects the decoder for meta text.
	TextEncoding TextEncoding
}

// DefaultLoadOptions returns the options used by the player.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		KeepNoteOff:        true,
		KeepEndTrack:       false,
		EnableTempoChanges: true,
		Quantization:       0,
		TextEncoding:       TextAuto,
	}
}

// LoadFile reads name from fsys and loads it.
func LoadFile(fsys fileutil.FileSystem, name string, opts LoadOptions) (*Timeline, error) {
	data, err := fsys.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file %s: %w", name, err)
	}
	tl, err := Load(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return tl, nil
}

// Load parses a Standard MIDI File (format 0 or 1) and builds its timeline.
// Either a complete timeline or an error is returned, never a partial one.
func Load(data []byte, opts LoadOptions) (*Timeline, error) {
	if len(data) < 14 || !bytes.Equal(data[0:4], []byte("MThd")) {
		return nil, fmt.Errorf("%w: missing MThd header", ErrParse)
	}

	// Bit 15 of the division selects SMPTE time code.
	if data[12]&0x80 != 0 {
		return nil, fmt.Errorf("%w: SMPTE time division is not supported", ErrParse)
	}

	grid := NoGrid
	s, err := readSMF(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, fmt.Errorf("%w: unsupported time division %v", ErrParse, s.TimeFormat)
	}
	tpq := int(ticks)
	if grid, err = GridForLevel(tpq, opts.Quantization); err != nil {
		return nil, err
	}

	var (
		raws    []RawEvent
		changes []TempoChange
	)
	for ti, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			raw, ok := decodeMessage([]byte(ev.Message), opts.TextEncoding)
			if !ok {
				continue
			}
			raw.Track = ti
			raw.Delta = ev.Delta
			raw.Tick = tick
			if us, ok := raw.TempoMicros(); ok {
				changes = append(changes, TempoChange{Track: ti, Tick: tick, MicrosPerQuarter: us})
			}
			raws = append(raws, raw)
		}
	}

	// The tempo map is complete before any real time is computed, so tempo
	// changes found late in the pass still apply to earlier events.
	tempo := BuildTempoMap(changes, tpq, opts.EnableTempoChanges)

	// Merge tracks in tick order; ties keep track order.
	sort.SliceStable(raws, func(i, j int) bool {
		return raws[i].Tick < raws[j].Tick
	})

	durations := pairNotes(raws)

	tl := &Timeline{
		ticksPerQuarter: tpq,
		format:          int(s.Format()),
		trackCount:      len(s.Tracks),
		tempo:           tempo,
		grid:            grid,
		options:         opts,
		trackNames:      make([]string, len(s.Tracks)),
	}

	tl.events = make([]TimedEvent, 0, len(raws))
	for i, raw := range raws {
		if raw.Command == CommandNoteOff && !opts.KeepNoteOff {
			continue
		}
		if raw.IsMeta(MetaEndOfTrack) && !opts.KeepEndTrack {
			continue
		}
		ev := TimedEvent{
			RawEvent:      raw,
			Index:         len(tl.events),
			QuantizedTick: grid.Snap(raw.Tick),
			RealTimeMs:    tempo.TickToMs(float64(raw.Tick)),
		}
		if raw.IsNoteOn() {
			ev.DurationTicks = durations[i]
			ev.DurationMs = tempo.TickToMs(float64(raw.Tick+durations[i])) - ev.RealTimeMs
		}
		tl.events = append(tl.events, ev)
	}

	if len(tl.events) == 0 {
		return nil, ErrEmptyTimeline
	}

	tl.deriveFacts()
	return tl, nil
}

// pairNotes returns, for every NoteOn in raws, the tick distance to its
// NoteOff. Overlapping notes on the same channel/key pair first-in
// first-out. Unterminated notes last until the final event.
func pairNotes(raws []RawEvent) []int64 {
	durations := make([]int64, len(raws))
	if len(raws) == 0 {
		return durations
	}
	lastTick := raws[len(raws)-1].Tick

	open := make(map[uint16][]int)
	for i, raw := range raws {
		id := uint16(raw.Channel)<<8 | uint16(raw.Key)
		switch {
		case raw.IsNoteOn():
			open[id] = append(open[id], i)
		case raw.Command == CommandNoteOff:
			pending := open[id]
			if len(pending) == 0 {
				continue
			}
			on := pending[0]
			open[id] = pending[1:]
			durations[on] = raw.Tick - raws[on].Tick
		}
	}
	for _, pending := range open {
		for _, on := range pending {
			durations[on] = lastTick - raws[on].Tick
		}
	}
	return durations
}

// decodeMessage converts one track message. SysEx and unsupported channel
// messages (aftertouch) report false.
func decodeMessage(b []byte, enc TextEncoding) (RawEvent, bool) {
	if len(b) == 0 {
		return RawEvent{}, false
	}
	if b[0] == 0xFF {
		return decodeMeta(b, enc)
	}
	if b[0] == 0xF0 || b[0] == 0xF7 {
		return RawEvent{}, false
	}

	msg := midi.Message(b)
	var (
		ch, key, vel uint8
		rel          int16
		abs          uint16
	)
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return RawEvent{Command: CommandNoteOn, Channel: ch, Key: key, Velocity: vel}, true
	case msg.GetNoteEnd(&ch, &key):
		vel = 0
		msg.GetNoteOff(&ch, &key, &vel)
		return RawEvent{Command: CommandNoteOff, Channel: ch, Key: key, Velocity: vel}, true
	case msg.GetControlChange(&ch, &key, &vel):
		return RawEvent{Command: CommandControlChange, Channel: ch, Key: key, Value: uint16(vel)}, true
	case msg.GetProgramChange(&ch, &key):
		return RawEvent{Command: CommandPatchChange, Channel: ch, Key: key}, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return RawEvent{Command: CommandPitchBend, Channel: ch, Value: abs}, true
	}
	return RawEvent{}, false
}

// decodeMeta splits a meta message (0xFF, type, varlen length, data).
func decodeMeta(b []byte, enc TextEncoding) (RawEvent, bool) {
	if len(b) < 3 {
		return RawEvent{}, false
	}
	length, n := readVarLen(b[2:])
	start := 2 + n
	end := start + length
	if n == 0 || end > len(b) {
		return RawEvent{}, false
	}
	data := make([]byte, length)
	copy(data, b[start:end])

	ev := RawEvent{
		Command:  CommandMeta,
		Meta:     MetaType(b[1]),
		MetaData: data,
	}
	if ev.Meta.IsText() {
		ev.Text = DecodeText(data, enc)
	}
	return ev, true
}

// readSMF runs the gomidi reader, turning a panic on malformed input into an
// error.
func readSMF(data []byte) (s *smf.SMF, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("reader panic: %v", r)
		}
	}()
	return smf.ReadFrom(bytes.NewReader(data))
}

// readVarLen reads a variable-length quantity; n is 0 when data is truncated.
func readVarLen(data []byte) (value, n int) {
	for i := 0; i < len(data) && i < 4; i++ {
		value = (value << 7) | int(data[i]&0x7F)
		if data[i]&0x80 == 0 {
			return value, i + 1
		}
	}
	return 0, 0
}
