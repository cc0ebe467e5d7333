package timeline

import "fmt"

// Command is the kind of a parsed MIDI event.
type Command uint8

const (
	CommandNoteOn Command = iota
	CommandNoteOff
	CommandControlChange
	CommandPatchChange
	CommandPitchBend
	CommandMeta
)

func (c Command) String() string {
	switch c {
	case CommandNoteOn:
		return "NoteOn"
	case CommandNoteOff:
		return "NoteOff"
	case CommandControlChange:
		return "ControlChange"
	case CommandPatchChange:
		return "PatchChange"
	case CommandPitchBend:
		return "PitchBend"
	case CommandMeta:
		return "Meta"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// MetaType is the sub-type byte of a meta event (the byte after 0xFF).
type MetaType uint8

const (
	MetaSequenceNumber MetaType = 0x00
	MetaText           MetaType = 0x01
	MetaCopyright      MetaType = 0x02
	MetaTrackName      MetaType = 0x03
	MetaInstrument     MetaType = 0x04
	MetaLyric          MetaType = 0x05
	MetaMarker         MetaType = 0x06
	MetaCuePoint       MetaType = 0x07
	MetaChannelPrefix  MetaType = 0x20
	MetaEndOfTrack     MetaType = 0x2F
	MetaTempo          MetaType = 0x51
	MetaSMPTEOffset    MetaType = 0x54
	MetaTimeSignature  MetaType = 0x58
	MetaKeySignature   MetaType = 0x59
	MetaSequencer      MetaType = 0x7F
)

// IsText reports whether the meta payload is a text string.
func (m MetaType) IsText() bool {
	return m >= MetaText && m <= MetaCuePoint
}

func (m MetaType) String() string {
	switch m {
	case MetaSequenceNumber:
		return "SequenceNumber"
	case MetaText:
		return "Text"
	case MetaCopyright:
		return "Copyright"
	case MetaTrackName:
		return "TrackName"
	case MetaInstrument:
		return "Instrument"
	case MetaLyric:
		return "Lyric"
	case MetaMarker:
		return "Marker"
	case MetaCuePoint:
		return "CuePoint"
	case MetaChannelPrefix:
		return "ChannelPrefix"
	case MetaEndOfTrack:
		return "EndOfTrack"
	case MetaTempo:
		return "Tempo"
	case MetaSMPTEOffset:
		return "SMPTEOffset"
	case MetaTimeSignature:
		return "TimeSignature"
	case MetaKeySignature:
		return "KeySignature"
	case MetaSequencer:
		return "SequencerSpecific"
	default:
		return fmt.Sprintf("Meta(0x%02X)", uint8(m))
	}
}

// RawEvent is a MIDI event as read from a track. It is never modified after
// parsing.
type RawEvent struct {
	Track   int
	Delta   uint32
	Tick    int64
	Command Command
	Channel uint8

	// Key is the note number for note events, the controller number for
	// ControlChange and the program for PatchChange.
	Key uint8
	// Value is the controller value for ControlChange and the absolute
	// 14-bit bend (0..16383, centre 8192) for PitchBend.
	Value    uint16
	Velocity uint8

	Meta     MetaType
	MetaData []byte
	// Text holds the UTF-8 decoded payload of text meta events.
	Text string
}

// IsNoteOn reports whether the event starts a note (velocity > 0).
func (e RawEvent) IsNoteOn() bool {
	return e.Command == CommandNoteOn && e.Velocity > 0
}

// IsMeta reports whether the event is a meta event of the given type.
func (e RawEvent) IsMeta(t MetaType) bool {
	return e.Command == CommandMeta && e.Meta == t
}

// TempoMicros returns the microseconds per quarter note carried by a tempo
// meta event.
func (e RawEvent) TempoMicros() (int, bool) {
	if !e.IsMeta(MetaTempo) || len(e.MetaData) != 3 {
		return 0, false
	}
	return int(e.MetaData[0])<<16 | int(e.MetaData[1])<<8 | int(e.MetaData[2]), true
}

// TimedEvent is a RawEvent placed on the timeline.
type TimedEvent struct {
	RawEvent

	// Index is the position of the event in the timeline; stable for the
	// lifetime of the loaded file.
	Index int
	// QuantizedTick is Tick snapped to the grid chosen at load time.
	QuantizedTick int64
	// RealTimeMs is the time of Tick under the tempo map, fixed at load.
	RealTimeMs float64

	// DurationTicks and DurationMs are set on NoteOn events to the distance
	// to the matching NoteOff (or to the last event for unterminated notes).
	DurationTicks int64
	DurationMs    float64
}

func (e TimedEvent) String() string {
	switch e.Command {
	case CommandNoteOn, CommandNoteOff:
		return fmt.Sprintf("%s tick=%d ms=%.2f ch=%d key=%d vel=%d", e.Command, e.Tick, e.RealTimeMs, e.Channel, e.Key, e.Velocity)
	case CommandMeta:
		return fmt.Sprintf("%s tick=%d ms=%.2f %s", e.Command, e.Tick, e.RealTimeMs, e.Meta)
	default:
		return fmt.Sprintf("%s tick=%d ms=%.2f ch=%d key=%d value=%d", e.Command, e.Tick, e.RealTimeMs, e.Channel, e.Key, e.Value)
	}
}
