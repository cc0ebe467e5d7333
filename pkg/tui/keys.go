package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// PianoKey is a qwerty key bound to a note.
type PianoKey struct {
	// MIDI note number, C4 = 60.
	MIDI int
	// Name of the note, ex: "C", "F#/Gb".
	Name         string
	IsAccidental bool
	KeyBinding   string
}

var noteNames = []struct {
	name         string
	isAccidental bool
}{
	{"C", false},
	{"C#/Db", true},
	{"D", false},
	{"D#/Eb", true},
	{"E", false},
	{"F", false},
	{"F#/Gb", true},
	{"G", false},
	{"G#/Ab", true},
	{"A", false},
	{"A#/Bb", true},
	{"B", false},
}

// qwertyKeys start at C: the home row holds naturals and the row above holds
// accidentals, close to a real piano fingering.
var qwertyKeys = []string{"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j", "k", "o", "l", "p", ";", "'"}

const (
	MinOctave     = 0
	MaxOctave     = 8
	DefaultOctave = 4
)

// OctaveKeys binds the qwerty keys to the notes starting at C of octave.
func OctaveKeys(octave int) []PianoKey {
	midiC0 := 12
	keys := make([]PianoKey, 0, len(qwertyKeys))
	for i, kb := range qwertyKeys {
		n := noteNames[i%12]
		keys = append(keys, PianoKey{
			MIDI:         midiC0 + 12*octave + i,
			Name:         n.name,
			IsAccidental: n.isAccidental,
			KeyBinding:   kb,
		})
	}
	return keys
}

// BindingMap indexes keys by their qwerty binding.
func BindingMap(keys []PianoKey) map[string]PianoKey {
	m := make(map[string]PianoKey, len(keys))
	for _, k := range keys {
		m[k.KeyBinding] = k
	}
	return m
}

// NoteName returns a note number as a name with octave, ex: 60 -> "C4".
func NoteName(midi int) string {
	if midi < 0 {
		return "?"
	}
	return fmt.Sprintf("%s%d", noteNames[midi%12].name, midi/12-1)
}

// KeyMap holds the transport bindings.
type KeyMap struct {
	Quit       key.Binding
	PlayPause  key.Binding
	Restart    key.Binding
	SeekBack   key.Binding
	SeekFwd    key.Binding
	SpeedDown  key.Binding
	SpeedUp    key.Binding
	QuantDown  key.Binding
	QuantUp    key.Binding
	OctaveDown key.Binding
	OctaveUp   key.Binding
	TolDown    key.Binding
	TolUp      key.Binding
	Mute       key.Binding
	VolumeDown key.Binding
	VolumeUp   key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys(tea.KeyCtrlC.String(), tea.KeyEsc.String()),
		key.WithHelp("esc", "quit"),
	),
	PlayPause: key.NewBinding(
		key.WithKeys(tea.KeySpace.String()),
		key.WithHelp("space", "play/pause"),
	),
	Restart: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "restart"),
	),
	SeekBack: key.NewBinding(
		key.WithKeys(tea.KeyLeft.String()),
		key.WithHelp("←", "bar back"),
	),
	SeekFwd: key.NewBinding(
		key.WithKeys(tea.KeyRight.String()),
		key.WithHelp("→", "bar forward"),
	),
	SpeedDown: key.NewBinding(
		key.WithKeys("-"),
		key.WithHelp("-", "slower"),
	),
	SpeedUp: key.NewBinding(
		key.WithKeys("="),
		key.WithHelp("=", "faster"),
	),
	QuantDown: key.NewBinding(
		key.WithKeys("["),
		key.WithHelp("[", "quantize -"),
	),
	QuantUp: key.NewBinding(
		key.WithKeys("]"),
		key.WithHelp("]", "quantize +"),
	),
	OctaveDown: key.NewBinding(
		key.WithKeys("z"),
		key.WithHelp("z", "octave down"),
	),
	OctaveUp: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "octave up"),
	),
	TolDown: key.NewBinding(
		key.WithKeys(","),
		key.WithHelp(",", "window -"),
	),
	TolUp: key.NewBinding(
		key.WithKeys("."),
		key.WithHelp(".", "window +"),
	),
	Mute: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mute"),
	),
	VolumeDown: key.NewBinding(
		key.WithKeys("9"),
		key.WithHelp("9", "vol -"),
	),
	VolumeUp: key.NewBinding(
		key.WithKeys("0"),
		key.WithHelp("0", "vol +"),
	),
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.Restart, k.SeekBack, k.SeekFwd, k.SpeedDown, k.SpeedUp, k.QuantDown, k.QuantUp, k.OctaveDown, k.OctaveUp, k.TolDown, k.TolUp, k.Mute, k.VolumeDown, k.VolumeUp, k.Quit}
}
