// Package input turns live MIDI keyboard messages into key events and hands
// them to the frame loop.
package input

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// KeyEvent is a decoded press or release.
type KeyEvent struct {
	Note     int
	Velocity uint8
	Pressed  bool
	// At is the arrival time on the session clock.
	At time.Duration
}

func (e KeyEvent) String() string {
	action := "release"
	if e.Pressed {
		action = "press"
	}
	return fmt.Sprintf("%s note=%d vel=%d at=%s", action, e.Note, e.Velocity, e.At)
}

// Decode converts a note message. NoteOn with velocity 0 is a release. Other
// messages report false.
func Decode(msg midi.Message, at time.Duration) (KeyEvent, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return KeyEvent{Note: int(key), Velocity: vel, Pressed: true, At: at}, true
	case msg.GetNoteEnd(&ch, &key):
		vel = 0
		msg.GetNoteOff(&ch, &key, &vel)
		return KeyEvent{Note: int(key), Velocity: vel, Pressed: false, At: at}, true
	}
	return KeyEvent{}, false
}
