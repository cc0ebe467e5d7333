package input

import (
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/testdrv"

	"github.com/zurustar/holokeys/pkg/logger"
)

// plugDriver is a test driver whose single input can be unplugged.
type plugDriver struct {
	*testdrv.Driver
	unplugged bool
}

func (d *plugDriver) Ins() ([]drivers.In, error) {
	if d.unplugged {
		return nil, nil
	}
	return d.Driver.Ins()
}

func TestWatcher_ConnectDeliverUnplug(t *testing.T) {
	drv := &plugDriver{Driver: testdrv.New("keys")}
	inbox := NewInbox(8)
	lost := make(chan struct{}, 1)
	w := NewWatcher(drv, inbox, WatcherOptions{
		Rescan:       time.Hour,
		Clock:        func() time.Duration { return 42 * time.Millisecond },
		Logger:       logger.Discard(),
		OnDisconnect: func() { lost <- struct{}{} },
	})
	defer w.Close()

	w.Tick()
	name, ok := w.Connected()
	if !ok || name != "keys-in" {
		t.Fatalf("Connected = %q, %v; want keys-in", name, ok)
	}

	outs, _ := drv.Outs()
	if err := outs[0].Open(); err != nil {
		t.Fatal(err)
	}
	if err := outs[0].Send(midi.NoteOn(0, 60, 100)); err != nil {
		t.Fatal(err)
	}
	var got []KeyEvent
	inbox.Drain(func(ev KeyEvent) { got = append(got, ev) })
	if len(got) != 1 || got[0].Note != 60 || !got[0].Pressed || got[0].At != 42*time.Millisecond {
		t.Fatalf("events = %v, want a press of 60 at 42ms", got)
	}

	// Back-to-back rescans are not throttled: the unplug is seen at once
	// even though Rescan is an hour.
	drv.unplugged = true
	w.Tick()
	if _, ok := w.Connected(); ok {
		t.Fatal("still connected after unplug")
	}
	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("OnDisconnect not called")
	}

	drv.unplugged = false
	w.Tick()
	if _, ok := w.Connected(); !ok {
		t.Error("not reconnected after replug")
	}
}

func TestWatcher_ConnectWithoutInput(t *testing.T) {
	drv := &plugDriver{Driver: testdrv.New("keys"), unplugged: true}
	w := NewWatcher(drv, NewInbox(1), WatcherOptions{Logger: logger.Discard()})
	if err := w.Connect(); !errors.Is(err, ErrNoInputPort) {
		t.Fatalf("Connect = %v, want ErrNoInputPort", err)
	}
	drv.unplugged = false
	if err := w.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	w.Close()
	if _, ok := w.Connected(); ok {
		t.Error("connected after Close")
	}
}
