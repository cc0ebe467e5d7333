package input

import "sync/atomic"

// DefaultInboxSize is enough for several seconds of dense playing at 60 fps.
const DefaultInboxSize = 256

// Inbox carries key events from input goroutines to the frame loop. Push
// never blocks; events that do not fit are dropped and counted.
type Inbox struct {
	ch      chan KeyEvent
	dropped atomic.Int64
}

// NewInbox creates an inbox holding up to size events.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{ch: make(chan KeyEvent, size)}
}

// Push enqueues ev and reports whether it fit.
func (b *Inbox) Push(ev KeyEvent) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Drain hands every queued event to fn in arrival order and returns the
// count. Events pushed while draining wait for the next call.
func (b *Inbox) Drain(fn func(KeyEvent)) int {
	n := len(b.ch)
	for i := 0; i < n; i++ {
		fn(<-b.ch)
	}
	return n
}

// Len returns the number of queued events.
func (b *Inbox) Len() int { return len(b.ch) }

// Dropped returns how many events were lost to a full inbox.
func (b *Inbox) Dropped() int64 { return b.dropped.Load() }
