package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrNoInputPort is returned when no MIDI input matches the configuration.
var ErrNoInputPort = errors.New("no MIDI input port")

// DefaultRescanInterval is how often the watcher looks for devices.
const DefaultRescanInterval = time.Second

// DefaultExcluded are virtual ports never picked automatically.
var DefaultExcluded = []string{"Midi Through", "Through Port", "Dummy"}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Port restricts connections to inputs whose name contains it.
	Port string
	// Preferred patterns are tried first, in order.
	Preferred []string
	// Excluded patterns are never connected.
	Excluded []string
	Rescan   time.Duration
	// Clock stamps incoming events; it must be safe to call from the driver's
	// goroutine.
	Clock  func() time.Duration
	Logger *slog.Logger
	// OnDisconnect is called from its own goroutine when the device is lost.
	OnDisconnect func()
}

// Watcher holds at most one open keyboard input on a gomidi driver and
// decodes its messages into an Inbox. Rescans pick up plugged and unplugged
// devices.
type Watcher struct {
	mu    sync.Mutex
	drv   drivers.Driver
	inbox *Inbox
	opts  WatcherOptions
	log   *slog.Logger

	port   drivers.In
	stop   func()
	name   string
	active bool
}

// NewWatcher creates a watcher over drv. The caller owns drv.
func NewWatcher(drv drivers.Driver, inbox *Inbox, opts WatcherOptions) *Watcher {
	if opts.Rescan <= 0 {
		opts.Rescan = DefaultRescanInterval
	}
	if opts.Excluded == nil {
		opts.Excluded = DefaultExcluded
	}
	if opts.Clock == nil {
		start := time.Now()
		opts.Clock = func() time.Duration { return time.Since(start) }
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{drv: drv, inbox: inbox, opts: opts, log: log}
}

// Connected returns the name of the connected input, if any.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name, w.active
}

// Close drops the connection.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
}

// Run rescans every Rescan interval until ctx is done, then closes.
func (w *Watcher) Run(ctx context.Context) {
	w.Tick()
	ticker := time.NewTicker(w.opts.Rescan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick runs one rescan. While connected it only checks that the device is
// still listed; otherwise it opens the port PickPort chooses.
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	inputs := w.listInputs()
	if w.active {
		if slices.Contains(inputs, w.name) {
			return
		}
		w.log.Warn("midi input disappeared", "device", w.name)
		w.lost()
		return
	}

	cand, ok := PickPort(inputs, w.opts.Port, w.opts.Preferred)
	if !ok {
		return
	}
	if err := w.openByName(cand); err != nil {
		w.log.Error("midi input connect failed", "device", cand, "error", err)
	}
}

// Connect opens the best matching input immediately.
func (w *Watcher) Connect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return nil
	}
	inputs := w.listInputs()
	cand, ok := PickPort(inputs, w.opts.Port, w.opts.Preferred)
	if !ok {
		return fmt.Errorf("%w: %d candidates, port filter %q", ErrNoInputPort, len(inputs), w.opts.Port)
	}
	return w.openByName(cand)
}

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		w.log.Error("failed to list midi inputs", "error", err)
		return nil
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		if matchesAny(name, w.opts.Excluded) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// PickPort chooses an input: the first one containing port when port is set,
// otherwise the first preferred match, otherwise the only input.
func PickPort(inputs []string, port string, preferred []string) (string, bool) {
	if port != "" {
		for _, name := range inputs {
			if containsCI(name, port) {
				return name, true
			}
		}
		return "", false
	}
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

// closeConn requires w.mu.
func (w *Watcher) closeConn() {
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	if w.port != nil {
		_ = w.port.Close()
		w.port = nil
	}
	w.active = false
	w.name = ""
}

// lost closes a connection the device dropped and notifies OnDisconnect.
// It requires w.mu.
func (w *Watcher) lost() {
	w.closeConn()
	if w.opts.OnDisconnect != nil {
		go w.opts.OnDisconnect()
	}
}

func (w *Watcher) openByName(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(ins, func(in drivers.In) bool { return in.String() == name })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNoInputPort, name)
	}
	found := ins[i]
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		ev, ok := Decode(msg, w.opts.Clock())
		if !ok {
			return
		}
		if !w.inbox.Push(ev) {
			w.log.Warn("input inbox full, key event dropped", "event", ev.String())
		}
	}, midi.HandleError(func(listenErr error) {
		w.log.Warn("midi listener error", "device", name, "error", listenErr)
		// Not on the driver goroutine: closing stops the listener.
		go func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.active && w.name == name {
				w.lost()
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	w.port = found
	w.stop = stop
	w.active = true
	w.name = name
	w.log.Info("midi input connected", "device", name)
	return nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
