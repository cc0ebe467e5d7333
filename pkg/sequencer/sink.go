package sequencer

import (
	"log/slog"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// PlaybackSink receives the batches a Player emits.
type PlaybackSink interface {
	// Emit is called with each non-empty batch, in tick order.
	Emit(batch []timeline.TimedEvent)
	// Silence stops any sound in progress (on seek, stop or loop).
	Silence()
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit([]timeline.TimedEvent) {}
func (NopSink) Silence()                   {}

// SinkFunc adapts a function to a PlaybackSink with a no-op Silence.
type SinkFunc func(batch []timeline.TimedEvent)

func (f SinkFunc) Emit(batch []timeline.TimedEvent) { f(batch) }
func (f SinkFunc) Silence()                         {}

// MultiSink fans out to several sinks in order.
type MultiSink []PlaybackSink

func (m MultiSink) Emit(batch []timeline.TimedEvent) {
	for _, s := range m {
		s.Emit(batch)
	}
}

func (m MultiSink) Silence() {
	for _, s := range m {
		s.Silence()
	}
}

// SetSpeed forwards to the sinks that scale note lengths by the speed.
func (m MultiSink) SetSpeed(speed float64) {
	for _, s := range m {
		if ss, ok := s.(interface{ SetSpeed(float64) }); ok {
			ss.SetSpeed(speed)
		}
	}
}

// LogSink logs every event at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(batch []timeline.TimedEvent) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	for _, ev := range batch {
		log.Debug("event",
			"index", ev.Index,
			"tick", ev.Tick,
			"ms", ev.RealTimeMs,
			"command", ev.Command,
			"channel", ev.Channel,
			"key", ev.Key,
			"velocity", ev.Velocity,
		)
	}
}

func (s LogSink) Silence() {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("silence")
}

// Recorder keeps every emitted event.
type Recorder struct {
	Events   []timeline.TimedEvent
	Silenced int
}

func (r *Recorder) Emit(batch []timeline.TimedEvent) {
	r.Events = append(r.Events, batch...)
}

func (r *Recorder) Silence() {
	r.Silenced++
}
