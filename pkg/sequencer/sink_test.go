package sequencer

import (
	"testing"

	"github.com/zurustar/holokeys/pkg/timeline"
)

type speedRecorder struct {
	Recorder
	speed float64
}

func (r *speedRecorder) SetSpeed(s float64) { r.speed = s }

func TestMultiSink(t *testing.T) {
	plain := &Recorder{}
	scaled := &speedRecorder{}
	m := MultiSink{plain, scaled, NopSink{}}

	m.Emit([]timeline.TimedEvent{{Index: 1}, {Index: 2}})
	m.Silence()
	m.SetSpeed(1.5)

	if len(plain.Events) != 2 || len(scaled.Events) != 2 {
		t.Errorf("events = %d, %d, want 2 each", len(plain.Events), len(scaled.Events))
	}
	if plain.Silenced != 1 || scaled.Silenced != 1 {
		t.Errorf("silenced = %d, %d, want 1 each", plain.Silenced, scaled.Silenced)
	}
	if scaled.speed != 1.5 {
		t.Errorf("speed = %v, want 1.5", scaled.speed)
	}
}
