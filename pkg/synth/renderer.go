package synth

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// SampleRate is the audio sample rate used for synthesis.
const SampleRate = 44100

// Synthesizer is the part of meltysynth.Synthesizer the renderer drives.
type Synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1 int32, data2 int32)
	NoteOffAll(immediate bool)
	Render(left []float32, right []float32)
}

// NewSynthesizer creates a meltysynth synthesizer for sf.
func NewSynthesizer(sf *meltysynth.SoundFont) (*meltysynth.Synthesizer, error) {
	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	s, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	return s, nil
}

// pendingOff is a NoteOff due at a sample position.
type pendingOff struct {
	at      int64
	channel int32
	key     int32
}

// Renderer is a playback sink that feeds a synthesizer, and an io.Reader
// producing 16-bit little-endian stereo PCM from it. Emit is called from the
// frame loop and Read from the audio goroutine, so both take the lock.
type Renderer struct {
	mu          sync.Mutex
	synth       Synthesizer
	sampleCount int64
	stopped     bool

	// releaseByDuration schedules NoteOffs from note durations, for
	// timelines loaded without NoteOff events.
	releaseByDuration bool
	speed             float64
	pending           []pendingOff
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// ReleaseByDuration ends notes after their duration instead of waiting
	// for NoteOff events.
	ReleaseByDuration bool
}

// NewRenderer creates a renderer over synth.
func NewRenderer(synth Synthesizer, opts RendererOptions) *Renderer {
	return &Renderer{
		synth:             synth,
		releaseByDuration: opts.ReleaseByDuration,
		speed:             1,
	}
}

// SetSpeed scales scheduled note durations to the playback speed.
func (r *Renderer) SetSpeed(speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if speed > 0 {
		r.speed = speed
	}
}

// Emit sends channel events to the synthesizer. Meta events are ignored.
func (r *Renderer) Emit(batch []timeline.TimedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	for _, ev := range batch {
		ch := int32(ev.Channel)
		switch ev.Command {
		case timeline.CommandNoteOn:
			r.synth.ProcessMidiMessage(ch, 0x90, int32(ev.Key), int32(ev.Velocity))
			if r.releaseByDuration && ev.DurationMs > 0 {
				samples := int64(ev.DurationMs / r.speed * SampleRate / 1000)
				r.schedule(pendingOff{at: r.sampleCount + samples, channel: ch, key: int32(ev.Key)})
			}
		case timeline.CommandNoteOff:
			r.synth.ProcessMidiMessage(ch, 0x80, int32(ev.Key), int32(ev.Velocity))
		case timeline.CommandControlChange:
			r.synth.ProcessMidiMessage(ch, 0xB0, int32(ev.Key), int32(ev.Value))
		case timeline.CommandPatchChange:
			r.synth.ProcessMidiMessage(ch, 0xC0, int32(ev.Key), 0)
		case timeline.CommandPitchBend:
			r.synth.ProcessMidiMessage(ch, 0xE0, int32(ev.Value&0x7F), int32(ev.Value>>7))
		}
	}
}

func (r *Renderer) schedule(off pendingOff) {
	i := sort.Search(len(r.pending), func(i int) bool { return r.pending[i].at > off.at })
	r.pending = append(r.pending, pendingOff{})
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = off
}

// Silence releases every sounding note at once.
func (r *Renderer) Silence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = r.pending[:0]
	r.synth.NoteOffAll(true)
}

// NoteOn plays a live key, bypassing the timeline.
func (r *Renderer) NoteOn(ch uint8, key int, velocity uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth.ProcessMidiMessage(int32(ch), 0x90, int32(key), int32(velocity))
}

// NoteOff releases a live key.
func (r *Renderer) NoteOff(ch uint8, key int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth.ProcessMidiMessage(int32(ch), 0x80, int32(key), 0)
}

// Read implements io.Reader for Ebitengine audio.
func (r *Renderer) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.synth == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	// 16-bit stereo = 4 bytes per sample
	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	end := r.sampleCount + int64(samples)
	for len(r.pending) > 0 && r.pending[0].at < end {
		off := r.pending[0]
		r.pending = r.pending[1:]
		r.synth.ProcessMidiMessage(off.channel, 0x80, off.key, 0)
	}

	left := make([]float32, samples)
	right := make([]float32, samples)
	r.synth.Render(left, right)
	r.sampleCount = end

	for i := range samples {
		l := int16(clamp(left[i], -1, 1) * 32767)
		rr := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(rr))
	}
	return samples * 4, nil
}

// Stop makes Read return silence from now on.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.pending = nil
}

// SampleCount returns the number of samples rendered.
func (r *Renderer) SampleCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleCount
}

// PendingOffs returns the number of scheduled releases.
func (r *Renderer) PendingOffs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
