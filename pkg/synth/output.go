package synth

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	sharedCtx     *audio.Context
	sharedCtxOnce sync.Once
)

// Context returns the process-wide audio context. Ebitengine allows only one.
func Context() *audio.Context {
	sharedCtxOnce.Do(func() {
		sharedCtx = audio.CurrentContext()
		if sharedCtx == nil {
			sharedCtx = audio.NewContext(SampleRate)
		}
	})
	return sharedCtx
}

// Output plays a PCM stream on an audio context.
type Output struct {
	mu     sync.Mutex
	player *audio.Player
	volume float64
	muted  bool
}

// NewOutput creates a player for stream on ctx (the shared context when nil).
func NewOutput(ctx *audio.Context, stream io.Reader) (*Output, error) {
	if ctx == nil {
		ctx = Context()
	}
	player, err := ctx.NewPlayer(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio player: %w", err)
	}
	return &Output{player: player, volume: 1}, nil
}

// Start begins pulling audio from the stream.
func (o *Output) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.player.Play()
}

// SetMuted silences the output without stopping the stream.
func (o *Output) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
	o.apply()
}

// Muted reports whether the output is muted.
func (o *Output) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// SetVolume sets the volume in [0, 1].
func (o *Output) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.volume = v
	o.apply()
}

// Volume returns the volume set by SetVolume.
func (o *Output) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

func (o *Output) apply() {
	if o.muted {
		o.player.SetVolume(0)
		return
	}
	o.player.SetVolume(o.volume)
}

// Close stops playback and releases the player.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.player.Pause()
	return o.player.Close()
}
