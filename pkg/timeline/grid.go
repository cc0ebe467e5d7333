package timeline

import "fmt"

// MaxQuantizationLevel is the finest supported grid (a 256th note at
// level 6 relative to a quarter).
const MaxQuantizationLevel = 6

// Grid snaps ticks to multiples of Ticks. A zero Grid leaves ticks unchanged.
type Grid struct {
	Ticks int64
}

// NoGrid disables quantization.
var NoGrid = Grid{}

// GridForLevel returns the grid ticksPerQuarter / 2^level. Level 0 means no
// quantization.
func GridForLevel(ticksPerQuarter, level int) (Grid, error) {
	if level < 0 || level > MaxQuantizationLevel {
		return NoGrid, fmt.Errorf("quantization level %d out of range 0..%d", level, MaxQuantizationLevel)
	}
	if level == 0 || ticksPerQuarter <= 0 {
		return NoGrid, nil
	}
	ticks := int64(ticksPerQuarter) >> uint(level)
	if ticks <= 1 {
		return NoGrid, nil
	}
	return Grid{Ticks: ticks}, nil
}

// Enabled reports whether the grid alters ticks.
func (g Grid) Enabled() bool {
	return g.Ticks > 1
}

// Snap rounds tick to the nearest grid line (halves round up).
func (g Grid) Snap(tick int64) int64 {
	if !g.Enabled() || tick <= 0 {
		return tick
	}
	return (tick + g.Ticks/2) / g.Ticks * g.Ticks
}
