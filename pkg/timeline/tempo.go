package timeline

import (
	"math"
	"sort"
)

// DefaultMicrosPerQuarter is the MIDI default tempo (120 BPM).
const DefaultMicrosPerQuarter = 500000

// TempoChange is a Set Tempo meta event found in a file.
type TempoChange struct {
	Track            int
	Tick             int64
	MicrosPerQuarter int
}

// TempoSegment is a tick range over which one tempo applies. A segment runs
// from FromTick up to the FromTick of the next segment.
type TempoSegment struct {
	Track            int
	FromTick         int64
	MicrosPerQuarter int
	// CumulativeMs is the real time at FromTick.
	CumulativeMs float64
	// MsPerTick is MicrosPerQuarter / ticksPerQuarter / 1000.
	MsPerTick float64
}

// BPM returns the tempo of the segment in beats per minute.
func (s TempoSegment) BPM() float64 {
	return 60000000.0 / float64(s.MicrosPerQuarter)
}

// TempoMap converts MIDI ticks to milliseconds under a piecewise-constant
// tempo. The segments are contiguous, sorted by FromTick, and the first one
// starts at tick 0.
type TempoMap struct {
	ticksPerQuarter int
	segments        []TempoSegment
}

// BuildTempoMap creates a TempoMap from the tempo changes of a file.
//
// With no changes a single 120 BPM segment at tick 0 is synthesized. When
// enableChanges is false only the first change (in tick order) is honoured
// and the rest are ignored. A first change after tick 0 gets a default
// 120 BPM segment in front of it; when several changes share a tick the last
// one wins.
func BuildTempoMap(changes []TempoChange, ticksPerQuarter int, enableChanges bool) *TempoMap {
	if ticksPerQuarter <= 0 {
		ticksPerQuarter = 480
	}

	sorted := make([]TempoChange, 0, len(changes))
	for _, c := range changes {
		if c.MicrosPerQuarter > 0 {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tick < sorted[j].Tick
	})
	if !enableChanges && len(sorted) > 1 {
		sorted = sorted[:1]
	}

	tm := &TempoMap{ticksPerQuarter: ticksPerQuarter}
	if len(sorted) == 0 || sorted[0].Tick > 0 {
		tm.segments = append(tm.segments, TempoSegment{
			FromTick:         0,
			MicrosPerQuarter: DefaultMicrosPerQuarter,
		})
	}

	for _, c := range sorted {
		tick := c.Tick
		if tick < 0 {
			tick = 0
		}
		seg := TempoSegment{
			Track:            c.Track,
			FromTick:         tick,
			MicrosPerQuarter: c.MicrosPerQuarter,
		}
		if n := len(tm.segments); n > 0 && tm.segments[n-1].FromTick == tick {
			tm.segments[n-1] = seg
			continue
		}
		tm.segments = append(tm.segments, seg)
	}

	tm.accumulate()
	return tm
}

// accumulate fills CumulativeMs and MsPerTick for every segment.
func (tm *TempoMap) accumulate() {
	for i := range tm.segments {
		seg := &tm.segments[i]
		seg.MsPerTick = float64(seg.MicrosPerQuarter) / float64(tm.ticksPerQuarter) / 1000.0
		if i == 0 {
			seg.CumulativeMs = 0
			continue
		}
		prev := tm.segments[i-1]
		seg.CumulativeMs = prev.CumulativeMs + ticksToMs(seg.FromTick-prev.FromTick, prev.MicrosPerQuarter, tm.ticksPerQuarter)
	}
}

// ticksToMs converts a tick count at a fixed tempo. Multiplying before
// dividing keeps integral results exact (480 ticks at 500000µs = 500ms).
func ticksToMs(ticks int64, microsPerQuarter, ticksPerQuarter int) float64 {
	return float64(ticks) * float64(microsPerQuarter) / float64(ticksPerQuarter) / 1000.0
}

// TicksPerQuarter returns the resolution the map was built for.
func (tm *TempoMap) TicksPerQuarter() int {
	return tm.ticksPerQuarter
}

// Len returns the number of segments.
func (tm *TempoMap) Len() int {
	return len(tm.segments)
}

// Segments returns a copy of the segments.
func (tm *TempoMap) Segments() []TempoSegment {
	out := make([]TempoSegment, len(tm.segments))
	copy(out, tm.segments)
	return out
}

// Segment returns segment i.
func (tm *TempoMap) Segment(i int) TempoSegment {
	return tm.segments[i]
}

// SegmentIndexAt returns the index of the last segment with FromTick <= tick.
func (tm *TempoMap) SegmentIndexAt(tick float64) int {
	i := sort.Search(len(tm.segments), func(i int) bool {
		return float64(tm.segments[i].FromTick) > tick
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// SegmentAt returns the segment in effect at tick.
func (tm *TempoMap) SegmentAt(tick float64) TempoSegment {
	return tm.segments[tm.SegmentIndexAt(tick)]
}

// TickToMs converts a (possibly fractional) tick to milliseconds.
func (tm *TempoMap) TickToMs(tick float64) float64 {
	if tick <= 0 {
		return 0
	}
	seg := tm.SegmentAt(tick)
	whole := math.Floor(tick)
	ms := seg.CumulativeMs + ticksToMs(int64(whole)-seg.FromTick, seg.MicrosPerQuarter, tm.ticksPerQuarter)
	if frac := tick - whole; frac > 0 {
		ms += frac * seg.MsPerTick
	}
	return ms
}

// MsToApproxTick inverts TickToMs using the first segment only. It is exact
// when the map has a single segment and only an approximation otherwise;
// use Timeline.SearchTickFromTime when tempo changes are present.
func (tm *TempoMap) MsToApproxTick(ms float64) int64 {
	if ms <= 0 {
		return 0
	}
	return int64(math.Round(ms / tm.segments[0].MsPerTick))
}

// InitialBPM returns the tempo at tick 0.
func (tm *TempoMap) InitialBPM() float64 {
	return tm.segments[0].BPM()
}
