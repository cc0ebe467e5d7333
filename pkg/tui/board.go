package tui

import (
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zurustar/holokeys/pkg/match"
	"github.com/zurustar/holokeys/pkg/timeline"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green     = lipgloss.Color("#9dcc3a")
	red       = lipgloss.Color("#ff0000")
	orange    = lipgloss.Color("#D3A347")

	docStyle    = lipgloss.NewStyle().Padding(1, 2, 1, 2)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	laneStyle   = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	labelStyle   = lipgloss.NewStyle().Width(6).Foreground(lipgloss.Color("245"))
	pendingStyle = lipgloss.NewStyle().Foreground(highlight)
	hitStyle     = lipgloss.NewStyle().Foreground(green)
	failStyle    = lipgloss.NewStyle().Foreground(red)
	otherStyle   = lipgloss.NewStyle().Foreground(subtle)
	nowStyle     = lipgloss.NewStyle().Foreground(orange).Bold(true)
)

type noteState int

const (
	statePending noteState = iota
	stateHit
	stateFailed
)

// Board tracks the visual state of anticipated notes. It is both the
// session's note tracker and a match feedback sink; handles are event
// indexes.
type Board struct {
	states map[int]noteState
	last   match.Result
	lastOK bool
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{states: make(map[int]noteState)}
}

func (b *Board) Track(ev timeline.TimedEvent, _ time.Duration) any {
	b.states[ev.Index] = statePending
	return ev.Index
}

func (b *Board) MarkSuccess(h any) { b.mark(h, stateHit) }
func (b *Board) MarkFailed(h any) {
	// A release ends the note with MarkFailed; keep the hit colour.
	if idx, ok := h.(int); ok && b.states[idx] == stateHit {
		return
	}
	b.mark(h, stateFailed)
}

func (b *Board) mark(h any, s noteState) {
	if idx, ok := h.(int); ok {
		b.states[idx] = s
	}
}

func (b *Board) Report(r match.Result) {
	if r.Outcome == match.Ignored {
		return
	}
	b.last = r
	b.lastOK = true
}

// Last returns the most recent result.
func (b *Board) Last() (match.Result, bool) { return b.last, b.lastOK }

// Forget drops the state of events before index.
func (b *Board) Forget(before int) {
	for idx := range b.states {
		if idx < before {
			delete(b.states, idx)
		}
	}
}

// Reset drops every state.
func (b *Board) Reset() {
	clear(b.states)
	b.lastOK = false
}

func (b *Board) state(idx int) (noteState, bool) {
	s, ok := b.states[idx]
	return s, ok
}

// LaneView describes the window of the timeline drawn as lanes.
type LaneView struct {
	Timeline *timeline.Timeline
	Grid     timeline.Grid
	FromTick int64
	ToTick   int64
	// Channel is the user's channel, or -1 to draw every note.
	Channel int
	Width   int
}

// RenderLanes draws one row per key with the notes in the window. The left
// edge is the playback position.
func RenderLanes(v LaneView, b *Board) string {
	if v.Timeline == nil || v.Width <= 0 || v.ToTick <= v.FromTick {
		return ""
	}
	events := v.Timeline.EventsInTickRange(v.FromTick, v.ToTick, v.Grid)

	rows := make(map[int][]rune)
	styles := make(map[int][]lipgloss.Style)
	span := float64(v.ToTick - v.FromTick)
	for _, ev := range events {
		if !ev.IsNoteOn() || (v.Channel >= 0 && int(ev.Channel) != v.Channel) {
			continue
		}
		key := int(ev.Key)
		if _, ok := rows[key]; !ok {
			rows[key] = []rune(strings.Repeat("·", v.Width))
			styles[key] = make([]lipgloss.Style, v.Width)
		}
		start := int(float64(ev.QuantizedTick-v.FromTick) / span * float64(v.Width))
		length := int(float64(ev.DurationTicks) / span * float64(v.Width))
		if length < 1 {
			length = 1
		}
		st := otherStyle
		if s, ok := b.state(ev.Index); ok {
			switch s {
			case statePending:
				st = pendingStyle
			case stateHit:
				st = hitStyle
			case stateFailed:
				st = failStyle
			}
		} else if v.Channel >= 0 {
			st = pendingStyle
		}
		for c := start; c < start+length && c < v.Width; c++ {
			if c < 0 {
				continue
			}
			glyph := '━'
			if c == start {
				glyph = '█'
			}
			rows[key][c] = glyph
			styles[key][c] = st
		}
	}
	if len(rows) == 0 {
		return dimStyle.Render("(no notes ahead)")
	}

	keys := make([]int, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(labelStyle.Render(NoteName(k)))
		sb.WriteString(nowStyle.Render("│"))
		for c, r := range rows[k] {
			if r == '·' {
				sb.WriteString(dimStyle.Render(string(r)))
				continue
			}
			sb.WriteString(styles[k][c].Render(string(r)))
		}
	}
	return laneStyle.Render(sb.String())
}

// RenderFeed lists recent results, newest last.
func RenderFeed(results []match.Result) string {
	var lines []string
	for _, r := range results {
		st := failStyle
		switch r.Outcome {
		case match.Hit, match.ReleaseOnTime:
			st = hitStyle
		case match.ReleaseEarly, match.ReleaseLate, match.Mistake:
			st = lipgloss.NewStyle().Foreground(orange)
		}
		line := st.Render(r.Outcome.String()) + " " + NoteName(r.Note)
		if r.Outcome != match.Unexpected {
			line += dimStyle.Render(" " + formatOffset(r.Offset))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatOffset(d time.Duration) string {
	ms := d.Round(time.Millisecond)
	if ms >= 0 {
		return "+" + ms.String()
	}
	return ms.String()
}
