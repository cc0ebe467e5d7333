// Package tui is the terminal practice front end: it drives a session from
// the bubbletea frame loop, draws upcoming notes as lanes, and turns the
// qwerty keyboard into a small piano.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zurustar/holokeys/pkg/input"
	"github.com/zurustar/holokeys/pkg/match"
	"github.com/zurustar/holokeys/pkg/sequencer"
	"github.com/zurustar/holokeys/pkg/session"
)

const (
	DefaultFrameInterval = time.Second / 60
	// DefaultHold is how long a qwerty press sounds when no note is due.
	DefaultHold = 200 * time.Millisecond
	// LaneBeats is the look-ahead drawn in the lanes.
	LaneBeats = 8
	// ToleranceStep, MinTolerance and MaxTolerance bound the window keys.
	ToleranceStep = 50 * time.Millisecond
	MinTolerance  = 50 * time.Millisecond
	MaxTolerance  = time.Second
	VolumeStep    = 0.1
	feedSize  = 6
	laneWidth = 64
)

type frameMsg time.Time

// Audio is the sound output the volume keys control.
type Audio interface {
	SetMuted(bool)
	Muted() bool
	SetVolume(float64)
	Volume() float64
}

// Config configures a Model.
type Config struct {
	Session *session.Session
	Board   *Board
	Score   *match.Recorder
	// Audio is nil when there is no sound output.
	Audio Audio
	// Clock is the session clock; Frame and key events are stamped with it.
	Clock         func() time.Duration
	Title         string
	FrameInterval time.Duration
	Octave        int
}

// Model is the bubbletea model.
type Model struct {
	sess     *session.Session
	board    *Board
	score    *match.Recorder
	audio    Audio
	clock    func() time.Duration
	title    string
	interval time.Duration
	keys     KeyMap

	octave   int
	bindings map[string]PianoKey
	// held maps notes to the session time their release is due.
	held map[int]time.Duration

	progress progress.Model
	width    int
	status   string
	quitting bool
}

// NewModel creates a model. Board and Score may be nil.
func NewModel(cfg Config) Model {
	if cfg.Board == nil {
		cfg.Board = NewBoard()
	}
	if cfg.Clock == nil {
		start := time.Now()
		cfg.Clock = func() time.Duration { return time.Since(start) }
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Octave == 0 {
		cfg.Octave = DefaultOctave
	}
	return Model{
		sess:     cfg.Session,
		board:    cfg.Board,
		score:    cfg.Score,
		audio:    cfg.Audio,
		clock:    cfg.Clock,
		title:    cfg.Title,
		interval: cfg.FrameInterval,
		keys:     DefaultKeyMap,
		octave:   cfg.Octave,
		bindings: BindingMap(OctaveKeys(cfg.Octave)),
		held:     make(map[int]time.Duration),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(laneWidth)),
		width:    laneWidth,
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width-14, 16), 120)
		m.progress.Width = m.width

	case frameMsg:
		m.frame()
		return m, tick(m.interval)
	}
	return m, nil
}

// frame releases expired qwerty presses and advances the session.
func (m *Model) frame() {
	now := m.clock()
	for note, at := range m.held {
		if now >= at {
			m.sess.Inbox().Push(input.KeyEvent{Note: note, Pressed: false, At: at})
			delete(m.held, note)
		}
	}
	m.sess.Frame(now)
	m.board.Forget(m.sess.Player().Cursor().NextEventIndex - 256)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.sess.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.PlayPause):
		switch m.sess.State() {
		case sequencer.Playing:
			m.sess.Pause(0)
		case sequencer.Paused:
			m.sess.Resume()
		default:
			m.report(m.sess.Play())
		}

	case key.Matches(msg, m.keys.Restart):
		m.board.Reset()
		m.report(m.sess.SeekTick(0))
		if st := m.sess.State(); st != sequencer.Playing {
			m.report(m.sess.Play())
		}

	case key.Matches(msg, m.keys.SeekBack), key.Matches(msg, m.keys.SeekFwd):
		if tl := m.sess.Timeline(); tl != nil {
			bar := int64(tl.TicksPerQuarter() * int(tl.TimeSignature().Numerator))
			target := int64(m.sess.Player().CurrentTick())
			if key.Matches(msg, m.keys.SeekBack) {
				target -= bar
			} else {
				target += bar
			}
			m.board.Reset()
			m.report(m.sess.SeekTick(max(target, 0)))
		}

	case key.Matches(msg, m.keys.SpeedDown), key.Matches(msg, m.keys.SpeedUp):
		step := 0.1
		if key.Matches(msg, m.keys.SpeedDown) {
			step = -0.1
		}
		speed := float64(int((m.sess.Player().Speed()+step)*10+0.5)) / 10
		m.report(m.sess.SetSpeed(speed))

	case key.Matches(msg, m.keys.QuantDown), key.Matches(msg, m.keys.QuantUp):
		level := m.sess.Player().QuantizationLevel()
		if key.Matches(msg, m.keys.QuantDown) {
			level--
		} else {
			level++
		}
		m.report(m.sess.SetQuantization(level))

	case key.Matches(msg, m.keys.OctaveDown), key.Matches(msg, m.keys.OctaveUp):
		oct := m.octave - 1
		if key.Matches(msg, m.keys.OctaveUp) {
			oct = m.octave + 1
		}
		if oct >= MinOctave && oct <= MaxOctave {
			m.octave = oct
			m.bindings = BindingMap(OctaveKeys(oct))
		}

	case key.Matches(msg, m.keys.TolDown), key.Matches(msg, m.keys.TolUp):
		eng := m.sess.Engine()
		tol := eng.Tolerance() + ToleranceStep
		if key.Matches(msg, m.keys.TolDown) {
			tol = eng.Tolerance() - ToleranceStep
		}
		eng.SetTolerance(min(max(tol, MinTolerance), MaxTolerance))

	case key.Matches(msg, m.keys.Mute):
		if m.audio != nil {
			m.audio.SetMuted(!m.audio.Muted())
		}

	case key.Matches(msg, m.keys.VolumeDown), key.Matches(msg, m.keys.VolumeUp):
		if m.audio != nil {
			step := VolumeStep
			if key.Matches(msg, m.keys.VolumeDown) {
				step = -VolumeStep
			}
			m.audio.SetVolume(math.Round((m.audio.Volume()+step)*10) / 10)
		}

	default:
		if pk, ok := m.bindings[msg.String()]; ok {
			m.press(pk.MIDI)
		}
	}
	return m, nil
}

// press sends a qwerty key press. Terminals give no key-up, so the release
// is scheduled after the due note's length. Auto-repeat extends the hold.
func (m *Model) press(note int) {
	now := m.clock()
	hold := DefaultHold
	if eng := m.sess.Engine(); eng.InRange(note) {
		if head, ok := eng.Head(note); ok && head.AwaitingPress && head.Duration > 0 {
			hold = head.Duration
		}
	}
	if _, down := m.held[note]; down {
		m.held[note] = max(m.held[note], now+DefaultHold)
		return
	}
	m.held[note] = now + hold
	m.sess.Inbox().Push(input.KeyEvent{Note: note, Velocity: 100, Pressed: true, At: now})
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

// Held returns the notes currently held down from the qwerty keyboard.
func (m Model) Held() map[int]time.Duration {
	out := make(map[int]time.Duration, len(m.held))
	for k, v := range m.held {
		out[k] = v
	}
	return out
}

// Octave returns the qwerty keyboard's octave.
func (m Model) Octave() int { return m.octave }

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder

	p := m.sess.Player()
	header := fmt.Sprintf("%s  %s  x%.1f  q%d  oct %d  ±%s", m.title, p.State(), p.Speed(), p.QuantizationLevel(), m.octave, m.sess.Engine().Tolerance())
	if m.audio != nil {
		if m.audio.Muted() {
			header += "  muted"
		} else {
			header += fmt.Sprintf("  vol %.0f%%", m.audio.Volume()*100)
		}
	}
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n\n")

	tl := m.sess.Timeline()
	if tl == nil {
		sb.WriteString(dimStyle.Render("no file loaded"))
		return docStyle.Render(sb.String())
	}

	pos := time.Duration(p.PositionMs() * float64(time.Millisecond)).Truncate(100 * time.Millisecond)
	total := time.Duration(tl.DurationMs() * float64(time.Millisecond)).Truncate(100 * time.Millisecond)
	sb.WriteString(m.progress.ViewAs(p.Progress()))
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %s / %s", pos, total)))
	sb.WriteString("\n\n")

	from := int64(p.CurrentTick())
	channel := m.sess.Options().UserChannel
	sb.WriteString(RenderLanes(LaneView{
		Timeline: tl,
		Grid:     p.Grid(),
		FromTick: from,
		ToTick:   from + int64(tl.TicksPerQuarter()*LaneBeats),
		Channel:  channel,
		Width:    m.width,
	}, m.board))
	sb.WriteString("\n\n")

	if m.score != nil {
		recent := m.score.Recent()
		if len(recent) > feedSize {
			recent = recent[len(recent)-feedSize:]
		}
		feed := RenderFeed(recent)
		sc := m.score.Score()
		summary := fmt.Sprintf("hits %d  missed %d  mistakes %d\naccuracy %.1f%%\nmean offset %s",
			sc.Hits, sc.Missed, sc.Mistakes+sc.TooEarly+sc.Unexpected, sc.Accuracy()*100, sc.MeanAbsOffset().Round(time.Millisecond))
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(32).Render(feed),
			summary))
		sb.WriteString("\n\n")
	}

	if m.status != "" {
		sb.WriteString(failStyle.Render(m.status))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render(m.helpLine()))
	return docStyle.Render(sb.String())
}

func (m Model) helpLine() string {
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return strings.Join(parts, "  ")
}

// Run starts the program on the terminal and blocks until the user quits or
// ctx is done. A cancelled ctx returns tea.ErrProgramKilled.
func Run(ctx context.Context, cfg Config) error {
	_, err := tea.NewProgram(NewModel(cfg), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
