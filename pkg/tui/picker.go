package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zurustar/holokeys/pkg/library"
)

var pickerKeys = struct {
	Select key.Binding
	Cancel key.Binding
}{
	Select: key.NewBinding(
		key.WithKeys(tea.KeyEnter.String()),
		key.WithHelp("enter", "practice"),
	),
	Cancel: key.NewBinding(
		key.WithKeys(tea.KeyCtrlC.String(), tea.KeyEsc.String(), "q"),
		key.WithHelp("esc", "quit"),
	),
}

// Picker lists songs and lets the user choose one.
type Picker struct {
	songs    []library.Song
	table    table.Model
	chosen   int
	quitting bool
}

// NewPicker creates a picker over songs.
func NewPicker(songs []library.Song) Picker {
	columns := []table.Column{
		{Title: "Title", Width: 28},
		{Title: "File", Width: 20},
		{Title: "Length", Width: 8},
		{Title: "Notes", Width: 6},
	}
	rows := make([]table.Row, 0, len(songs))
	for i := range songs {
		s := &songs[i]
		length, notes := "?", "?"
		if s.Metadata != nil {
			length = time.Duration(s.Metadata.DurationMs * float64(time.Millisecond)).Round(time.Second).String()
			notes = strconv.Itoa(s.Metadata.Notes)
		}
		rows = append(rows, table.Row{s.DisplayName(), s.Name, length, notes})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(max(len(rows), 1), 12)),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	st.Selected = st.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(st)

	return Picker{songs: songs, table: t, chosen: -1}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, pickerKeys.Cancel):
			p.quitting = true
			return p, tea.Quit
		case key.Matches(msg, pickerKeys.Select):
			if len(p.songs) > 0 {
				p.chosen = p.table.Cursor()
			}
			p.quitting = true
			return p, tea.Quit
		}
	}
	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

func (p Picker) View() string {
	if p.quitting {
		return ""
	}
	help := fmt.Sprintf("↑/↓:move  %s:%s  %s:%s",
		pickerKeys.Select.Help().Key, pickerKeys.Select.Help().Desc,
		pickerKeys.Cancel.Help().Key, pickerKeys.Cancel.Help().Desc)
	return docStyle.Render(headerStyle.Render("choose a song") + "\n\n" +
		laneStyle.Render(p.table.View()) + "\n" + dimStyle.Render(help))
}

// Chosen returns the selected song, or nil when the picker was cancelled.
func (p Picker) Chosen() *library.Song {
	if p.chosen < 0 || p.chosen >= len(p.songs) {
		return nil
	}
	return &p.songs[p.chosen]
}

// PickSong shows the picker and returns the chosen song, or nil if the user
// quit without choosing.
func PickSong(ctx context.Context, songs []library.Song) (*library.Song, error) {
	m, err := tea.NewProgram(NewPicker(songs), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	return m.(Picker).Chosen(), nil
}
