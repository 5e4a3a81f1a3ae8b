package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/justapithecus/rehearse/metrics"
)

var quitKey = key.NewBinding(
	key.WithKeys("q", "ctrl+c", "esc"),
	key.WithHelp("q", "quit"),
)

// StatsModel is a read-only Bubble Tea view of a metrics snapshot.
type StatsModel struct {
	snap     metrics.Snapshot
	at       string
	width    int
	quitting bool
}

// NewStatsModel creates a stats view. at labels when snap was taken.
func NewStatsModel(snap metrics.Snapshot, at string) StatsModel {
	return StatsModel{snap: snap, at: at}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Rehearsal Statistics"))
	b.WriteString("\n")
	if m.at != "" {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("As of:"), ValueStyle.Render(m.at))
	}
	fmt.Fprintf(&b, "%s %s\n\n", LabelStyle.Render("Device:"),
		ValueStyle.Render(fmt.Sprintf("%s / %s / %s", m.snap.Device, m.snap.Encoder, m.snap.StorageBackend)))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Started", m.snap.SessionsStarted, highlightColor),
		statBox("Saved", m.snap.SessionsSaved, successColor),
		statBox("Failed", m.snap.SessionsFailed, errorColor),
		statBox("Cancelled", m.snap.SessionsCancelled, warningColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Camera denied", m.snap.DeviceDenied, errorColor),
		statBox("Engine failures", m.snap.EngineFailures, errorColor),
		statBox("Upload failures", m.snap.UploadFailure, warningColor),
		statBox("Uploads", m.snap.UploadSuccess, successColor),
	))
	b.WriteString("\n")
	recorded := fmt.Sprintf("%d chunks, %s", m.snap.ChunksRecorded, humanize.Bytes(uint64(m.snap.BytesRecorded)))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Recorded:"), ValueStyle.Render(recorded))

	b.WriteString(HelpStyle.Render("Press q to quit"))
	return b.String()
}

func statBox(label string, value int64, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStats runs the stats view until the user quits.
func RunStats(snap metrics.Snapshot, at string) error {
	_, err := tea.NewProgram(NewStatsModel(snap, at), tea.WithAltScreen()).Run()
	return err
}

// RenderStatsStatic renders the stats view without a program.
func RenderStatsStatic(snap metrics.Snapshot, at string) string {
	model := NewStatsModel(snap, at)
	model.width = 80
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
