package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/justapithecus/rehearse/session"
	"github.com/justapithecus/rehearse/types"
	"github.com/justapithecus/rehearse/upload"
)

// refreshInterval paces snapshot polling for the live counters.
const refreshInterval = 250 * time.Millisecond

// Controller is the session surface the rehearsal view drives.
// *session.Machine implements it.
type Controller interface {
	SelectQuestion(ctx context.Context, q types.Question) error
	StartRecording(ctx context.Context) error
	StopRecording() error
	Save(ctx context.Context) (*upload.Ack, error)
	Cancel()
	Snapshot() session.Snapshot
}

var _ Controller = (*session.Machine)(nil)

// opDoneMsg reports a finished controller call.
type opDoneMsg struct {
	op  string
	err error
}

// tickMsg triggers a snapshot refresh.
type tickMsg time.Time

// RehearsalModel is the interactive rehearsal view: pick a question,
// record an answer, save it.
type RehearsalModel struct {
	ctx       context.Context
	ctrl      Controller
	questions []types.Question

	cursor   int
	snap     session.Snapshot
	inflight int
	errLine  string

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	width    int
	quitting bool
}

// NewRehearsalModel creates the rehearsal view over ctrl.
func NewRehearsalModel(ctx context.Context, ctrl Controller, questions []types.Question) RehearsalModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	m := RehearsalModel{
		ctx:       ctx,
		ctrl:      ctrl,
		questions: questions,
		snap:      ctrl.Snapshot(),
		keys:      newKeyMap(),
		help:      help.New(),
		spinner:   sp,
	}
	m.keys.enableFor(m.snap.State, false)
	return m
}

// Init implements tea.Model.
func (m RehearsalModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m RehearsalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case opDoneMsg:
		m.inflight--
		m.refresh()
		m.errLine = errorLine(m.snap, msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *RehearsalModel) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.keys.enableFor(m.snap.State, m.inflight > 0)
}

// errorLine picks the text shown for a failed call. Session messages win
// over raw errors; cancellations are silent.
func errorLine(snap session.Snapshot, err error) string {
	switch {
	case err == nil, errors.Is(err, session.ErrCancelled):
		return ""
	case snap.Message != "":
		return snap.Message
	default:
		return err.Error()
	}
}

func (m RehearsalModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Cancel()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.questions)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Practice):
		if len(m.questions) == 0 {
			return m, nil
		}
		q := m.questions[m.cursor]
		return m.run("select", func() error { return m.ctrl.SelectQuestion(m.ctx, q) })
	case key.Matches(msg, m.keys.Start):
		return m.run("start", func() error { return m.ctrl.StartRecording(m.ctx) })
	case key.Matches(msg, m.keys.Stop):
		return m.run("stop", m.ctrl.StopRecording)
	case key.Matches(msg, m.keys.Save):
		return m.run("save", func() error {
			_, err := m.ctrl.Save(m.ctx)
			return err
		})
	case key.Matches(msg, m.keys.Cancel):
		return m.run("cancel", func() error {
			m.ctrl.Cancel()
			return nil
		})
	}
	return m, nil
}

// run executes fn off the UI loop and reports through opDoneMsg.
func (m RehearsalModel) run(op string, fn func() error) (tea.Model, tea.Cmd) {
	m.inflight++
	m.errLine = ""
	m.keys.enableFor(m.snap.State, true)
	return m, func() tea.Msg { return opDoneMsg{op: op, err: fn()} }
}

// View implements tea.Model.
func (m RehearsalModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Interview Rehearsal"))
	b.WriteString("\n")

	if len(m.questions) == 0 {
		b.WriteString(LabelStyle.Render("No questions available."))
		b.WriteString("\n")
	}
	for i, q := range m.questions {
		cursor := "  "
		line := fmt.Sprintf("[%s] %s", q.Difficulty, q.Prompt)
		if i == m.cursor {
			cursor = CursorStyle.Render("> ")
			line = CursorStyle.Render(line)
		}
		marker := " "
		if q.ID == m.snap.QuestionID && m.snap.State != types.StateIdle {
			marker = StateStyle(m.snap.State).Render("●")
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, marker, line)
	}
	b.WriteString("\n")

	state := StateStyle(m.snap.State).Render(string(m.snap.State))
	if m.snap.State == types.StateAcquiringDevice || m.snap.State == types.StateUploading {
		state = m.spinner.View() + " " + state
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("State:"), state)

	if m.snap.State != types.StateIdle {
		recorded := fmt.Sprintf("%d chunks, %s", m.snap.BufferedChunks, humanize.Bytes(uint64(m.snap.BufferedBytes)))
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Recorded:"), ValueStyle.Render(recorded))
	}
	if m.snap.State == types.StateRecording && !m.snap.StartedAt.IsZero() {
		elapsed := time.Since(m.snap.StartedAt).Truncate(time.Second)
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Session:"), ValueStyle.Render(elapsed.String()))
	}
	if m.snap.Ack != nil {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Saved as:"), SuccessStyle.Render(m.snap.Ack.ID))
	}
	if m.errLine != "" {
		b.WriteString(ErrorStyle.Render(m.errLine))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// RunRehearsal runs the interactive rehearsal until the user quits.
// The session is cancelled on quit, releasing any held device.
func RunRehearsal(ctx context.Context, ctrl Controller, questions []types.Question) error {
	p := tea.NewProgram(NewRehearsalModel(ctx, ctrl, questions), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		ctrl.Cancel()
		return nil
	}
	return err
}
