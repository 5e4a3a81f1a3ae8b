package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/justapithecus/rehearse/types"
)

// keyMap defines the rehearsal key bindings.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Practice key.Binding
	Start    key.Binding
	Stop     key.Binding
	Save     key.Binding
	Cancel   key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Practice: key.NewBinding(
			key.WithKeys("enter", "p"),
			key.WithHelp("enter", "practice"),
		),
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop"),
		),
		Save: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "save"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c", "esc"),
			key.WithHelp("c", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// enableFor enables the bindings valid in state. Selection keys are also
// disabled while an operation is in flight.
func (k *keyMap) enableFor(state types.State, busy bool) {
	selecting := state.AcceptsSelection() && !busy
	k.Up.SetEnabled(selecting)
	k.Down.SetEnabled(selecting)
	k.Practice.SetEnabled(selecting)
	k.Start.SetEnabled(state == types.StateLive && !busy)
	k.Stop.SetEnabled(state == types.StateRecording && !busy)
	k.Save.SetEnabled(state == types.StateStopped && !busy)
	k.Cancel.SetEnabled(state != types.StateIdle)
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Practice, k.Start, k.Stop, k.Save, k.Cancel, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Practice},
		{k.Start, k.Stop, k.Save},
		{k.Cancel, k.Quit},
	}
}
