// Package tui provides the Bubble Tea interface for rehearse.
//
// The rehearsal view drives a session machine; the stats view renders a
// metrics snapshot read-only.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/rehearse/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// CursorStyle marks the focused question.
	CursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// PromptStyle renders the selected question's text.
	PromptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// StateStyle returns the style for a session state.
func StateStyle(state types.State) lipgloss.Style {
	switch state {
	case types.StateSaved, types.StateLive:
		return SuccessStyle
	case types.StateRecording:
		return ErrorStyle.Bold(true)
	case types.StateAcquiringDevice, types.StateUploading, types.StateStopped:
		return WarningStyle
	case types.StateFailed:
		return ErrorStyle
	default:
		return ValueStyle
	}
}
