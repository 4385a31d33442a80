package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/dbviz/types"
)

var (
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	titleColor   = lipgloss.Color("#7C3AED")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(titleColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
)

// stateStyle colors a report state.
func stateStyle(state types.State) lipgloss.Style {
	switch state {
	case types.StateSuccess:
		return successStyle
	case types.StatePartialSuccess:
		return warningStyle
	case types.StateFailure:
		return errorStyle
	default:
		return lipgloss.NewStyle()
	}
}

func severityStyle(sev types.Severity) lipgloss.Style {
	if sev == types.SeverityBlocking {
		return errorStyle
	}
	return mutedStyle
}
