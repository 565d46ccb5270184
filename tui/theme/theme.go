// Package theme centralizes the colors and text styles shared by the
// warden dashboard and the styled CLI help.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors encapsulates the palette used by a theme. lipgloss.TerminalColor
// allows a mix of adaptive and static colors.
type Colors struct {
	Green     lipgloss.TerminalColor
	Yellow    lipgloss.TerminalColor
	Red       lipgloss.TerminalColor
	Orange    lipgloss.TerminalColor
	Cyan      lipgloss.TerminalColor
	Blue      lipgloss.TerminalColor
	Violet    lipgloss.TerminalColor
	LightText lipgloss.TerminalColor
	MutedText lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
	Selected  lipgloss.TerminalColor
}

// Theme bundles the palette with the handful of prebuilt styles most
// screens need.
type Theme struct {
	Colors Colors

	Title    lipgloss.Style
	Section  lipgloss.Style
	Muted    lipgloss.Style
	Italic   lipgloss.Style
	Selected lipgloss.Style
	Border   lipgloss.Style
}

// terminalColors sticks to ANSI indexes so the dashboard inherits the
// operator's terminal palette.
var terminalColors = Colors{
	Green:     lipgloss.Color("2"),
	Yellow:    lipgloss.Color("3"),
	Red:       lipgloss.Color("1"),
	Orange:    lipgloss.Color("208"),
	Cyan:      lipgloss.Color("6"),
	Blue:      lipgloss.Color("4"),
	Violet:    lipgloss.Color("5"),
	LightText: lipgloss.Color("7"),
	MutedText: lipgloss.Color("8"),
	Border:    lipgloss.Color("8"),
	Selected:  lipgloss.Color("8"),
}

func newTheme(c Colors) *Theme {
	return &Theme{
		Colors:   c,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(c.Orange),
		Section:  lipgloss.NewStyle().Italic(true).Foreground(c.Orange),
		Muted:    lipgloss.NewStyle().Foreground(c.MutedText),
		Italic:   lipgloss.NewStyle().Italic(true),
		Selected: lipgloss.NewStyle().Background(c.Selected),
		Border:   lipgloss.NewStyle().Foreground(c.Border),
	}
}

// DefaultTheme is the theme used across warden's terminal output.
var DefaultTheme = newTheme(terminalColors)

// StatusColor maps a run status string to its display color.
func (t *Theme) StatusColor(status string) lipgloss.TerminalColor {
	switch status {
	case "running", "dispatching":
		return t.Colors.Green
	case "awaiting_input":
		return t.Colors.Yellow
	case "completed":
		return t.Colors.Blue
	case "failed":
		return t.Colors.Red
	case "discovered":
		return t.Colors.Cyan
	default:
		return t.Colors.MutedText
	}
}
