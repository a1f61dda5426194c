package tui

import (
	"github.com/charmbracelet/bubbles/v2/table"
	"github.com/charmbracelet/lipgloss/v2"
)

// palette shared with the rest of the pb33f tools
var (
	RGBBlue       = lipgloss.Color("45")
	RGBPink       = lipgloss.Color("201")
	RGBRed        = lipgloss.Color("196")
	RGBYellow     = lipgloss.Color("220")
	RGBGreen      = lipgloss.Color("46")
	RGBGrey       = lipgloss.Color("246")
	RGBDimGrey    = lipgloss.Color("240")
	RGBSubtlePink = lipgloss.Color("#2a1a2a")
)

var (
	titleBarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(RGBBlue).
			BorderTop(false).
			BorderLeft(false).
			BorderRight(false).
			BorderBottom(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().Faint(true)

	filterPanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(RGBPink).
				Padding(0, 1)

	filterLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(RGBPink)

	errorTextStyle = lipgloss.NewStyle().Foreground(RGBRed).Bold(true)

	commentStyle = lipgloss.NewStyle().Foreground(RGBYellow)
)

// row colorization
var (
	StyleMethodGreen  = lipgloss.NewStyle().Foreground(RGBGreen)
	StyleMethodYellow = lipgloss.NewStyle().Foreground(RGBYellow)
	StyleMethodBlue   = lipgloss.NewStyle().Foreground(RGBBlue)
	StyleMethodRed    = lipgloss.NewStyle().Foreground(RGBRed)

	StyleStatus4xx     = lipgloss.NewStyle().Foreground(RGBYellow)
	StyleStatus5xx     = lipgloss.NewStyle().Foreground(RGBRed)
	StyleStatusPending = lipgloss.NewStyle().Foreground(RGBGrey)

	StyleDurationFaint = lipgloss.NewStyle().Faint(true)
)

// ApplyTableStyles themes the entry table: pink header rule, pink-on-dark selection.
func ApplyTableStyles(t table.Model) table.Model {
	s := table.DefaultStyles()

	s.Header = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(RGBPink).
		BorderBottom(true).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Foreground(RGBPink).
		Bold(true).
		Padding(0, 1)

	s.Selected = lipgloss.NewStyle().
		Bold(true).
		Foreground(RGBPink).
		Background(RGBSubtlePink)

	s.Cell = lipgloss.NewStyle().Padding(0, 1)

	t.SetStyles(s)
	return t
}
