package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	accentColor  = lipgloss.Color("#F59E0B")
	textColor    = lipgloss.Color("#CDD6F4")
	dimTextColor = lipgloss.Color("#6C7086")
	playingColor = lipgloss.Color("#A6E3A1")
	recordColor  = lipgloss.Color("#F38BA8")

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			MarginTop(1)

	rowStyle = lipgloss.NewStyle().
			Foreground(textColor)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(primaryColor).
			Bold(true)

	playingStyle = lipgloss.NewStyle().
			Foreground(playingColor).
			Bold(true)

	clockStyle = lipgloss.NewStyle().
			Foreground(dimTextColor)

	recordingStyle = lipgloss.NewStyle().
			Foreground(recordColor).
			Bold(true)

	meterStyle = lipgloss.NewStyle().
			Foreground(playingColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(dimTextColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(recordColor)

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)
)
