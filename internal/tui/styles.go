package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPurple = lipgloss.Color("#7D56F4")
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4141")
	colorGray   = lipgloss.Color("#626262")
	colorWhite  = lipgloss.Color("#FFFFFF")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true).
			MarginBottom(1)

	styleTable = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)

	styleHeader = lipgloss.NewStyle().
			Foreground(colorWhite).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(colorGray).
			BorderBottom(true)

	styleSelected = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(colorPurple).
			Bold(true)

	styleHelp = lipgloss.NewStyle().
			Foreground(colorGray)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	styleCount = lipgloss.NewStyle().
			Foreground(colorGreen)
)
