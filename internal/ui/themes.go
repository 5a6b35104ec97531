package ui

import "github.com/charmbracelet/lipgloss"

// Theme holds the colours used by the prompts.
type Theme struct {
	Subtle    lipgloss.Color
	Highlight lipgloss.Color
	Special   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Border    lipgloss.Color

	ItemColor  lipgloss.Color
	HostColor  lipgloss.Color
	LabelColor lipgloss.Color
	InputColor lipgloss.Color
}

var themes = map[string]Theme{
	"dark": {
		Subtle:    lipgloss.Color("#6C7086"),
		Highlight: lipgloss.Color("#7DC4E4"),
		Special:   lipgloss.Color("#A6E3A1"),
		Warning:   lipgloss.Color("#FF9E64"),
		Error:     lipgloss.Color("#F38BA8"),
		Border:    lipgloss.Color("#33B2FF"),

		ItemColor:  lipgloss.Color("#FF3A99"),
		HostColor:  lipgloss.Color("#2DAFFF"),
		LabelColor: lipgloss.Color("#A6ADC8"),
		InputColor: lipgloss.Color("#FFFFFF"),
	},
	"light": {
		Subtle:    lipgloss.Color("#8C8FA1"),
		Highlight: lipgloss.Color("#1E66F5"),
		Special:   lipgloss.Color("#40A02B"),
		Warning:   lipgloss.Color("#FE640B"),
		Error:     lipgloss.Color("#D20F39"),
		Border:    lipgloss.Color("#209FB5"),

		ItemColor:  lipgloss.Color("#8839EF"),
		HostColor:  lipgloss.Color("#04A5E5"),
		LabelColor: lipgloss.Color("#5C5F77"),
		InputColor: lipgloss.Color("#4C4F69"),
	},
}

// ThemeFor returns the theme matching the terminal background.
func ThemeFor(darkBackground bool) Theme {
	if darkBackground {
		return themes["dark"]
	}
	return themes["light"]
}

// ApplyTheme rebuilds the package styles from t.
func ApplyTheme(t Theme) {
	Border = t.Border

	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Highlight)

	SelectedItemStyle = lipgloss.NewStyle().
		Foreground(t.ItemColor).
		Bold(true)

	ItemStyle = lipgloss.NewStyle().
		Foreground(t.LabelColor)

	HostStyle = lipgloss.NewStyle().
		Foreground(t.HostColor).
		Bold(true)

	LabelStyle = lipgloss.NewStyle().
		Foreground(t.LabelColor)

	InputStyle = lipgloss.NewStyle().
		Foreground(t.InputColor)

	DescriptionStyle = lipgloss.NewStyle().
		Foreground(t.Subtle).
		Italic(true)

	SuccessStyle = lipgloss.NewStyle().
		Foreground(t.Special).
		Bold(true)

	WarningStyle = lipgloss.NewStyle().
		Foreground(t.Warning).
		Bold(true)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Error).
		Bold(true)

	WindowStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(1, 2)
}
