// internal/ui/styles.go

package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	Border lipgloss.Color

	TitleStyle        lipgloss.Style
	SelectedItemStyle lipgloss.Style
	ItemStyle         lipgloss.Style
	HostStyle         lipgloss.Style
	LabelStyle        lipgloss.Style
	InputStyle        lipgloss.Style
	DescriptionStyle  lipgloss.Style

	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style

	// Frame around every prompt
	WindowStyle lipgloss.Style
)

func init() {
	ApplyTheme(themes["dark"])
}

// GetMaxWidth returns the widest rendered item.
func GetMaxWidth(items []string) int {
	maxWidth := 0
	for _, item := range items {
		if w := lipgloss.Width(item); w > maxWidth {
			maxWidth = w
		}
	}
	return maxWidth
}

// Field renders a "label: value" line with labels padded to width.
func Field(label, value string, width int) string {
	return LabelStyle.Width(width).Render(label+":") + " " + value
}
