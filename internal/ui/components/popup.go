package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"buildClient/internal/ui"
)

type PopupType int

const (
	PopupNone PopupType = iota
	PopupTrust
	PopupCertificate
	PopupPassword
	PopupMessage
)

type Popup struct {
	Type     PopupType
	Title    string
	Message  string
	Input    textinput.Model
	Choices  []string
	Selected int
	Width    int
	// ScreenWidth and ScreenHeight center the popup; zero renders it inline.
	ScreenWidth  int
	ScreenHeight int
}

func NewPopup(popupType PopupType, title, message string, width int) *Popup {
	input := textinput.New()
	if popupType == PopupPassword {
		input.EchoMode = textinput.EchoPassword
		input.EchoCharacter = '*'
		input.Placeholder = "password"
	}
	input.Focus()

	return &Popup{
		Type:    popupType,
		Title:   title,
		Message: message,
		Input:   input,
		Width:   width,
	}
}

func (p *Popup) Render() string {
	popupStyle := ui.WindowStyle.Width(p.Width)

	titleStyle := ui.TitleStyle.
		Align(lipgloss.Center).
		Width(p.Width - 4)

	var content strings.Builder
	content.WriteString(titleStyle.Render(p.Title) + "\n\n")
	content.WriteString(p.Message + "\n")

	switch p.Type {
	case PopupPassword:
		content.WriteString("\n" + p.Input.View() + "\n")
	case PopupTrust:
		content.WriteString("\n")
		for i, choice := range p.Choices {
			if i == p.Selected {
				content.WriteString(ui.SelectedItemStyle.Render("> "+choice) + "\n")
			} else {
				content.WriteString(ui.ItemStyle.Render("  "+choice) + "\n")
			}
		}
	}

	var keys string
	switch p.Type {
	case PopupTrust:
		keys = "↑/↓ - Select, ENTER - Confirm, ESC - Abort"
	case PopupCertificate:
		keys = "↑/↓ - Scroll, ESC/ENTER - Back"
	case PopupMessage:
		keys = "ESC/ENTER - Close"
	default:
		keys = "ENTER - Confirm, ESC - Cancel"
	}
	content.WriteString("\n" + ui.DescriptionStyle.Render(keys))

	popupContent := popupStyle.Render(content.String())
	if p.ScreenWidth == 0 || p.ScreenHeight == 0 {
		return popupContent
	}

	return lipgloss.Place(
		p.ScreenWidth,
		p.ScreenHeight,
		lipgloss.Center,
		lipgloss.Center,
		popupContent,
		lipgloss.WithWhitespaceForeground(lipgloss.Color("0")),
	)
}
