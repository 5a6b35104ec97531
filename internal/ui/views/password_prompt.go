package views

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"buildClient/internal/ui"
	"buildClient/internal/ui/components"
	"buildClient/internal/ui/messages"
)

// PasswordPromptModel reads a password without echoing it.
type PasswordPromptModel struct {
	popup     *components.Popup
	password  string
	cancelled bool
	done      bool
}

func NewPasswordPromptModel(apiurl, user string) *PasswordPromptModel {
	message := fmt.Sprintf("Password for %s at %s", ui.HostStyle.Render(user), ui.HostStyle.Render(apiurl))
	return &PasswordPromptModel{
		popup: components.NewPopup(components.PopupPassword, "Authentication required", message, 60),
	}
}

// Password returns the entered password and whether the prompt was confirmed.
func (m *PasswordPromptModel) Password() (string, bool) {
	return m.password, m.done && !m.cancelled
}

func (m *PasswordPromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *PasswordPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.popup.Width = min(60, msg.Width)
		return m, nil

	case messages.PasswordEnteredMsg:
		m.password = string(msg)
		m.done = true
		return m, tea.Quit

	case messages.PromptCancelledMsg:
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			value := m.popup.Input.Value()
			return m, func() tea.Msg { return messages.PasswordEnteredMsg(value) }
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, func() tea.Msg { return messages.PromptCancelledMsg{} }
		}
	}

	var cmd tea.Cmd
	m.popup.Input, cmd = m.popup.Input.Update(msg)
	return m, cmd
}

func (m *PasswordPromptModel) View() string {
	if m.done {
		return ""
	}
	return m.popup.Render() + "\n"
}
