package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"buildClient/internal/prompt"
	"buildClient/internal/ui"
	"buildClient/internal/ui/components"
	"buildClient/internal/ui/messages"
)

const popupWidth = 78

// Order of the menu; abort comes first so ENTER alone never trusts.
var trustChoices = []prompt.TrustChoice{
	prompt.TrustAbort,
	prompt.TrustTemporarily,
	prompt.TrustPermanently,
	prompt.TrustShowCertificate,
}

var trustShortcuts = map[string]prompt.TrustChoice{
	"a": prompt.TrustAbort,
	"t": prompt.TrustTemporarily,
	"p": prompt.TrustPermanently,
	"s": prompt.TrustShowCertificate,
}

// TrustPromptModel asks how to treat a certificate that failed verification.
type TrustPromptModel struct {
	info   *prompt.CertificateInfo
	popup  *components.Popup
	choice prompt.TrustChoice
	done   bool
}

func NewTrustPromptModel(info *prompt.CertificateInfo) *TrustPromptModel {
	popup := components.NewPopup(components.PopupTrust, "Untrusted certificate", describe(info), popupWidth)
	for _, c := range trustChoices {
		popup.Choices = append(popup.Choices, fmt.Sprintf("[%s] %s", shortcutFor(c), c))
	}
	return &TrustPromptModel{info: info, popup: popup}
}

func shortcutFor(c prompt.TrustChoice) string {
	for key, choice := range trustShortcuts {
		if choice == c {
			return key
		}
	}
	return " "
}

func describe(info *prompt.CertificateInfo) string {
	const labelWidth = 10
	lines := []string{
		ui.WarningStyle.Render(fmt.Sprintf("The certificate of %s:%s could not be verified.", info.Host, info.Port)),
		ui.DescriptionStyle.Render(info.Reason),
		"",
		ui.Field("Subject", info.Subject, labelWidth),
		ui.Field("Issuer", info.Issuer, labelWidth),
	}
	if names := append(append([]string{}, info.DNSNames...), info.IPAddresses...); len(names) > 0 {
		lines = append(lines, ui.Field("Names", strings.Join(names, ", "), labelWidth))
	}
	lines = append(lines,
		ui.Field("Valid", fmt.Sprintf("%s to %s",
			info.NotBefore.UTC().Format("2006-01-02"), info.NotAfter.UTC().Format("2006-01-02")), labelWidth),
		ui.Field("SHA-256", info.SHA256Fingerprint, labelWidth),
		ui.Field("SHA-1", info.SHA1Fingerprint, labelWidth),
	)
	return strings.Join(lines, "\n")
}

// Choice returns the answer; TrustAbort until the user confirms something else.
func (m *TrustPromptModel) Choice() prompt.TrustChoice {
	return m.choice
}

func (m *TrustPromptModel) Init() tea.Cmd {
	return nil
}

func (m *TrustPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.popup.Width = min(popupWidth, msg.Width)
		return m, nil

	case messages.TrustChosenMsg:
		m.choice = prompt.TrustChoice(msg)
		m.done = true
		return m, tea.Quit

	case messages.PromptCancelledMsg:
		m.choice = prompt.TrustAbort
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.popup.Selected > 0 {
				m.popup.Selected--
			}
		case "down", "j":
			if m.popup.Selected < len(trustChoices)-1 {
				m.popup.Selected++
			}
		case "enter":
			return m, choose(trustChoices[m.popup.Selected])
		case "esc", "ctrl+c", "q":
			return m, func() tea.Msg { return messages.PromptCancelledMsg{} }
		default:
			if c, ok := trustShortcuts[msg.String()]; ok {
				return m, choose(c)
			}
		}
	}
	return m, nil
}

func choose(c prompt.TrustChoice) tea.Cmd {
	return func() tea.Msg { return messages.TrustChosenMsg(c) }
}

func (m *TrustPromptModel) View() string {
	if m.done {
		return ""
	}
	return m.popup.Render() + "\n"
}

// CertificateModel pages through the full certificate text.
type CertificateModel struct {
	popup    *components.Popup
	viewport viewport.Model
	done     bool
}

func NewCertificateModel(info *prompt.CertificateInfo) *CertificateModel {
	vp := viewport.New(popupWidth-6, 20)
	vp.SetContent(info.Text)
	return &CertificateModel{
		popup:    components.NewPopup(components.PopupCertificate, fmt.Sprintf("Certificate of %s:%s", info.Host, info.Port), "", popupWidth),
		viewport: vp,
	}
}

func (m *CertificateModel) Init() tea.Cmd {
	return nil
}

func (m *CertificateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.popup.Width = min(popupWidth, msg.Width)
		m.viewport.Width = m.popup.Width - 6
		m.viewport.Height = max(5, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "enter", "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *CertificateModel) View() string {
	if m.done {
		return ""
	}
	m.popup.Message = m.viewport.View()
	return m.popup.Render() + "\n"
}
