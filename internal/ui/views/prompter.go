package views

import (
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"buildClient/internal/prompt"
	"buildClient/internal/ui"
)

// TerminalPrompter asks questions on the controlling terminal. Prompts are
// drawn on the error stream so response bodies on stdout stay clean.
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer

	mu    sync.Mutex
	theme sync.Once
}

// NewTerminalPrompter returns a terminal prompter when both in and out are
// terminals, and a non-interactive provider otherwise.
func NewTerminalPrompter(in, out *os.File) prompt.Provider {
	if !term.IsTerminal(int(in.Fd())) || !term.IsTerminal(int(out.Fd())) {
		log.Debug("no terminal attached, prompts are disabled")
		return prompt.NonInteractive{}
	}
	return &TerminalPrompter{in: in, out: out}
}

func (p *TerminalPrompter) run(model tea.Model) (tea.Model, error) {
	p.theme.Do(func() {
		ui.ApplyTheme(ui.ThemeFor(lipgloss.HasDarkBackground()))
	})

	// Requests may run concurrently; one question at a time.
	p.mu.Lock()
	defer p.mu.Unlock()

	final, err := tea.NewProgram(model, tea.WithInput(p.in), tea.WithOutput(p.out)).Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}
	return final, nil
}

func (p *TerminalPrompter) PromptTrust(info *prompt.CertificateInfo) (prompt.TrustChoice, error) {
	final, err := p.run(NewTrustPromptModel(info))
	if err != nil {
		return prompt.TrustAbort, err
	}
	return final.(*TrustPromptModel).Choice(), nil
}

func (p *TerminalPrompter) ShowCertificate(info *prompt.CertificateInfo) error {
	_, err := p.run(NewCertificateModel(info))
	return err
}

func (p *TerminalPrompter) PromptPassword(apiurl, user string) (string, error) {
	final, err := p.run(NewPasswordPromptModel(apiurl, user))
	if err != nil {
		return "", err
	}
	password, ok := final.(*PasswordPromptModel).Password()
	if !ok {
		return "", fmt.Errorf("password prompt for %s@%s cancelled", user, apiurl)
	}
	return password, nil
}
