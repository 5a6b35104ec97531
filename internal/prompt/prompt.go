// Package prompt defines the interactive questions the transport may need to
// ask. The terminal implementation lives in internal/ui/views; Scripted and
// NonInteractive serve tests and batch use.
package prompt

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNonInteractive is returned when a question cannot be asked.
var ErrNonInteractive = errors.New("cannot prompt: session is not interactive")

type TrustChoice int

const (
	TrustAbort TrustChoice = iota
	TrustTemporarily
	TrustPermanently
	TrustShowCertificate
)

func (c TrustChoice) String() string {
	switch c {
	case TrustTemporarily:
		return "trust for this session"
	case TrustPermanently:
		return "trust permanently"
	case TrustShowCertificate:
		return "show certificate"
	default:
		return "abort"
	}
}

// CertificateInfo is what the user sees before deciding to trust a certificate.
type CertificateInfo struct {
	Host              string
	Port              string
	Reason            string
	Subject           string
	Issuer            string
	DNSNames          []string
	IPAddresses       []string
	NotBefore         time.Time
	NotAfter          time.Time
	SHA1Fingerprint   string
	SHA256Fingerprint string
	Text              string
}

// Provider asks the user questions on behalf of library code.
type Provider interface {
	// PromptTrust asks how to treat an unverified certificate.
	PromptTrust(info *CertificateInfo) (TrustChoice, error)
	// ShowCertificate displays the full certificate text.
	ShowCertificate(info *CertificateInfo) error
	// PromptPassword asks for the password of user at apiurl.
	PromptPassword(apiurl, user string) (string, error)
}

// NonInteractive refuses every question.
type NonInteractive struct{}

func (NonInteractive) PromptTrust(*CertificateInfo) (TrustChoice, error) {
	return TrustAbort, ErrNonInteractive
}

func (NonInteractive) ShowCertificate(*CertificateInfo) error {
	return ErrNonInteractive
}

func (NonInteractive) PromptPassword(string, string) (string, error) {
	return "", ErrNonInteractive
}

// Scripted answers questions from predefined queues and records what was asked.
type Scripted struct {
	mu           sync.Mutex
	TrustAnswers []TrustChoice
	Passwords    []string

	TrustPrompts    []*CertificateInfo
	Shown           []*CertificateInfo
	PasswordPrompts []string
}

func (s *Scripted) PromptTrust(info *CertificateInfo) (TrustChoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TrustPrompts = append(s.TrustPrompts, info)
	if len(s.TrustAnswers) == 0 {
		return TrustAbort, fmt.Errorf("unexpected trust prompt for %s:%s", info.Host, info.Port)
	}
	choice := s.TrustAnswers[0]
	s.TrustAnswers = s.TrustAnswers[1:]
	return choice, nil
}

func (s *Scripted) ShowCertificate(info *CertificateInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shown = append(s.Shown, info)
	return nil
}

func (s *Scripted) PromptPassword(apiurl, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PasswordPrompts = append(s.PasswordPrompts, user+"@"+apiurl)
	if len(s.Passwords) == 0 {
		return "", fmt.Errorf("unexpected password prompt for %s@%s", user, apiurl)
	}
	password := s.Passwords[0]
	s.Passwords = s.Passwords[1:]
	return password, nil
}

// TrustPromptCount returns how many trust questions were asked.
func (s *Scripted) TrustPromptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.TrustPrompts)
}

// PasswordPromptCount returns how many password questions were asked.
func (s *Scripted) PasswordPromptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.PasswordPrompts)
}
