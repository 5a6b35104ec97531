// internal/models/password.go

package models

import (
	"errors"
	"sync"
)

// ErrNoPassword is returned by Reveal on a handle that has neither a value nor a resolver.
var ErrNoPassword = errors.New("no password available")

// Password is a secret that may not be known yet. Credential stores hand out
// deferred handles so that batch operations only prompt when a request
// actually needs the secret.
type Password struct {
	mu       sync.Mutex
	value    string
	known    bool
	resolve  func() (string, error)
	resolved bool
	err      error
}

// NewPassword returns a handle for an already known secret.
func NewPassword(value string) *Password {
	return &Password{value: value, known: true}
}

// NewDeferredPassword returns a handle resolved by resolve on first Reveal.
func NewDeferredPassword(resolve func() (string, error)) *Password {
	return &Password{resolve: resolve}
}

// Concrete reports whether the value is known without prompting and is non-empty.
func (p *Password) Concrete() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.known && p.value != ""
}

// Deferred reports whether revealing the password may need interaction.
func (p *Password) Deferred() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.known && p.resolve != nil
}

// Reveal returns the secret, calling the resolver at most once.
func (p *Password) Reveal() (string, error) {
	if p == nil {
		return "", ErrNoPassword
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.known {
		return p.value, nil
	}
	if p.resolve == nil {
		return "", ErrNoPassword
	}
	if !p.resolved {
		p.resolved = true
		p.value, p.err = p.resolve()
		if p.err == nil {
			p.known = true
		}
	}
	return p.value, p.err
}

// String never exposes the secret.
func (p *Password) String() string {
	return "********"
}
