// Package credentials resolves and stores the password of a (host, user)
// pair. Every store implements Manager so hosts can switch between them in
// configuration.
package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"

	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	"buildClient/internal/prompt"
)

const (
	ClassPlaintext  = "plaintext"
	ClassObfuscated = "obfuscated"
	ClassKeyring    = "keyring"
	ClassTransient  = "transient"

	fieldPass  = "pass"
	fieldPassX = "passx"
)

// ErrUnsupported is returned when a store cannot work on this system.
var ErrUnsupported = errors.New("credential store is not supported on this system")

// Manager is implemented by every credential store. Get never prompts; it
// may return a deferred handle that prompts when revealed.
type Manager interface {
	Name() string
	Get(apiurl, user string) (*models.Password, error)
	Set(apiurl, user, secret string) error
	Delete(apiurl, user string) error
}

// ConfigStore gives config-file backed stores access to a host's password fields.
type ConfigStore interface {
	Secret(apiurl, field string) (string, bool)
	SetSecret(apiurl, field, value string) error
	DeleteSecret(apiurl, field string) error
}

// Deps are the collaborators a store may need.
type Deps struct {
	Config   ConfigStore
	Prompter prompt.Provider
	// Keyring overrides the keyring configuration, mostly to select a backend.
	Keyring *keyring.Config
}

// New creates the store registered under class.
func New(class string, deps Deps) (Manager, error) {
	if deps.Prompter == nil {
		deps.Prompter = prompt.NonInteractive{}
	}
	switch class {
	case ClassPlaintext:
		if deps.Config == nil {
			return nil, apperror.New(apperror.CredentialError, "plaintext store needs a configuration file", nil)
		}
		return NewPlaintextStore(deps.Config), nil
	case ClassObfuscated:
		if deps.Config == nil {
			return nil, apperror.New(apperror.CredentialError, "obfuscated store needs a configuration file", nil)
		}
		return NewObfuscatedStore(deps.Config), nil
	case ClassKeyring:
		cfg := DefaultKeyringConfig()
		if deps.Keyring != nil {
			cfg = *deps.Keyring
		}
		return NewKeyringStore(cfg, deps.Prompter), nil
	case ClassTransient, "":
		return NewTransientStore(deps.Prompter), nil
	default:
		return nil, apperror.New(apperror.CredentialError, fmt.Sprintf("unknown credentials manager class %q", class), nil)
	}
}

// Registry hands out one store per class for the lifetime of the process,
// so in-memory caches are shared between hosts.
type Registry struct {
	deps     Deps
	mu       sync.Mutex
	managers map[string]Manager
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		managers: make(map[string]Manager),
	}
}

// Manager returns the store for class, creating it on first use.
func (r *Registry) Manager(class string) (Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[class]; ok {
		return m, nil
	}
	m, err := New(class, r.deps)
	if err != nil {
		return nil, err
	}
	r.managers[class] = m
	return m, nil
}

// refStore is implemented by stores whose value travels in
// HostOptions.CredentialRef.
type refStore interface {
	FromRef(ref string) (*models.Password, error)
}

// Password returns the (possibly deferred) password for opts.
func (r *Registry) Password(opts *models.HostOptions) (*models.Password, error) {
	m, err := r.Manager(opts.CredentialsManagerClass)
	if err != nil {
		return nil, err
	}
	if rs, ok := m.(refStore); ok && opts.CredentialRef != "" {
		return rs.FromRef(opts.CredentialRef)
	}
	return m.Get(opts.APIURL, opts.Username)
}
