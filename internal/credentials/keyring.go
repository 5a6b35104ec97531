package credentials

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/99designs/keyring"
	log "github.com/sirupsen/logrus"

	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	"buildClient/internal/prompt"
)

const ServiceName = "buildclient"

// DefaultKeyringConfig selects the operating system secret services only;
// the encrypted file fallback would need its own passphrase prompt.
func DefaultKeyringConfig() keyring.Config {
	return keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.KeychainBackend,
			keyring.WinCredBackend,
		},
		KeychainTrustApplication: true,
	}
}

// KeyringStore delegates to the operating system secret service.
type KeyringStore struct {
	config   keyring.Config
	prompter prompt.Provider

	once sync.Once
	ring keyring.Keyring
	err  error
}

func NewKeyringStore(config keyring.Config, prompter prompt.Provider) *KeyringStore {
	return &KeyringStore{config: config, prompter: prompter}
}

func (s *KeyringStore) Name() string { return ClassKeyring }

func (s *KeyringStore) open() (keyring.Keyring, error) {
	s.once.Do(func() {
		s.ring, s.err = keyring.Open(s.config)
		if s.err != nil {
			log.Debugf("keyring unavailable: %v", s.err)
			s.err = fmt.Errorf("%w: %v", ErrUnsupported, s.err)
		}
	})
	return s.ring, s.err
}

// Get returns the stored password. A missing item yields a deferred handle
// that asks the user and stores the answer.
func (s *KeyringStore) Get(apiurl, user string) (*models.Password, error) {
	ring, err := s.open()
	if err != nil {
		return nil, err
	}
	key := itemKey(apiurl, user)

	item, err := ring.Get(key)
	if err == nil {
		return models.NewPassword(string(item.Data)), nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, apperror.New(apperror.CredentialError, "failed to read keyring item "+key, err)
	}

	return models.NewDeferredPassword(func() (string, error) {
		value, err := s.prompter.PromptPassword(apiurl, user)
		if err != nil {
			return "", apperror.New(apperror.PromptError, "failed to read password for "+key, err)
		}
		if err := s.Set(apiurl, user, value); err != nil {
			log.Warnf("failed to store password for %s in keyring: %v", key, err)
		}
		return value, nil
	}), nil
}

func (s *KeyringStore) Set(apiurl, user, secret string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}
	key := itemKey(apiurl, user)
	err = ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(secret),
		Label:       fmt.Sprintf("%s password for %s", ServiceName, key),
		Description: "build service password",
	})
	if err != nil {
		return apperror.New(apperror.CredentialError, "failed to store keyring item "+key, err)
	}
	return nil
}

func (s *KeyringStore) Delete(apiurl, user string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}
	key := itemKey(apiurl, user)
	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return apperror.New(apperror.CredentialError, "failed to delete keyring item "+key, err)
	}
	return nil
}
