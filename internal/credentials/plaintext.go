package credentials

import (
	"buildClient/internal/models"
)

// PlaintextStore keeps the password verbatim in the configuration file.
type PlaintextStore struct {
	config ConfigStore
}

func NewPlaintextStore(config ConfigStore) *PlaintextStore {
	return &PlaintextStore{config: config}
}

func (s *PlaintextStore) Name() string { return ClassPlaintext }

// Get returns the configured value; a missing value is an empty password.
func (s *PlaintextStore) Get(apiurl, _ string) (*models.Password, error) {
	value, _ := s.config.Secret(apiurl, fieldPass)
	return models.NewPassword(value), nil
}

// FromRef uses the value already read with the host options.
func (s *PlaintextStore) FromRef(ref string) (*models.Password, error) {
	return models.NewPassword(ref), nil
}

func (s *PlaintextStore) Set(apiurl, _ string, secret string) error {
	return s.config.SetSecret(apiurl, fieldPass, secret)
}

func (s *PlaintextStore) Delete(apiurl, _ string) error {
	return s.config.DeleteSecret(apiurl, fieldPass)
}
