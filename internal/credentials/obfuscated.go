package credentials

import (
	"buildClient/internal/crypto"
	apperror "buildClient/internal/error"
	"buildClient/internal/models"
)

// ObfuscatedStore keeps the password compressed and base64 encoded in the
// configuration file. It only hides the password from a casual glance.
type ObfuscatedStore struct {
	config ConfigStore
}

func NewObfuscatedStore(config ConfigStore) *ObfuscatedStore {
	return &ObfuscatedStore{config: config}
}

func (s *ObfuscatedStore) Name() string { return ClassObfuscated }

func (s *ObfuscatedStore) Get(apiurl, _ string) (*models.Password, error) {
	encoded, ok := s.config.Secret(apiurl, fieldPassX)
	if !ok {
		return models.NewPassword(""), nil
	}
	return decode(apiurl, encoded)
}

// FromRef decodes the passx value already read with the host options.
func (s *ObfuscatedStore) FromRef(ref string) (*models.Password, error) {
	return decode("the configured host", ref)
}

func decode(apiurl, encoded string) (*models.Password, error) {
	value, err := crypto.Reveal(encoded)
	if err != nil {
		return nil, apperror.New(apperror.CredentialError, "failed to decode passx of "+apiurl, err)
	}
	return models.NewPassword(value), nil
}

func (s *ObfuscatedStore) Set(apiurl, _ string, secret string) error {
	encoded, err := crypto.Obfuscate(secret)
	if err != nil {
		return apperror.New(apperror.CredentialError, "failed to encode password", err)
	}
	return s.config.SetSecret(apiurl, fieldPassX, encoded)
}

func (s *ObfuscatedStore) Delete(apiurl, _ string) error {
	return s.config.DeleteSecret(apiurl, fieldPassX)
}
