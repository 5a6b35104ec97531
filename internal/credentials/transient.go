package credentials

import (
	"sync"

	log "github.com/sirupsen/logrus"

	apperror "buildClient/internal/error"
	"buildClient/internal/models"
	"buildClient/internal/prompt"
)

// TransientStore never persists. Passwords are asked for when first needed
// and kept in memory for the rest of the process.
type TransientStore struct {
	prompter prompt.Provider
	mu       sync.Mutex
	cache    map[string]string
}

func NewTransientStore(prompter prompt.Provider) *TransientStore {
	return &TransientStore{
		prompter: prompter,
		cache:    make(map[string]string),
	}
}

func (s *TransientStore) Name() string { return ClassTransient }

func (s *TransientStore) Get(apiurl, user string) (*models.Password, error) {
	key := itemKey(apiurl, user)

	s.mu.Lock()
	value, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return models.NewPassword(value), nil
	}

	return models.NewDeferredPassword(func() (string, error) {
		log.Debugf("asking for the password of %s", key)
		value, err := s.prompter.PromptPassword(apiurl, user)
		if err != nil {
			return "", apperror.New(apperror.PromptError, "failed to read password for "+key, err)
		}
		s.mu.Lock()
		s.cache[key] = value
		s.mu.Unlock()
		return value, nil
	}), nil
}

func (s *TransientStore) Set(apiurl, user, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[itemKey(apiurl, user)] = secret
	return nil
}

func (s *TransientStore) Delete(apiurl, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, itemKey(apiurl, user))
	return nil
}

func itemKey(apiurl, user string) string {
	return user + "@" + apiurl
}
