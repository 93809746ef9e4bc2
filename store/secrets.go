package store

import (
	"errors"
	"fmt"

	"github.com/fahmaliyi/zkseed/keys"
)

// Secrets keeps raw secret material in plain form, the same shortcut the
// demo takes with browser local storage.
type Secrets struct {
	db Store
}

func NewSecrets(db Store) *Secrets { return &Secrets{db: db} }

func (s *Secrets) SaveSeedPhrase(seed string) error {
	if seed == "" {
		return keys.ErrEmptyInput
	}
	if err := s.db.Put(KeySeedPhrase, []byte(seed)); err != nil {
		return fmt.Errorf("failed to store seed phrase: %w", err)
	}
	return nil
}

func (s *Secrets) SeedPhrase() (string, error) {
	v, err := s.db.Get(KeySeedPhrase)
	if errors.Is(err, ErrNotFound) || (err == nil && len(v) == 0) {
		return "", ErrNoSeedPhrase
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve seed phrase: %w", err)
	}
	return string(v), nil
}

func (s *Secrets) ClearSeedPhrase() error {
	return s.db.Delete(KeySeedPhrase)
}

func (s *Secrets) SaveEncryptionKey(k keys.EncryptionKey) error {
	return s.db.Put(KeyEncryptionKey, []byte(k.String()))
}

// EncryptionKey returns ErrNotFound when no key was persisted.
func (s *Secrets) EncryptionKey() (keys.EncryptionKey, error) {
	v, err := s.db.Get(KeyEncryptionKey)
	if err != nil {
		return keys.EncryptionKey{}, err
	}
	return keys.ParseEncryptionKey(string(v))
}

func (s *Secrets) ClearEncryptionKey() error {
	return s.db.Delete(KeyEncryptionKey)
}
