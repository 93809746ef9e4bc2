// Package account composes the key utilities and the simulated server
// storage into the demo's signup, login, encrypt and decrypt flows.
package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fahmaliyi/zkseed/keys"
	"github.com/fahmaliyi/zkseed/logging"
	"github.com/fahmaliyi/zkseed/store"
)

type Options struct {
	Keys keys.KeyOptions
	// PersistSecrets stores the seed phrase and the derived encryption key
	// in plain form next to the records.
	PersistSecrets bool
}

type Service struct {
	users    *store.Users
	secrets  *store.Secrets
	log      *logging.Logger
	opts     Options
	observer Observer
}

func New(db store.Store, log *logging.Logger, opts Options) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	if opts.Keys.Algorithm == "" {
		opts.Keys = keys.DefaultKeyOptions()
	}
	return &Service{
		users:   store.NewUsers(db, log.Named("users")),
		secrets: store.NewSecrets(db),
		log:     log,
		opts:    opts,
	}
}

// SetObserver registers o for substep notifications of later flows.
func (s *Service) SetObserver(o Observer) { s.observer = o }

func (s *Service) Users() *store.Users { return s.users }

func (s *Service) Secrets() *store.Secrets { return s.secrets }

type TechnicalDetails struct {
	KeyAlgorithm    string
	Encryption      string
	KeyDerivation   string
	PasswordHashing string
}

type SignupResult struct {
	SeedPhrase string
	Record     store.Record
	Details    TechnicalDetails
}

type LoginResult struct {
	Record     store.Record
	PrivateKey string
}

type MessageDetails struct {
	Algorithm   string
	Compression string
	Timestamp   string
}

type EncryptResult struct {
	EncryptedMessage string
	Record           store.Record
	Details          MessageDetails
}

func (s *Service) algorithmLabel() string {
	if s.opts.Keys.Algorithm == keys.AlgoRSA {
		return fmt.Sprintf("RSA %d", s.opts.Keys.RSABits)
	}
	return "ECC curve25519"
}

// Signup generates a new seed phrase and registers it.
func (s *Service) Signup() (*SignupResult, error) {
	seed, err := keys.GenerateSeedPhrase()
	if err != nil {
		s.log.Error("seed generation failed", "error", err)
		return nil, fmt.Errorf("signup failed: %w", err)
	}
	s.observer.done(StepGenerateSeed, 0)
	s.observer.done(StepGenerateSeed, 1)
	return s.SignupWithSeed(seed)
}

// SignupWithSeed derives every key from seed, wraps the private key and
// appends one record. Nothing checks whether seed is already registered.
func (s *Service) SignupWithSeed(seed string) (*SignupResult, error) {
	res, err := s.signup(seed)
	if err != nil {
		s.log.Error("signup failed", "error", err)
		return nil, fmt.Errorf("signup failed: %w", err)
	}
	s.log.Info("signup complete", "id", res.Record.ID, "algorithm", s.opts.Keys.Algorithm)
	return res, nil
}

func (s *Service) signup(seed string) (*SignupResult, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, keys.ErrEmptyInput
	}
	if s.opts.PersistSecrets {
		if err := s.secrets.SaveSeedPhrase(seed); err != nil {
			return nil, err
		}
	}

	loginHash, err := keys.DeriveLoginHash(seed)
	if err != nil {
		return nil, err
	}
	encKey, salt, err := keys.DeriveEncryptionKey(seed)
	if err != nil {
		return nil, err
	}
	defer keys.Zero(encKey[:])
	s.log.Debug("keys derived")
	s.observer.done(StepSignup, 0)

	kp, err := keys.GenerateKeyPair(seed, s.opts.Keys)
	if err != nil {
		return nil, err
	}
	s.log.Debug("key pair generated", "user", kp.UserEmail)
	s.observer.done(StepSignup, 1)

	wrapped, err := keys.EncryptPrivateKey(kp.PrivateKey, encKey)
	if err != nil {
		return nil, err
	}
	s.observer.done(StepSignup, 2)

	rec := store.Record{
		ID:           uuid.New().String(),
		LoginHash:    loginHash,
		PublicKey:    kp.PublicKey,
		EncSalt:      salt,
		KeyAlgorithm: string(s.opts.Keys.Algorithm),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		Version:      store.RecordVersion,
	}
	rec.SetWrappedKey(wrapped)
	if err := s.users.Append(rec); err != nil {
		return nil, err
	}
	if s.opts.PersistSecrets {
		if err := s.secrets.SaveEncryptionKey(encKey); err != nil {
			return nil, err
		}
	}
	s.observer.done(StepSignup, 3)

	return &SignupResult{
		SeedPhrase: seed,
		Record:     rec,
		Details: TechnicalDetails{
			KeyAlgorithm:    s.algorithmLabel(),
			Encryption:      "AES-256-GCM",
			KeyDerivation:   fmt.Sprintf("PBKDF2-SHA256-%d", keys.KDFIterations),
			PasswordHashing: fmt.Sprintf("bcrypt-%d", keys.LoginHashCost),
		},
	}, nil
}

// Login finds the record whose login hash verifies against seed and
// unwraps its private key.
func (s *Service) Login(seed string) (*LoginResult, error) {
	seed = strings.TrimSpace(seed)
	rec, err := s.users.FindBySeed(seed)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	pk, err := s.unwrap(rec, seed, false)
	if err != nil {
		s.log.Error("login failed", "id", rec.ID, "error", err)
		return nil, fmt.Errorf("login failed: %w", err)
	}
	s.log.Info("login", "id", rec.ID)
	return &LoginResult{Record: *rec, PrivateKey: pk}, nil
}

// unwrap opens the record's private key. With usePersisted the stored
// encryption key is tried before deriving one from seed.
func (s *Service) unwrap(rec *store.Record, seed string, usePersisted bool) (string, error) {
	wrapped, err := rec.WrappedKey()
	if err != nil {
		return "", err
	}

	if usePersisted {
		if k, err := s.secrets.EncryptionKey(); err == nil {
			pk, err := keys.DecryptPrivateKey(wrapped, k)
			keys.Zero(k[:])
			if err == nil {
				return pk, nil
			}
			if !errors.Is(err, keys.ErrAuthFailed) {
				return "", err
			}
			s.log.Debug("persisted encryption key does not match record, deriving", "id", rec.ID)
		}
	}

	k, err := keys.DeriveEncryptionKeyWithSalt(seed, rec.EncSalt)
	if err != nil {
		return "", err
	}
	defer keys.Zero(k[:])
	return keys.DecryptPrivateKey(wrapped, k)
}

// EncryptAndStore encrypts message to publicKey and stores it on the record
// with the given login hash, or on the latest record when loginHash is
// empty. An empty publicKey means the target record's own key.
func (s *Service) EncryptAndStore(message, publicKey, loginHash string) (*EncryptResult, error) {
	res, err := s.encryptAndStore(message, publicKey, loginHash)
	if err != nil {
		s.log.Error("encrypt and store failed", "error", err)
		return nil, fmt.Errorf("encryption and storage failed: %w", err)
	}
	return res, nil
}

func (s *Service) encryptAndStore(message, publicKey, loginHash string) (*EncryptResult, error) {
	var (
		rec *store.Record
		err error
	)
	if loginHash != "" {
		rec, err = s.users.FindByLoginHash(loginHash)
	} else {
		rec, err = s.users.Latest()
	}
	if err != nil {
		return nil, err
	}
	if publicKey == "" {
		publicKey = rec.PublicKey
	}
	s.observer.done(StepEncrypt, 0)

	armored, err := keys.EncryptMessage(message, publicKey)
	if err != nil {
		return nil, err
	}
	s.observer.done(StepEncrypt, 1)

	ts := time.Now().UTC().Format(time.RFC3339)
	updated, err := s.users.Modify(store.ByID(rec.ID), func(r *store.Record) error {
		r.EncryptedUserData = armored
		r.LastUpdated = ts
		r.MessageCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store encrypted message: %w", err)
	}
	s.observer.done(StepEncrypt, 2)
	s.log.Info("message stored", "id", updated.ID, "count", updated.MessageCount)

	return &EncryptResult{
		EncryptedMessage: armored,
		Record:           *updated,
		Details: MessageDetails{
			Algorithm:   "PGP (" + s.algorithmLabel() + ")",
			Compression: "zlib",
			Timestamp:   ts,
		},
	}, nil
}

// DecryptMessage opens an armored message with the latest record's private
// key, unlocked through the stored seed phrase.
func (s *Service) DecryptMessage(armored string) (string, error) {
	seed, err := s.secrets.SeedPhrase()
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return s.decrypt(armored, seed, true)
}

// DecryptMessageWithSeed is DecryptMessage for a seed the caller supplies,
// using the newest record that seed unlocks.
func (s *Service) DecryptMessageWithSeed(armored, seed string) (string, error) {
	return s.decrypt(armored, strings.TrimSpace(seed), false)
}

func (s *Service) decrypt(armored, seed string, latest bool) (string, error) {
	var (
		rec *store.Record
		err error
	)
	if latest {
		rec, err = s.users.Latest()
	} else {
		rec, err = s.users.FindBySeed(seed)
	}
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	s.observer.done(StepDecrypt, 0)

	pk, err := s.unwrap(rec, seed, latest)
	if err != nil {
		s.log.Error("private key unwrap failed", "id", rec.ID, "error", err)
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	s.observer.done(StepDecrypt, 1)

	msg, err := keys.DecryptMessage(strings.TrimSpace(armored), pk)
	if err != nil {
		s.log.Error("message decryption failed", "id", rec.ID, "error", err)
		return "", err
	}
	s.observer.done(StepDecrypt, 2)
	s.observer.done(StepDecrypt, 3)
	return msg, nil
}

// Backup writes the wrapped private key of the record seed unlocks to path.
func (s *Service) Backup(seed, path string) (*store.Record, error) {
	seed = strings.TrimSpace(seed)
	rec, err := s.users.FindBySeed(seed)
	if err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}
	wrapped, err := rec.WrappedKey()
	if err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}
	salt, err := keys.DecodeSalt(rec.EncSalt)
	if err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}
	if err := keys.WriteEnvelopeFile(path, keys.NewEnvelope(wrapped, salt)); err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}
	s.log.Info("backup written", "id", rec.ID, "path", path)
	return rec, nil
}

// Reset removes every record and both persisted secrets.
func (s *Service) Reset() error {
	if err := s.users.Clear(); err != nil {
		return err
	}
	if err := s.secrets.ClearSeedPhrase(); err != nil {
		return err
	}
	if err := s.secrets.ClearEncryptionKey(); err != nil {
		return err
	}
	s.log.Info("storage reset")
	return nil
}
