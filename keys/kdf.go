package keys

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// loginSecret is the bcrypt input for a seed: hex SHA-256, 64 bytes, which
// stays under bcrypt's 72-byte limit for any seed length.
func loginSecret(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out
}

// DeriveLoginHash bcrypts the seed phrase. Every call picks a fresh salt, so
// two hashes of the same seed never compare equal as strings.
func DeriveLoginHash(seed string) (string, error) {
	if seed == "" {
		return "", ErrEmptyInput
	}
	secret := loginSecret(seed)
	defer zero(secret)
	h, err := bcrypt.GenerateFromPassword(secret, LoginHashCost)
	if err != nil {
		return "", fmt.Errorf("login hash: %w", err)
	}
	return string(h), nil
}

func VerifyLoginHash(seed, hash string) bool {
	if seed == "" || hash == "" {
		return false
	}
	secret := loginSecret(seed)
	defer zero(secret)
	return bcrypt.CompareHashAndPassword([]byte(hash), secret) == nil
}

// DeriveEncryptionKey stretches the seed with a new random salt. The salt is
// returned base64 encoded and must be kept to derive the same key again.
func DeriveEncryptionKey(seed string) (EncryptionKey, string, error) {
	var key EncryptionKey
	salt, err := randBytes(SaltLen)
	if err != nil {
		return key, "", err
	}
	key, err = deriveKey(seed, salt, KDFIterations)
	if err != nil {
		return key, "", err
	}
	return key, base64.StdEncoding.EncodeToString(salt), nil
}

func DeriveEncryptionKeyWithSalt(seed, salt string) (EncryptionKey, error) {
	raw, err := DecodeSalt(salt)
	if err != nil {
		return EncryptionKey{}, err
	}
	return deriveKey(seed, raw, KDFIterations)
}

func DecodeSalt(salt string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return raw, nil
}

func deriveKey(seed string, salt []byte, iterations int) (EncryptionKey, error) {
	var key EncryptionKey
	if seed == "" || len(salt) == 0 {
		return key, ErrEmptyInput
	}
	dk := pbkdf2.Key([]byte(seed), salt, iterations, KeyLen, sha256.New)
	copy(key[:], dk)
	zero(dk)
	return key, nil
}

// Equal compares keys in constant time.
func (k EncryptionKey) Equal(o EncryptionKey) bool {
	return subtle.ConstantTimeCompare(k[:], o[:]) == 1
}

// String encodes the raw key. It exists for the persisted encryption-key
// shortcut and must not be logged.
func (k EncryptionKey) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

func ParseEncryptionKey(s string) (EncryptionKey, error) {
	var key EncryptionKey
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != KeyLen {
		return key, ErrBadKeyLength
	}
	copy(key[:], raw)
	zero(raw)
	return key, nil
}
