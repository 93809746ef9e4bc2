package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLen {
		return nil, ErrBadKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// AEADSeal returns a fresh IV and the sealed plaintext with the tag appended.
func AEADSeal(key, plaintext []byte) ([]byte, []byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv, err := randBytes(IVLen)
	if err != nil {
		return nil, nil, err
	}
	return iv, aead.Seal(nil, iv, plaintext, nil), nil
}

func AEADOpen(key, iv, sealed []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, ErrAuthFailed
	}
	pt, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

// EncryptPrivateKey wraps an armored private key. The GCM tag is split off
// the sealed output and kept in Tag.
func EncryptPrivateKey(privateKey string, key EncryptionKey) (*WrappedKey, error) {
	if privateKey == "" {
		return nil, ErrEmptyInput
	}
	pt := []byte(privateKey)
	defer zero(pt)

	iv, sealed, err := AEADSeal(key[:], pt)
	if err != nil {
		return nil, fmt.Errorf("wrap private key: %w", err)
	}
	split := len(sealed) - TagLen
	return &WrappedKey{
		Ciphertext: sealed[:split:split],
		IV:         iv,
		Tag:        sealed[split:],
	}, nil
}

// DecryptPrivateKey re-joins ciphertext and tag before opening.
func DecryptPrivateKey(w *WrappedKey, key EncryptionKey) (string, error) {
	if w == nil || len(w.Tag) != TagLen {
		return "", ErrAuthFailed
	}
	sealed := make([]byte, 0, len(w.Ciphertext)+TagLen)
	sealed = append(sealed, w.Ciphertext...)
	sealed = append(sealed, w.Tag...)

	pt, err := AEADOpen(key[:], w.IV, sealed)
	if err != nil {
		return "", err
	}
	defer zero(pt)
	return string(pt), nil
}

// Encode returns the base64 forms stored in a server record.
func (w *WrappedKey) Encode() (ciphertext, iv, tag string) {
	enc := base64.StdEncoding
	return enc.EncodeToString(w.Ciphertext), enc.EncodeToString(w.IV), enc.EncodeToString(w.Tag)
}

func DecodeWrappedKey(ciphertext, iv, tag string) (*WrappedKey, error) {
	enc := base64.StdEncoding
	ct, err := enc.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	rawIV, err := enc.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	rawTag, err := enc.DecodeString(tag)
	if err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}
	return &WrappedKey{Ciphertext: ct, IV: rawIV, Tag: rawTag}, nil
}
