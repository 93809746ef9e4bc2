package keys

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// GenerateShareKey returns a random AES-256 key, base64 encoded, for a
// one-off shared message.
func GenerateShareKey() (string, error) {
	k, err := randBytes(KeyLen)
	if err != nil {
		return "", err
	}
	defer zero(k)
	return base64.StdEncoding.EncodeToString(k), nil
}

func decodeShareKey(key string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode share key: %w", err)
	}
	if len(raw) != KeyLen {
		return nil, ErrBadKeyLength
	}
	return raw, nil
}

// SealShare encrypts message and returns base64(IV || ciphertext || tag).
func SealShare(key, message string) (string, error) {
	if message == "" {
		return "", ErrEmptyInput
	}
	raw, err := decodeShareKey(key)
	if err != nil {
		return "", err
	}
	defer zero(raw)

	iv, sealed, err := AEADSeal(raw, []byte(message))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(iv, sealed...)), nil
}

func OpenShare(key, data string) (string, error) {
	raw, err := decodeShareKey(key)
	if err != nil {
		return "", err
	}
	defer zero(raw)

	blob, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode share data: %w", err)
	}
	if len(blob) < IVLen+TagLen {
		return "", fmt.Errorf("share data too short: %w", ErrAuthFailed)
	}
	pt, err := AEADOpen(raw, blob[:IVLen], blob[IVLen:])
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// ShareURL puts key and data in the fragment so they never reach a server.
func ShareURL(origin, key, data string) string {
	origin = strings.TrimRight(origin, "#")
	return fmt.Sprintf("%s#key=%s&data=%s", origin, url.QueryEscape(key), url.QueryEscape(data))
}

func ParseShareURL(raw string) (key, data string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidShareURL, err)
	}
	q, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidShareURL, err)
	}
	key, data = q.Get("key"), q.Get("data")
	if key == "" || data == "" {
		return "", "", ErrInvalidShareURL
	}
	return key, data, nil
}
