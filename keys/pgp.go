package keys

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// UserID returns the name and email bound to the key pair of a seed.
func UserID(seed string) (name, email string) {
	sum := sha256.Sum256([]byte(seed))
	h := hex.EncodeToString(sum[:])
	return "ZK User " + h[:8], fmt.Sprintf("zk-user-%s@%s", h[:16], userIDDomain)
}

func entityConfig(opts KeyOptions) (*packet.Config, error) {
	switch opts.Algorithm {
	case AlgoCurve25519, "":
		return &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA, Curve: packet.Curve25519}, nil
	case AlgoRSA:
		bits := opts.RSABits
		if bits == 0 {
			bits = 2048
		}
		return &packet.Config{Algorithm: packet.PubKeyAlgoRSA, RSABits: bits}, nil
	default:
		return nil, fmt.Errorf("keys: unsupported key algorithm %q", opts.Algorithm)
	}
}

// GenerateKeyPair creates an unprotected OpenPGP key pair whose user ID is
// derived from the seed.
func GenerateKeyPair(seed string, opts KeyOptions) (*KeyPair, error) {
	if seed == "" {
		return nil, ErrEmptyInput
	}
	cfg, err := entityConfig(opts)
	if err != nil {
		return nil, err
	}
	name, email := UserID(seed)

	e, err := openpgp.NewEntity(name, "", email, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	priv := &bytes.Buffer{}
	w, err := armor.Encode(priv, openpgp.PrivateKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := e.SerializePrivate(w, cfg); err != nil {
		return nil, fmt.Errorf("serialize private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	pub := &bytes.Buffer{}
	w, err = armor.Encode(pub, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := e.Serialize(w); err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return &KeyPair{
		PublicKey:  pub.String(),
		PrivateKey: priv.String(),
		UserName:   name,
		UserEmail:  email,
	}, nil
}

func readKeyRing(armored string) (openpgp.EntityList, error) {
	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, err
	}
	if len(ring) == 0 {
		return nil, ErrNoKey
	}
	return ring, nil
}

// EncryptMessage encrypts text to an armored public key and returns an
// armored PGP message.
func EncryptMessage(message, publicKey string) (string, error) {
	if message == "" || publicKey == "" {
		return "", fmt.Errorf("message encryption failed: %w", ErrEmptyInput)
	}
	ring, err := readKeyRing(publicKey)
	if err != nil {
		return "", fmt.Errorf("message encryption failed: %w", err)
	}

	cfg := &packet.Config{
		DefaultCompressionAlgo: packet.CompressionZLIB,
		CompressionConfig:      &packet.CompressionConfig{Level: packet.DefaultCompression},
	}

	out := &bytes.Buffer{}
	aw, err := armor.Encode(out, messageArmored, nil)
	if err != nil {
		return "", fmt.Errorf("message encryption failed: %w", err)
	}
	pt, err := openpgp.Encrypt(aw, ring, nil, nil, cfg)
	if err != nil {
		return "", fmt.Errorf("message encryption failed: %w", err)
	}
	if _, err := io.WriteString(pt, message); err != nil {
		return "", fmt.Errorf("message encryption failed: %w", err)
	}
	if err := pt.Close(); err != nil {
		return "", fmt.Errorf("message encryption failed: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("message encryption failed: %w", err)
	}
	return out.String(), nil
}

// DecryptMessage opens an armored PGP message with an unprotected armored
// private key.
func DecryptMessage(armored, privateKey string) (string, error) {
	if armored == "" || privateKey == "" {
		return "", fmt.Errorf("decryption failed: %w", ErrEmptyInput)
	}
	ring, err := readKeyRing(privateKey)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	if block.Type != messageArmored {
		return "", fmt.Errorf("decryption failed: unexpected armor type %q", block.Type)
	}

	md, err := openpgp.ReadMessage(block.Body, ring, nil, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	data, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(data), nil
}
