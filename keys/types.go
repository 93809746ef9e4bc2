package keys

import "errors"

const (
	SeedWords      = 12
	KeyLen         = 32
	SaltLen        = 16
	IVLen          = 12
	TagLen         = 16
	KDFIterations  = 100000
	LoginHashCost  = 12
	Magic          = "ZKPK"
	Version        = 0x01
	KDFAlgoPBKDF2  = 0x01
	userIDDomain   = "seed-based.local"
	messageArmored = "PGP MESSAGE"
)

var (
	ErrEmptyInput      = errors.New("keys: empty input")
	ErrAuthFailed      = errors.New("keys: authentication failed")
	ErrCorrupt         = errors.New("keys: corrupt envelope")
	ErrBadKeyLength    = errors.New("keys: bad key length")
	ErrInvalidShareURL = errors.New("keys: invalid share url")
	ErrNoKey           = errors.New("keys: no usable key in keyring")
)

// EncryptionKey is an AES-256 key derived from a seed phrase.
type EncryptionKey [KeyLen]byte

// KeyAlgorithm selects the OpenPGP primary key type.
type KeyAlgorithm string

const (
	AlgoCurve25519 KeyAlgorithm = "curve25519"
	AlgoRSA        KeyAlgorithm = "rsa"
)

type KeyOptions struct {
	Algorithm KeyAlgorithm
	RSABits   int
}

func DefaultKeyOptions() KeyOptions { return KeyOptions{Algorithm: AlgoCurve25519, RSABits: 2048} }

// KeyPair holds armored OpenPGP keys. The private key carries no passphrase.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
	UserName   string
	UserEmail  string
}

// WrappedKey is an AES-GCM sealed private key with the IV and tag kept
// apart from the ciphertext.
type WrappedKey struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// Envelope is the backup form of a wrapped private key together with the
// parameters needed to re-derive its key.
type Envelope struct {
	KDFAlgo    uint8
	Iterations uint32
	Salt       []byte
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}
