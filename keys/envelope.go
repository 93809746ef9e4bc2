package keys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// NewEnvelope packs a wrapped key with the salt it was derived under.
func NewEnvelope(w *WrappedKey, salt []byte) Envelope {
	return Envelope{
		KDFAlgo:    KDFAlgoPBKDF2,
		Iterations: KDFIterations,
		Salt:       salt,
		IV:         w.IV,
		Tag:        w.Tag,
		Ciphertext: w.Ciphertext,
	}
}

func (e Envelope) WrappedKey() *WrappedKey {
	return &WrappedKey{Ciphertext: e.Ciphertext, IV: e.IV, Tag: e.Tag}
}

// Unwrap re-derives the key from seed and opens the private key.
func (e Envelope) Unwrap(seed string) (string, error) {
	if e.KDFAlgo != KDFAlgoPBKDF2 || e.Iterations == 0 {
		return "", ErrCorrupt
	}
	key, err := deriveKey(seed, e.Salt, int(e.Iterations))
	if err != nil {
		return "", err
	}
	defer zero(key[:])
	return DecryptPrivateKey(e.WrappedKey(), key)
}

func writeShort(buf *bytes.Buffer, b []byte) error {
	if len(b) > 255 {
		return errors.New("field too long")
	}
	if err := buf.WriteByte(uint8(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func readShort(r *bytes.Reader) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrCorrupt
	}
	return b, nil
}

func EncodeEnvelope(e Envelope) ([]byte, error) {
	buf := &bytes.Buffer{}

	// Magic
	if _, err := buf.WriteString(Magic); err != nil {
		return nil, err
	}

	// Version
	if err := buf.WriteByte(Version); err != nil {
		return nil, err
	}

	// KDF
	if err := buf.WriteByte(e.KDFAlgo); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, e.Iterations); err != nil {
		return nil, err
	}

	for _, f := range [][]byte{e.Salt, e.IV, e.Tag} {
		if err := writeShort(buf, f); err != nil {
			return nil, err
		}
	}

	if _, err := buf.Write(e.Ciphertext); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if len(raw) < len(Magic)+1+1+4+3 {
		return e, ErrCorrupt
	}
	r := bytes.NewReader(raw)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != Magic {
		return e, ErrCorrupt
	}

	version, err := r.ReadByte()
	if err != nil || version != Version {
		return e, ErrCorrupt
	}

	if e.KDFAlgo, err = r.ReadByte(); err != nil {
		return e, ErrCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &e.Iterations); err != nil {
		return e, ErrCorrupt
	}

	if e.Salt, err = readShort(r); err != nil {
		return e, err
	}
	if e.IV, err = readShort(r); err != nil {
		return e, err
	}
	if e.Tag, err = readShort(r); err != nil {
		return e, err
	}

	// Remaining is ciphertext
	e.Ciphertext = append([]byte(nil), raw[len(raw)-r.Len():]...)
	return e, nil
}

func WriteEnvelopeFile(path string, e Envelope) error {
	raw, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	return AtomicWriteFile(path, raw, 0600)
}

func ReadEnvelopeFile(path string) (Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Envelope{}, err
	}
	return DecodeEnvelope(raw)
}

// AtomicWriteFile writes data to a temp file in the same directory, syncs
// it and renames it over path.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".zkseed-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
