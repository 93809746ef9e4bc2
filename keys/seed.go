package keys

import (
	"crypto/rand"
	"io"
	"strings"
)

// wordlist is a demo stub, not the BIP39 list.
var wordlist = []string{
	"abandon", "ability", "able", "about", "above", "absent", "absorb", "abstract",
	"absurd", "abuse", "access", "accident", "account", "accuse", "achieve", "acid",
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateSeedPhrase returns SeedWords words picked by random byte modulo
// the wordlist length.
func GenerateSeedPhrase() (string, error) {
	entropy, err := randBytes(SeedWords)
	if err != nil {
		return "", err
	}
	defer zero(entropy)

	words := make([]string, SeedWords)
	for i, b := range entropy {
		words[i] = wordlist[int(b)%len(wordlist)]
	}
	return strings.Join(words, " "), nil
}

// Wordlist returns a copy of the words seed phrases are drawn from.
func Wordlist() []string {
	out := make([]string, len(wordlist))
	copy(out, wordlist)
	return out
}

// Zero wipes b.
func Zero(b []byte) { zero(b) }
