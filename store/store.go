// Package store simulates the browser local storage the demo keeps its
// "server" records and secrets in. Values are opaque byte strings under
// string keys. Three backends are available: a JSON file, SQLite and LevelDB.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
)

// Well-known keys.
const (
	KeyUsers         = "production-users"
	KeyEncryptionKey = "encryption-key"
	KeySeedPhrase    = "user-seed-phrase"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrUnknownBackend = errors.New("store: unknown backend")
	ErrUserNotFound   = errors.New("store: user not found")
	ErrNoSeedPhrase   = errors.New("store: no seed phrase found in storage")
	ErrClosed         = errors.New("store: closed")
)

// Store is a flat key-value store. Implementations are safe for concurrent
// use and every Put/Delete is durable when it returns.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Open creates dir if needed and opens the named backend inside it.
func Open(backend, dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	switch backend {
	case BackendFile, "":
		return OpenFile(filepath.Join(dir, "storage.json"))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "storage.db"))
	case BackendLevelDB:
		return OpenLevelDB(filepath.Join(dir, "storage.ldb"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
