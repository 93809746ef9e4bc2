package store

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/fahmaliyi/zkseed/keys"
)

// FileStore keeps every key in one JSON object on disk. The whole file is
// rewritten atomically on each change.
type FileStore struct {
	mu     sync.Mutex
	path   string
	data   map[string][]byte
	closed bool
}

func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{path: path, data: map[string][]byte{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(raw, &fs.data); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) Get(key string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil, ErrClosed
	}
	v, ok := fs.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (fs *FileStore) Put(key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}
	prev, had := fs.data[key]
	fs.data[key] = append([]byte(nil), value...)
	if err := fs.flush(); err != nil {
		if had {
			fs.data[key] = prev
		} else {
			delete(fs.data, key)
		}
		return err
	}
	return nil
}

func (fs *FileStore) Delete(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}
	prev, had := fs.data[key]
	if !had {
		return nil
	}
	delete(fs.data, key)
	if err := fs.flush(); err != nil {
		fs.data[key] = prev
		return err
	}
	return nil
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closed = true
	return nil
}

func (fs *FileStore) flush() error {
	raw, err := json.Marshal(fs.data)
	if err != nil {
		return err
	}
	return keys.AtomicWriteFile(fs.path, raw, 0600)
}
