package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fahmaliyi/zkseed/keys"
	"github.com/fahmaliyi/zkseed/logging"
)

const RecordVersion = "1.0"

// Record is what the simulated server keeps for one signup.
type Record struct {
	ID                     string `json:"id"`
	LoginHash              string `json:"loginHash"`
	PublicKey              string `json:"publicKey"`
	EncryptedPrivateKey    string `json:"encryptedPrivateKey"`
	EncryptedPrivateKeyIV  string `json:"encryptedPrivateKeyIV"`
	EncryptedPrivateKeyTag string `json:"encryptedPrivateKeyTag"`
	EncSalt                string `json:"encSalt"`
	KeyAlgorithm           string `json:"keyAlgorithm,omitempty"`
	CreatedAt              string `json:"createdAt"`
	Version                string `json:"version"`
	EncryptedUserData      string `json:"encryptedUserData,omitempty"`
	LastUpdated            string `json:"lastUpdated,omitempty"`
	MessageCount           int    `json:"messageCount"`
}

func (r *Record) WrappedKey() (*keys.WrappedKey, error) {
	return keys.DecodeWrappedKey(r.EncryptedPrivateKey, r.EncryptedPrivateKeyIV, r.EncryptedPrivateKeyTag)
}

// SetWrappedKey stores the base64 forms of w on the record.
func (r *Record) SetWrappedKey(w *keys.WrappedKey) {
	r.EncryptedPrivateKey, r.EncryptedPrivateKeyIV, r.EncryptedPrivateKeyTag = w.Encode()
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// Users is the record list kept under KeyUsers. Every method is a full
// read-modify-write of that one value, serialised by mu.
type Users struct {
	mu  sync.Mutex
	db  Store
	log *logging.Logger
}

func NewUsers(db Store, log *logging.Logger) *Users {
	if log == nil {
		log = logging.NewNop()
	}
	return &Users{db: db, log: log}
}

// load reads the list. A single object is accepted as a one-element list.
// Anything else unparseable is reported and treated as empty. Records stored
// without an id get one, and the list is written back.
func (u *Users) load() ([]Record, error) {
	raw, err := u.db.Get(KeyUsers)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []Record
	if err := json.Unmarshal(raw, &list); err != nil {
		var single Record
		if err := json.Unmarshal(raw, &single); err != nil {
			u.log.Warn("stored users value was not a list, resetting")
			return nil, nil
		}
		u.log.Warn("stored users value was a single record, normalising to a list")
		list = []Record{single}
	}
	return u.assignIDs(list)
}

func (u *Users) assignIDs(list []Record) ([]Record, error) {
	missing := 0
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = uuid.New().String()
			missing++
		}
	}
	if missing == 0 {
		return list, nil
	}
	if err := u.save(list); err != nil {
		return nil, fmt.Errorf("storage failed: %w", err)
	}
	u.log.Warn("assigned ids to stored records", "count", missing)
	return list, nil
}

func (u *Users) save(list []Record) error {
	if list == nil {
		list = []Record{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return u.db.Put(KeyUsers, raw)
}

func (u *Users) List() ([]Record, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.load()
}

// Append fills in ID, CreatedAt and Version when empty and adds r at the end.
func (u *Users) Append(r Record) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	list, err := u.load()
	if err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = now()
	}
	if r.Version == "" {
		r.Version = RecordVersion
	}
	if err := u.save(append(list, r)); err != nil {
		return fmt.Errorf("storage failed: %w", err)
	}
	u.log.Debug("record appended", "id", r.ID, "count", len(list)+1)
	return nil
}

// Update replaces the record with the same ID.
func (u *Users) Update(r Record) error {
	_, err := u.Modify(ByID(r.ID), func(cur *Record) error {
		*cur = r
		return nil
	})
	return err
}

// ByID matches the record with the given id.
func ByID(id string) func(*Record) bool {
	return func(r *Record) bool { return id != "" && r.ID == id }
}

// Modify loads the list, applies fn to the first record match accepts and
// saves the list, all under one lock. It returns a copy of the result.
func (u *Users) Modify(match func(*Record) bool, fn func(*Record) error) (*Record, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	list, err := u.load()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if !match(&list[i]) {
			continue
		}
		if err := fn(&list[i]); err != nil {
			return nil, err
		}
		if err := u.save(list); err != nil {
			return nil, err
		}
		r := list[i]
		return &r, nil
	}
	return nil, ErrUserNotFound
}

func (u *Users) Get(id string) (*Record, error) {
	list, err := u.List()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (u *Users) Latest() (*Record, error) {
	list, err := u.List()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrUserNotFound
	}
	return &list[len(list)-1], nil
}

// FindBySeed returns the newest record whose login hash verifies against
// seed. bcrypt salts every hash, so a freshly derived hash cannot be used
// as a lookup key.
func (u *Users) FindBySeed(seed string) (*Record, error) {
	list, err := u.List()
	if err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if keys.VerifyLoginHash(seed, list[i].LoginHash) {
			return &list[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (u *Users) FindByLoginHash(hash string) (*Record, error) {
	list, err := u.List()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].LoginHash == hash {
			return &list[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (u *Users) Delete(id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	list, err := u.load()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			return u.save(append(list[:i], list[i+1:]...))
		}
	}
	return ErrUserNotFound
}

func (u *Users) Clear() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.db.Delete(KeyUsers)
}
