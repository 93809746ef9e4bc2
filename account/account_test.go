package account

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fahmaliyi/zkseed/keys"
	"github.com/fahmaliyi/zkseed/store"
)

func newTestService(t *testing.T, persist bool) *Service {
	t.Helper()
	db, err := store.Open(store.BackendFile, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, nil, Options{Keys: keys.DefaultKeyOptions(), PersistSecrets: persist})
}

func TestSignupLoginRoundTrip(t *testing.T) {
	svc := newTestService(t, true)

	var seen []Step
	svc.SetObserver(func(step Step, substep int) {
		seen = append(seen, step)
	})

	res, err := svc.Signup()
	if err != nil {
		t.Fatal(err)
	}
	if len(strings.Fields(res.SeedPhrase)) != keys.SeedWords {
		t.Errorf("seed = %q", res.SeedPhrase)
	}
	if res.Details.KeyDerivation != "PBKDF2-SHA256-100000" || res.Details.PasswordHashing != "bcrypt-12" {
		t.Errorf("details = %+v", res.Details)
	}
	r := res.Record
	if r.EncryptedPrivateKeyTag == "" || r.EncryptedPrivateKeyIV == "" || r.EncSalt == "" {
		t.Errorf("record missing wrap fields: %+v", r)
	}
	if len(seen) != 6 {
		t.Errorf("observer saw %d substeps, want 6", len(seen))
	}

	stored, err := svc.Secrets().SeedPhrase()
	if err != nil {
		t.Fatal(err)
	}
	if stored != res.SeedPhrase {
		t.Error("persisted seed differs")
	}

	login, err := svc.Login(res.SeedPhrase)
	if err != nil {
		t.Fatal(err)
	}
	if login.Record.ID != r.ID {
		t.Errorf("logged into %s, want %s", login.Record.ID, r.ID)
	}
	if !strings.Contains(login.PrivateKey, "PGP PRIVATE KEY BLOCK") {
		t.Error("unwrapped key is not an armored private key")
	}

	if _, err := svc.Login("acid acid acid"); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("unknown seed: got %v", err)
	}
}

func TestEncryptAndDecrypt(t *testing.T) {
	svc := newTestService(t, true)

	res, err := svc.Signup()
	if err != nil {
		t.Fatal(err)
	}

	enc, err := svc.EncryptAndStore("hello from the demo", res.Record.PublicKey, res.Record.LoginHash)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Record.MessageCount != 1 || enc.Record.EncryptedUserData != enc.EncryptedMessage {
		t.Errorf("record not updated: %+v", enc.Record)
	}
	if enc.Details.Compression != "zlib" {
		t.Errorf("details = %+v", enc.Details)
	}

	// latest record, own public key
	enc2, err := svc.EncryptAndStore("second", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if enc2.Record.MessageCount != 2 {
		t.Errorf("message count = %d", enc2.Record.MessageCount)
	}

	msg, err := svc.DecryptMessage(enc.EncryptedMessage)
	if err != nil {
		t.Fatal(err)
	}
	if msg != "hello from the demo" {
		t.Errorf("got %q", msg)
	}

	msg, err = svc.DecryptMessageWithSeed(enc2.EncryptedMessage, res.SeedPhrase)
	if err != nil {
		t.Fatal(err)
	}
	if msg != "second" {
		t.Errorf("got %q", msg)
	}
}

func TestDecryptWithoutPersistedSecrets(t *testing.T) {
	svc := newTestService(t, false)

	res, err := svc.SignupWithSeed("abandon ability able about above absent absorb abstract absurd abuse access accident")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Secrets().EncryptionKey(); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("encryption key persisted: %v", err)
	}

	enc, err := svc.EncryptAndStore("offline", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DecryptMessage(enc.EncryptedMessage); !errors.Is(err, store.ErrNoSeedPhrase) {
		t.Errorf("no stored seed: got %v", err)
	}
	msg, err := svc.DecryptMessageWithSeed(enc.EncryptedMessage, res.SeedPhrase)
	if err != nil {
		t.Fatal(err)
	}
	if msg != "offline" {
		t.Errorf("got %q", msg)
	}
}

func TestPersistedKeyFallsBackToDerivation(t *testing.T) {
	svc := newTestService(t, true)

	res, err := svc.Signup()
	if err != nil {
		t.Fatal(err)
	}
	stale, _, err := keys.DeriveEncryptionKey("acid")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Secrets().SaveEncryptionKey(stale); err != nil {
		t.Fatal(err)
	}

	enc, err := svc.EncryptAndStore("still readable", res.Record.PublicKey, "")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := svc.DecryptMessage(enc.EncryptedMessage)
	if err != nil {
		t.Fatal(err)
	}
	if msg != "still readable" {
		t.Errorf("got %q", msg)
	}
}

func TestEncryptAndStoreWithoutUser(t *testing.T) {
	svc := newTestService(t, true)
	if _, err := svc.EncryptAndStore("hi", "", ""); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestBackupAndReset(t *testing.T) {
	svc := newTestService(t, true)

	res, err := svc.Signup()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.zkpk")
	if _, err := svc.Backup(res.SeedPhrase, path); err != nil {
		t.Fatal(err)
	}

	env, err := keys.ReadEnvelopeFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pk, err := env.Unwrap(res.SeedPhrase)
	if err != nil {
		t.Fatal(err)
	}
	login, err := svc.Login(res.SeedPhrase)
	if err != nil {
		t.Fatal(err)
	}
	if pk != login.PrivateKey {
		t.Error("backup unwraps to a different key")
	}

	if err := svc.Reset(); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Users().Latest(); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("records left after reset: %v", err)
	}
	if _, err := svc.Secrets().SeedPhrase(); !errors.Is(err, store.ErrNoSeedPhrase) {
		t.Errorf("seed left after reset: %v", err)
	}
}

func TestSignupEmptySeed(t *testing.T) {
	svc := newTestService(t, true)
	if _, err := svc.SignupWithSeed("  "); !errors.Is(err, keys.ErrEmptyInput) {
		t.Fatalf("got %v", err)
	}
}

func TestEncryptAndStoreOnRecordsWithoutIDs(t *testing.T) {
	db, err := store.Open(store.BackendFile, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	svc := New(db, nil, Options{Keys: keys.DefaultKeyOptions()})

	a, err := svc.Signup()
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Signup()
	if err != nil {
		t.Fatal(err)
	}

	// strip ids, as in records written by the browser demo
	list, err := svc.Users().List()
	if err != nil {
		t.Fatal(err)
	}
	for i := range list {
		list[i].ID = ""
	}
	raw, err := json.Marshal(list)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Put(store.KeyUsers, raw); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.EncryptAndStore("hello", "", ""); err != nil {
		t.Fatal(err)
	}

	list, err = svc.Users().List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d records", len(list))
	}
	if list[0].LoginHash != a.Record.LoginHash || list[0].MessageCount != 0 {
		t.Errorf("first record changed: %+v", list[0])
	}
	if list[1].LoginHash != b.Record.LoginHash || list[1].MessageCount != 1 {
		t.Errorf("latest record not updated: %+v", list[1])
	}
	if _, err := svc.Login(a.SeedPhrase); err != nil {
		t.Errorf("first account lost: %v", err)
	}
}

func TestEncryptAndStoreConcurrent(t *testing.T) {
	svc := newTestService(t, false)
	if _, err := svc.Signup(); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.EncryptAndStore("tick", "", ""); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	rec, err := svc.Users().Latest()
	if err != nil {
		t.Fatal(err)
	}
	if rec.MessageCount != n {
		t.Errorf("message count = %d, want %d", rec.MessageCount, n)
	}
}
