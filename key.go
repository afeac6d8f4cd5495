package secstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"os/user"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/crypto"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

var (
	// ErrNoKeyFound is returned when no key for the store could be decrypted.
	ErrNoKeyFound = errors.Fatal("wrong password or no key found")

	// ErrMaxKeysReached is returned when the maximum number of keys was
	// checked and no key could be found.
	ErrMaxKeysReached = errors.Fatal("maximum number of keys reached")
)

// Key represents an encrypted master key for a store. The master key is
// wrapped by a key derived from a password, so a store can carry one key
// file per password.
type Key struct {
	Created  time.Time `json:"created"`
	Username string    `json:"username"`
	Hostname string    `json:"hostname"`

	KDF  string `json:"kdf"`
	N    int    `json:"N"`
	R    int    `json:"r"`
	P    int    `json:"p"`
	Salt []byte `json:"salt"`
	Data []byte `json:"data"`

	user   *crypto.Key
	master *crypto.Key

	name string
}

// KDFParams tracks the parameters used for the KDF. If not set, it will be
// calibrated on the first run of AddKey().
var KDFParams *crypto.Params

var (
	// KDFTimeout specifies the maximum runtime for the KDF.
	KDFTimeout = 500 * time.Millisecond

	// KDFMemory limits the memory the KDF is allowed to use, in MiB.
	KDFMemory = 60
)

// Name returns the name of the key file this key was loaded from.
func (k *Key) Name() string {
	return k.name
}

// Valid tests whether the contained keys are valid.
func (k *Key) Valid() bool {
	return k.user.Valid() && k.master.Valid()
}

func (k *Key) String() string {
	if k == nil {
		return "<Key nil>"
	}
	return "<Key of " + k.Username + "@" + k.Hostname + ", created on " + k.Created.Format(time.RFC3339) + ">"
}

// createMasterKey creates a new master key for the backend and encrypts it
// with the password.
func createMasterKey(ctx context.Context, be backend.Backend, password string) (*Key, error) {
	return addKey(ctx, be, password, nil)
}

// OpenKey tries do decrypt the key specified by name with the given password.
func OpenKey(ctx context.Context, be backend.Backend, name string, password string) (*Key, error) {
	k, err := LoadKey(ctx, be, name)
	if err != nil {
		debug.Log("LoadKey(%v) returned error %v", name, err)
		return nil, err
	}

	// check KDF
	if k.KDF != "scrypt" {
		return nil, errors.New("only supported KDF is scrypt()")
	}

	// derive user key
	params := crypto.Params{
		N: k.N,
		R: k.R,
		P: k.P,
	}
	k.user, err = crypto.KDF(params, k.Salt, password)
	if err != nil {
		return nil, errors.Wrap(err, "crypto.KDF")
	}

	// decrypt master key
	nonce, ciphertext := k.Data[:k.user.NonceSize()], k.Data[k.user.NonceSize():]
	buf, err := k.user.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}

	k.master = &crypto.Key{}
	err = json.Unmarshal(buf, k.master)
	if err != nil {
		debug.Log("Unmarshal() returned error %v", err)
		return nil, errors.Wrap(err, "Unmarshal")
	}
	k.name = name

	if !k.Valid() {
		return nil, errors.New("invalid key for store")
	}

	return k, nil
}

// SearchKey tries to decrypt at most maxKeys keys in the backend with the
// given password. If none could be found, ErrNoKeyFound is returned. When
// maxKeys is reached, ErrMaxKeysReached is returned. When setting maxKeys to
// zero, all keys in the store are checked.
func SearchKey(ctx context.Context, be backend.Backend, password string, maxKeys int) (*Key, error) {
	checked := 0

	var key *Key
	err := be.List(ctx, backend.KeyFile, func(fi backend.FileInfo) error {
		if maxKeys > 0 && checked >= maxKeys {
			return ErrMaxKeysReached
		}
		checked++

		debug.Log("trying key %q", fi.Name)
		k, err := OpenKey(ctx, be, fi.Name, password)
		if err != nil {
			// ErrUnauthenticated means the password is wrong, try the next key
			debug.Log("key %v returned error %v", fi.Name, err)
			return nil
		}

		debug.Log("successfully opened key %v", fi.Name)
		key = k
		return errFoundKey
	})

	if err != nil && err != errFoundKey {
		return nil, err
	}

	if key == nil {
		return nil, ErrNoKeyFound
	}

	return key, nil
}

// errFoundKey stops the key file listing early once a key matched.
var errFoundKey = errors.New("found key")

// LoadKey loads a key from the backend.
func LoadKey(ctx context.Context, be backend.Backend, name string) (*Key, error) {
	h := backend.Handle{Type: backend.KeyFile, Name: name}
	data, err := backend.LoadAll(ctx, nil, be, h)
	if err != nil {
		return nil, err
	}

	k := &Key{}
	err = json.Unmarshal(data, k)
	if err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}

	return k, nil
}

// AddKey adds a new password to the store. The master key of s is wrapped
// with a key derived from the new password and saved as an additional key
// file.
func (s *Store) AddKey(ctx context.Context, password string) (*Key, error) {
	return addKey(ctx, s.be, password, s.key)
}

func addKey(ctx context.Context, be backend.Backend, password string, template *crypto.Key) (*Key, error) {
	// make sure we have valid KDF parameters
	if KDFParams == nil {
		p, err := crypto.Calibrate(KDFTimeout, KDFMemory)
		if err != nil {
			return nil, errors.Wrap(err, "Calibrate")
		}

		KDFParams = &p
		debug.Log("calibrated KDF parameters are %v", p)
	}

	// fill meta data about key
	newkey := &Key{
		Created: time.Now(),
		KDF:     "scrypt",
		N:       KDFParams.N,
		R:       KDFParams.R,
		P:       KDFParams.P,
	}

	hn, err := os.Hostname()
	if err == nil {
		newkey.Hostname = hn
	}

	usr, err := user.Current()
	if err == nil {
		newkey.Username = usr.Username
	}

	// generate random salt
	newkey.Salt, err = crypto.NewSalt()
	if err != nil {
		panic("unable to read enough random bytes for salt: " + err.Error())
	}

	// call KDF to derive user key
	newkey.user, err = crypto.KDF(*KDFParams, newkey.Salt, password)
	if err != nil {
		return nil, err
	}

	if template == nil {
		// generate new random master key
		newkey.master = crypto.NewRandomKey()
	} else {
		// copy master key from template
		newkey.master = template
	}

	// encrypt master key (as JSON) with user key
	buf, err := json.Marshal(newkey.master)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal")
	}

	nonce := crypto.NewRandomNonce()
	ciphertext := make([]byte, 0, len(nonce)+len(buf)+newkey.user.Overhead())
	ciphertext = append(ciphertext, nonce...)
	ciphertext = newkey.user.Seal(ciphertext, nonce, buf, nil)
	newkey.Data = ciphertext

	// dump as JSON
	buf, err = json.Marshal(newkey)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal")
	}

	// the key file is named by the hash of its content
	sum := xxhash.Sum64(buf)
	name := hex.EncodeToString([]byte{
		byte(sum >> 56), byte(sum >> 48), byte(sum >> 40), byte(sum >> 32),
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})

	h := backend.Handle{Type: backend.KeyFile, Name: name}
	err = be.Save(ctx, h, backend.NewByteReader(buf, be.Hasher()))
	if err != nil {
		return nil, err
	}

	newkey.name = name

	return newkey, nil
}

// ChangeKey wraps the master key with the new password and removes the key
// file the store was opened with.
func (s *Store) ChangeKey(ctx context.Context, password string) (*Key, error) {
	k, err := addKey(ctx, s.be, password, s.key)
	if err != nil {
		return nil, err
	}

	oldName := s.keyName
	s.keyName = k.name

	h := backend.Handle{Type: backend.KeyFile, Name: oldName}
	if err := s.be.Remove(ctx, h); err != nil {
		return nil, err
	}

	return k, nil
}

// RemoveKey deletes the key file with the given name. The key the store was
// opened with cannot be removed.
func (s *Store) RemoveKey(ctx context.Context, name string) error {
	if name == s.keyName {
		return errors.Fatal("refusing to remove key currently used to access store")
	}

	h := backend.Handle{Type: backend.KeyFile, Name: name}
	return s.be.Remove(ctx, h)
}

// ListKeys runs fn for every key file in the store.
func (s *Store) ListKeys(ctx context.Context, fn func(*Key) error) error {
	return s.be.List(ctx, backend.KeyFile, func(fi backend.FileInfo) error {
		k, err := LoadKey(ctx, s.be, fi.Name)
		if err != nil {
			debug.Log("LoadKey(%v) failed: %v", fi.Name, err)
			return err
		}

		k.name = fi.Name
		return fn(k)
	})
}
