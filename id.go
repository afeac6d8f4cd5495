package secstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/secstore/secstore/internal/errors"
)

// idSize contains the size of an ID, in bytes.
const idSize = 16

// ID references the encrypted content of a file in the backend. IDs are
// random, they carry no information about the plaintext.
type ID [idSize]byte

// NewID returns a new random ID. It panics when not enough randomness is
// available, there is no way to continue safely without it.
func NewID() ID {
	id := ID{}
	n, err := rand.Read(id[:])
	if n != idSize || err != nil {
		panic("unable to read enough random bytes for file id")
	}
	return id
}

// ParseID converts the given string to an ID.
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, errors.Wrap(err, "hex.DecodeString")
	}

	if len(b) != idSize {
		return ID{}, errors.New("invalid length for ID")
	}

	id := ID{}
	copy(id[:], b)

	return id, nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Str returns a shortened representation for the debug log.
func (id ID) Str() string {
	return hex.EncodeToString(id[:4])
}

// IsNull returns true iff id only consists of null bytes.
func (id ID) IsNull() bool {
	var nullID ID
	return id == nullID
}

// MarshalJSON returns the JSON encoding of id.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses the JSON-encoded data and stores the result in id.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "Unmarshal")
	}

	parsed, err := ParseID(s)
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}
