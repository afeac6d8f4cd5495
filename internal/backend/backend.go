package backend

import (
	"context"
	"hash"
	"io"
)

// Backend is used to store and access the encrypted objects that make up a
// secure store. All objects a backend holds are already encrypted, a backend
// never sees plaintext.
type Backend interface {
	// Save stores the data from rd under the given handle, replacing any
	// object already stored under it.
	Save(ctx context.Context, h Handle, rd RewindReader) error

	// Load runs fn with a reader that yields the contents of the file at h at
	// the given offset. If length is larger than zero, only a portion of the
	// file is read.
	//
	// The function fn may be called multiple times during the same Load
	// invocation and therefore must be idempotent.
	Load(ctx context.Context, h Handle, length int, offset int64, fn func(rd io.Reader) error) error

	// Stat returns information about the object identified by h.
	Stat(ctx context.Context, h Handle) (FileInfo, error)

	// List runs fn for each object in the backend which has the type t. When
	// an error occurs (or fn returns an error), List stops and returns it.
	List(ctx context.Context, t FileType, fn func(FileInfo) error) error

	// Remove removes the object described by h.
	Remove(ctx context.Context, h Handle) error

	// Hasher may return a hash function for calculating a content hash for
	// the backend, or nil if the backend does not verify content.
	Hasher() hash.Hash

	// IsNotExist returns true if the error was caused by a non-existing
	// object in the backend.
	//
	// The argument may be a wrapped error. The implementation is responsible
	// for unwrapping it.
	IsNotExist(err error) bool

	// Delete removes all data in the backend.
	Delete(ctx context.Context) error

	// Close the backend.
	Close() error
}

// FileInfo contains information about an object in the backend.
type FileInfo struct {
	Size int64
	Name string
}
