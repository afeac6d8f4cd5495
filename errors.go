package secstore

import "github.com/secstore/secstore/internal/errors"

// Sentinel errors returned by store and handle operations. Callers should
// match them with errors.Is, all operations may return them wrapped.
var (
	// ErrNotExist is returned when a path does not exist in the store.
	ErrNotExist = errors.New("file does not exist")

	// ErrExist is returned when a path unexpectedly exists already.
	ErrExist = errors.New("file already exists")

	// ErrIsDir is returned for file operations on a directory.
	ErrIsDir = errors.New("is a directory")

	// ErrNotDir is returned when a path component is not a directory.
	ErrNotDir = errors.New("not a directory")

	// ErrNotEmpty is returned when removing a directory that still has
	// entries.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrClosed is returned for operations on a closed handle or store.
	ErrClosed = errors.New("handle is closed")

	// ErrReadOnly is returned for writes on a handle opened without a write
	// mode.
	ErrReadOnly = errors.New("file not open for writing")

	// ErrWriteOnly is returned for reads on a handle opened without a read
	// mode.
	ErrWriteOnly = errors.New("file not open for reading")

	// ErrInvalidMode is returned by OpenFile for malformed mode strings.
	ErrInvalidMode = errors.New("invalid open mode")

	// ErrInvalidSeek is returned when a seek would move before the start of
	// the file.
	ErrInvalidSeek = errors.New("invalid seek offset")

	// ErrBusy is returned when removing or replacing a file that is still
	// open.
	ErrBusy = errors.New("file is in use")

	// ErrInvalid is returned when renaming a directory into its own
	// subtree.
	ErrInvalid = errors.New("invalid argument")
)
