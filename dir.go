package secstore

import (
	"io"
	"sync"

	"github.com/secstore/secstore/internal/errors"
)

// Dir is an open directory iterator, like DIR from dirent.h. It iterates
// over a snapshot of the entries present when the directory was opened,
// later changes to the directory do not show up.
//
// Unlike File, a Dir may be used concurrently from multiple goroutines.
type Dir struct {
	s    *Store
	name string

	mu      sync.Mutex
	entries []DirEntry
	off     int
	closed  bool
}

// OpenDir opens the directory at path for iteration, like opendir.
func (s *Store) OpenDir(p string) (*Dir, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Wrap(ErrClosed, "OpenDir")
	}

	n, err := s.tree.lookupDir(p)
	if err != nil {
		return nil, err
	}

	return &Dir{s: s, name: cleanPath(p), entries: snapshotEntries(n)}, nil
}

func snapshotEntries(n *node) []DirEntry {
	entries := make([]DirEntry, 0, len(n.Nodes))
	for _, child := range n.Nodes {
		entries = append(entries, child.dirEntry())
	}
	return entries
}

// Name returns the path the directory was opened with.
func (d *Dir) Name() string {
	return d.name
}

// Read returns the next directory entry, like readdir. At the end of the
// directory it returns io.EOF.
func (d *Dir) Read() (*DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.Wrap(ErrClosed, "Read")
	}

	if d.off >= len(d.entries) {
		return nil, io.EOF
	}

	e := d.entries[d.off]
	d.off++

	return &e, nil
}

// Tell returns the current iteration position, like telldir.
func (d *Dir) Tell() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return int64(d.off)
}

// Seek restores an iteration position returned by Tell, like seekdir.
// Positions outside the snapshot are clamped.
func (d *Dir) Seek(pos int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pos < 0 {
		pos = 0
	}
	if pos > int64(len(d.entries)) {
		pos = int64(len(d.entries))
	}

	d.off = int(pos)
}

// Rewind restarts iteration at the first entry, like rewinddir. The
// snapshot is refreshed, so entries created or removed since OpenDir become
// visible. If the directory no longer exists, the old snapshot is kept.
func (d *Dir) Rewind() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.off = 0

	d.s.mu.Lock()
	n, err := d.s.tree.lookupDir(d.name)
	if err == nil {
		d.entries = snapshotEntries(n)
	}
	d.s.mu.Unlock()
}

// Close releases the iterator, like closedir. Further calls to Read return
// ErrClosed.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.Wrap(ErrClosed, "Close")
	}

	d.closed = true
	d.entries = nil

	return nil
}
