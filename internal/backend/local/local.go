// Package local implements a backend in a directory on the local filesystem.
package local

import (
	"context"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

// Local is a backend in a local directory.
type Local struct {
	Config
}

// ensure statically that *Local implements backend.Backend.
var _ backend.Backend = &Local{}

const (
	fileMode = 0600
	dirMode  = 0700
)

// Open opens the local backend as specified by config.
func Open(_ context.Context, cfg Config) (*Local, error) {
	debug.Log("open local backend at %v", cfg.Path)

	fi, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("local backend location %q is not a directory", cfg.Path)
	}

	return &Local{Config: cfg}, nil
}

// Create creates all the necessary files and directories for a new local
// backend at dir.
func Create(_ context.Context, cfg Config) (*Local, error) {
	debug.Log("create local backend at %v", cfg.Path)

	// test if the config file already exists
	_, err := os.Lstat(filepath.Join(cfg.Path, "config"))
	if err == nil {
		return nil, errors.New("config file already exists")
	}

	for _, d := range []string{
		cfg.Path,
		filepath.Join(cfg.Path, string(backend.KeyFile)),
		filepath.Join(cfg.Path, string(backend.TreeFile)),
		filepath.Join(cfg.Path, string(backend.DataFile)),
	} {
		if err := os.MkdirAll(d, dirMode); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return &Local{Config: cfg}, nil
}

// Filename returns the path to the file or directory for the handle h.
func (b *Local) Filename(h backend.Handle) string {
	if h.Type == backend.ConfigFile {
		return filepath.Join(b.Path, "config")
	}

	name := h.Name
	if h.Type == backend.DataFile && len(name) > 2 {
		// shard data objects into subdirectories by name prefix
		return filepath.Join(b.Path, string(h.Type), name[:2], name)
	}

	return filepath.Join(b.Path, string(h.Type), name)
}

// Hasher may return a hash function for calculating a content hash for the
// backend. The local backend relies on the filesystem, no extra hash is used.
func (b *Local) Hasher() hash.Hash {
	return nil
}

// IsNotExist returns true if the error is caused by a non existing file.
func (b *Local) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Save stores data in the backend at the handle, atomically replacing any
// previous content.
func (b *Local) Save(ctx context.Context, h backend.Handle, rd backend.RewindReader) (err error) {
	debug.Log("Save %v", h)
	if err := h.Valid(); err != nil {
		return err
	}

	finalname := b.Filename(h)
	dir := filepath.Dir(finalname)

	// create the sharding directory if necessary
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.WithStack(err)
	}

	tmpfile, err := os.CreateTemp(dir, "tmp-")
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		if err != nil {
			_ = tmpfile.Close()
			_ = os.Remove(tmpfile.Name())
		}
	}()

	wbytes, err := io.Copy(tmpfile, rd)
	if err != nil {
		return errors.WithStack(err)
	}
	// sanity check
	if wbytes != rd.Length() {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", wbytes, rd.Length())
	}

	if err = tmpfile.Sync(); err != nil {
		return errors.WithStack(err)
	}

	if err = tmpfile.Chmod(fileMode); err != nil {
		return errors.WithStack(err)
	}

	if err = tmpfile.Close(); err != nil {
		return errors.WithStack(err)
	}

	if err = os.Rename(tmpfile.Name(), finalname); err != nil {
		return errors.WithStack(err)
	}

	// try to mark the containing directory as durable as well
	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return ctx.Err()
}

// Load runs fn with a reader that yields the contents of the file at h at the
// given offset.
func (b *Local) Load(ctx context.Context, h backend.Handle, length int, offset int64, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, h, length, offset, b.openReader, fn)
}

func (b *Local) openReader(_ context.Context, h backend.Handle, length int, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(b.Filename(h))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if offset > 0 {
		_, err = f.Seek(offset, io.SeekStart)
		if err != nil {
			_ = f.Close()
			return nil, errors.WithStack(err)
		}
	}

	if length > 0 {
		return backend.LimitReadCloser(f, int64(length)), nil
	}

	return f, nil
}

// Stat returns information about a file in the backend.
func (b *Local) Stat(_ context.Context, h backend.Handle) (backend.FileInfo, error) {
	fi, err := os.Stat(b.Filename(h))
	if err != nil {
		return backend.FileInfo{}, errors.WithStack(err)
	}

	return backend.FileInfo{Size: fi.Size(), Name: h.Name}, nil
}

// Remove removes the object with the given handle.
func (b *Local) Remove(_ context.Context, h backend.Handle) error {
	debug.Log("Remove %v", h)
	fn := b.Filename(h)

	// make sure the file is writable before removing it
	if err := os.Chmod(fn, fileMode); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.Remove(fn))
}

// List runs fn for each object in the backend which has the type t.
func (b *Local) List(ctx context.Context, t backend.FileType, fn func(backend.FileInfo) error) error {
	basedir := filepath.Join(b.Path, string(t))
	if t == backend.ConfigFile {
		fi, err := os.Stat(filepath.Join(b.Path, "config"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errors.WithStack(err)
		}
		return fn(backend.FileInfo{Size: fi.Size(), Name: ""})
	}

	return filepath.WalkDir(basedir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		return fn(backend.FileInfo{Size: fi.Size(), Name: d.Name()})
	})
}

// Delete removes all data in the backend.
func (b *Local) Delete(_ context.Context) error {
	return errors.WithStack(os.RemoveAll(b.Path))
}

// Close closes all open files.
func (b *Local) Close() error {
	// this does not need to do anything, all open files are closed within the
	// same function
	return nil
}
