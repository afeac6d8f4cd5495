package secstore

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

// DefaultBufferSize is the default write-coalescing buffer budget of a file
// handle. Once more dirty block data accumulates, it is flushed to the
// backend.
const DefaultBufferSize = 1 << 20

type fileFlags struct {
	read     bool
	write    bool
	append   bool
	truncate bool
	create   bool
}

// parseMode parses an fopen-style mode string. The "b" and "t" qualifiers
// are not supported.
func parseMode(mode string) (fileFlags, error) {
	var f fileFlags

	switch mode {
	case "r":
		f.read = true
	case "r+":
		f.read, f.write = true, true
	case "w":
		f.write, f.truncate, f.create = true, true, true
	case "w+":
		f.read, f.write, f.truncate, f.create = true, true, true, true
	case "a":
		f.write, f.append, f.create = true, true, true
	case "a+":
		f.read, f.write, f.append, f.create = true, true, true, true
	default:
		return fileFlags{}, errors.Wrapf(ErrInvalidMode, "mode %q", mode)
	}

	return f, nil
}

// File is an open file in a secure store. It behaves like a C stdio stream:
// it is created by Store.OpenFile, carries a file position and end-of-file
// and error indicators, and buffers writes until Sync or Close.
//
// File implements io.Reader, io.Writer and io.Seeker.
type File struct {
	s     *Store
	ctx   context.Context
	of    *openFile
	name  string
	flags fileFlags

	// everything below is guarded by the store-independent handle state,
	// a File must not be used concurrently from multiple goroutines
	off      int64
	eof      bool
	err      error
	lastRead bool

	dirty      map[int64][]byte
	dirtyBytes int
	bufLimit   int
	touched    bool
	closed     bool
}

var (
	_ io.Reader = &File{}
	_ io.Writer = &File{}
	_ io.Seeker = &File{}
)

// OpenFile opens the file at path with an fopen-style mode: "r", "w", "a" or
// one of their "+" variants. "w" truncates, "a" appends, "+" adds the other
// direction. The context is retained and used for all backend operations of
// the returned handle.
func (s *Store) OpenFile(ctx context.Context, p string, mode string) (*File, error) {
	flags, err := parseMode(mode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Wrap(ErrClosed, "OpenFile")
	}

	parent, base, err := s.tree.lookupParent(p)
	if err != nil {
		return nil, err
	}

	n, _ := parent.find(base)
	treeDirty := false

	switch {
	case n == nil && !flags.create:
		return nil, errors.Wrapf(ErrNotExist, "open %v", p)

	case n == nil:
		n, err = s.tree.createFile(parent, base, 0600)
		if err != nil {
			return nil, err
		}
		treeDirty = true

	case n.isDir():
		return nil, errors.Wrapf(ErrIsDir, "open %v", p)

	case flags.truncate:
		if s.isOpen(n.ID) {
			return nil, errors.Wrapf(ErrBusy, "open %v", p)
		}

		if err := s.removeBlocks(ctx, n.ID, 0, s.blockCount(n.Size)); err != nil {
			return nil, err
		}

		n.Size = 0
		n.ModTime = time.Now()
		treeDirty = true
	}

	if treeDirty {
		if err := s.saveTreeLocked(ctx); err != nil {
			return nil, err
		}
	}

	debug.Log("open %v (%v) id %v", p, mode, n.ID.Str())

	return &File{
		s:        s,
		ctx:      ctx,
		of:       s.acquire(n),
		name:     cleanPath(p),
		flags:    flags,
		dirty:    make(map[int64][]byte),
		bufLimit: DefaultBufferSize,
	}, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.name
}

// EOF reports whether the end-of-file indicator is set, like feof.
func (f *File) EOF() bool {
	return f.eof
}

// Err returns the error indicator, like ferror.
func (f *File) Err() error {
	return f.err
}

// ClearErr resets the end-of-file and error indicators, like clearerr.
func (f *File) ClearErr() {
	f.eof = false
	f.err = nil
}

// SetBuffer adjusts the write buffer budget of the handle, like setvbuf. A
// size of zero makes the handle flush after every write. SetBuffer must be
// called before the first read or write.
func (f *File) SetBuffer(size int) error {
	if f.closed {
		return errors.Wrap(ErrClosed, "SetBuffer")
	}
	if f.touched {
		return errors.New("SetBuffer called after first use of the handle")
	}
	if size < 0 {
		return errors.New("negative buffer size")
	}

	f.bufLimit = size
	return nil
}

func (f *File) valid() error {
	if f.closed {
		return ErrClosed
	}

	f.s.mu.Lock()
	closed := f.s.closed
	f.s.mu.Unlock()

	if closed {
		return ErrClosed
	}

	return nil
}

func (f *File) size() int64 {
	f.of.mu.Lock()
	defer f.of.mu.Unlock()
	return f.of.node.Size
}

func (f *File) setSize(size int64) {
	f.of.mu.Lock()
	f.of.node.Size = size
	f.of.node.ModTime = time.Now()
	f.of.mu.Unlock()
}

// blockLen returns the length of block idx for a file of the given size.
func (f *File) blockLen(idx, size int64) int {
	bs := int64(f.s.cfg.BlockSize)
	l := size - idx*bs
	if l > bs {
		l = bs
	}
	if l < 0 {
		l = 0
	}
	return int(l)
}

// loadBlockAt returns the plaintext of block idx for a file of the given
// size. Blocks missing from the backend read as zero bytes (holes). The
// returned slice is shared with the cache and must not be modified.
func (f *File) loadBlockAt(idx, size int64) ([]byte, error) {
	want := f.blockLen(idx, size)

	if blk, ok := f.dirty[idx]; ok {
		if len(blk) >= want {
			return blk[:want], nil
		}
		// the file was grown sparsely after the last write to this block
		grown := make([]byte, want)
		copy(grown, blk)
		return grown, nil
	}

	name := blockName(f.of.node.ID, idx)

	if blk, ok := f.s.blocks.Get(name); ok {
		if len(blk) >= want {
			return blk[:want], nil
		}
		// cached block is shorter than the logical length, the remainder is
		// a hole
		grown := make([]byte, want)
		copy(grown, blk)
		return grown, nil
	}

	h := backend.Handle{Type: backend.DataFile, Name: name}
	blk, err := f.s.loadSealed(f.ctx, h)
	if err != nil {
		if f.s.be.IsNotExist(err) {
			return make([]byte, want), nil
		}
		return nil, err
	}

	f.s.blocks.Add(name, blk)

	if len(blk) < want {
		grown := make([]byte, want)
		copy(grown, blk)
		return grown, nil
	}

	return blk[:want], nil
}

// writableBlock returns a mutable dirty block of at least length need.
func (f *File) writableBlock(idx, size int64, need int) ([]byte, error) {
	if blk, ok := f.dirty[idx]; ok {
		if len(blk) < need {
			grown := make([]byte, need)
			copy(grown, blk)
			f.dirty[idx] = grown
			f.dirtyBytes += need - len(blk)
			blk = grown
		}
		return blk, nil
	}

	existing, err := f.loadBlockAt(idx, size)
	if err != nil {
		return nil, err
	}

	l := len(existing)
	if need > l {
		l = need
	}

	blk := make([]byte, l)
	copy(blk, existing)
	f.dirty[idx] = blk
	f.dirtyBytes += l

	return blk, nil
}

// Read reads up to len(p) bytes at the current position, like fread. A read
// that hits the end of the file sets the end-of-file indicator, a failing
// read sets the error indicator.
func (f *File) Read(p []byte) (int, error) {
	if err := f.valid(); err != nil {
		return 0, errors.Wrap(err, "Read")
	}
	if !f.flags.read {
		err := errors.Wrapf(ErrWriteOnly, "read %v", f.name)
		f.err = err
		return 0, err
	}

	f.touched = true

	if len(p) == 0 {
		return 0, nil
	}

	size := f.size()
	if f.off >= size {
		f.eof = true
		return 0, io.EOF
	}

	want := int64(len(p))
	if want > size-f.off {
		want = size - f.off
	}

	bs := int64(f.s.cfg.BlockSize)
	n := 0
	for int64(n) < want {
		idx := f.off / bs
		within := f.off % bs

		blk, err := f.loadBlockAt(idx, size)
		if err != nil {
			f.err = err
			return n, err
		}

		c := copy(p[n:want], blk[within:])
		n += c
		f.off += int64(c)
	}

	if n < len(p) {
		f.eof = true
	}
	f.lastRead = n > 0

	return n, nil
}

// Write writes len(p) bytes at the current position, like fwrite. In append
// mode the position is moved to the end of the file first. Writes are
// buffered, Sync or Close commit them to the backend.
func (f *File) Write(p []byte) (int, error) {
	if err := f.valid(); err != nil {
		return 0, errors.Wrap(err, "Write")
	}
	if !f.flags.write {
		err := errors.Wrapf(ErrReadOnly, "write %v", f.name)
		f.err = err
		return 0, err
	}

	f.touched = true
	f.lastRead = false

	if len(p) == 0 {
		return 0, nil
	}

	size := f.size()
	if f.flags.append {
		f.off = size
	}

	bs := int64(f.s.cfg.BlockSize)
	n := 0
	for n < len(p) {
		idx := f.off / bs
		within := int(f.off % bs)

		c := int(bs) - within
		if c > len(p)-n {
			c = len(p) - n
		}

		blk, err := f.writableBlock(idx, size, within+c)
		if err != nil {
			f.err = err
			return n, err
		}

		copy(blk[within:within+c], p[n:n+c])
		n += c
		f.off += int64(c)

		if f.off > size {
			size = f.off
			f.setSize(size)
		}
	}

	if f.dirtyBytes > f.bufLimit {
		if err := f.flush(); err != nil {
			f.err = err
			return n, err
		}
	}

	return n, nil
}

// flush seals and saves all dirty blocks.
func (f *File) flush() error {
	if len(f.dirty) == 0 {
		return nil
	}

	idxs := make([]int64, 0, len(f.dirty))
	for idx := range f.dirty {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	for _, idx := range idxs {
		blk := f.dirty[idx]
		name := blockName(f.of.node.ID, idx)

		if err := f.s.saveSealed(f.ctx, backend.Handle{Type: backend.DataFile, Name: name}, blk); err != nil {
			return err
		}

		f.s.blocks.Add(name, blk)
		delete(f.dirty, idx)
	}

	f.dirtyBytes = 0
	return nil
}

// Sync commits buffered writes and metadata to the backend, like fflush
// followed by fsync.
func (f *File) Sync() error {
	if err := f.valid(); err != nil {
		return errors.Wrap(err, "Sync")
	}

	if err := f.flush(); err != nil {
		f.err = err
		return err
	}

	return f.s.saveTree(f.ctx)
}

// Close commits buffered writes and invalidates the handle, like fclose.
func (f *File) Close() error {
	if f.closed {
		return errors.Wrap(ErrClosed, "Close")
	}

	err := f.Sync()

	f.s.mu.Lock()
	f.s.release(f.of)
	f.s.mu.Unlock()

	f.closed = true
	f.dirty = nil

	return err
}

// Seek sets the position for the next read or write, like fseek. The new
// position is returned. Seeking clears the end-of-file indicator.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.valid(); err != nil {
		return -1, errors.Wrap(err, "Seek")
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.off + offset
	case io.SeekEnd:
		abs = f.size() + offset
	default:
		return -1, errors.Wrapf(ErrInvalidSeek, "whence %d", whence)
	}

	if abs < 0 {
		return -1, errors.Wrapf(ErrInvalidSeek, "offset %d", abs)
	}

	f.off = abs
	f.eof = false
	f.lastRead = false

	return abs, nil
}

// Tell returns the current position, like ftell. It returns -1 on a closed
// handle.
func (f *File) Tell() int64 {
	if f.closed {
		return -1
	}
	return f.off
}

// Rewind moves the position to the start of the file and clears the
// indicators, like rewind.
func (f *File) Rewind() {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}
	f.ClearErr()
}

// Position is an opaque saved file position, like fpos_t.
type Position struct {
	offset int64
}

// Pos returns the current position for a later SetPos, like fgetpos.
func (f *File) Pos() (Position, error) {
	if err := f.valid(); err != nil {
		return Position{}, errors.Wrap(err, "Pos")
	}
	return Position{offset: f.off}, nil
}

// SetPos restores a position saved with Pos, like fsetpos. It clears the
// end-of-file indicator.
func (f *File) SetPos(pos Position) error {
	_, err := f.Seek(pos.offset, io.SeekStart)
	return err
}

// Truncate changes the size of the file, like ftruncate. If the file is
// extended, the new area reads as zero bytes.
func (f *File) Truncate(size int64) error {
	if err := f.valid(); err != nil {
		return errors.Wrap(err, "Truncate")
	}
	if !f.flags.write {
		return errors.Wrapf(ErrReadOnly, "truncate %v", f.name)
	}
	if size < 0 {
		return errors.New("negative size")
	}

	f.touched = true
	f.lastRead = false

	oldSize := f.size()
	if size == oldSize {
		return nil
	}

	if size < oldSize {
		newCount := f.s.blockCount(size)
		oldCount := f.s.blockCount(oldSize)

		// drop buffered blocks beyond the new end
		for idx, blk := range f.dirty {
			if idx >= newCount {
				f.dirtyBytes -= len(blk)
				delete(f.dirty, idx)
			}
		}

		if err := f.s.removeBlocks(f.ctx, f.of.node.ID, newCount, oldCount); err != nil {
			f.err = err
			return err
		}

		// zero out the cut part of the final block so that a later extension
		// reads zero bytes there
		bs := int64(f.s.cfg.BlockSize)
		if within := size % bs; within > 0 {
			idx := size / bs

			blk, err := f.loadBlockAt(idx, oldSize)
			if err != nil {
				f.err = err
				return err
			}

			cut := make([]byte, within)
			copy(cut, blk)
			if old, ok := f.dirty[idx]; ok {
				f.dirtyBytes -= len(old)
			}
			f.dirty[idx] = cut
			f.dirtyBytes += len(cut)
			f.s.blocks.Remove(blockName(f.of.node.ID, idx))
		}
	}

	f.setSize(size)

	return nil
}

// ReadByte reads a single byte, like fgetc. At the end of the file it sets
// the end-of-file indicator and returns io.EOF.
func (f *File) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := f.Read(buf[:])
	if n == 0 && err == nil {
		err = io.EOF
	}
	if err != nil {
		return 0, err
	}

	return buf[0], nil
}

// UnreadByte moves the position back by one byte, like ungetc. Only the
// byte most recently consumed by a read can be unread. It clears the
// end-of-file indicator.
func (f *File) UnreadByte() error {
	if err := f.valid(); err != nil {
		return errors.Wrap(err, "UnreadByte")
	}
	if !f.lastRead || f.off == 0 {
		return errors.New("no byte to unread")
	}

	f.off--
	f.lastRead = false
	f.eof = false

	return nil
}

// WriteByte writes a single byte, like fputc.
func (f *File) WriteByte(c byte) error {
	_, err := f.Write([]byte{c})
	return err
}

// ReadString reads until the first occurrence of delim, like fgets with an
// unbounded buffer. If the end of the file is reached before delim, the data
// read so far is returned together with io.EOF.
func (f *File) ReadString(delim byte) (string, error) {
	var buf []byte
	for {
		c, err := f.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(buf), io.EOF
			}
			return string(buf), err
		}

		buf = append(buf, c)
		if c == delim {
			return string(buf), nil
		}
	}
}

// WriteString writes the string s, like fputs.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Reopen dissociates the handle from its current file and opens the given
// path with it, like freopen. Buffered writes to the old file are committed
// first. On failure the handle is closed.
func (f *File) Reopen(p string, mode string) error {
	if f.closed {
		return errors.Wrap(ErrClosed, "Reopen")
	}

	closeErr := f.Close()

	nf, err := f.s.OpenFile(f.ctx, p, mode)
	if err != nil {
		return err
	}

	*f = *nf

	return closeErr
}
