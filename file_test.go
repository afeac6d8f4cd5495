package secstore_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/errors"
	rtest "github.com/secstore/secstore/internal/test"
)

func TestFileModes(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	for _, mode := range []string{"rb", "w+b", "rt", "x", ""} {
		_, err := s.OpenFile(ctx, "/f", mode)
		rtest.Assert(t, errors.Is(err, secstore.ErrInvalidMode), "mode %q: want ErrInvalidMode, got %v", mode, err)
	}

	// "r" does not create
	_, err := s.OpenFile(ctx, "/missing", "r")
	rtest.Assert(t, errors.Is(err, secstore.ErrNotExist), "want ErrNotExist, got %v", err)

	// "w" creates
	f, err := s.OpenFile(ctx, "/f", "w")
	rtest.OK(t, err)

	// reading a write-only handle fails
	_, err = f.Read(make([]byte, 1))
	rtest.Assert(t, errors.Is(err, secstore.ErrWriteOnly), "want ErrWriteOnly, got %v", err)
	rtest.Assert(t, f.Err() != nil, "error indicator not set")
	f.ClearErr()
	rtest.OK(t, f.Err())
	rtest.OK(t, f.Close())

	// writing a read-only handle fails
	f, err = s.OpenFile(ctx, "/f", "r")
	rtest.OK(t, err)
	_, err = f.Write([]byte("x"))
	rtest.Assert(t, errors.Is(err, secstore.ErrReadOnly), "want ErrReadOnly, got %v", err)
	rtest.OK(t, f.Close())

	// opening a directory fails
	rtest.OK(t, s.Mkdir(ctx, "/dir", 0755))
	_, err = s.OpenFile(ctx, "/dir", "r")
	rtest.Assert(t, errors.Is(err, secstore.ErrIsDir), "want ErrIsDir, got %v", err)
}

func TestFileWriteRead(t *testing.T) {
	s := secstore.TestStore(t)
	blockSize := s.Config().BlockSize

	// cover sub-block, exact-block and multi-block files
	for _, size := range []int{0, 1, 100, blockSize - 1, blockSize, blockSize + 1, 3*blockSize + 17} {
		t.Run(fmt.Sprintf("%d", size), func(t *testing.T) {
			p := fmt.Sprintf("/data-%d", size)
			data := rtest.Random(size, size)

			f, err := s.OpenFile(context.Background(), p, "w")
			rtest.OK(t, err)
			n, err := f.Write(data)
			rtest.OK(t, err)
			rtest.Equals(t, size, n)
			rtest.OK(t, f.Close())

			f, err = s.OpenFile(context.Background(), p, "r")
			rtest.OK(t, err)
			buf, err := io.ReadAll(f)
			rtest.OK(t, err)
			rtest.Assert(t, bytes.Equal(data, buf), "read back different data for size %d", size)

			fi, err := s.Stat(p)
			rtest.OK(t, err)
			rtest.Equals(t, int64(size), fi.Size())
			rtest.OK(t, f.Close())
		})
	}
}

func TestFileSeekOverwrite(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	writeFile(t, s, "/f", "hello world")

	f, err := s.OpenFile(ctx, "/f", "r+")
	rtest.OK(t, err)

	pos, err := f.Seek(6, io.SeekStart)
	rtest.OK(t, err)
	rtest.Equals(t, int64(6), pos)

	_, err = f.WriteString("there")
	rtest.OK(t, err)
	rtest.OK(t, f.Close())

	rtest.Equals(t, "hello there", readFile(t, s, "/f"))
}

func TestFileSeekPastEnd(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	f, err := s.OpenFile(ctx, "/sparse", "w")
	rtest.OK(t, err)

	_, err = f.Seek(int64(s.Config().BlockSize)+10, io.SeekStart)
	rtest.OK(t, err)
	_, err = f.WriteString("end")
	rtest.OK(t, err)
	rtest.OK(t, f.Close())

	buf := readFile(t, s, "/sparse")
	rtest.Equals(t, s.Config().BlockSize+13, len(buf))
	for i := 0; i < len(buf)-3; i++ {
		if buf[i] != 0 {
			t.Fatalf("hole at offset %d reads %#x instead of zero", i, buf[i])
		}
	}
	rtest.Equals(t, "end", buf[len(buf)-3:])
}

func TestFileSeekInvalid(t *testing.T) {
	s := secstore.TestStore(t)

	f, err := s.OpenFile(context.Background(), "/f", "w")
	rtest.OK(t, err)
	defer func() { rtest.OK(t, f.Close()) }()

	_, err = f.Seek(-1, io.SeekStart)
	rtest.Assert(t, errors.Is(err, secstore.ErrInvalidSeek), "want ErrInvalidSeek, got %v", err)

	_, err = f.Seek(0, 42)
	rtest.Assert(t, errors.Is(err, secstore.ErrInvalidSeek), "want ErrInvalidSeek, got %v", err)
}

func TestFileAppend(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	writeFile(t, s, "/log", "one\n")

	f, err := s.OpenFile(ctx, "/log", "a")
	rtest.OK(t, err)
	_, err = f.WriteString("two\n")
	rtest.OK(t, err)

	// append mode writes at the end regardless of the position
	_, err = f.Seek(0, io.SeekStart)
	rtest.OK(t, err)
	_, err = f.WriteString("three\n")
	rtest.OK(t, err)
	rtest.OK(t, f.Close())

	rtest.Equals(t, "one\ntwo\nthree\n", readFile(t, s, "/log"))
}

func TestFileEOFIndicator(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	writeFile(t, s, "/f", "abc")

	f, err := s.OpenFile(ctx, "/f", "r")
	rtest.OK(t, err)
	defer func() { rtest.OK(t, f.Close()) }()

	buf := make([]byte, 2)
	n, err := f.Read(buf)
	rtest.OK(t, err)
	rtest.Equals(t, 2, n)
	rtest.Assert(t, !f.EOF(), "EOF set before the end of the file")

	// short read at the end sets the indicator
	n, err = f.Read(buf)
	rtest.OK(t, err)
	rtest.Equals(t, 1, n)
	rtest.Assert(t, f.EOF(), "EOF not set by a short read")

	n, err = f.Read(buf)
	rtest.Equals(t, 0, n)
	rtest.Equals(t, io.EOF, err)

	// seeking clears the indicator
	_, err = f.Seek(0, io.SeekStart)
	rtest.OK(t, err)
	rtest.Assert(t, !f.EOF(), "EOF still set after Seek")
}

func TestFileByteOps(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	f, err := s.OpenFile(ctx, "/f", "w+")
	rtest.OK(t, err)

	rtest.OK(t, f.WriteByte('h'))
	rtest.OK(t, f.WriteByte('i'))
	f.Rewind()

	c, err := f.ReadByte()
	rtest.OK(t, err)
	rtest.Equals(t, byte('h'), c)

	rtest.OK(t, f.UnreadByte())
	c, err = f.ReadByte()
	rtest.OK(t, err)
	rtest.Equals(t, byte('h'), c)

	// only one byte can be unread
	rtest.OK(t, f.UnreadByte())
	err = f.UnreadByte()
	rtest.Assert(t, err != nil, "second UnreadByte succeeded")

	_, err = f.ReadByte()
	rtest.OK(t, err)
	_, err = f.ReadByte()
	rtest.OK(t, err)
	_, err = f.ReadByte()
	rtest.Equals(t, io.EOF, err)
	rtest.Assert(t, f.EOF(), "EOF not set by ReadByte at the end")

	// ungetc clears the end-of-file indicator
	rtest.OK(t, f.UnreadByte())
	rtest.Assert(t, !f.EOF(), "EOF still set after UnreadByte")

	rtest.OK(t, f.Close())
}

func TestFileReadWriteString(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	f, err := s.OpenFile(ctx, "/lines", "w+")
	rtest.OK(t, err)

	_, err = f.WriteString("first\nsecond\nlast")
	rtest.OK(t, err)
	f.Rewind()

	line, err := f.ReadString('\n')
	rtest.OK(t, err)
	rtest.Equals(t, "first\n", line)

	line, err = f.ReadString('\n')
	rtest.OK(t, err)
	rtest.Equals(t, "second\n", line)

	line, err = f.ReadString('\n')
	rtest.Equals(t, io.EOF, err)
	rtest.Equals(t, "last", line)

	rtest.OK(t, f.Close())
}

func TestFilePos(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	writeFile(t, s, "/f", "0123456789")

	f, err := s.OpenFile(ctx, "/f", "r")
	rtest.OK(t, err)
	defer func() { rtest.OK(t, f.Close()) }()

	_, err = f.Seek(4, io.SeekStart)
	rtest.OK(t, err)

	pos, err := f.Pos()
	rtest.OK(t, err)
	rtest.Equals(t, int64(4), f.Tell())

	_, err = f.Seek(0, io.SeekEnd)
	rtest.OK(t, err)
	rtest.Equals(t, int64(10), f.Tell())

	rtest.OK(t, f.SetPos(pos))
	rtest.Equals(t, int64(4), f.Tell())

	c, err := f.ReadByte()
	rtest.OK(t, err)
	rtest.Equals(t, byte('4'), c)
}

func TestFileTruncate(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()
	blockSize := s.Config().BlockSize

	data := rtest.Random(23, 2*blockSize+100)

	f, err := s.OpenFile(ctx, "/f", "w+")
	rtest.OK(t, err)
	_, err = f.Write(data)
	rtest.OK(t, err)

	// shrink to the middle of the first block
	cut := int64(blockSize / 2)
	rtest.OK(t, f.Truncate(cut))

	_, err = f.Seek(0, io.SeekStart)
	rtest.OK(t, err)
	buf, err := io.ReadAll(f)
	rtest.OK(t, err)
	rtest.Assert(t, bytes.Equal(data[:cut], buf), "content changed by shrink")

	// grow again, the cut area must read as zero bytes
	rtest.OK(t, f.Truncate(int64(blockSize)))
	_, err = f.Seek(cut, io.SeekStart)
	rtest.OK(t, err)
	buf, err = io.ReadAll(f)
	rtest.OK(t, err)
	rtest.Equals(t, blockSize-int(cut), len(buf))
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("offset %d after grow reads %#x instead of zero", int(cut)+i, b)
		}
	}

	rtest.OK(t, f.Close())

	fi, err := s.Stat("/f")
	rtest.OK(t, err)
	rtest.Equals(t, int64(blockSize), fi.Size())
}

func TestFileTruncateReadOnly(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	writeFile(t, s, "/f", "data")

	f, err := s.OpenFile(ctx, "/f", "r")
	rtest.OK(t, err)
	defer func() { rtest.OK(t, f.Close()) }()

	err = f.Truncate(0)
	rtest.Assert(t, errors.Is(err, secstore.ErrReadOnly), "want ErrReadOnly, got %v", err)
}

func TestFileSharedView(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	w, err := s.OpenFile(ctx, "/shared", "w")
	rtest.OK(t, err)
	_, err = w.WriteString("0123456789")
	rtest.OK(t, err)
	rtest.OK(t, w.Sync())

	// a second handle on the same file sees the synced size
	r, err := s.OpenFile(ctx, "/shared", "r")
	rtest.OK(t, err)

	buf, err := io.ReadAll(r)
	rtest.OK(t, err)
	rtest.Equals(t, "0123456789", string(buf))

	rtest.OK(t, r.Close())
	rtest.OK(t, w.Close())
}

func TestFileSetBuffer(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	f, err := s.OpenFile(ctx, "/f", "w")
	rtest.OK(t, err)

	rtest.OK(t, f.SetBuffer(0))

	err = f.SetBuffer(-1)
	rtest.Assert(t, err != nil, "negative buffer size accepted")

	_, err = f.WriteString("x")
	rtest.OK(t, err)

	// after the first write the buffer cannot be changed anymore
	err = f.SetBuffer(1024)
	rtest.Assert(t, err != nil, "SetBuffer succeeded after first write")

	rtest.OK(t, f.Close())
}

func TestFileDoubleClose(t *testing.T) {
	s := secstore.TestStore(t)

	f, err := s.OpenFile(context.Background(), "/f", "w")
	rtest.OK(t, err)
	rtest.OK(t, f.Close())

	err = f.Close()
	rtest.Assert(t, errors.Is(err, secstore.ErrClosed), "want ErrClosed, got %v", err)
}

func TestFileReopen(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	writeFile(t, s, "/second", "other content")

	f, err := s.OpenFile(ctx, "/first", "w")
	rtest.OK(t, err)
	_, err = f.WriteString("first content")
	rtest.OK(t, err)

	rtest.OK(t, f.Reopen("/second", "r"))
	rtest.Equals(t, "/second", f.Name())

	buf, err := io.ReadAll(f)
	rtest.OK(t, err)
	rtest.Equals(t, "other content", string(buf))
	rtest.OK(t, f.Close())

	// the pending write to the old file was committed
	rtest.Equals(t, "first content", readFile(t, s, "/first"))
}

func TestFileRandomAccess(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()
	blockSize := s.Config().BlockSize

	size := 4 * blockSize
	data := rtest.Random(5, size)

	f, err := s.OpenFile(ctx, "/rand", "w+")
	rtest.OK(t, err)
	_, err = f.Write(data)
	rtest.OK(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		off := rng.Intn(size - 1)
		l := rng.Intn(size-off) + 1

		patch := rtest.Random(i, l)
		copy(data[off:], patch)

		_, err = f.Seek(int64(off), io.SeekStart)
		rtest.OK(t, err)
		_, err = f.Write(patch)
		rtest.OK(t, err)
	}

	f.Rewind()
	buf, err := io.ReadAll(f)
	rtest.OK(t, err)
	rtest.Assert(t, bytes.Equal(data, buf), "data mismatch after random overwrites")

	rtest.OK(t, f.Close())

	// verify again through a fresh handle
	rtest.Assert(t, bytes.Equal(data, []byte(readFile(t, s, "/rand"))), "data mismatch after reopen")
}

func TestFileSmallBufferFlushes(t *testing.T) {
	s := secstore.TestStore(t)
	ctx := context.Background()

	f, err := s.OpenFile(ctx, "/f", "w")
	rtest.OK(t, err)
	rtest.OK(t, f.SetBuffer(16))

	data := rtest.Random(9, 1000)
	for i := 0; i < len(data); i += 100 {
		_, err = f.Write(data[i : i+100])
		rtest.OK(t, err)
	}
	rtest.OK(t, f.Close())

	rtest.Assert(t, bytes.Equal(data, []byte(readFile(t, s, "/f"))), "data mismatch with small write buffer")
}
