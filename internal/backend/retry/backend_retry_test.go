package retry

import (
	"context"
	"hash"
	"io"
	"testing"
	"time"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/errors"
	rtest "github.com/secstore/secstore/internal/test"
)

// mock implements backend.Backend with configurable callbacks.
type mock struct {
	save       func(ctx context.Context, h backend.Handle, rd backend.RewindReader) error
	load       func(ctx context.Context, h backend.Handle, length int, offset int64, fn func(io.Reader) error) error
	stat       func(ctx context.Context, h backend.Handle) (backend.FileInfo, error)
	isNotExist func(err error) bool
}

func (m *mock) Save(ctx context.Context, h backend.Handle, rd backend.RewindReader) error {
	return m.save(ctx, h, rd)
}

func (m *mock) Load(ctx context.Context, h backend.Handle, length int, offset int64, fn func(io.Reader) error) error {
	return m.load(ctx, h, length, offset, fn)
}

func (m *mock) Stat(ctx context.Context, h backend.Handle) (backend.FileInfo, error) {
	return m.stat(ctx, h)
}

func (m *mock) List(_ context.Context, _ backend.FileType, _ func(backend.FileInfo) error) error {
	return nil
}

func (m *mock) Remove(_ context.Context, _ backend.Handle) error { return nil }
func (m *mock) Hasher() hash.Hash                                { return nil }
func (m *mock) Delete(_ context.Context) error                   { return nil }
func (m *mock) Close() error                                     { return nil }

func (m *mock) IsNotExist(err error) bool {
	if m.isNotExist == nil {
		return false
	}
	return m.isNotExist(err)
}

func TestBackendSaveRetry(t *testing.T) {
	errcount := 0
	saved := false
	be := &mock{
		save: func(_ context.Context, _ backend.Handle, rd backend.RewindReader) error {
			if errcount == 0 {
				errcount++
				// consume some bytes, the retry must rewind
				_, err := io.CopyN(io.Discard, rd, 120)
				if err != nil {
					return err
				}

				return errors.New("injected error")
			}

			buf, err := io.ReadAll(rd)
			if err != nil {
				return err
			}

			rtest.Equals(t, int64(len(buf)), rd.Length())
			saved = true
			return nil
		},
	}

	retryBackend := New(be, 2*time.Second, nil)

	data := rtest.Random(23, 5*1024*1024+11241)
	err := retryBackend.Save(context.TODO(), backend.Handle{Type: backend.DataFile, Name: "x"},
		backend.NewByteReader(data, nil))
	rtest.OK(t, err)
	rtest.Assert(t, saved, "data was never saved")
	rtest.Equals(t, 1, errcount)
}

func TestBackendLoadRetry(t *testing.T) {
	data := rtest.Random(23, 1024)
	limit := 100
	attempt := 0

	be := &mock{
		load: func(_ context.Context, _ backend.Handle, _ int, _ int64, fn func(io.Reader) error) error {
			// returns failing reader on the first invocation, good data on
			// the second
			attempt++
			if attempt == 1 {
				return errors.New("injected error")
			}

			return fn(io.LimitReader(backend.NewByteReader(data, nil), int64(limit)))
		},
	}

	retryBackend := New(be, 2*time.Second, nil)

	var buf []byte
	err := retryBackend.Load(context.TODO(), backend.Handle{Type: backend.DataFile, Name: "x"}, 0, 0, func(rd io.Reader) (err error) {
		buf, err = io.ReadAll(rd)
		return err
	})
	rtest.OK(t, err)
	rtest.Equals(t, data[:limit], buf)
	rtest.Equals(t, 2, attempt)
}

func TestBackendStatNotExistNoRetry(t *testing.T) {
	errNotFound := errors.New("not found")
	attempt := 0

	be := &mock{
		stat: func(_ context.Context, _ backend.Handle) (backend.FileInfo, error) {
			attempt++
			return backend.FileInfo{}, errNotFound
		},
		isNotExist: func(err error) bool {
			return errors.Is(err, errNotFound)
		},
	}

	retryBackend := New(be, 2*time.Second, nil)

	_, err := retryBackend.Stat(context.TODO(), backend.Handle{Type: backend.DataFile, Name: "x"})
	rtest.Assert(t, errors.Is(err, errNotFound), "unexpected error %v", err)
	rtest.Equals(t, 1, attempt)
}

func TestBackendCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	be := &mock{}
	retryBackend := New(be, 2*time.Second, nil)

	_, err := retryBackend.Stat(ctx, backend.Handle{Type: backend.DataFile, Name: "x"})
	rtest.Assert(t, errors.Is(err, context.Canceled), "unexpected error %v", err)
}
