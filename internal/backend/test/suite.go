// Package test contains a conformance test suite that every backend
// implementation must pass.
package test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/secstore/secstore/internal/backend"
	rtest "github.com/secstore/secstore/internal/test"
)

// Suite runs the conformance tests against a backend created by create.
type Suite struct {
	// Create returns a fresh, empty backend.
	Create func(t testing.TB) backend.Backend
}

func (s *Suite) save(t testing.TB, be backend.Backend, h backend.Handle, data []byte) {
	rtest.OK(t, be.Save(context.TODO(), h, backend.NewByteReader(data, be.Hasher())))
}

// RunTests executes all backend conformance tests.
func (s *Suite) RunTests(t *testing.T) {
	t.Run("SaveLoad", s.testSaveLoad)
	t.Run("SaveReplace", s.testSaveReplace)
	t.Run("PartialLoad", s.testPartialLoad)
	t.Run("Stat", s.testStat)
	t.Run("List", s.testList)
	t.Run("Remove", s.testRemove)
	t.Run("NotExist", s.testNotExist)
	t.Run("Delete", s.testDelete)
}

func (s *Suite) testSaveLoad(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	data := rtest.Random(23, 2048)
	h := backend.Handle{Type: backend.DataFile, Name: "0123456789.000001"}
	s.save(t, be, h, data)

	buf, err := backend.LoadAll(context.TODO(), nil, be, h)
	rtest.OK(t, err)
	rtest.Equals(t, data, buf)
}

func (s *Suite) testSaveReplace(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	h := backend.Handle{Type: backend.DataFile, Name: "replaceme"}
	s.save(t, be, h, rtest.Random(1, 512))

	// a second Save must replace the previous content
	data := rtest.Random(2, 128)
	s.save(t, be, h, data)

	buf, err := backend.LoadAll(context.TODO(), nil, be, h)
	rtest.OK(t, err)
	rtest.Equals(t, data, buf)
}

func (s *Suite) testPartialLoad(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	data := rtest.Random(5, 4096)
	h := backend.Handle{Type: backend.DataFile, Name: "partial"}
	s.save(t, be, h, data)

	err := be.Load(context.TODO(), h, 100, 123, func(rd io.Reader) error {
		buf, err := io.ReadAll(rd)
		if err != nil {
			return err
		}

		if !bytes.Equal(buf, data[123:223]) {
			t.Errorf("wrong data returned for partial load")
		}
		return nil
	})
	rtest.OK(t, err)
}

func (s *Suite) testStat(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	data := rtest.Random(11, 1234)
	h := backend.Handle{Type: backend.KeyFile, Name: "statme"}
	s.save(t, be, h, data)

	fi, err := be.Stat(context.TODO(), h)
	rtest.OK(t, err)
	rtest.Equals(t, int64(len(data)), fi.Size)
}

func (s *Suite) testList(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	want := []string{"bar", "baz", "foo"}
	for _, name := range want {
		s.save(t, be, backend.Handle{Type: backend.DataFile, Name: name}, rtest.Random(3, 128))
	}

	// an object of a different type must not show up in the listing
	s.save(t, be, backend.Handle{Type: backend.KeyFile, Name: "other"}, rtest.Random(4, 128))

	var got []string
	err := be.List(context.TODO(), backend.DataFile, func(fi backend.FileInfo) error {
		got = append(got, fi.Name)
		return nil
	})
	rtest.OK(t, err)

	sort.Strings(got)
	rtest.Equals(t, want, got)
}

func (s *Suite) testRemove(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	h := backend.Handle{Type: backend.DataFile, Name: "removeme"}
	s.save(t, be, h, rtest.Random(7, 256))

	rtest.OK(t, be.Remove(context.TODO(), h))

	_, err := be.Stat(context.TODO(), h)
	rtest.Assert(t, be.IsNotExist(err), "expected IsNotExist after Remove, got %v", err)
}

func (s *Suite) testNotExist(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	h := backend.Handle{Type: backend.DataFile, Name: "nonexistent"}

	_, err := be.Stat(context.TODO(), h)
	rtest.Assert(t, be.IsNotExist(err), "Stat: expected IsNotExist, got %v", err)

	_, err = backend.LoadAll(context.TODO(), nil, be, h)
	rtest.Assert(t, be.IsNotExist(err), "Load: expected IsNotExist, got %v", err)
}

func (s *Suite) testDelete(t *testing.T) {
	be := s.Create(t)
	defer func() { rtest.OK(t, be.Close()) }()

	for _, name := range []string{"a", "b", "c"} {
		s.save(t, be, backend.Handle{Type: backend.DataFile, Name: name}, rtest.Random(9, 64))
	}

	rtest.OK(t, be.Delete(context.TODO()))

	n := 0
	rtest.OK(t, be.List(context.TODO(), backend.DataFile, func(fi backend.FileInfo) error {
		n++
		return nil
	}))
	rtest.Equals(t, 0, n)
}
