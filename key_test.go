package secstore_test

import (
	"context"
	"testing"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/backend/mem"
	"github.com/secstore/secstore/internal/errors"
	rtest "github.com/secstore/secstore/internal/test"
)

func listKeys(t testing.TB, s *secstore.Store) []*secstore.Key {
	t.Helper()

	var keys []*secstore.Key
	rtest.OK(t, s.ListKeys(context.Background(), func(k *secstore.Key) error {
		keys = append(keys, k)
		return nil
	}))

	return keys
}

func TestAddKey(t *testing.T) {
	secstore.TestUseLowSecurityKDFParameters(t)
	be := mem.New()
	ctx := context.Background()

	s, err := secstore.Init(ctx, be, "password", secstore.Options{})
	rtest.OK(t, err)

	writeFile(t, s, "/f", "content")

	rtest.Equals(t, 1, len(listKeys(t, s)))

	k, err := s.AddKey(ctx, "second password")
	rtest.OK(t, err)
	rtest.Assert(t, k.Name() != "", "new key has no name")
	rtest.Equals(t, 2, len(listKeys(t, s)))

	rtest.OK(t, s.Close())

	// both passwords open the store and see the same content
	for _, password := range []string{"password", "second password"} {
		s, err := secstore.Open(ctx, be, password, secstore.Options{})
		rtest.OK(t, err)
		rtest.Equals(t, "content", readFile(t, s, "/f"))
		rtest.OK(t, s.Close())
	}
}

func TestRemoveKey(t *testing.T) {
	secstore.TestUseLowSecurityKDFParameters(t)
	be := mem.New()
	ctx := context.Background()

	s, err := secstore.Init(ctx, be, "password", secstore.Options{})
	rtest.OK(t, err)

	k, err := s.AddKey(ctx, "second password")
	rtest.OK(t, err)

	// the key in use cannot be removed
	var current *secstore.Key
	for _, key := range listKeys(t, s) {
		if key.Name() != k.Name() {
			current = key
		}
	}
	rtest.Assert(t, current != nil, "current key not found in key list")

	err = s.RemoveKey(ctx, current.Name())
	rtest.Assert(t, err != nil, "removing the key in use succeeded")

	rtest.OK(t, s.RemoveKey(ctx, k.Name()))
	rtest.Equals(t, 1, len(listKeys(t, s)))
	rtest.OK(t, s.Close())

	_, err = secstore.Open(ctx, be, "second password", secstore.Options{})
	rtest.Assert(t, errors.Is(err, secstore.ErrNoKeyFound), "removed key still opens the store")
}

func TestChangeKey(t *testing.T) {
	secstore.TestUseLowSecurityKDFParameters(t)
	be := mem.New()
	ctx := context.Background()

	s, err := secstore.Init(ctx, be, "old password", secstore.Options{})
	rtest.OK(t, err)

	writeFile(t, s, "/f", "content")

	k, err := s.ChangeKey(ctx, "new password")
	rtest.OK(t, err)
	rtest.Assert(t, k.Name() != "", "new key has no name")
	rtest.Equals(t, 1, len(listKeys(t, s)))
	rtest.OK(t, s.Close())

	_, err = secstore.Open(ctx, be, "old password", secstore.Options{})
	rtest.Assert(t, errors.Is(err, secstore.ErrNoKeyFound), "old password still opens the store")

	s, err = secstore.Open(ctx, be, "new password", secstore.Options{})
	rtest.OK(t, err)
	rtest.Equals(t, "content", readFile(t, s, "/f"))
	rtest.OK(t, s.Close())
}

func TestOpenKeyWrongPassword(t *testing.T) {
	secstore.TestUseLowSecurityKDFParameters(t)
	be := mem.New()
	ctx := context.Background()

	s, err := secstore.Init(ctx, be, "password", secstore.Options{})
	rtest.OK(t, err)

	keys := listKeys(t, s)
	rtest.Equals(t, 1, len(keys))
	rtest.OK(t, s.Close())

	_, err = secstore.OpenKey(ctx, be, keys[0].Name(), "wrong")
	rtest.Assert(t, err != nil, "OpenKey succeeded with a wrong password")

	k, err := secstore.OpenKey(ctx, be, keys[0].Name(), "password")
	rtest.OK(t, err)
	rtest.Assert(t, k.Valid(), "opened key is not valid")
}
