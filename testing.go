package secstore

import (
	"context"
	"testing"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/backend/mem"
	"github.com/secstore/secstore/internal/crypto"
)

// testKDFParams are the parameters for the KDF to be used during testing.
var testKDFParams = crypto.Params{
	N: 128,
	R: 1,
	P: 1,
}

type logger interface {
	Logf(format string, args ...interface{})
}

// TestUseLowSecurityKDFParameters configures low-security KDF parameters for
// testing.
func TestUseLowSecurityKDFParameters(t logger) {
	t.Logf("using low-security KDF parameters for test")
	KDFParams = &testKDFParams
}

// TestPassword is the password used by TestStore.
const TestPassword = "geheim"

// TestBackend returns a fully configured in-memory backend.
func TestBackend(t testing.TB) backend.Backend {
	return mem.New()
}

// TestStoreWithBackend returns a store initialized on be with TestPassword
// and low-security KDF parameters. If be is nil, an in-memory backend is
// used.
func TestStoreWithBackend(t testing.TB, be backend.Backend, opts Options) *Store {
	t.Helper()
	TestUseLowSecurityKDFParameters(t)

	if be == nil {
		be = TestBackend(t)
	}

	s, err := Init(context.TODO(), be, TestPassword, opts)
	if err != nil {
		t.Fatalf("TestStore(): init failed: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// TestStore returns an in-memory store initialized with TestPassword.
func TestStore(t testing.TB) *Store {
	return TestStoreWithBackend(t, nil, Options{})
}
