package crypto

import (
	"testing"
	"time"
)

func TestCalibrate(t *testing.T) {
	params, err := Calibrate(100*time.Millisecond, 50)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("testing calibrate, params after: %v", params)
}

func TestKDF(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatal(err)
	}

	params := Params{N: 1024, R: 8, P: 1}

	k1, err := KDF(params, salt, "geheim")
	if err != nil {
		t.Fatal(err)
	}

	// same password and salt derive the same key
	k2, err := KDF(params, salt, "geheim")
	if err != nil {
		t.Fatal(err)
	}

	if *k1 != *k2 {
		t.Fatal("derived keys for the same password do not match")
	}

	// a different password derives a different key
	k3, err := KDF(params, salt, "anders")
	if err != nil {
		t.Fatal(err)
	}

	if *k1 == *k3 {
		t.Fatal("derived keys for different passwords match")
	}
}

func TestKDFInvalidSalt(t *testing.T) {
	_, err := KDF(Params{N: 1024, R: 8, P: 1}, []byte{0x23}, "geheim")
	if err == nil {
		t.Fatal("expected error for invalid salt, got nil")
	}
}
