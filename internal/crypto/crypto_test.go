package crypto_test

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"io"
	"testing"

	"github.com/secstore/secstore/internal/crypto"
	rtest "github.com/secstore/secstore/internal/test"
)

func TestEncryptDecrypt(t *testing.T) {
	k := crypto.NewRandomKey()

	tests := []int{5, 23, 2<<18 + 23, 1 << 20}

	for _, size := range tests {
		data := rtest.Random(42, size)
		buf := make([]byte, 0, size+crypto.Extension)

		nonce := crypto.NewRandomNonce()
		ciphertext := k.Seal(buf[:0], nonce, data, nil)
		rtest.Assert(t, len(ciphertext) == len(data)+k.Overhead(),
			"ciphertext length does not match: want %d, got %d",
			len(data)+crypto.Extension, len(ciphertext))

		plaintext := make([]byte, 0, len(ciphertext))
		plaintext, err := k.Open(plaintext[:0], nonce, ciphertext, nil)
		rtest.OK(t, err)
		rtest.Assert(t, len(plaintext) == len(data),
			"plaintext length does not match: want %d, got %d",
			len(data), len(plaintext))

		rtest.Equals(t, plaintext, data)
	}
}

func TestSmallBuffer(t *testing.T) {
	k := crypto.NewRandomKey()

	size := 600
	data := make([]byte, size)
	_, err := io.ReadFull(rand.Reader, data)
	rtest.OK(t, err)

	ciphertext := make([]byte, 0, size/2)
	nonce := crypto.NewRandomNonce()
	ciphertext = k.Seal(ciphertext[:0], nonce, data, nil)
	// this must extend the slice
	rtest.Assert(t, cap(ciphertext) > size/2,
		"expected extended slice, but capacity is only %d bytes",
		cap(ciphertext))

	// check for the correct plaintext
	plaintext := make([]byte, len(ciphertext))
	plaintext, err = k.Open(plaintext[:0], nonce, ciphertext, nil)
	rtest.OK(t, err)
	rtest.Assert(t, bytes.Equal(plaintext, data),
		"wrong plaintext returned")
}

func TestSameBuffer(t *testing.T) {
	k := crypto.NewRandomKey()

	size := 600
	data := make([]byte, size)
	_, err := io.ReadFull(rand.Reader, data)
	rtest.OK(t, err)

	ciphertext := make([]byte, 0, size+crypto.Extension)

	nonce := crypto.NewRandomNonce()
	ciphertext = k.Seal(ciphertext, nonce, data, nil)

	// use the same buffer for decryption
	ciphertext, err = k.Open(ciphertext[:0], nonce, ciphertext, nil)
	rtest.OK(t, err)
	rtest.Assert(t, bytes.Equal(ciphertext, data),
		"wrong plaintext returned")
}

func TestModifiedCiphertext(t *testing.T) {
	k := crypto.NewRandomKey()

	data := rtest.Random(23, 8273)
	nonce := crypto.NewRandomNonce()
	ciphertext := k.Seal(nil, nonce, data, nil)

	// modify the ciphertext in various places and make sure Open fails
	for _, pos := range []int{0, 10, len(ciphertext) / 2, len(ciphertext) - 1} {
		buf := make([]byte, len(ciphertext))
		copy(buf, ciphertext)
		buf[pos] ^= 0x42

		_, err := k.Open(nil, nonce, buf, nil)
		rtest.Assert(t, err == crypto.ErrUnauthenticated,
			"modified ciphertext at %d: expected ErrUnauthenticated, got %v", pos, err)
	}
}

func TestModifiedNonce(t *testing.T) {
	k := crypto.NewRandomKey()

	data := rtest.Random(24, 1234)
	nonce := crypto.NewRandomNonce()
	ciphertext := k.Seal(nil, nonce, data, nil)

	nonce[3] ^= 0x01
	_, err := k.Open(nil, nonce, ciphertext, nil)
	rtest.Assert(t, err == crypto.ErrUnauthenticated,
		"expected ErrUnauthenticated for modified nonce, got %v", err)
}

func TestCiphertextTooShort(t *testing.T) {
	k := crypto.NewRandomKey()
	nonce := crypto.NewRandomNonce()

	_, err := k.Open(nil, nonce, []byte{0x23, 0x42}, nil)
	rtest.Err(t, err)
}

func TestKeyJSONRoundtrip(t *testing.T) {
	k := crypto.NewRandomKey()

	buf, err := json.Marshal(k)
	rtest.OK(t, err)

	k2 := &crypto.Key{}
	rtest.OK(t, json.Unmarshal(buf, k2))

	rtest.Equals(t, k, k2)
	rtest.Assert(t, k2.Valid(), "unmarshalled key is invalid")
}

func BenchmarkSeal(b *testing.B) {
	size := 8 << 20 // 8MiB

	k := crypto.NewRandomKey()
	buf := rtest.Random(23, size)
	nonce := crypto.NewRandomNonce()
	ciphertext := make([]byte, 0, size+crypto.Extension)

	b.ResetTimer()
	b.SetBytes(int64(size))

	for i := 0; i < b.N; i++ {
		_ = k.Seal(ciphertext[:0], nonce, buf, nil)
	}
}

func BenchmarkOpen(b *testing.B) {
	size := 8 << 20 // 8MiB

	k := crypto.NewRandomKey()
	buf := rtest.Random(23, size)
	nonce := crypto.NewRandomNonce()
	ciphertext := k.Seal(nil, nonce, buf, nil)
	plaintext := make([]byte, 0, size)

	b.ResetTimer()
	b.SetBytes(int64(size))

	for i := 0; i < b.N; i++ {
		_, err := k.Open(plaintext[:0], nonce, ciphertext, nil)
		if err != nil {
			b.Fatal(err)
		}
	}
}
