package box

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase-derived keys.
const (
	Argon2idTime    = 3
	Argon2idMemory  = 64 * 1024
	Argon2idThreads = 4
)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomKey generates a fresh 256-bit symmetric key.
func RandomKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// HMACSHA256 computes HMAC-SHA256 of data keyed with key.
func HMACSHA256(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// DeriveKey stretches a passphrase into a KeySize key with Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, Argon2idTime, Argon2idMemory, Argon2idThreads, KeySize)
}

// Equal compares two byte slices in constant time.
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Clone returns a copy of b, or nil for an empty slice.
func Clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
