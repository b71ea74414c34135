// Package box implements the authenticated-encryption envelope used to wrap
// master keys, credential keys and cached secrets.
//
// A Box carries its own nonce and cipher identifier, so a holder of the key
// can open it without any out-of-band parameters.
package box

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptionType identifies the AEAD construction sealing a Box.
type EncryptionType uint8

const (
	// XChaCha20Poly1305 is the default construction (24-byte random nonce).
	XChaCha20Poly1305 EncryptionType = iota
	// AES256GCM is AES-256 in GCM mode with a 12-byte random nonce.
	AES256GCM
)

// KeySize is the size of every symmetric key accepted by this package.
const KeySize = 32

var (
	// ErrDecrypt is returned when a box fails authentication or is malformed.
	ErrDecrypt = errors.New("box: decryption failed")
	// ErrKeySize is returned when a key is not KeySize bytes long.
	ErrKeySize = errors.New("box: key must be 32 bytes")
	// ErrUnknownType is returned for an unsupported EncryptionType.
	ErrUnknownType = errors.New("box: unknown encryption type")
)

// Box is an opaque authenticated-encryption envelope.
type Box struct {
	EncryptionType EncryptionType `json:"encryptionType"`
	Nonce          []byte         `json:"nonce"`
	Data           []byte         `json:"data"`
}

var aeadRegistry = map[EncryptionType]func(key []byte) (cipher.AEAD, error){
	XChaCha20Poly1305: func(key []byte) (cipher.AEAD, error) {
		return chacha20poly1305.NewX(key)
	},
	AES256GCM: func(key []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	},
}

func newAEAD(t EncryptionType, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	builder, ok := aeadRegistry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	aead, err := builder(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under key using XChaCha20-Poly1305.
func Encrypt(plaintext, key []byte) (*Box, error) {
	return EncryptWith(XChaCha20Poly1305, plaintext, key)
}

// EncryptWith seals plaintext under key using the given construction.
func EncryptWith(t EncryptionType, plaintext, key []byte) (*Box, error) {
	aead, err := newAEAD(t, key)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &Box{
		EncryptionType: t,
		Nonce:          nonce,
		Data:           aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens b with key.
func Decrypt(b *Box, key []byte) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil box", ErrDecrypt)
	}
	aead, err := newAEAD(b.EncryptionType, key)
	if err != nil {
		return nil, err
	}

	if len(b.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: invalid nonce size: expected %d, got %d", ErrDecrypt, aead.NonceSize(), len(b.Nonce))
	}

	plaintext, err := aead.Open(nil, b.Nonce, b.Data, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
