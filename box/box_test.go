package box

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := RandomKey()
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt(t *testing.T) {
	for _, encType := range []EncryptionType{XChaCha20Poly1305, AES256GCM} {
		key := testKey(t)
		plaintext := []byte("master key material")

		b, err := EncryptWith(encType, plaintext, key)
		require.NoError(t, err)
		assert.Equal(t, encType, b.EncryptionType)
		assert.NotEqual(t, plaintext, b.Data)

		opened, err := Decrypt(b, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	b, err := Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	_, err = Decrypt(b, testKey(t))
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestDecrypt_Tampered(t *testing.T) {
	key := testKey(t)
	b, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	b.Data[0] ^= 0xff
	_, err = Decrypt(b, key)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecrypt_BadNonce(t *testing.T) {
	key := testKey(t)
	b, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	b.Nonce = b.Nonce[:4]
	_, err = Decrypt(b, key)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt(nil, key)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncrypt_InvalidKey(t *testing.T) {
	_, err := Encrypt([]byte("secret"), make([]byte, 16))
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = EncryptWith(EncryptionType(9), []byte("secret"), testKey(t))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestBox_JSON(t *testing.T) {
	key := testKey(t)
	b, err := Encrypt([]byte("1234"), key)
	require.NoError(t, err)

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded Box
	require.NoError(t, json.Unmarshal(data, &decoded))

	opened, err := Decrypt(&decoded, key)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(opened))
}

func TestHMACSHA256(t *testing.T) {
	key := testKey(t)
	a := HMACSHA256([]byte("alice"), key)
	b := HMACSHA256([]byte("alice"), key)
	c := HMACSHA256([]byte("bob"), key)

	assert.Len(t, a, 32)
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey([]byte("passphrase"), salt)
	k2 := DeriveKey([]byte("passphrase"), salt)
	k3 := DeriveKey([]byte("passphrase"), []byte("fedcba9876543210"))

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestZeroAndClone(t *testing.T) {
	b := []byte{1, 2, 3}
	c := Clone(b)
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	assert.Equal(t, []byte{1, 2, 3}, c)
	assert.Nil(t, Clone(nil))
}
