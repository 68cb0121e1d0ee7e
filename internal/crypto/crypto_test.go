package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the tests fast
var testParams = KDFParams{Time: 1, Memory: 1024, Threads: 1}

func TestEncryptDecrypt(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)
	enc, err := NewEncryptorFromKey(key)
	require.NoError(t, err)

	plaintext := []byte("repository config")
	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "repository")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	again, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ")
}

func TestDecryptTampered(t *testing.T) {
	key, _ := NewMasterKey()
	enc, err := NewEncryptorFromKey(key)
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("data"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = enc.Decrypt(sealed)
	assert.Error(t, err)

	_, err = enc.Decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestNewEncryptorFromKey_BadLength(t *testing.T) {
	_, err := NewEncryptorFromKey([]byte("too short"))
	assert.Error(t, err)
}

func TestKeyFile(t *testing.T) {
	master, err := NewMasterKey()
	require.NoError(t, err)

	kf, err := SealKeyFile(master, "hunter2", testParams)
	require.NoError(t, err)
	assert.Equal(t, "argon2id", kf.KDF)
	assert.Equal(t, uint32(1024), kf.Memory)
	assert.Len(t, kf.Salt, 32)

	got, err := OpenKeyFile(kf, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, master, got)

	_, err = OpenKeyFile(kf, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")
	a := DeriveKey("pw", salt, testParams)
	b := DeriveKey("pw", salt, testParams)
	assert.Equal(t, a, b)
	assert.Len(t, a, KeySize)
	assert.NotEqual(t, a, DeriveKey("pw2", salt, testParams))
}
