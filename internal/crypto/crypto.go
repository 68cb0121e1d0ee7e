// Package crypto seals repository objects with AES-256-GCM under keys
// derived with Argon2id.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/r2d2/r2d2/pkg/models"
)

const (
	// KeySize is the AES-256 key length
	KeySize = 32

	saltSize  = 32
	nonceSize = 12

	kdfName = "argon2id"
)

// ErrWrongPassword is returned when a key file cannot be opened
var ErrWrongPassword = errors.New("wrong password or corrupted key file")

// KDFParams are the Argon2id cost parameters
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follows the OWASP recommendation
var DefaultKDFParams = KDFParams{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
}

// Encryptor handles encryption and decryption using AES-256-GCM
type Encryptor struct {
	cipher cipher.AEAD
}

// NewEncryptorFromKey creates an Encryptor for a raw 32-byte key
func NewEncryptorFromKey(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{cipher: gcm}, nil
}

// NewEncryptor derives a key from passphrase and salt
func NewEncryptor(passphrase string, salt []byte, params KDFParams) (*Encryptor, error) {
	return NewEncryptorFromKey(DeriveKey(passphrase, salt, params))
}

// Encrypt returns the nonce followed by the sealed plaintext
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+e.cipher.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.cipher.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens the output of Encrypt
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+e.cipher.Overhead() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := ciphertext[:nonceSize]
	plaintext, err := e.cipher.Open(nil, nonce, ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// DeriveKey runs Argon2id
func DeriveKey(passphrase string, salt []byte, params KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, params.Time, params.Memory, params.Threads, KeySize)
}

// NewMasterKey returns a random key
func NewMasterKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// SealKeyFile encrypts masterKey under a key derived from passphrase
func SealKeyFile(masterKey []byte, passphrase string, params KDFParams) (*models.KeyFile, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	enc, err := NewEncryptor(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	data, err := enc.Encrypt(masterKey)
	if err != nil {
		return nil, err
	}

	kf := &models.KeyFile{
		Created: time.Now().UTC(),
		KDF:     kdfName,
		Time:    params.Time,
		Memory:  params.Memory,
		Threads: params.Threads,
		Salt:    salt,
		Data:    data,
	}
	if host, err := os.Hostname(); err == nil {
		kf.Hostname = host
	}
	if u, err := user.Current(); err == nil {
		kf.Username = u.Username
	}
	return kf, nil
}

// OpenKeyFile recovers the master key
func OpenKeyFile(kf *models.KeyFile, passphrase string) ([]byte, error) {
	if kf.KDF != kdfName {
		return nil, fmt.Errorf("unsupported key derivation %q", kf.KDF)
	}

	params := KDFParams{Time: kf.Time, Memory: kf.Memory, Threads: kf.Threads}
	enc, err := NewEncryptor(passphrase, kf.Salt, params)
	if err != nil {
		return nil, err
	}

	key, err := enc.Decrypt(kf.Data)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return key, nil
}
