// Package encryption provides the AES-256-GCM primitive used to
// protect appliance passwords and persisted master keys.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// Encryptor encrypts and decrypts short strings. Callers treat it as
// an opaque service; decryption failures signal "wrong key", not a
// programming error.
type Encryptor interface {
	// EncryptString encrypts a string and returns base64-encoded ciphertext.
	EncryptString(plaintext string) (string, error)

	// DecryptString decrypts base64-encoded ciphertext and returns a string.
	DecryptString(ciphertext string) (string, error)
}

// GCMEncryptor implements Encryptor using AES-256-GCM under a
// passphrase-derived key.
type GCMEncryptor struct {
	gcm cipher.AEAD
}

// NewGCMEncryptor creates an encryptor keyed by the given passphrase.
// The key is the SHA-256 digest of the passphrase, so any non-empty
// passphrase is acceptable.
func NewGCMEncryptor(passphrase string) (*GCMEncryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}

	key := sha256.Sum256([]byte(passphrase))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &GCMEncryptor{gcm: gcm}, nil
}

// EncryptString encrypts the plaintext and returns base64-encoded
// ciphertext with the nonce prepended.
func (e *GCMEncryptor) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString decrypts base64-encoded ciphertext.
func (e *GCMEncryptor) DecryptString(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// GeneratePassphrase generates a fresh high-entropy passphrase for use
// as a per-instance master key. Returns 32 random bytes base64-encoded.
func GeneratePassphrase() (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// NoOpEncryptor passes strings through base64 without encrypting.
// Only for development and tests.
type NoOpEncryptor struct{}

// NewNoOpEncryptor creates a new no-operation encryptor.
func NewNoOpEncryptor() *NoOpEncryptor {
	return &NoOpEncryptor{}
}

// EncryptString returns the plaintext as base64.
func (e *NoOpEncryptor) EncryptString(plaintext string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

// DecryptString decodes base64 and returns the plaintext.
func (e *NoOpEncryptor) DecryptString(ciphertext string) (string, error) {
	plaintext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
