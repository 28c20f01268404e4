package encryption_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsguard/companion-service/internal/pkg/encryption"
)

func TestNewGCMEncryptor_EmptyPassphrase(t *testing.T) {
	// Act
	enc, err := encryption.NewGCMEncryptor("")

	// Assert
	assert.Error(t, err)
	assert.Nil(t, enc)
}

func TestGCMEncryptor_RoundTrip(t *testing.T) {
	// Arrange
	enc, err := encryption.NewGCMEncryptor("test-passphrase")
	require.NoError(t, err)

	plaintext := "admin-password-123"

	// Act
	ciphertext, err := enc.EncryptString(plaintext)
	require.NoError(t, err)
	decrypted, err := enc.DecryptString(ciphertext)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
	assert.NotEqual(t, plaintext, ciphertext)
}

func TestGCMEncryptor_UniqueNonce(t *testing.T) {
	// Arrange
	enc, err := encryption.NewGCMEncryptor("test-passphrase")
	require.NoError(t, err)

	// Act
	first, err := enc.EncryptString("same input")
	require.NoError(t, err)
	second, err := enc.EncryptString("same input")
	require.NoError(t, err)

	// Assert
	assert.NotEqual(t, first, second)
}

func TestGCMEncryptor_WrongPassphrase(t *testing.T) {
	// Arrange
	enc, err := encryption.NewGCMEncryptor("right-passphrase")
	require.NoError(t, err)
	other, err := encryption.NewGCMEncryptor("wrong-passphrase")
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("secret")
	require.NoError(t, err)

	// Act
	decrypted, err := other.DecryptString(ciphertext)

	// Assert
	assert.Error(t, err)
	assert.Empty(t, decrypted)
}

func TestGCMEncryptor_CorruptedCiphertext(t *testing.T) {
	// Arrange
	enc, err := encryption.NewGCMEncryptor("test-passphrase")
	require.NoError(t, err)

	// Act
	_, err = enc.DecryptString("not base64!!!")

	// Assert
	assert.Error(t, err)
}

func TestGeneratePassphrase(t *testing.T) {
	// Act
	first, err := encryption.GeneratePassphrase()
	require.NoError(t, err)
	second, err := encryption.GeneratePassphrase()
	require.NoError(t, err)

	// Assert
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestNoOpEncryptor_RoundTrip(t *testing.T) {
	// Arrange
	enc := encryption.NewNoOpEncryptor()

	// Act
	encoded, err := enc.EncryptString("plain")
	require.NoError(t, err)
	decoded, err := enc.DecryptString(encoded)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "plain", decoded)
}
