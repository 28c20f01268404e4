package keyring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsguard/companion-service/internal/pkg/encryption"
	"github.com/dnsguard/companion-service/internal/services/keyring"
)

// fakeProvider is a scriptable custody tier recording every call.
type fakeProvider struct {
	key     string
	getErr  error
	putErr  error
	puts    map[string]string
	cleared []string
}

func newFakeProvider(key string) *fakeProvider {
	return &fakeProvider{key: key, puts: make(map[string]string)}
}

func (p *fakeProvider) Get(_ context.Context, _ string) (string, error) {
	return p.key, p.getErr
}

func (p *fakeProvider) Put(_ context.Context, instanceID, key string) error {
	if p.putErr != nil {
		return p.putErr
	}
	p.puts[instanceID] = key
	p.key = key
	return nil
}

func (p *fakeProvider) Clear(_ context.Context, instanceID string) error {
	p.cleared = append(p.cleared, instanceID)
	p.key = ""
	return nil
}

func newKeyring(t *testing.T, providers ...keyring.Provider) *keyring.Keyring {
	t.Helper()
	wrap, err := encryption.NewGCMEncryptor("wrap-passphrase")
	require.NoError(t, err)

	kr, err := keyring.New(&keyring.Config{
		Providers: providers,
		Wrap:      wrap,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return kr
}

func TestNew_NilConfig(t *testing.T) {
	// Act
	kr, err := keyring.New(nil)

	// Assert
	assert.Error(t, err)
	assert.Nil(t, kr)
}

func TestNew_NoProviders(t *testing.T) {
	// Arrange
	wrap := encryption.NewNoOpEncryptor()

	// Act
	kr, err := keyring.New(&keyring.Config{Wrap: wrap})

	// Assert
	assert.Error(t, err)
	assert.Nil(t, kr)
	assert.Contains(t, err.Error(), "provider")
}

func TestRecover_FirstTierHit(t *testing.T) {
	// Arrange
	first := newFakeProvider("key-from-memory")
	second := newFakeProvider("key-from-cache")
	kr := newKeyring(t, first, second)

	// Act
	key := kr.Recover(context.Background(), "inst-1")

	// Assert
	assert.Equal(t, "key-from-memory", key)
	assert.Empty(t, second.puts)
}

func TestRecover_LowerTierRePrimesUpper(t *testing.T) {
	// Arrange
	first := newFakeProvider("")
	second := newFakeProvider("")
	third := newFakeProvider("key-from-disk")
	kr := newKeyring(t, first, second, third)

	// Act
	key := kr.Recover(context.Background(), "inst-1")

	// Assert
	assert.Equal(t, "key-from-disk", key)
	assert.Equal(t, "key-from-disk", first.puts["inst-1"])
	assert.Equal(t, "key-from-disk", second.puts["inst-1"])
}

func TestRecover_TierErrorFallsThrough(t *testing.T) {
	// Arrange
	first := newFakeProvider("")
	first.getErr = errors.New("cache unreachable")
	second := newFakeProvider("surviving-key")
	kr := newKeyring(t, first, second)

	// Act
	key := kr.Recover(context.Background(), "inst-1")

	// Assert
	assert.Equal(t, "surviving-key", key)
}

func TestRecover_AllTiersEmpty(t *testing.T) {
	// Arrange
	kr := newKeyring(t, newFakeProvider(""), newFakeProvider(""))

	// Act
	key := kr.Recover(context.Background(), "inst-1")

	// Assert
	assert.Empty(t, key)
}

func TestPut_PrimesAllTiers(t *testing.T) {
	// Arrange
	first := newFakeProvider("")
	second := newFakeProvider("")
	kr := newKeyring(t, first, second)

	// Act
	kr.Put(context.Background(), "inst-1", "fresh-key")

	// Assert
	assert.Equal(t, "fresh-key", first.puts["inst-1"])
	assert.Equal(t, "fresh-key", second.puts["inst-1"])
}

func TestPut_TierFailureDoesNotStopOthers(t *testing.T) {
	// Arrange
	first := newFakeProvider("")
	first.putErr = errors.New("tier down")
	second := newFakeProvider("")
	kr := newKeyring(t, first, second)

	// Act
	kr.Put(context.Background(), "inst-1", "fresh-key")

	// Assert
	assert.Equal(t, "fresh-key", second.puts["inst-1"])
}

func TestClear_PurgesAllTiers(t *testing.T) {
	// Arrange
	first := newFakeProvider("key")
	second := newFakeProvider("key")
	kr := newKeyring(t, first, second)

	// Act
	kr.Clear(context.Background(), "inst-1")

	// Assert
	assert.Contains(t, first.cleared, "inst-1")
	assert.Contains(t, second.cleared, "inst-1")
	assert.Empty(t, kr.Recover(context.Background(), "inst-1"))
}

func TestWrapKey_RoundTripsThroughPersistentProvider(t *testing.T) {
	// Arrange
	wrap, err := encryption.NewGCMEncryptor("wrap-passphrase")
	require.NoError(t, err)

	kr, err := keyring.New(&keyring.Config{
		Providers: []keyring.Provider{newFakeProvider("")},
		Wrap:      wrap,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	wrapped, err := kr.WrapKey("master-key")
	require.NoError(t, err)

	lookup := func(context.Context, string) (string, bool, error) {
		return wrapped, true, nil
	}
	persistent := keyring.NewPersistentProvider(wrap, lookup)

	// Act
	key, err := persistent.Get(context.Background(), "inst-1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "master-key", key)
}

func TestPersistentProvider_RememberFalseIgnoresCiphertext(t *testing.T) {
	// Arrange
	wrap, err := encryption.NewGCMEncryptor("wrap-passphrase")
	require.NoError(t, err)
	wrapped, err := wrap.EncryptString("master-key")
	require.NoError(t, err)

	lookup := func(context.Context, string) (string, bool, error) {
		return wrapped, false, nil
	}
	persistent := keyring.NewPersistentProvider(wrap, lookup)

	// Act
	key, err := persistent.Get(context.Background(), "inst-1")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestPersistentProvider_DecryptFailureIsUnavailable(t *testing.T) {
	// Arrange
	wrap, err := encryption.NewGCMEncryptor("wrap-passphrase")
	require.NoError(t, err)
	other, err := encryption.NewGCMEncryptor("different-passphrase")
	require.NoError(t, err)
	wrapped, err := other.EncryptString("master-key")
	require.NoError(t, err)

	lookup := func(context.Context, string) (string, bool, error) {
		return wrapped, true, nil
	}
	persistent := keyring.NewPersistentProvider(wrap, lookup)

	// Act
	key, err := persistent.Get(context.Background(), "inst-1")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, key)
}
