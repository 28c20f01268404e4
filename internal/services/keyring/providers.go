// Package keyring implements master-key custody across the three
// storage tiers: process memory, the ephemeral cache and the
// encrypted copy inside the persisted instance document.
package keyring

import (
	"context"
	"sync"

	"github.com/dnsguard/companion-service/internal/core/cache"
	"github.com/dnsguard/companion-service/internal/pkg/encryption"
)

// Provider is one custody tier. Get returns the empty string, not an
// error, when the tier simply has no key for the instance.
type Provider interface {
	// Get retrieves the master key for an instance, "" if absent.
	Get(ctx context.Context, instanceID string) (string, error)

	// Put stores the master key. Read-only tiers return nil.
	Put(ctx context.Context, instanceID, key string) error

	// Clear removes the master key. Read-only tiers return nil.
	Clear(ctx context.Context, instanceID string) error
}

// memoryProvider holds keys in process memory; lost on restart.
type memoryProvider struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemoryProvider creates the in-process tier.
func NewMemoryProvider() Provider {
	return &memoryProvider{keys: make(map[string]string)}
}

func (p *memoryProvider) Get(_ context.Context, instanceID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keys[instanceID], nil
}

func (p *memoryProvider) Put(_ context.Context, instanceID, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[instanceID] = key
	return nil
}

func (p *memoryProvider) Clear(_ context.Context, instanceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, instanceID)
	return nil
}

// cacheProvider keeps keys in the ephemeral tier; survives a restart
// but expires with the cache TTL.
type cacheProvider struct {
	cache cache.Cache
}

// NewCacheProvider creates the ephemeral-cache tier.
func NewCacheProvider(c cache.Cache) Provider {
	return &cacheProvider{cache: c}
}

func (p *cacheProvider) Get(ctx context.Context, instanceID string) (string, error) {
	val, err := p.cache.Get(ctx, cache.MasterKeyKey(instanceID))
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (p *cacheProvider) Put(ctx context.Context, instanceID, key string) error {
	return p.cache.Set(ctx, cache.MasterKeyKey(instanceID), []byte(key), 0)
}

func (p *cacheProvider) Clear(ctx context.Context, instanceID string) error {
	_, err := p.cache.Delete(ctx, cache.MasterKeyKey(instanceID))
	return err
}

// LookupFunc resolves the persisted encrypted master key for an
// instance. remember=false means the persistent tier must not be used
// even if ciphertext is somehow present.
type LookupFunc func(ctx context.Context, instanceID string) (encryptedKey string, remember bool, err error)

// persistentProvider decrypts the copy stored in the instance document
// under the fixed key-wrap passphrase. Writes ride with the document
// itself, so Put and Clear are no-ops here.
type persistentProvider struct {
	wrap   encryption.Encryptor
	lookup LookupFunc
}

// NewPersistentProvider creates the persisted-ciphertext tier.
func NewPersistentProvider(wrap encryption.Encryptor, lookup LookupFunc) Provider {
	return &persistentProvider{wrap: wrap, lookup: lookup}
}

func (p *persistentProvider) Get(ctx context.Context, instanceID string) (string, error) {
	encryptedKey, remember, err := p.lookup(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if !remember || encryptedKey == "" {
		return "", nil
	}

	key, err := p.wrap.DecryptString(encryptedKey)
	if err != nil {
		// Wrong wrap passphrase or corrupted ciphertext. Treated as
		// "unavailable, re-enter password", never propagated.
		return "", nil
	}
	return key, nil
}

func (p *persistentProvider) Put(_ context.Context, _, _ string) error {
	return nil
}

func (p *persistentProvider) Clear(_ context.Context, _ string) error {
	return nil
}
