package keyring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dnsguard/companion-service/internal/pkg/encryption"
)

// Keyring walks the ranked custody tiers. Recovery order is fixed:
// memory, ephemeral cache, persisted ciphertext; a hit from a lower
// tier re-primes the tiers above it.
type Keyring struct {
	providers []Provider
	wrap      encryption.Encryptor
	logger    zerolog.Logger
}

// Config holds the configuration for the keyring.
type Config struct {
	// Providers in recovery order, most volatile first.
	Providers []Provider

	// Wrap encrypts master keys for the persistent tier.
	Wrap encryption.Encryptor

	Logger zerolog.Logger
}

// New creates a keyring over the given providers.
func New(cfg *Config) (*Keyring, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if cfg.Wrap == nil {
		return nil, fmt.Errorf("wrap encryptor is required")
	}

	return &Keyring{
		providers: cfg.Providers,
		wrap:      cfg.Wrap,
		logger:    cfg.Logger.With().Str("component", "keyring").Logger(),
	}, nil
}

// Recover finds the master key for an instance, trying each tier in
// order. Returns "" when no tier can produce it; the caller must then
// ask the user to re-enter the password.
func (k *Keyring) Recover(ctx context.Context, instanceID string) string {
	for i, provider := range k.providers {
		key, err := provider.Get(ctx, instanceID)
		if err != nil {
			k.logger.Warn().Err(err).Int("tier", i).Str("instance", instanceID).
				Msg("key tier lookup failed")
			continue
		}
		if key == "" {
			continue
		}

		// Write-through: re-prime the more volatile tiers above this one.
		for j := 0; j < i; j++ {
			if err := k.providers[j].Put(ctx, instanceID, key); err != nil {
				k.logger.Warn().Err(err).Int("tier", j).Str("instance", instanceID).
					Msg("failed to re-prime key tier")
			}
		}
		return key
	}
	return ""
}

// Put primes every writable tier with a fresh master key. Used right
// after interactive authentication succeeds and on instance creation.
func (k *Keyring) Put(ctx context.Context, instanceID, key string) {
	for i, provider := range k.providers {
		if err := provider.Put(ctx, instanceID, key); err != nil {
			k.logger.Warn().Err(err).Int("tier", i).Str("instance", instanceID).
				Msg("failed to prime key tier")
		}
	}
}

// Clear purges the key from every tier, best effort. Failures are
// logged and non-fatal.
func (k *Keyring) Clear(ctx context.Context, instanceID string) {
	for i, provider := range k.providers {
		if err := provider.Clear(ctx, instanceID); err != nil {
			k.logger.Warn().Err(err).Int("tier", i).Str("instance", instanceID).
				Msg("failed to clear key tier")
		}
	}
}

// WrapKey encrypts a master key under the fixed key-wrap passphrase
// for storage inside the instance document.
func (k *Keyring) WrapKey(key string) (string, error) {
	return k.wrap.EncryptString(key)
}
