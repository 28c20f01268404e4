// Package dotenv provides the environment-variable vault backend.
package dotenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Vault implements vault.Vault on environment variables, with an
// in-memory overlay for secrets injected at runtime (tests, mostly).
type Vault struct {
	secrets map[string]string
	mu      sync.RWMutex
}

// NewVault creates a new dotenv vault.
func NewVault() (*Vault, error) {
	return &Vault{
		secrets: make(map[string]string),
	}, nil
}

// GetSecret resolves "dotenv://KEY" from the environment first, then
// the in-memory overlay.
func (v *Vault) GetSecret(ctx context.Context, uri string) (string, error) {
	key := strings.TrimPrefix(uri, "dotenv://")

	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if value, ok := v.secrets[key]; ok {
		return value, nil
	}

	return "", fmt.Errorf("secret not found: %s", key)
}

// SetSecret places a secret in the in-memory overlay.
func (v *Vault) SetSecret(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[key] = value
}

// Ping always succeeds for the environment backend.
func (v *Vault) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the environment backend.
func (v *Vault) Close() error {
	return nil
}
