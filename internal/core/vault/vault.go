// Package vault defines the secret source used at startup to obtain
// the key-wrap passphrase and backend credentials.
package vault

import (
	"context"
)

// Vault resolves named secrets.
type Vault interface {
	// GetSecret retrieves a secret by URI. Returns an error when the
	// secret is unknown.
	GetSecret(ctx context.Context, uri string) (string, error)

	// Ping checks if the vault is available.
	Ping(ctx context.Context) error

	// Close closes the vault connection.
	Close() error
}
