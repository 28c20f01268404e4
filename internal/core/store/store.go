// Package store defines the durable configuration tier. The whole
// instance collection persists as a single serialized document;
// backends surface external writes through a subscription callback so
// the credential store can invalidate its in-memory snapshot.
package store

import (
	"context"

	"github.com/dnsguard/companion-service/internal/domain/models"
)

// Store persists the instance collection document.
type Store interface {
	// Load reads the collection. A missing document returns the empty
	// default collection, not an error.
	Load(ctx context.Context) (*models.InstanceCollection, error)

	// Save writes the collection, replacing the previous document.
	Save(ctx context.Context, collection *models.InstanceCollection) error

	// Watch registers a callback fired when another writer modifies the
	// persisted document. The callback must be treated purely as a
	// "snapshot stale" signal.
	Watch(fn func())

	// Ping verifies the backend connection.
	Ping(ctx context.Context) error

	// Close closes the backend connection.
	Close(ctx context.Context) error
}
