// Package registry maintains one appliance client and session manager
// per configured instance, created lazily and kept for the life of the
// profile.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dnsguard/companion-service/internal/core/cache"
	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/services/appliance"
	"github.com/dnsguard/companion-service/internal/services/credentials"
	"github.com/dnsguard/companion-service/internal/services/session"
)

// Entry bundles the per-instance client and its session manager.
type Entry struct {
	Client  *appliance.Client
	Session *session.Manager
}

// Registry is the per-instance client table.
type Registry struct {
	credentials credentials.Service
	cache       cache.Cache
	httpClient  *http.Client
	timeout     time.Duration
	policy      *appliance.RetryPolicy
	keepAlive   time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// Config holds the configuration for the client registry.
type Config struct {
	Credentials credentials.Service
	Cache       cache.Cache

	// HTTPClient is shared across all instance clients. Optional.
	HTTPClient *http.Client

	RequestTimeout    time.Duration
	Policy            *appliance.RetryPolicy
	KeepAliveInterval time.Duration
	Logger            zerolog.Logger
}

// New creates the registry.
func New(cfg *Config) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Registry{
		credentials: cfg.Credentials,
		cache:       cfg.Cache,
		httpClient:  httpClient,
		timeout:     cfg.RequestTimeout,
		policy:      cfg.Policy,
		keepAlive:   cfg.KeepAliveInterval,
		logger:      cfg.Logger.With().Str("component", "registry").Logger(),
		entries:     make(map[string]*Entry),
	}, nil
}

// GetOrCreate returns the entry for an instance, building it on first
// use. The instance must exist in the credential store.
func (r *Registry) GetOrCreate(ctx context.Context, instanceID string) (*Entry, error) {
	r.mu.Lock()
	if entry, ok := r.entries[instanceID]; ok {
		r.mu.Unlock()
		return entry, nil
	}
	r.mu.Unlock()

	instance, err := r.credentials.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have raced us here.
	if entry, ok := r.entries[instanceID]; ok {
		return entry, nil
	}

	client := appliance.NewClient(&appliance.ClientConfig{
		BaseURL:    instance.BaseURL,
		Timeout:    r.timeout,
		Policy:     r.policy,
		HTTPClient: r.httpClient,
		Logger:     r.logger.With().Str("instance", instanceID).Logger(),
	})

	manager, err := session.NewManager(&session.Config{
		InstanceID:        instanceID,
		Client:            client,
		Credentials:       r.credentials,
		Cache:             r.cache,
		KeepAliveInterval: r.keepAlive,
		Logger:            r.logger,
	})
	if err != nil {
		return nil, apperrors.NewInternal("failed to build session manager", err)
	}
	client.SetReauthFunc(manager.Reauthenticate)

	entry := &Entry{Client: client, Session: manager}
	r.entries[instanceID] = entry
	r.logger.Debug().Str("instance", instanceID).Msg("client created")
	return entry, nil
}

// Peek returns the entry for an instance without creating one.
func (r *Registry) Peek(instanceID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[instanceID]
	return entry, ok
}

// Configure repoints an existing entry at a new base URL. A URL change
// invalidates the session; the old one belongs to the old host. No-op
// for instances without an entry yet.
func (r *Registry) Configure(ctx context.Context, instanceID, baseURL string) {
	r.mu.Lock()
	entry, ok := r.entries[instanceID]
	r.mu.Unlock()
	if !ok {
		return
	}

	if entry.Client.BaseURL() == baseURL {
		return
	}
	entry.Session.Shutdown(ctx)
	entry.Client.SetBaseURL(baseURL)
	r.logger.Info().Str("instance", instanceID).Str("url", baseURL).Msg("client repointed")
}

// Remove tears down an instance's entry: keep-alive stopped, session
// purged. Called on instance deletion.
func (r *Registry) Remove(ctx context.Context, instanceID string) {
	r.mu.Lock()
	entry, ok := r.entries[instanceID]
	delete(r.entries, instanceID)
	r.mu.Unlock()

	if ok {
		entry.Session.Shutdown(ctx)
		r.logger.Debug().Str("instance", instanceID).Msg("client removed")
	}
}

// ClearAll shuts down every entry. Used on service shutdown.
func (r *Registry) ClearAll(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for id, entry := range entries {
		entry.Session.Shutdown(ctx)
		r.logger.Debug().Str("instance", id).Msg("client removed")
	}
}

// RestoreSessions attempts to adopt cached sessions for all known
// instances after a restart.
func (r *Registry) RestoreSessions(ctx context.Context) {
	collection, err := r.credentials.ListInstances(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("session restore skipped, instance list unavailable")
		return
	}

	restored := 0
	for _, instance := range collection.Instances {
		entry, err := r.GetOrCreate(ctx, instance.ID)
		if err != nil {
			r.logger.Warn().Err(err).Str("instance", instance.ID).Msg("failed to build client during restore")
			continue
		}
		if entry.Session.Restore(ctx) {
			restored++
		}
	}
	if restored > 0 {
		r.logger.Info().Int("count", restored).Msg("sessions restored")
	}
}
