// Package credentials implements the multi-instance credential store:
// durable connection profiles plus the master-key custody policy.
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dnsguard/companion-service/internal/core/cache"
	"github.com/dnsguard/companion-service/internal/core/store"
	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/domain/models"
	"github.com/dnsguard/companion-service/internal/pkg/encryption"
	"github.com/dnsguard/companion-service/internal/services/keyring"
)

// UpdateParams is a partial instance update. Nil fields are untouched.
type UpdateParams struct {
	Name             *string
	BaseURL          *string
	Password         *string
	RememberPassword *bool
}

// Service is the credential store's public surface. All returned
// instances are defensive copies; mutating them never affects the
// persisted collection.
type Service interface {
	// AddInstance creates a profile, generates its master key, encrypts
	// the password and persists the collection. The first instance
	// added becomes the active one.
	AddInstance(ctx context.Context, name, baseURL, password string, rememberPassword bool) (*models.Instance, error)

	// UpdateInstance applies a partial update. Enabling
	// rememberPassword without a recoverable master key leaves the flag
	// unchanged; disabling it always clears the persisted key.
	UpdateInstance(ctx context.Context, id string, params UpdateParams) (*models.Instance, error)

	// DeleteInstance removes the profile, purges its volatile key
	// material and reassigns the active selection.
	DeleteInstance(ctx context.Context, id string) error

	// SetActiveInstance selects an instance, or nil for the aggregate view.
	SetActiveInstance(ctx context.Context, id *string) error

	// ListInstances returns a copy of the whole collection.
	ListInstances(ctx context.Context) (*models.InstanceCollection, error)

	// GetInstance returns a copy of one instance.
	GetInstance(ctx context.Context, id string) (*models.Instance, error)

	// UpdateSettings replaces the global settings.
	UpdateSettings(ctx context.Context, settings models.GlobalSettings) error

	// GetDecryptedPassword runs master-key recovery and decrypts the
	// stored password. Returns "" on any unavailability; never errors.
	GetDecryptedPassword(ctx context.Context, id string) string

	// SetMasterKey primes the volatile tiers after a fresh interactive
	// authentication succeeded with a user-entered password.
	SetMasterKey(ctx context.Context, id, key string)
}

// service implements Service with an in-memory snapshot of the
// persisted collection, invalidated by the store's Watch signal.
type service struct {
	store   store.Store
	keyring *keyring.Keyring
	logger  zerolog.Logger

	mu       sync.Mutex // held across load-mutate-save
	snapshot *models.InstanceCollection
	stale    bool
}

// Config holds the configuration for the credential store.
type Config struct {
	Store store.Store

	// Cache is the ephemeral tier used for session-scoped master keys.
	Cache cache.Cache

	// Wrap encrypts master keys for persistence. Its passphrase is the
	// fixed service-entropy constant: obfuscation, not secrecy.
	Wrap encryption.Encryptor

	Logger zerolog.Logger
}

// NewService creates the credential store and registers for
// external-write invalidation.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Wrap == nil {
		return nil, fmt.Errorf("wrap encryptor is required")
	}

	s := &service{
		store:  cfg.Store,
		logger: cfg.Logger.With().Str("component", "credentials").Logger(),
	}

	kr, err := keyring.New(&keyring.Config{
		Providers: []keyring.Provider{
			keyring.NewMemoryProvider(),
			keyring.NewCacheProvider(cfg.Cache),
			keyring.NewPersistentProvider(cfg.Wrap, s.lookupEncryptedKey),
		},
		Wrap:   cfg.Wrap,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build keyring: %w", err)
	}
	s.keyring = kr

	cfg.Store.Watch(s.invalidate)

	return s, nil
}

// invalidate marks the snapshot stale; the next read reloads it.
func (s *service) invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// load returns the current collection, reloading from the durable tier
// when the snapshot is missing or stale. Caller must hold the lock.
// Read failures degrade to the empty default collection.
func (s *service) load(ctx context.Context) *models.InstanceCollection {
	if s.snapshot != nil && !s.stale {
		return s.snapshot
	}

	collection, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load instance collection, using empty default")
		collection = models.NewInstanceCollection()
	}
	s.snapshot = collection
	s.stale = false
	return collection
}

// save persists the collection and installs it as the snapshot.
// Mutators work on a copy, so a failed durable write leaves the
// snapshot at the last persisted state.
func (s *service) save(ctx context.Context, collection *models.InstanceCollection) error {
	if err := s.store.Save(ctx, collection); err != nil {
		return apperrors.NewInternal("failed to persist instance collection", err)
	}
	s.snapshot = collection
	s.stale = false
	return nil
}

// AddInstance creates a profile with a fresh master key.
func (s *service) AddInstance(ctx context.Context, name, baseURL, password string, rememberPassword bool) (*models.Instance, error) {
	baseURL = models.NormalizeBaseURL(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	instance := models.Instance{
		ID:               uuid.NewString(),
		Name:             name,
		BaseURL:          baseURL,
		RememberPassword: rememberPassword,
		CreatedAt:        time.Now().UTC(),
	}

	if password != "" {
		masterKey, err := encryption.GeneratePassphrase()
		if err != nil {
			return nil, apperrors.NewInternal("failed to generate master key", err)
		}
		s.SetMasterKey(ctx, instance.ID, masterKey)

		enc, err := encryption.NewGCMEncryptor(masterKey)
		if err != nil {
			return nil, apperrors.NewInternal("failed to build password encryptor", err)
		}
		instance.EncryptedPassword, err = enc.EncryptString(password)
		if err != nil {
			return nil, apperrors.NewInternal("failed to encrypt password", err)
		}

		if rememberPassword {
			instance.EncryptedMasterKey, err = s.keyring.WrapKey(masterKey)
			if err != nil {
				return nil, apperrors.NewInternal("failed to wrap master key", err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.load(ctx).Copy()
	collection.Instances = append(collection.Instances, instance)
	if len(collection.Instances) == 1 {
		id := instance.ID
		collection.ActiveInstanceID = &id
	}

	if err := s.save(ctx, collection); err != nil {
		return nil, err
	}

	s.logger.Info().Str("instance", instance.ID).Str("url", instance.BaseURL).
		Bool("remember", instance.RememberPassword).Msg("instance added")

	out := instance.Copy()
	return &out, nil
}

// UpdateInstance applies a partial update.
func (s *service) UpdateInstance(ctx context.Context, id string, params UpdateParams) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.load(ctx).Copy()
	instance := collection.Find(id)
	if instance == nil {
		return nil, apperrors.NewNotFound("instance", id)
	}

	if params.Name != nil {
		instance.Name = *params.Name
	}
	if params.BaseURL != nil {
		normalized := models.NormalizeBaseURL(*params.BaseURL)
		if normalized == "" {
			return nil, fmt.Errorf("base URL is required")
		}
		instance.BaseURL = normalized
	}

	if params.Password != nil {
		if err := s.rotatePassword(ctx, instance, *params.Password); err != nil {
			return nil, err
		}
	}

	if params.RememberPassword != nil {
		if err := s.toggleRemember(ctx, instance, *params.RememberPassword); err != nil {
			return nil, err
		}
	}

	if err := s.save(ctx, collection); err != nil {
		return nil, err
	}

	out := instance.Copy()
	return &out, nil
}

// rotatePassword re-encrypts the password under a recovered-or-fresh
// master key and refreshes the persisted wrapped copy if remembering.
func (s *service) rotatePassword(ctx context.Context, instance *models.Instance, password string) error {
	if password == "" {
		instance.EncryptedPassword = ""
		instance.EncryptedMasterKey = ""
		s.keyring.Clear(ctx, instance.ID)
		return nil
	}

	masterKey := s.keyring.Recover(ctx, instance.ID)
	if masterKey == "" {
		fresh, err := encryption.GeneratePassphrase()
		if err != nil {
			return apperrors.NewInternal("failed to generate master key", err)
		}
		masterKey = fresh
	}
	s.SetMasterKey(ctx, instance.ID, masterKey)

	enc, err := encryption.NewGCMEncryptor(masterKey)
	if err != nil {
		return apperrors.NewInternal("failed to build password encryptor", err)
	}
	instance.EncryptedPassword, err = enc.EncryptString(password)
	if err != nil {
		return apperrors.NewInternal("failed to encrypt password", err)
	}

	if instance.RememberPassword {
		instance.EncryptedMasterKey, err = s.keyring.WrapKey(masterKey)
		if err != nil {
			return apperrors.NewInternal("failed to wrap master key", err)
		}
	}
	return nil
}

// toggleRemember flips the remember flag. Turning it on requires a
// recoverable master key; otherwise the flag must stay false rather
// than pointing at a key we cannot produce.
func (s *service) toggleRemember(ctx context.Context, instance *models.Instance, remember bool) error {
	if !remember {
		instance.RememberPassword = false
		instance.EncryptedMasterKey = ""
		return nil
	}

	masterKey := s.keyring.Recover(ctx, instance.ID)
	if masterKey == "" {
		s.logger.Warn().Str("instance", instance.ID).
			Msg("cannot enable rememberPassword: master key unavailable, re-enter password")
		return nil
	}

	wrapped, err := s.keyring.WrapKey(masterKey)
	if err != nil {
		return apperrors.NewInternal("failed to wrap master key", err)
	}
	instance.RememberPassword = true
	instance.EncryptedMasterKey = wrapped
	return nil
}

// DeleteInstance removes the profile and purges its key material.
func (s *service) DeleteInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.load(ctx).Copy()
	if !collection.Remove(id) {
		return apperrors.NewNotFound("instance", id)
	}

	// Ephemeral purge is best effort; the profile removal must not fail
	// because a cache entry could not be deleted.
	s.keyring.Clear(ctx, id)

	if err := s.save(ctx, collection); err != nil {
		return err
	}

	s.logger.Info().Str("instance", id).Msg("instance deleted")
	return nil
}

// SetActiveInstance selects the active instance.
func (s *service) SetActiveInstance(ctx context.Context, id *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.load(ctx).Copy()
	if id != nil && collection.Find(*id) == nil {
		return apperrors.NewNotFound("instance", *id)
	}

	if id == nil {
		collection.ActiveInstanceID = nil
	} else {
		v := *id
		collection.ActiveInstanceID = &v
	}

	return s.save(ctx, collection)
}

// ListInstances returns a deep copy of the collection.
func (s *service) ListInstances(ctx context.Context) (*models.InstanceCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx).Copy(), nil
}

// GetInstance returns a copy of one instance.
func (s *service) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance := s.load(ctx).Find(id)
	if instance == nil {
		return nil, apperrors.NewNotFound("instance", id)
	}
	out := instance.Copy()
	return &out, nil
}

// UpdateSettings replaces the global settings.
func (s *service) UpdateSettings(ctx context.Context, settings models.GlobalSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.load(ctx).Copy()
	collection.Settings = settings
	return s.save(ctx, collection)
}

// GetDecryptedPassword recovers the master key and decrypts the stored
// password. Every failure path collapses to "": an expected "re-enter
// password" state, not an error.
func (s *service) GetDecryptedPassword(ctx context.Context, id string) string {
	s.mu.Lock()
	instance := s.load(ctx).Find(id)
	var encryptedPassword string
	if instance != nil {
		encryptedPassword = instance.EncryptedPassword
	}
	s.mu.Unlock()

	if instance == nil || encryptedPassword == "" {
		return ""
	}

	masterKey := s.keyring.Recover(ctx, id)
	if masterKey == "" {
		return ""
	}

	enc, err := encryption.NewGCMEncryptor(masterKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("instance", id).Msg("failed to build password decryptor")
		return ""
	}

	password, err := enc.DecryptString(encryptedPassword)
	if err != nil {
		s.logger.Warn().Str("instance", id).Msg("password decryption failed, re-entry required")
		return ""
	}
	return password
}

// SetMasterKey primes the volatile custody tiers.
func (s *service) SetMasterKey(ctx context.Context, id, key string) {
	s.keyring.Put(ctx, id, key)
}

// lookupEncryptedKey feeds the persistent keyring tier. It reads the
// durable store directly instead of the snapshot: recovery may run
// while an update holds the snapshot lock, and this tier is only
// consulted after the volatile tiers came up empty.
func (s *service) lookupEncryptedKey(ctx context.Context, instanceID string) (string, bool, error) {
	collection, err := s.store.Load(ctx)
	if err != nil {
		return "", false, err
	}

	instance := collection.Find(instanceID)
	if instance == nil {
		return "", false, nil
	}
	return instance.EncryptedMasterKey, instance.RememberPassword, nil
}
