// Package session manages the per-instance authentication lifecycle:
// authenticate, keep-alive, restore after restart, and logout.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dnsguard/companion-service/internal/core/cache"
	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/domain/models"
	"github.com/dnsguard/companion-service/internal/services/appliance"
	"github.com/dnsguard/companion-service/internal/services/credentials"
)

// DefaultKeepAliveInterval renews well inside the appliance's default
// 5-minute session validity. Each wait is additionally shortened by a
// random jitter so a delayed tick cannot land exactly on expiry.
const DefaultKeepAliveInterval = 4 * time.Minute

// keepAliveJitter is the fraction of the interval randomly shaved off
// each wait.
const keepAliveJitter = 0.1

// State is the manager's lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateLoggedOut       State = "logged_out"
)

// AuthResult reports the outcome of an authentication attempt.
// TotpRequired distinguishes "supply a second factor and try again"
// from a hard failure.
type AuthResult struct {
	TotpRequired bool `json:"totpRequired"`
}

// Manager owns one instance's session.
type Manager struct {
	instanceID  string
	client      *appliance.Client
	credentials credentials.Service
	cache       cache.Cache
	interval    time.Duration
	logger      zerolog.Logger

	mu        sync.Mutex
	session   *models.Session
	state     State
	stopAlive chan struct{}
}

// Config holds the configuration for a session manager.
type Config struct {
	InstanceID        string
	Client            *appliance.Client
	Credentials       credentials.Service
	Cache             cache.Cache
	KeepAliveInterval time.Duration
	Logger            zerolog.Logger
}

// NewManager creates a session manager for one instance.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.InstanceID == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("appliance client is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	interval := cfg.KeepAliveInterval
	if interval == 0 {
		interval = DefaultKeepAliveInterval
	}

	return &Manager{
		instanceID:  cfg.InstanceID,
		client:      cfg.Client,
		credentials: cfg.Credentials,
		cache:       cfg.Cache,
		interval:    interval,
		logger: cfg.Logger.With().Str("component", "session").
			Str("instance", cfg.InstanceID).Logger(),
		state: StateUnauthenticated,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HasValidSession reports whether an unexpired session is held.
func (m *Manager) HasValidSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Valid()
}

// Authenticate posts credentials to the appliance. When the appliance
// demands a second factor that was not supplied, the manager returns
// to Unauthenticated and reports TotpRequired instead of failing.
func (m *Manager) Authenticate(ctx context.Context, password, totp string) (*AuthResult, error) {
	m.mu.Lock()
	m.state = StateAuthenticating
	m.mu.Unlock()

	auth, err := m.client.Authenticate(ctx, password, totp)
	if err != nil {
		m.setState(StateUnauthenticated)
		return nil, err
	}

	if auth.Totp && auth.SID == "" {
		m.setState(StateUnauthenticated)
		m.logger.Info().Msg("second factor required")
		return &AuthResult{TotpRequired: true}, nil
	}

	validity := time.Duration(auth.Validity) * time.Second
	if validity <= 0 {
		validity = 5 * time.Minute
	}
	session := &models.Session{
		SID:       auth.SID,
		CSRF:      auth.CSRF,
		ExpiresAt: time.Now().Add(validity),
	}

	m.adopt(ctx, session)
	m.logger.Info().Msg("authenticated")
	return &AuthResult{}, nil
}

// Reauthenticate recovers the stored password and authenticates with
// it. Registered on the appliance client as the 401 callback.
func (m *Manager) Reauthenticate(ctx context.Context) error {
	password := m.credentials.GetDecryptedPassword(ctx, m.instanceID)
	if password == "" {
		return apperrors.NewAuthFailed(401)
	}

	result, err := m.Authenticate(ctx, password, "")
	if err != nil {
		return err
	}
	if result.TotpRequired {
		// A stored password cannot answer a TOTP challenge.
		return apperrors.NewAuthFailed(401)
	}
	return nil
}

// Restore adopts an unexpired session from the ephemeral tier instead
// of forcing re-authentication after a restart.
func (m *Manager) Restore(ctx context.Context) bool {
	data, err := m.cache.Get(ctx, cache.SessionKey(m.instanceID))
	if err != nil || data == nil {
		return false
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		_, _ = m.cache.Delete(ctx, cache.SessionKey(m.instanceID))
		return false
	}
	if !session.Valid() {
		_, _ = m.cache.Delete(ctx, cache.SessionKey(m.instanceID))
		return false
	}

	m.adopt(ctx, &session)
	m.logger.Info().Msg("session restored from ephemeral storage")
	return true
}

// Logout invalidates the session server-side (best effort) and
// unconditionally clears local state.
func (m *Manager) Logout(ctx context.Context) {
	if m.HasValidSession() {
		if err := m.client.InvalidateSession(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("server-side session invalidation failed")
		}
	}
	m.clear(ctx, StateLoggedOut)
	m.logger.Info().Msg("logged out")
}

// Shutdown stops the keep-alive task without touching server state.
// Used on instance deletion and service shutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.clear(ctx, StateUnauthenticated)
}

// adopt installs a session, persists it to the ephemeral tier and
// (re)arms keep-alive.
func (m *Manager) adopt(ctx context.Context, session *models.Session) {
	m.mu.Lock()
	m.session = session
	m.state = StateAuthenticated
	m.client.SetSession(session)
	m.stopKeepAliveLocked()
	stop := make(chan struct{})
	m.stopAlive = stop
	m.mu.Unlock()

	m.persist(ctx, session)
	go m.keepAlive(stop)
}

// clear drops all local session state and stops keep-alive.
func (m *Manager) clear(ctx context.Context, state State) {
	m.mu.Lock()
	m.session = nil
	m.state = state
	m.client.ClearSession()
	m.stopKeepAliveLocked()
	m.mu.Unlock()

	if _, err := m.cache.Delete(ctx, cache.SessionKey(m.instanceID)); err != nil {
		m.logger.Warn().Err(err).Msg("failed to purge ephemeral session")
	}
}

func (m *Manager) stopKeepAliveLocked() {
	if m.stopAlive != nil {
		close(m.stopAlive)
		m.stopAlive = nil
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// persist writes the session to the ephemeral tier, TTL-bound to its
// remaining validity.
func (m *Manager) persist(ctx context.Context, session *models.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to serialize session")
		return
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := m.cache.Set(ctx, cache.SessionKey(m.instanceID), data, ttl); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session to ephemeral tier")
	}
}

// keepAlive renews the session on a jittered interval. A 401-class
// response means the session is gone: clear it and stop. Network
// failures leave the session untouched; the next tick tries again.
func (m *Manager) keepAlive(stop chan struct{}) {
	for {
		wait := m.interval - time.Duration(rand.Float64()*keepAliveJitter*float64(m.interval))
		timer := time.NewTimer(wait)

		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		auth, err := m.client.SessionStatus(ctx)
		cancel()

		switch {
		case err == nil:
			validity := time.Duration(auth.Validity) * time.Second
			if validity <= 0 {
				validity = 5 * time.Minute
			}
			refreshed := &models.Session{}

			m.mu.Lock()
			if m.session == nil {
				m.mu.Unlock()
				return
			}
			m.session.ExpiresAt = time.Now().Add(validity)
			*refreshed = *m.session
			m.mu.Unlock()

			persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
			m.persist(persistCtx, refreshed)
			persistCancel()

		case apperrors.IsAuthFailed(err):
			m.logger.Info().Msg("session expired on appliance")
			clearCtx, clearCancel := context.WithTimeout(context.Background(), 10*time.Second)
			m.clear(clearCtx, StateExpired)
			clearCancel()
			return

		default:
			// Transient network trouble is not expiry. Keep the session
			// and retry on the next tick.
			m.logger.Warn().Err(err).Msg("keep-alive failed, will retry")
		}
	}
}
