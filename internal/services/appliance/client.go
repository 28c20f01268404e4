package appliance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/domain/models"
)

// Session headers expected by the appliance on authenticated calls.
const (
	HeaderSID  = "X-FTL-SID"
	HeaderCSRF = "X-FTL-CSRF"
)

// DefaultRequestTimeout bounds each individual HTTP attempt, not the
// whole retry loop.
const DefaultRequestTimeout = 15 * time.Second

// ReauthFunc re-authenticates an expired session. The engine invokes
// it on the first 401 of a logical call and replays the request once.
type ReauthFunc func(ctx context.Context) error

// Client executes API calls against one appliance instance.
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	timeout    time.Duration
	logger     zerolog.Logger

	mu      sync.RWMutex
	baseURL string
	session *models.Session
	reauth  ReauthFunc
}

// ClientConfig holds the configuration for an appliance client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Policy     *RetryPolicy
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewClient creates a client. The base URL may be empty; requests
// fail with not_configured until one is set.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	policy := DefaultRetryPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
		if policy.Sleep == nil {
			policy.Sleep = sleepWithContext
		}
	}

	return &Client{
		httpClient: httpClient,
		policy:     policy,
		timeout:    timeout,
		logger:     cfg.Logger.With().Str("component", "appliance").Logger(),
		baseURL:    models.NormalizeBaseURL(cfg.BaseURL),
	}
}

// SetBaseURL points the client at an appliance. Idempotent.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = models.NormalizeBaseURL(baseURL)
}

// BaseURL returns the configured appliance URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetSession installs the session material attached to every call.
func (c *Client) SetSession(session *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// ClearSession drops the session material.
func (c *Client) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// Session returns the current session material, nil when logged out.
func (c *Client) Session() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetReauthFunc registers the re-authentication callback.
func (c *Client) SetReauthFunc(fn ReauthFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reauth = fn
}

func (c *Client) reauthFunc() ReauthFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reauth
}

// Do executes one logical API call: bounded retries with exponential
// backoff, a single transparent re-authentication on 401, and
// classification of every failure into the stable error taxonomy.
// It never panics across this boundary.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (out models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("path", path).
				Msg("unexpected fault during request")
			out = failure(apperrors.NewInternal("unexpected fault during request", fmt.Errorf("%v", r)))
		}
	}()

	if c.BaseURL() == "" {
		return failure(apperrors.NewNotConfigured())
	}

	var last *apperrors.APIError
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		data, apiErr := c.execute(ctx, method, path, body, attempt == 0)
		if apiErr == nil {
			if attempt > 0 {
				c.logger.Info().Int("attempt", attempt).Str("path", path).
					Msg("request succeeded after retry")
			}
			return success(data)
		}

		last = apiErr
		if !c.policy.Retryable(apiErr.Status) {
			return failure(apiErr)
		}

		if attempt < c.policy.MaxRetries {
			delay := c.policy.Delay(attempt)
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).
				Str("path", path).Str("key", apiErr.Key).Msg("retrying request")
			if err := c.policy.Sleep(ctx, delay); err != nil {
				return failure(classifyTransportError(err))
			}
		}
	}

	return failure(last)
}

// execute performs a single HTTP attempt. allowAuthRetry guards the
// one-shot 401 re-authentication replay against loops.
func (c *Client) execute(ctx context.Context, method, path string, body interface{}, allowAuthRetry bool) (json.RawMessage, *apperrors.APIError) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.NewInternal("failed to encode request body", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, c.BaseURL()+path, reqBody)
	if err != nil {
		return nil, apperrors.NewInternal("failed to create request", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if allowAuthRetry {
			if fn := c.reauthFunc(); fn != nil {
				if reauthErr := fn(ctx); reauthErr == nil {
					return c.execute(ctx, method, path, body, false)
				}
			}
		}
		return nil, apperrors.NewAuthFailed(http.StatusUnauthorized)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(respBody) == 0 {
			return nil, nil
		}
		if !json.Valid(respBody) {
			return nil, apperrors.NewParseError(fmt.Errorf("invalid JSON in %d response", resp.StatusCode))
		}
		c.validate(path, respBody)
		return respBody, nil
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, apperrors.NewAuthFailed(http.StatusForbidden)
	}

	return nil, parseErrorBody(respBody, resp.StatusCode)
}

// TestConnection probes reachability with an unauthenticated GET on the
// auth endpoint. Both 200 and 401 prove the server answered; transport
// failures classify the same way as regular requests.
func (c *Client) TestConnection(ctx context.Context) *apperrors.APIError {
	if c.BaseURL() == "" {
		return apperrors.NewNotConfigured()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.BaseURL()+"/api/auth", nil)
	if err != nil {
		return apperrors.NewInternal("failed to create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusUnauthorized {
		return nil
	}
	return apperrors.NewServerError("", "", "", resp.StatusCode)
}

// setHeaders attaches content negotiation and session headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session != nil {
		if c.session.SID != "" {
			req.Header.Set(HeaderSID, c.session.SID)
		}
		if c.session.CSRF != "" {
			req.Header.Set(HeaderCSRF, c.session.CSRF)
		}
	}
}

// parseErrorBody extracts the appliance's structured error envelope,
// falling back to a status-derived generic when the body is absent or
// unparsable.
func parseErrorBody(body []byte, status int) *apperrors.APIError {
	if len(body) > 0 {
		var envelope models.ErrorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Key != "" {
			return apperrors.NewServerError(envelope.Error.Key, envelope.Error.Message, envelope.Error.Hint, status)
		}
	}
	return apperrors.NewServerError("", "", "", status)
}

// classifyTransportError maps transport-level failures onto the error
// taxonomy: timeouts, certificate problems, then generic network
// failures. Caller cancellation is a network failure, not a timeout.
// All carry status 0.
func classifyTransportError(err error) *apperrors.APIError {
	if errors.Is(err, context.Canceled) {
		return apperrors.NewNetworkError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeout("request")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeout("request")
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "certificate"),
		strings.Contains(msg, "x509"),
		strings.Contains(msg, "tls"):
		return apperrors.NewCertError(err)
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return apperrors.NewTimeout("request")
	default:
		return apperrors.NewNetworkError(err)
	}
}

func success(data json.RawMessage) models.Outcome {
	return models.Outcome{Success: true, Data: data}
}

func failure(err *apperrors.APIError) models.Outcome {
	return models.Outcome{
		Success: false,
		Error: &models.OutcomeError{
			Key:     err.Key,
			Message: err.Message,
			Hint:    err.Hint,
			Status:  err.Status,
		},
	}
}
