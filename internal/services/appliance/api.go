package appliance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/domain/models"
)

// ListType selects the allow or deny list.
type ListType string

// ListKind selects exact or regex matching.
type ListKind string

const (
	ListAllow ListType = "allow"
	ListDeny  ListType = "deny"

	KindExact ListKind = "exact"
	KindRegex ListKind = "regex"
)

// Authenticate posts credentials to the appliance. A 401 with a
// totp-flagged body is returned as a session with Totp=true and no
// error, so callers can re-prompt for the second factor; a plain 401
// is an auth_failed error.
func (c *Client) Authenticate(ctx context.Context, password, totp string) (*models.AuthSession, error) {
	if c.BaseURL() == "" {
		return nil, apperrors.NewNotConfigured()
	}

	payload := map[string]string{"password": password}
	if totp != "" {
		payload["totp"] = totp
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternal("failed to encode auth request", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.BaseURL()+"/api/auth", strings.NewReader(string(body)))
	if err != nil {
		return nil, apperrors.NewInternal("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var auth models.AuthResponse
	parsed := json.Unmarshal(respBody, &auth) == nil

	switch {
	case resp.StatusCode == http.StatusOK && parsed && auth.Session.Valid:
		c.validate("/api/auth", respBody)
		return &auth.Session, nil
	case parsed && auth.Session.Totp:
		// Password accepted but a second factor is required.
		return &auth.Session, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.NewAuthFailed(resp.StatusCode)
	case resp.StatusCode == http.StatusOK:
		return nil, apperrors.NewParseError(fmt.Errorf("auth response missing session"))
	default:
		return nil, parseErrorBody(respBody, resp.StatusCode)
	}
}

// SessionStatus performs a lightweight authenticated probe of the
// current session: a single attempt, no retries and no transparent
// re-authentication. Keep-alive uses this so a 401 surfaces as expiry
// instead of triggering a re-auth loop.
func (c *Client) SessionStatus(ctx context.Context) (*models.AuthSession, error) {
	if c.BaseURL() == "" {
		return nil, apperrors.NewNotConfigured()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.BaseURL()+"/api/auth", nil)
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

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperrors.NewAuthFailed(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorBody(respBody, resp.StatusCode)
	}

	var auth models.AuthResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return nil, apperrors.NewParseError(err)
	}
	return &auth.Session, nil
}

// InvalidateSession asks the appliance to drop the current session.
func (c *Client) InvalidateSession(ctx context.Context) error {
	out := c.Do(ctx, http.MethodDelete, "/api/auth", nil)
	return outcomeErr(out)
}

// FetchSummary retrieves the statistics summary.
func (c *Client) FetchSummary(ctx context.Context) (*models.SummaryStats, error) {
	out := c.Do(ctx, http.MethodGet, "/api/stats/summary", nil)
	var stats models.SummaryStats
	if err := decodeOutcome(out, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetBlocking reads the current blocking state.
func (c *Client) GetBlocking(ctx context.Context) (*models.BlockingStatus, error) {
	out := c.Do(ctx, http.MethodGet, "/api/dns/blocking", nil)
	var status models.BlockingStatus
	if err := decodeOutcome(out, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetBlocking enables or disables blocking, optionally on a countdown
// timer in seconds.
func (c *Client) SetBlocking(ctx context.Context, enabled bool, timer *float64) (*models.BlockingStatus, error) {
	body := models.BlockingRequest{Blocking: enabled, Timer: timer}
	out := c.Do(ctx, http.MethodPost, "/api/dns/blocking", body)
	var status models.BlockingStatus
	if err := decodeOutcome(out, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Queries retrieves query-log entries matching the filter. The
// appliance returns either a bare array or a {queries:[...]} envelope;
// both are accepted.
func (c *Client) Queries(ctx context.Context, filter models.QueryFilter) ([]models.QueryEntry, error) {
	out := c.Do(ctx, http.MethodGet, "/api/queries"+queryString(filter), nil)
	if !out.Success {
		return nil, outcomeErr(out)
	}

	var list models.QueryList
	if err := json.Unmarshal(out.Data, &list); err == nil && list.Queries != nil {
		return list.Queries, nil
	}

	var entries []models.QueryEntry
	if err := json.Unmarshal(out.Data, &entries); err != nil {
		return nil, apperrors.NewParseError(err)
	}
	return entries, nil
}

// ListDomains fetches one allow/deny list.
func (c *Client) ListDomains(ctx context.Context, list ListType, kind ListKind) ([]models.DomainEntry, error) {
	out := c.Do(ctx, http.MethodGet, domainPath(list, kind, ""), nil)
	if !out.Success {
		return nil, outcomeErr(out)
	}

	var envelope struct {
		Domains []models.DomainEntry `json:"domains"`
	}
	if err := json.Unmarshal(out.Data, &envelope); err != nil {
		return nil, apperrors.NewParseError(err)
	}
	return envelope.Domains, nil
}

// AddDomain adds a domain to one allow/deny list.
func (c *Client) AddDomain(ctx context.Context, list ListType, kind ListKind, domain, comment string) error {
	body := models.DomainRequest{Domain: domain, Comment: comment}
	out := c.Do(ctx, http.MethodPost, domainPath(list, kind, ""), body)
	return outcomeErr(out)
}

// RemoveDomain removes a domain from one allow/deny list.
func (c *Client) RemoveDomain(ctx context.Context, list ListType, kind ListKind, domain string) error {
	out := c.Do(ctx, http.MethodDelete, domainPath(list, kind, domain), nil)
	return outcomeErr(out)
}

// Search looks a domain up across lists and gravity.
func (c *Client) Search(ctx context.Context, domain string) (*models.SearchResult, error) {
	out := c.Do(ctx, http.MethodGet, "/api/search/"+url.PathEscape(domain), nil)
	var result models.SearchResult
	if err := decodeOutcome(out, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// domainPath builds /api/domains/{allow|deny}/{exact|regex}[/domain].
func domainPath(list ListType, kind ListKind, domain string) string {
	path := fmt.Sprintf("/api/domains/%s/%s", list, kind)
	if domain != "" {
		path += "/" + url.PathEscape(domain)
	}
	return path
}

// queryString renders the non-zero filter fields.
func queryString(filter models.QueryFilter) string {
	values := url.Values{}
	if filter.Length > 0 {
		values.Set("length", strconv.Itoa(filter.Length))
	}
	if filter.From > 0 {
		values.Set("from", strconv.FormatInt(filter.From, 10))
	}
	if filter.Until > 0 {
		values.Set("until", strconv.FormatInt(filter.Until, 10))
	}
	if filter.Client != "" {
		values.Set("client", filter.Client)
	}
	if filter.Domain != "" {
		values.Set("domain", filter.Domain)
	}
	if filter.Type != "" {
		values.Set("type", filter.Type)
	}
	if filter.Status != "" {
		values.Set("status", filter.Status)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// decodeOutcome unwraps a successful outcome into the typed payload.
func decodeOutcome(out models.Outcome, v interface{}) error {
	if !out.Success {
		return outcomeErr(out)
	}
	if len(out.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(out.Data, v); err != nil {
		return apperrors.NewParseError(err)
	}
	return nil
}

// outcomeErr converts a failed outcome back into an APIError. Returns
// nil for successes.
func outcomeErr(out models.Outcome) error {
	if out.Success {
		return nil
	}
	if out.Error == nil {
		return apperrors.NewInternal("request failed without error detail", nil)
	}
	return &apperrors.APIError{
		Key:     out.Error.Key,
		Message: out.Error.Message,
		Hint:    out.Error.Hint,
		Status:  out.Error.Status,
	}
}
