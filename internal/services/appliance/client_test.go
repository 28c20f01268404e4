package appliance_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dnsguard/companion-service/internal/domain/errors"
	"github.com/dnsguard/companion-service/internal/domain/models"
	"github.com/dnsguard/companion-service/internal/services/appliance"
)

// fastPolicy retries without real waiting and records every delay the
// engine asked for.
func fastPolicy(recorded *[]time.Duration) *appliance.RetryPolicy {
	return &appliance.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2.0,
		MaxDelay:   10 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			*recorded = append(*recorded, d)
			return nil
		},
	}
}

func newTestClient(baseURL string, policy *appliance.RetryPolicy) *appliance.Client {
	return appliance.NewClient(&appliance.ClientConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Policy:  policy,
		Logger:  zerolog.Nop(),
	})
}

func TestDo_NotConfigured(t *testing.T) {
	// Arrange
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient("", nil)

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/stats/summary", nil)

	// Assert
	require.False(t, out.Success)
	require.NotNil(t, out.Error)
	assert.Equal(t, apperrors.KeyNotConfigured, out.Error.Key)
	assert.Zero(t, atomic.LoadInt32(&calls), "no network traffic without a base URL")
}

func TestDo_Success(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"blocking":"enabled","timer":null}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/dns/blocking", nil)

	// Assert
	require.True(t, out.Success)
	assert.JSONEq(t, `{"blocking":"enabled","timer":null}`, string(out.Data))
}

func TestDo_SessionHeadersAttached(t *testing.T) {
	// Arrange
	var gotSID, gotCSRF string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSID = r.Header.Get("X-FTL-SID")
		gotCSRF = r.Header.Get("X-FTL-CSRF")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)
	client.SetSession(&models.Session{
		SID:       "sid-123",
		CSRF:      "csrf-456",
		ExpiresAt: time.Now().Add(time.Minute),
	})

	// Act
	out := client.Do(context.Background(), http.MethodDelete, "/api/auth", nil)

	// Assert
	require.True(t, out.Success)
	assert.Empty(t, out.Data)
	assert.Equal(t, "sid-123", gotSID)
	assert.Equal(t, "csrf-456", gotCSRF)
}

func TestDo_RetriesUntilCeiling(t *testing.T) {
	// Arrange
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var delays []time.Duration
	client := newTestClient(server.URL, fastPolicy(&delays))

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/stats/summary", nil)

	// Assert
	require.False(t, out.Success)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls), "3 retries means 4 attempts")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	// Arrange
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var delays []time.Duration
	client := newTestClient(server.URL, fastPolicy(&delays))

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/info", nil)

	// Assert
	require.True(t, out.Success)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Len(t, delays, 2)
}

func TestDo_ClientErrorIsFinal(t *testing.T) {
	// Arrange
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"key":"bad_request","message":"malformed filter"}}`))
	}))
	defer server.Close()

	var delays []time.Duration
	client := newTestClient(server.URL, fastPolicy(&delays))

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/queries", nil)

	// Assert
	require.False(t, out.Success)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "4xx must not retry")
	assert.Empty(t, delays)
	assert.Equal(t, "bad_request", out.Error.Key)
	assert.Equal(t, "malformed filter", out.Error.Message)
}

func TestDo_ReauthReplaysOnce(t *testing.T) {
	// Arrange
	var calls, reauths int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)
	client.SetReauthFunc(func(ctx context.Context) error {
		atomic.AddInt32(&reauths, 1)
		return nil
	})

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/info", nil)

	// Assert
	require.True(t, out.Success)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&reauths))
}

func TestDo_PersistentUnauthorizedStopsAfterOneReplay(t *testing.T) {
	// Arrange
	var calls, reauths int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var delays []time.Duration
	client := newTestClient(server.URL, fastPolicy(&delays))
	client.SetReauthFunc(func(ctx context.Context) error {
		atomic.AddInt32(&reauths, 1)
		return nil
	})

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/info", nil)

	// Assert
	require.False(t, out.Success)
	assert.Equal(t, apperrors.KeyAuthFailed, out.Error.Key)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "original plus one replay")
	assert.EqualValues(t, 1, atomic.LoadInt32(&reauths))
	assert.Empty(t, delays, "auth failures must not enter the retry loop")
}

func TestDo_ForbiddenIsAuthFailed(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/info", nil)

	// Assert
	require.False(t, out.Success)
	assert.Equal(t, apperrors.KeyAuthFailed, out.Error.Key)
	assert.Equal(t, http.StatusForbidden, out.Error.Status)
}

func TestDo_InvalidJSONIsParseError(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/info", nil)

	// Assert
	require.False(t, out.Success)
	assert.Equal(t, apperrors.KeyParseError, out.Error.Key)
}

func TestDo_UnreachableHostIsNetworkError(t *testing.T) {
	// Arrange
	var delays []time.Duration
	client := newTestClient("http://127.0.0.1:1", fastPolicy(&delays))

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/info", nil)

	// Assert
	require.False(t, out.Success)
	assert.Equal(t, apperrors.KeyNetworkError, out.Error.Key)
	assert.Zero(t, out.Error.Status)
	assert.Len(t, delays, 3, "transport failures are retryable")
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	policy := &appliance.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2.0,
		MaxDelay:   10 * time.Second,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	}
	client := newTestClient(server.URL, policy)

	// Act
	out := client.Do(ctx, http.MethodGet, "/api/info", nil)

	// Assert
	require.False(t, out.Success)
	assert.Equal(t, apperrors.KeyNetworkError, out.Error.Key, "an abandoned call is not a timeout")
	assert.Zero(t, out.Error.Status)
}

func TestDo_ShapeMismatchWarnsButSucceeds(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected":true}`))
	}))
	defer server.Close()

	var logBuf bytes.Buffer
	client := appliance.NewClient(&appliance.ClientConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
		Logger:  zerolog.New(&logBuf),
	})

	// Act
	out := client.Do(context.Background(), http.MethodGet, "/api/dns/blocking", nil)

	// Assert
	require.True(t, out.Success, "schema drift is advisory, not a failure")
	assert.Contains(t, logBuf.String(), "shape mismatch")
	assert.Contains(t, logBuf.String(), "blocking")
}

func TestTestConnection_UnauthorizedCountsAsReachable(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	err := client.TestConnection(context.Background())

	// Assert
	assert.Nil(t, err)
}

func TestTestConnection_SelfSignedCertificate(t *testing.T) {
	// Arrange
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Default transport does not trust the httptest certificate.
	client := newTestClient(server.URL, nil)

	// Act
	err := client.TestConnection(context.Background())

	// Assert
	require.NotNil(t, err)
	assert.Equal(t, apperrors.KeyCertError, err.Key)
	assert.NotEmpty(t, err.Hint)
}

func TestAuthenticate_TotpRequired(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"session":{"valid":false,"totp":true,"sid":""}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	session, err := client.Authenticate(context.Background(), "password", "")

	// Assert
	require.NoError(t, err)
	assert.True(t, session.Totp)
	assert.Empty(t, session.SID)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"session":{"valid":false,"totp":false,"sid":""}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	session, err := client.Authenticate(context.Background(), "wrong", "")

	// Assert
	assert.Nil(t, session)
	assert.True(t, apperrors.IsAuthFailed(err))
}

func TestAuthenticate_Success(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session":{"valid":true,"sid":"s","csrf":"c","validity":300,"totp":false}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	session, err := client.Authenticate(context.Background(), "password", "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "s", session.SID)
	assert.Equal(t, "c", session.CSRF)
	assert.Equal(t, 300, session.Validity)
}

func TestQueries_AcceptsBareArray(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"domain":"ads.example.com","status":"GRAVITY"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	entries, err := client.Queries(context.Background(), models.QueryFilter{})

	// Assert
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ads.example.com", entries[0].Domain)
}

func TestQueries_AcceptsEnvelope(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("length"))
		_, _ = w.Write([]byte(`{"queries":[{"domain":"good.example.com","status":"FORWARDED"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	// Act
	entries, err := client.Queries(context.Background(), models.QueryFilter{Length: 50})

	// Assert
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good.example.com", entries[0].Domain)
}
