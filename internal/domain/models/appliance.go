package models

import "encoding/json"

// AuthResponse is the body returned by POST /api/auth.
type AuthResponse struct {
	Session AuthSession `json:"session"`
}

// AuthSession carries the session material issued by the appliance.
// Validity is the session lifetime in seconds. Totp is true when the
// appliance requires a second factor that was not supplied.
type AuthSession struct {
	Valid    bool   `json:"valid"`
	SID      string `json:"sid"`
	CSRF     string `json:"csrf"`
	Validity int    `json:"validity"`
	Totp     bool   `json:"totp"`
}

// SummaryStats is the body of GET /api/stats/summary.
type SummaryStats struct {
	Queries struct {
		Total          int64   `json:"total"`
		Blocked        int64   `json:"blocked"`
		PercentBlocked float64 `json:"percent_blocked"`
		UniqueDomains  int64   `json:"unique_domains"`
		Forwarded      int64   `json:"forwarded"`
		Cached         int64   `json:"cached"`
	} `json:"queries"`
	Clients struct {
		Active int `json:"active"`
		Total  int `json:"total"`
	} `json:"clients"`
	Gravity struct {
		DomainsBeingBlocked int64 `json:"domains_being_blocked"`
		LastUpdate          int64 `json:"last_update"`
	} `json:"gravity"`
}

// BlockingStatus is the body of GET|POST /api/dns/blocking. Timer is
// nil when blocking is not on a countdown.
type BlockingStatus struct {
	Blocking string   `json:"blocking"`
	Timer    *float64 `json:"timer"`
}

// BlockingRequest is the POST body for toggling blocking, with an
// optional timer in seconds.
type BlockingRequest struct {
	Blocking bool     `json:"blocking"`
	Timer    *float64 `json:"timer,omitempty"`
}

// QueryEntry is one query-log record from GET /api/queries.
type QueryEntry struct {
	Time   float64 `json:"time"`
	Type   string  `json:"type"`
	Domain string  `json:"domain"`
	Client struct {
		IP   string `json:"ip"`
		Name string `json:"name"`
	} `json:"client"`
	Status string `json:"status"`
	Reply  struct {
		Type string  `json:"type"`
		Time float64 `json:"time"`
	} `json:"reply"`
}

// QueryList is the envelope form of the query-log response. The
// appliance returns either a bare array or this wrapper.
type QueryList struct {
	Queries []QueryEntry `json:"queries"`
}

// QueryFilter narrows a query-log request. Zero values are omitted.
type QueryFilter struct {
	Length int
	From   int64
	Until  int64
	Client string
	Domain string
	Type   string
	Status string
}

// DomainEntry is one allow/deny list record.
type DomainEntry struct {
	Domain  string `json:"domain"`
	Comment string `json:"comment,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Type    string `json:"type,omitempty"`
	Enabled bool   `json:"enabled"`
}

// DomainRequest is the body for adding a domain to a list.
type DomainRequest struct {
	Domain  string `json:"domain"`
	Comment string `json:"comment,omitempty"`
}

// SearchResult is the body of GET /api/search/{domain}.
type SearchResult struct {
	Search struct {
		Domains []DomainEntry `json:"domains"`
		Gravity []struct {
			Domain  string `json:"domain"`
			Address string `json:"address"`
		} `json:"gravity"`
	} `json:"search"`
}

// ErrorEnvelope is the appliance's structured error body.
type ErrorEnvelope struct {
	Error struct {
		Key     string `json:"key"`
		Message string `json:"message"`
		Hint    string `json:"hint,omitempty"`
	} `json:"error"`
}

// Outcome is the discriminated result every request-engine call
// returns. Failures carry a structured APIError; the engine never
// panics across this boundary.
type Outcome struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *OutcomeError   `json:"error,omitempty"`
}

// OutcomeError is the serializable failure shape inside an Outcome.
type OutcomeError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"status"`
}
