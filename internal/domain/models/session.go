package models

import "time"

// Session is the per-instance ephemeral authentication proof returned
// by the appliance. It lives only in the ephemeral tier, never in
// durable storage.
type Session struct {
	SID       string    `json:"sid"`
	CSRF      string    `json:"csrf"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session exists and has not expired.
func (s *Session) Valid() bool {
	return s != nil && s.SID != "" && time.Now().Before(s.ExpiresAt)
}
