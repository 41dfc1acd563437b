package session

import "time"

// Session ties a principal to a bearer token. TenantID is empty for system
// sessions. Expired or inactive sessions are never authoritative, even when
// presented with a still-valid access token.
type Session struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	TokenHash   string    `json:"-"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"active"`
}

// TokenPair carries the short-lived access token and the opaque session
// token used to refresh it.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	SessionToken     string    `json:"session_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}
