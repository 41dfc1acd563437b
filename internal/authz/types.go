package authz

import "time"

// Permission is a named capability from the global catalog. The catalog is
// shared reference data: it carries no tenant id and is visible to every
// scope by explicit carve-out.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}

// Grant gives a principal a permission, optionally until ExpiresAt. Expired
// grants never authorize actions.
type Grant struct {
	PrincipalID string     `json:"principal_id"`
	Permission  string     `json:"permission"`
	GrantedBy   string     `json:"granted_by"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether the grant is past its expiry at now.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}
