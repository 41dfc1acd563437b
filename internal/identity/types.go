package identity

import "time"

// Tenant is the root ownership unit. Every domain record belongs to exactly
// one tenant; deleting a tenant cascades to all owned records.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Active    bool           `json:"active"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Principal is an authenticated actor. System principals have no tenant and
// may be granted cross-tenant scopes.
type Principal struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	System       bool      `json:"system,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	PrincipalStatusActive   = "active"
	PrincipalStatusDisabled = "disabled"
)

// TenantUpdate carries optional tenant field changes.
type TenantUpdate struct {
	Name     *string
	Active   *bool
	Settings map[string]any
}

// PrincipalUpdate carries optional principal field changes.
type PrincipalUpdate struct {
	Email    *string
	Role     *string
	Status   *string
	Password *string
}
