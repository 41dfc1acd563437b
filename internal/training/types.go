package training

import (
	"time"

	"veritrail.io/internal/record"
)

// Module is a training course assignable to principals within a tenant.
type Module struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PassScore   float64   `json:"pass_score"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Enrollment tracks one principal's progress through a module. A principal
// holds at most one enrollment per module.
type Enrollment struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	ModuleID    string        `json:"module_id"`
	PrincipalID string        `json:"principal_id"`
	Status      record.Status `json:"status"`
	Score       *float64      `json:"score,omitempty"`
	DueAt       *time.Time    `json:"due_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// EnrollmentUpdate carries optional enrollment field changes.
type EnrollmentUpdate struct {
	Score *float64
	DueAt *time.Time
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	ModuleID    string
	PrincipalID string
	Status      record.Status
	Limit       int
}
