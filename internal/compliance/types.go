package compliance

import (
	"time"

	"veritrail.io/internal/record"
)

// Program groups requirements under a regulatory framework (SOC 2, ISO
// 27001, internal policy).
type Program struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Framework string    `json:"framework"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a workflow-bearing compliance item. Tasks are never hard-deleted;
// terminal statuses close them while preserving history.
type Task struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	ProgramID   string         `json:"program_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      record.Status  `json:"status"`
	AssigneeID  string         `json:"assignee_id,omitempty"`
	DueAt       *time.Time     `json:"due_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TaskUpdate carries optional task field changes.
type TaskUpdate struct {
	Title       *string
	Description *string
	AssigneeID  *string
	DueAt       *time.Time
	Metadata    map[string]any
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	ProgramID  string
	Status     record.Status
	AssigneeID string
	Limit      int
}
