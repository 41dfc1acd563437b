package compliance

import (
	"context"
	"time"

	"veritrail.io/internal/record"
	"veritrail.io/internal/tenant"
)

// Store describes compliance persistence. Update and Transition are audited
// mutations: the backend writes the audit entry in the same transaction.
type Store interface {
	CreateProgram(ctx context.Context, scope tenant.Scope, p *Program) error
	GetProgram(ctx context.Context, scope tenant.Scope, id string) (Program, error)
	ListPrograms(ctx context.Context, scope tenant.Scope) ([]Program, error)

	CreateTask(ctx context.Context, scope tenant.Scope, t *Task) error
	GetTask(ctx context.Context, scope tenant.Scope, id string) (Task, error)
	ListTasks(ctx context.Context, scope tenant.Scope, filter TaskFilter) ([]Task, error)
	UpdateTask(ctx context.Context, scope tenant.Scope, id string, upd TaskUpdate) (Task, error)
	TransitionTask(ctx context.Context, scope tenant.Scope, id string, to record.Status) (Task, error)

	// OverdueCandidates lists in-progress tasks whose due date passed asOf.
	OverdueCandidates(ctx context.Context, scope tenant.Scope, asOf time.Time) ([]Task, error)
}
