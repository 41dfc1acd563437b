package training

import (
	"context"

	"veritrail.io/internal/record"
	"veritrail.io/internal/tenant"
)

// Store describes training persistence. UpdateEnrollment and
// TransitionEnrollment are audited mutations.
type Store interface {
	CreateModule(ctx context.Context, scope tenant.Scope, m *Module) error
	GetModule(ctx context.Context, scope tenant.Scope, id string) (Module, error)
	ListModules(ctx context.Context, scope tenant.Scope) ([]Module, error)

	CreateEnrollment(ctx context.Context, scope tenant.Scope, e *Enrollment) error
	GetEnrollment(ctx context.Context, scope tenant.Scope, id string) (Enrollment, error)
	ListEnrollments(ctx context.Context, scope tenant.Scope, filter EnrollmentFilter) ([]Enrollment, error)
	UpdateEnrollment(ctx context.Context, scope tenant.Scope, id string, upd EnrollmentUpdate) (Enrollment, error)
	TransitionEnrollment(ctx context.Context, scope tenant.Scope, id string, to record.Status) (Enrollment, error)
}
