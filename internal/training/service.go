package training

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritrail.io/internal/audit"
	"veritrail.io/internal/ids"
	"veritrail.io/internal/record"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

// Service validates training operations and delegates persistence to a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a training Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("training store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateModule registers a training module in the scope's tenant.
func (s *Service) CreateModule(ctx context.Context, title, description string, passScore float64) (Module, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Module{}, err
	}
	if scope.AllTenants() {
		return Module{}, fmt.Errorf("%w: modules belong to a tenant", tenant.ErrForbidden)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Module{}, fmt.Errorf("%w: module title is required", store.ErrInvalidInput)
	}
	if passScore < 0 || passScore > 100 {
		return Module{}, fmt.Errorf("%w: pass score must be between 0 and 100", store.ErrInvalidInput)
	}

	now := s.now().UTC()
	m := Module{
		ID:          ids.New(),
		TenantID:    scope.TenantID(),
		Title:       title,
		Description: strings.TrimSpace(description),
		PassScore:   passScore,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateModule(ctx, scope, &m); err != nil {
		return Module{}, err
	}
	return m, nil
}

// GetModule fetches a module visible to the scope.
func (s *Service) GetModule(ctx context.Context, id string) (Module, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Module{}, err
	}
	return s.store.GetModule(ctx, scope, strings.TrimSpace(id))
}

// ListModules lists modules visible to the scope.
func (s *Service) ListModules(ctx context.Context) ([]Module, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListModules(ctx, scope)
}

// Enroll opens a pending enrollment for a principal in a module. A second
// enrollment for the same pair fails with store.ErrConflict.
func (s *Service) Enroll(ctx context.Context, moduleID, principalID string, dueAt *time.Time) (Enrollment, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	if scope.AllTenants() {
		return Enrollment{}, fmt.Errorf("%w: enrollments belong to a tenant", tenant.ErrForbidden)
	}
	moduleID = strings.TrimSpace(moduleID)
	principalID = strings.TrimSpace(principalID)
	if moduleID == "" || principalID == "" {
		return Enrollment{}, fmt.Errorf("%w: module id and principal id are required", store.ErrInvalidInput)
	}
	m, err := s.store.GetModule(ctx, scope, moduleID)
	if err != nil {
		return Enrollment{}, err
	}
	if !m.Active {
		return Enrollment{}, fmt.Errorf("%w: module is not active", store.ErrInvalidInput)
	}

	now := s.now().UTC()
	e := Enrollment{
		ID:          ids.New(),
		TenantID:    scope.TenantID(),
		ModuleID:    moduleID,
		PrincipalID: principalID,
		Status:      record.StatusPending,
		DueAt:       dueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEnrollment(ctx, scope, &e); err != nil {
		return Enrollment{}, err
	}
	audit.LogEvent(ctx, "enrollment_created", map[string]any{"enrollment_id": e.ID, "module_id": moduleID})
	return e, nil
}

// GetEnrollment fetches an enrollment visible to the scope.
func (s *Service) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	return s.store.GetEnrollment(ctx, scope, strings.TrimSpace(id))
}

// ListEnrollments lists enrollments visible to the scope, narrowed by filter.
func (s *Service) ListEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !record.Known(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, filter.Status)
	}
	return s.store.ListEnrollments(ctx, scope, filter)
}

// RecordScore attaches a score to an enrollment and, when the score meets
// the module's pass mark, completes it; a failing score on a final attempt
// is left to the caller to transition.
func (s *Service) RecordScore(ctx context.Context, id string, score float64) (Enrollment, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Enrollment{}, fmt.Errorf("%w: enrollment id is required", store.ErrInvalidInput)
	}
	if score < 0 || score > 100 {
		return Enrollment{}, fmt.Errorf("%w: score must be between 0 and 100", store.ErrInvalidInput)
	}
	e, err := s.store.GetEnrollment(ctx, scope, id)
	if err != nil {
		return Enrollment{}, err
	}
	m, err := s.store.GetModule(ctx, scope, e.ModuleID)
	if err != nil {
		return Enrollment{}, err
	}
	// A scored attempt means the module was started: bring a fresh
	// enrollment into the workflow before touching it, so a passing
	// score can legally reach completed.
	if e.Status == record.StatusPending {
		if _, err := s.store.TransitionEnrollment(ctx, scope, id, record.StatusInProgress); err != nil {
			return Enrollment{}, err
		}
	}
	e, err = s.store.UpdateEnrollment(ctx, scope, id, EnrollmentUpdate{Score: &score})
	if err != nil {
		return Enrollment{}, err
	}
	if score >= m.PassScore {
		return s.TransitionEnrollment(ctx, id, record.StatusCompleted)
	}
	return e, nil
}

// TransitionEnrollment moves an enrollment through its workflow. Illegal
// moves fail with *record.InvalidTransitionError before any state changes.
func (s *Service) TransitionEnrollment(ctx context.Context, id string, to record.Status) (Enrollment, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Enrollment{}, fmt.Errorf("%w: enrollment id is required", store.ErrInvalidInput)
	}
	if !record.Known(to) {
		return Enrollment{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, to)
	}
	e, err := s.store.TransitionEnrollment(ctx, scope, id, to)
	if err != nil {
		return Enrollment{}, err
	}
	audit.LogEvent(ctx, "enrollment_transitioned", map[string]any{"enrollment_id": id, "status": string(to)})
	return e, nil
}
