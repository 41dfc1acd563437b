package compliance

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

// Service validates compliance operations and delegates persistence to a
// Store. All methods derive the acting scope from ctx.
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

// NewService constructs a compliance Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("compliance store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateProgram registers a compliance program in the scope's tenant.
func (s *Service) CreateProgram(ctx context.Context, name, framework string) (Program, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Program{}, err
	}
	if scope.AllTenants() {
		return Program{}, fmt.Errorf("%w: programs belong to a tenant", tenant.ErrForbidden)
	}
	name = strings.TrimSpace(name)
	framework = strings.TrimSpace(framework)
	if name == "" {
		return Program{}, fmt.Errorf("%w: program name is required", store.ErrInvalidInput)
	}

	now := s.now().UTC()
	p := Program{
		ID:        ids.New(),
		TenantID:  scope.TenantID(),
		Name:      name,
		Framework: framework,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProgram(ctx, scope, &p); err != nil {
		return Program{}, err
	}
	return p, nil
}

// GetProgram fetches a program visible to the scope.
func (s *Service) GetProgram(ctx context.Context, id string) (Program, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Program{}, err
	}
	return s.store.GetProgram(ctx, scope, strings.TrimSpace(id))
}

// ListPrograms lists programs visible to the scope.
func (s *Service) ListPrograms(ctx context.Context) ([]Program, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListPrograms(ctx, scope)
}

// CreateTask opens a new task in pending status under a program.
func (s *Service) CreateTask(ctx context.Context, programID, title, description, assigneeID string, dueAt *time.Time, metadata map[string]any) (Task, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Task{}, err
	}
	if scope.AllTenants() {
		return Task{}, fmt.Errorf("%w: tasks belong to a tenant", tenant.ErrForbidden)
	}
	programID = strings.TrimSpace(programID)
	title = strings.TrimSpace(title)
	if programID == "" {
		return Task{}, fmt.Errorf("%w: program id is required", store.ErrInvalidInput)
	}
	if title == "" {
		return Task{}, fmt.Errorf("%w: task title is required", store.ErrInvalidInput)
	}
	if _, err := s.store.GetProgram(ctx, scope, programID); err != nil {
		return Task{}, err
	}

	now := s.now().UTC()
	t := Task{
		ID:          ids.New(),
		TenantID:    scope.TenantID(),
		ProgramID:   programID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      record.StatusPending,
		AssigneeID:  strings.TrimSpace(assigneeID),
		DueAt:       dueAt,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, scope, &t); err != nil {
		return Task{}, err
	}
	audit.LogEvent(ctx, "task_created", map[string]any{"task_id": t.ID, "program_id": programID})
	return t, nil
}

// GetTask fetches a task visible to the scope.
func (s *Service) GetTask(ctx context.Context, id string) (Task, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Task{}, err
	}
	return s.store.GetTask(ctx, scope, strings.TrimSpace(id))
}

// ListTasks lists tasks visible to the scope, narrowed by filter.
func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !record.Known(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, filter.Status)
	}
	return s.store.ListTasks(ctx, scope, filter)
}

// UpdateTask applies field changes to a task. The change is audited.
func (s *Service) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (Task, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Task{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, fmt.Errorf("%w: task id is required", store.ErrInvalidInput)
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return Task{}, fmt.Errorf("%w: task title cannot be empty", store.ErrInvalidInput)
	}
	return s.store.UpdateTask(ctx, scope, id, upd)
}

// TransitionTask moves a task through its workflow. Illegal moves fail with
// *record.InvalidTransitionError before any state changes.
func (s *Service) TransitionTask(ctx context.Context, id string, to record.Status) (Task, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return Task{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, fmt.Errorf("%w: task id is required", store.ErrInvalidInput)
	}
	if !record.Known(to) {
		return Task{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, to)
	}
	t, err := s.store.TransitionTask(ctx, scope, id, to)
	if err != nil {
		return Task{}, err
	}
	audit.LogEvent(ctx, "task_transitioned", map[string]any{"task_id": id, "status": string(to)})
	return t, nil
}

// MarkOverdue sweeps in-progress tasks past their due date into overdue.
// Intended to run under a system scope on a timer. Returns the number of
// tasks moved.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	scope, err := tenant.Require(ctx)
	if err != nil {
		return 0, err
	}
	asOf := s.now().UTC()
	candidates, err := s.store.OverdueCandidates(ctx, scope, asOf)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, t := range candidates {
		// Each task transitions in its own transaction; a single failure
		// does not abort the sweep.
		if _, err := s.store.TransitionTask(ctx, scope, t.ID, record.StatusOverdue); err != nil {
			audit.LogEvent(ctx, "overdue_sweep_skip", map[string]any{"task_id": t.ID, "error": err.Error()})
			continue
		}
		moved++
	}
	return moved, nil
}
