package training

import (
	"context"
	"errors"
	"testing"

	"veritrail.io/internal/record"
	"veritrail.io/internal/tenant"
)

type stubStore struct {
	modules     map[string]Module
	enrollments map[string]Enrollment
}

func newStubStore() *stubStore {
	return &stubStore{
		modules:     make(map[string]Module),
		enrollments: make(map[string]Enrollment),
	}
}

func (s *stubStore) CreateModule(_ context.Context, _ tenant.Scope, m *Module) error {
	s.modules[m.ID] = *m
	return nil
}

func (s *stubStore) GetModule(_ context.Context, scope tenant.Scope, id string) (Module, error) {
	m, ok := s.modules[id]
	if !ok || !scope.Owns(m.TenantID) {
		return Module{}, errors.New("not found")
	}
	return m, nil
}

func (s *stubStore) ListModules(_ context.Context, scope tenant.Scope) ([]Module, error) {
	var out []Module
	for _, m := range s.modules {
		if scope.Owns(m.TenantID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) CreateEnrollment(_ context.Context, _ tenant.Scope, e *Enrollment) error {
	s.enrollments[e.ID] = *e
	return nil
}

func (s *stubStore) GetEnrollment(_ context.Context, scope tenant.Scope, id string) (Enrollment, error) {
	e, ok := s.enrollments[id]
	if !ok || !scope.Owns(e.TenantID) {
		return Enrollment{}, errors.New("not found")
	}
	return e, nil
}

func (s *stubStore) ListEnrollments(_ context.Context, scope tenant.Scope, _ EnrollmentFilter) ([]Enrollment, error) {
	var out []Enrollment
	for _, e := range s.enrollments {
		if scope.Owns(e.TenantID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateEnrollment(_ context.Context, _ tenant.Scope, id string, upd EnrollmentUpdate) (Enrollment, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return Enrollment{}, errors.New("not found")
	}
	if upd.Score != nil {
		e.Score = upd.Score
	}
	if upd.DueAt != nil {
		e.DueAt = upd.DueAt
	}
	s.enrollments[id] = e
	return e, nil
}

func (s *stubStore) TransitionEnrollment(_ context.Context, _ tenant.Scope, id string, to record.Status) (Enrollment, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return Enrollment{}, errors.New("not found")
	}
	if err := record.Transition(e.Status, to); err != nil {
		return Enrollment{}, err
	}
	e.Status = to
	s.enrollments[id] = e
	return e, nil
}

func tenantCtx() context.Context {
	return tenant.WithScope(context.Background(), tenant.ForTenant("user-1", "ten-1"))
}

func newTestService(t *testing.T, st Store) *Service {
	t.Helper()
	svc, err := NewService(st)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateModuleValidatesPassScore(t *testing.T) {
	svc := newTestService(t, newStubStore())
	for _, score := range []float64{-1, 100.5} {
		if _, err := svc.CreateModule(tenantCtx(), "Security 101", "", score); err == nil {
			t.Fatalf("score %v: expected error", score)
		}
	}

	m, err := svc.CreateModule(tenantCtx(), "Security 101", "annual refresher", 80)
	if err != nil {
		t.Fatalf("CreateModule: %v", err)
	}
	if m.TenantID != "ten-1" || !m.Active || m.PassScore != 80 {
		t.Fatalf("unexpected module: %+v", m)
	}
}

func TestCreateModuleRejectsSystemScope(t *testing.T) {
	svc := newTestService(t, newStubStore())
	ctx := tenant.WithScope(context.Background(), tenant.SystemScope("ops"))
	if _, err := svc.CreateModule(ctx, "Security 101", "", 80); !errors.Is(err, tenant.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestEnrollRequiresActiveModule(t *testing.T) {
	st := newStubStore()
	st.modules["mod-1"] = Module{ID: "mod-1", TenantID: "ten-1", Title: "Security 101", Active: false}
	svc := newTestService(t, st)

	if _, err := svc.Enroll(tenantCtx(), "mod-1", "user-2", nil); err == nil {
		t.Fatal("expected error for inactive module")
	}
}

func TestEnrollCannotSeeForeignModule(t *testing.T) {
	st := newStubStore()
	st.modules["mod-other"] = Module{ID: "mod-other", TenantID: "ten-2", Active: true}
	svc := newTestService(t, st)

	if _, err := svc.Enroll(tenantCtx(), "mod-other", "user-2", nil); err == nil {
		t.Fatal("expected error for module owned by another tenant")
	}
}

func TestEnrollStartsPending(t *testing.T) {
	st := newStubStore()
	st.modules["mod-1"] = Module{ID: "mod-1", TenantID: "ten-1", Active: true, PassScore: 80}
	svc := newTestService(t, st)

	e, err := svc.Enroll(tenantCtx(), "mod-1", "user-2", nil)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if e.Status != record.StatusPending || e.TenantID != "ten-1" {
		t.Fatalf("unexpected enrollment: %+v", e)
	}
}

func TestRecordScorePassCompletes(t *testing.T) {
	st := newStubStore()
	st.modules["mod-1"] = Module{ID: "mod-1", TenantID: "ten-1", Active: true, PassScore: 80}
	st.enrollments["enr-1"] = Enrollment{
		ID: "enr-1", TenantID: "ten-1", ModuleID: "mod-1",
		PrincipalID: "user-2", Status: record.StatusInProgress,
	}
	svc := newTestService(t, st)

	e, err := svc.RecordScore(tenantCtx(), "enr-1", 91)
	if err != nil {
		t.Fatalf("RecordScore: %v", err)
	}
	if e.Status != record.StatusCompleted {
		t.Fatalf("passing score should complete, got %s", e.Status)
	}
	if e.Score == nil || *e.Score != 91 {
		t.Fatalf("score not recorded: %+v", e)
	}
}

func TestRecordScorePassOnFreshEnrollmentCompletes(t *testing.T) {
	st := newStubStore()
	st.modules["mod-1"] = Module{ID: "mod-1", TenantID: "ten-1", Active: true, PassScore: 80}
	svc := newTestService(t, st)

	enrolled, err := svc.Enroll(tenantCtx(), "mod-1", "user-2", nil)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// The natural path: enroll, then submit a passing attempt without an
	// explicit start. The enrollment must end completed, not stranded
	// pending with a recorded score.
	e, err := svc.RecordScore(tenantCtx(), enrolled.ID, 95)
	if err != nil {
		t.Fatalf("RecordScore on fresh enrollment: %v", err)
	}
	if e.Status != record.StatusCompleted {
		t.Fatalf("status = %s, want completed", e.Status)
	}
	if e.Score == nil || *e.Score != 95 {
		t.Fatalf("score not recorded: %+v", e)
	}
}

func TestRecordScoreFailOnFreshEnrollmentStarts(t *testing.T) {
	st := newStubStore()
	st.modules["mod-1"] = Module{ID: "mod-1", TenantID: "ten-1", Active: true, PassScore: 80}
	svc := newTestService(t, st)

	enrolled, err := svc.Enroll(tenantCtx(), "mod-1", "user-2", nil)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	e, err := svc.RecordScore(tenantCtx(), enrolled.ID, 40)
	if err != nil {
		t.Fatalf("RecordScore: %v", err)
	}
	if e.Status != record.StatusInProgress {
		t.Fatalf("failing attempt should leave the enrollment in_progress, got %s", e.Status)
	}
}

func TestRecordScoreFailStaysInProgress(t *testing.T) {
	st := newStubStore()
	st.modules["mod-1"] = Module{ID: "mod-1", TenantID: "ten-1", Active: true, PassScore: 80}
	st.enrollments["enr-1"] = Enrollment{
		ID: "enr-1", TenantID: "ten-1", ModuleID: "mod-1",
		PrincipalID: "user-2", Status: record.StatusInProgress,
	}
	svc := newTestService(t, st)

	e, err := svc.RecordScore(tenantCtx(), "enr-1", 55)
	if err != nil {
		t.Fatalf("RecordScore: %v", err)
	}
	if e.Status != record.StatusInProgress {
		t.Fatalf("failing score must not auto-complete, got %s", e.Status)
	}
	if e.Score == nil || *e.Score != 55 {
		t.Fatalf("score not recorded: %+v", e)
	}
}

func TestRecordScoreRange(t *testing.T) {
	svc := newTestService(t, newStubStore())
	for _, score := range []float64{-0.1, 100.1} {
		if _, err := svc.RecordScore(tenantCtx(), "enr-1", score); err == nil {
			t.Fatalf("score %v: expected error", score)
		}
	}
}

func TestTransitionEnrollmentIllegalMove(t *testing.T) {
	st := newStubStore()
	st.enrollments["enr-1"] = Enrollment{ID: "enr-1", TenantID: "ten-1", Status: record.StatusCompleted}
	svc := newTestService(t, st)

	_, err := svc.TransitionEnrollment(tenantCtx(), "enr-1", record.StatusInProgress)
	var ite *record.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}
