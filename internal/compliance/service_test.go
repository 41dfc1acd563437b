package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"veritrail.io/internal/record"
	"veritrail.io/internal/tenant"
)

type stubStore struct {
	programs map[string]Program
	tasks    map[string]Task

	createdTask  *Task
	transitioned []string
	failTaskIDs  map[string]error
	candidates   []Task
}

func newStubStore() *stubStore {
	return &stubStore{
		programs:    make(map[string]Program),
		tasks:       make(map[string]Task),
		failTaskIDs: make(map[string]error),
	}
}

func (s *stubStore) CreateProgram(_ context.Context, _ tenant.Scope, p *Program) error {
	s.programs[p.ID] = *p
	return nil
}

func (s *stubStore) GetProgram(_ context.Context, scope tenant.Scope, id string) (Program, error) {
	p, ok := s.programs[id]
	if !ok || !scope.Owns(p.TenantID) {
		return Program{}, errors.New("not found")
	}
	return p, nil
}

func (s *stubStore) ListPrograms(_ context.Context, scope tenant.Scope) ([]Program, error) {
	var out []Program
	for _, p := range s.programs {
		if scope.Owns(p.TenantID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) CreateTask(_ context.Context, _ tenant.Scope, t *Task) error {
	s.createdTask = t
	s.tasks[t.ID] = *t
	return nil
}

func (s *stubStore) GetTask(_ context.Context, scope tenant.Scope, id string) (Task, error) {
	t, ok := s.tasks[id]
	if !ok || !scope.Owns(t.TenantID) {
		return Task{}, errors.New("not found")
	}
	return t, nil
}

func (s *stubStore) ListTasks(_ context.Context, scope tenant.Scope, _ TaskFilter) ([]Task, error) {
	var out []Task
	for _, t := range s.tasks {
		if scope.Owns(t.TenantID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateTask(_ context.Context, _ tenant.Scope, id string, upd TaskUpdate) (Task, error) {
	t := s.tasks[id]
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	s.tasks[id] = t
	return t, nil
}

func (s *stubStore) TransitionTask(_ context.Context, _ tenant.Scope, id string, to record.Status) (Task, error) {
	if err, ok := s.failTaskIDs[id]; ok {
		return Task{}, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, errors.New("not found")
	}
	if err := record.Transition(t.Status, to); err != nil {
		return Task{}, err
	}
	t.Status = to
	s.tasks[id] = t
	s.transitioned = append(s.transitioned, id)
	return t, nil
}

func (s *stubStore) OverdueCandidates(_ context.Context, _ tenant.Scope, _ time.Time) ([]Task, error) {
	return s.candidates, nil
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

func TestCreateProgramRequiresTenantScope(t *testing.T) {
	svc := newTestService(t, newStubStore())

	if _, err := svc.CreateProgram(context.Background(), "SOC 2", "soc2"); !errors.Is(err, tenant.ErrMissingScope) {
		t.Fatalf("expected ErrMissingScope, got %v", err)
	}

	sysCtx := tenant.WithScope(context.Background(), tenant.SystemScope("ops"))
	if _, err := svc.CreateProgram(sysCtx, "SOC 2", "soc2"); !errors.Is(err, tenant.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for system scope, got %v", err)
	}
}

func TestCreateProgramStampsTenant(t *testing.T) {
	st := newStubStore()
	svc := newTestService(t, st)

	p, err := svc.CreateProgram(tenantCtx(), "  SOC 2  ", "soc2")
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	if p.TenantID != "ten-1" {
		t.Fatalf("tenant not stamped: %+v", p)
	}
	if p.Name != "SOC 2" {
		t.Fatalf("name not trimmed: %q", p.Name)
	}
	if p.ID == "" || !p.Active {
		t.Fatalf("unexpected program: %+v", p)
	}
}

func TestCreateTaskValidatesProgram(t *testing.T) {
	st := newStubStore()
	svc := newTestService(t, st)
	ctx := tenantCtx()

	if _, err := svc.CreateTask(ctx, "missing-program", "title", "", "", nil, nil); err == nil {
		t.Fatal("expected error for unknown program")
	}

	p, err := svc.CreateProgram(ctx, "SOC 2", "soc2")
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	task, err := svc.CreateTask(ctx, p.ID, "Collect evidence", "", "user-2", nil, nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != record.StatusPending {
		t.Fatalf("new task should be pending, got %s", task.Status)
	}
	if task.TenantID != "ten-1" || task.ProgramID != p.ID {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestCreateTaskCannotSeeForeignProgram(t *testing.T) {
	st := newStubStore()
	st.programs["prog-other"] = Program{ID: "prog-other", TenantID: "ten-2", Name: "Other"}
	svc := newTestService(t, st)

	if _, err := svc.CreateTask(tenantCtx(), "prog-other", "title", "", "", nil, nil); err == nil {
		t.Fatal("expected error for program owned by another tenant")
	}
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(t, newStubStore())
	if _, err := svc.ListTasks(tenantCtx(), TaskFilter{Status: "bogus"}); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
}

func TestUpdateTaskRejectsEmptyTitle(t *testing.T) {
	svc := newTestService(t, newStubStore())
	empty := "  "
	if _, err := svc.UpdateTask(tenantCtx(), "task-1", TaskUpdate{Title: &empty}); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestTransitionTaskUnknownStatus(t *testing.T) {
	svc := newTestService(t, newStubStore())
	if _, err := svc.TransitionTask(tenantCtx(), "task-1", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestMarkOverdueSweepsCandidates(t *testing.T) {
	st := newStubStore()
	st.tasks["task-1"] = Task{ID: "task-1", TenantID: "ten-1", Status: record.StatusInProgress}
	st.tasks["task-2"] = Task{ID: "task-2", TenantID: "ten-2", Status: record.StatusInProgress}
	st.candidates = []Task{st.tasks["task-1"], st.tasks["task-2"]}
	svc := newTestService(t, st)

	ctx := tenant.WithScope(context.Background(), tenant.SystemScope("sweeper"))
	moved, err := svc.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("MarkOverdue: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}
	if st.tasks["task-1"].Status != record.StatusOverdue || st.tasks["task-2"].Status != record.StatusOverdue {
		t.Fatalf("tasks not moved: %+v", st.tasks)
	}
}

func TestMarkOverdueSkipsFailures(t *testing.T) {
	st := newStubStore()
	st.tasks["task-1"] = Task{ID: "task-1", TenantID: "ten-1", Status: record.StatusInProgress}
	st.tasks["task-2"] = Task{ID: "task-2", TenantID: "ten-1", Status: record.StatusInProgress}
	st.candidates = []Task{st.tasks["task-1"], st.tasks["task-2"]}
	st.failTaskIDs["task-1"] = errors.New("row locked")
	svc := newTestService(t, st)

	ctx := tenant.WithScope(context.Background(), tenant.SystemScope("sweeper"))
	moved, err := svc.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("MarkOverdue: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1 (one failure skipped)", moved)
	}
	if st.tasks["task-2"].Status != record.StatusOverdue {
		t.Fatal("surviving candidate should still be swept")
	}
}
