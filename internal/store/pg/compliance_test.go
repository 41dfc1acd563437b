package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"veritrail.io/internal/compliance"
	"veritrail.io/internal/record"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

var taskColumns = []string{
	"id", "tenant_id", "program_id", "title", "description", "status",
	"assignee_id", "due_at", "metadata", "created_at", "updated_at",
}

func taskRow(id, tenantID, status string, updatedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(taskColumns).
		AddRow(id, tenantID, "prog-1", "Collect evidence", "", status, "", nil, nil, updatedAt, updatedAt)
}

func TestGetTaskConjoinsTenantPredicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")

	// The row exists under another tenant; the scoped query must not see it.
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1", "ten-1").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.GetTask(context.Background(), scope, "task-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-tenant read, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetTaskSystemScopePassesNilTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1", nil).
		WillReturnRows(taskRow("task-1", "ten-2", "pending", now))

	task, err := s.GetTask(context.Background(), tenant.SystemScope("admin"), "task-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.TenantID != "ten-2" {
		t.Fatalf("unexpected tenant: %s", task.TenantID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListTasksConjoinsTenantPredicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	now := time.Now().UTC()

	// Tenants A and B each hold an identically titled task; the scoped
	// list binds A's tenant id and must surface only A's row.
	mock.ExpectQuery(`select .* from tasks where \(\$1::text is null or tenant_id = \$1\)`).
		WithArgs("ten-a", 100).
		WillReturnRows(taskRow("task-a", "ten-a", "pending", now))

	tasks, err := s.ListTasks(context.Background(), tenant.ForTenant("user-a", "ten-a"), compliance.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-a" || tasks[0].TenantID != "ten-a" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListTasksSystemScopeSeesAllTenants(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(taskColumns).
		AddRow("task-a", "ten-a", "prog-1", "Collect evidence", "", "pending", "", nil, nil, now, now).
		AddRow("task-b", "ten-b", "prog-2", "Collect evidence", "", "pending", "", nil, nil, now, now)
	mock.ExpectQuery(`select .* from tasks where \(\$1::text is null or tenant_id = \$1\)`).
		WithArgs(nil, 100).
		WillReturnRows(rows)

	tasks, err := s.ListTasks(context.Background(), tenant.SystemScope("admin"), compliance.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("system scope should see both tenants, got %d", len(tasks))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionTaskCommitsAuditInSameTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")
	prev := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := prev.Add(time.Minute)
	s.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "pending", prev))
	mock.ExpectQuery("update tasks set status").
		WithArgs("in_progress", now, "task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "in_progress", now))
	mock.ExpectExec("insert into audit_entries").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "transition", "task", "task-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task, err := s.TransitionTask(context.Background(), scope, "task-1", record.StatusInProgress)
	if err != nil {
		t.Fatalf("TransitionTask: %v", err)
	}
	if task.Status != record.StatusInProgress {
		t.Fatalf("unexpected status: %s", task.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionTaskRollsBackWhenAuditInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")
	prev := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return prev.Add(time.Minute) }

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "pending", prev))
	mock.ExpectQuery("update tasks set status").
		WithArgs("in_progress", sqlmock.AnyArg(), "task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "in_progress", prev))
	mock.ExpectExec("insert into audit_entries").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := s.TransitionTask(context.Background(), scope, "task-1", record.StatusInProgress); err == nil {
		t.Fatal("expected error when audit insert fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionTaskRejectsCrossTenantWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")
	prev := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", "ten-2", "pending", prev))
	mock.ExpectRollback()

	_, err = s.TransitionTask(context.Background(), scope, "task-1", record.StatusInProgress)
	if !errors.Is(err, tenant.ErrTenantMismatch) {
		t.Fatalf("expected ErrTenantMismatch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionTaskTerminalStateRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")
	prev := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "completed", prev))
	mock.ExpectRollback()

	_, err = s.TransitionTask(context.Background(), scope, "task-1", record.StatusInProgress)
	var invalid *record.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if len(invalid.Allowed) != 0 {
		t.Fatalf("terminal state should allow nothing, got %v", invalid.Allowed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionTaskStampsStrictlyAfterPrevious(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")

	// Clock behind the stored updated_at: the stamp must still move forward.
	prev := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return prev.Add(-time.Second) }
	want := prev.Add(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "pending", prev))
	mock.ExpectQuery("update tasks set status").
		WithArgs("in_progress", want, "task-1").
		WillReturnRows(taskRow("task-1", "ten-1", "in_progress", want))
	mock.ExpectExec("insert into audit_entries").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "transition", "task", "task-1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), want).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task, err := s.TransitionTask(context.Background(), scope, "task-1", record.StatusInProgress)
	if err != nil {
		t.Fatalf("TransitionTask: %v", err)
	}
	if !task.UpdatedAt.After(prev) {
		t.Fatalf("updated_at did not advance: %v", task.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionTaskMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	scope := tenant.ForTenant("user-1", "ten-1")

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from tasks").
		WithArgs("task-404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	if _, err := s.TransitionTask(context.Background(), scope, "task-404", record.StatusInProgress); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyMutationRequiresScope(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db)
	if _, err := s.TransitionTask(context.Background(), tenant.Scope{}, "task-1", record.StatusInProgress); !errors.Is(err, tenant.ErrMissingScope) {
		t.Fatalf("expected ErrMissingScope, got %v", err)
	}
}
