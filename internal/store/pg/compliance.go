package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritrail.io/internal/compliance"
	"veritrail.io/internal/record"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

func (s *Store) CreateProgram(ctx context.Context, scope tenant.Scope, p *compliance.Program) error {
	created := *p
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "program",
		action:     "create",
		resourceID: p.ID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				insert into programs (id, tenant_id, name, framework, active, created_at, updated_at)
				values ($1, $2, $3, $4, $5, $6, $6)
				returning id, tenant_id, name, coalesce(framework, ''), active, created_at, updated_at
			`, p.ID, p.TenantID, p.Name, nullIfEmpty(p.Framework), p.Active, stamped)
			out, err := scanProgram(row)
			if err != nil {
				return nil, mapWriteError(err)
			}
			created = out
			return json.Marshal(out)
		},
	})
	if err != nil {
		return err
	}
	*p = created
	return nil
}

func (s *Store) GetProgram(ctx context.Context, scope tenant.Scope, id string) (compliance.Program, error) {
	if s.db == nil {
		return compliance.Program{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, coalesce(framework, ''), active, created_at, updated_at
		from programs
		where id = $1 and ($2::text is null or tenant_id = $2)
	`, id, tenantArg(scope))
	p, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Program{}, store.ErrNotFound
	}
	if err != nil {
		return compliance.Program{}, err
	}
	return p, nil
}

func (s *Store) ListPrograms(ctx context.Context, scope tenant.Scope) ([]compliance.Program, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, name, coalesce(framework, ''), active, created_at, updated_at
		from programs
		where ($1::text is null or tenant_id = $1)
		order by name
	`, tenantArg(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []compliance.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateTask(ctx context.Context, scope tenant.Scope, t *compliance.Task) error {
	meta, err := marshalSettings(t.Metadata)
	if err != nil {
		return err
	}
	created := *t
	err = s.applyMutation(ctx, scope, mutation{
		resource:   "task",
		action:     "create",
		resourceID: t.ID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				insert into tasks (id, tenant_id, program_id, title, description, status, assignee_id, due_at, metadata, created_at, updated_at)
				values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
				returning id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
			`, t.ID, t.TenantID, t.ProgramID, t.Title, nullIfEmpty(t.Description), string(t.Status),
				nullIfEmpty(t.AssigneeID), nullTime(t.DueAt), meta, stamped)
			out, err := scanTask(row)
			if err != nil {
				return nil, mapWriteError(err)
			}
			created = out
			return json.Marshal(out)
		},
	})
	if err != nil {
		return err
	}
	*t = created
	return nil
}

func (s *Store) GetTask(ctx context.Context, scope tenant.Scope, id string) (compliance.Task, error) {
	if s.db == nil {
		return compliance.Task{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
		from tasks
		where id = $1 and ($2::text is null or tenant_id = $2)
	`, id, tenantArg(scope))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.Task{}, store.ErrNotFound
	}
	if err != nil {
		return compliance.Task{}, err
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, scope tenant.Scope, filter compliance.TaskFilter) ([]compliance.Task, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		conds = []string{"($1::text is null or tenant_id = $1)"}
		args  = []any{tenantArg(scope)}
		idx   = 2
	)
	if filter.ProgramID != "" {
		conds = append(conds, fmt.Sprintf("program_id = $%d", idx))
		args = append(args, filter.ProgramID)
		idx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.AssigneeID != "" {
		conds = append(conds, fmt.Sprintf("assignee_id = $%d", idx))
		args = append(args, filter.AssigneeID)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		select id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
		from tasks
		where %s
		order by created_at desc
		limit $%d
	`, strings.Join(conds, " and "), idx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []compliance.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateTask(ctx context.Context, scope tenant.Scope, id string, upd compliance.TaskUpdate) (compliance.Task, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", idx))
		args = append(args, *upd.Title)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.AssigneeID != nil {
		sets = append(sets, fmt.Sprintf("assignee_id = $%d", idx))
		args = append(args, nullIfEmpty(*upd.AssigneeID))
		idx++
	}
	if upd.DueAt != nil {
		sets = append(sets, fmt.Sprintf("due_at = $%d", idx))
		args = append(args, *upd.DueAt)
		idx++
	}
	if upd.Metadata != nil {
		meta, err := marshalSettings(upd.Metadata)
		if err != nil {
			return compliance.Task{}, err
		}
		sets = append(sets, fmt.Sprintf("metadata = $%d", idx))
		args = append(args, meta)
		idx++
	}
	if len(sets) == 0 {
		return s.GetTask(ctx, scope, id)
	}

	var updated compliance.Task
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "task",
		action:     "update",
		resourceID: id,
		fetch:      s.fetchTask(id),
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			sets := append(sets, fmt.Sprintf("updated_at = $%d", idx))
			args := append(args, stamped, id)
			query := fmt.Sprintf(`
				update tasks set %s where id = $%d
				returning id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
			`, strings.Join(sets, ", "), idx+1)
			t, err := scanTask(tx.QueryRowContext(ctx, query, args...))
			if err != nil {
				return nil, mapWriteError(err)
			}
			updated = t
			return json.Marshal(t)
		},
	})
	if err != nil {
		return compliance.Task{}, err
	}
	return updated, nil
}

func (s *Store) TransitionTask(ctx context.Context, scope tenant.Scope, id string, to record.Status) (compliance.Task, error) {
	var updated compliance.Task
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "task",
		action:     "transition",
		resourceID: id,
		transition: &to,
		fetch:      s.fetchTask(id),
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				update tasks set status = $1, updated_at = $2 where id = $3
				returning id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
			`, string(to), stamped, id)
			t, err := scanTask(row)
			if err != nil {
				return nil, mapWriteError(err)
			}
			updated = t
			return json.Marshal(t)
		},
	})
	if err != nil {
		return compliance.Task{}, err
	}
	return updated, nil
}

func (s *Store) OverdueCandidates(ctx context.Context, scope tenant.Scope, asOf time.Time) ([]compliance.Task, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
		from tasks
		where status = 'in_progress' and due_at is not null and due_at <= $1
		  and ($2::text is null or tenant_id = $2)
		order by due_at
	`, asOf, tenantArg(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []compliance.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// fetchTask locks a task row for the mutation funnel.
func (s *Store) fetchTask(id string) func(ctx context.Context, tx *sql.Tx) (rowState, error) {
	return func(ctx context.Context, tx *sql.Tx) (rowState, error) {
		row := tx.QueryRowContext(ctx, `
			select id, tenant_id, program_id, title, coalesce(description, ''), status, coalesce(assignee_id, ''), due_at, metadata, created_at, updated_at
			from tasks
			where id = $1
			for update
		`, id)
		t, err := scanTask(row)
		if err != nil {
			return rowState{}, err
		}
		state, err := json.Marshal(t)
		if err != nil {
			return rowState{}, err
		}
		return rowState{TenantID: t.TenantID, Status: t.Status, UpdatedAt: t.UpdatedAt, State: state}, nil
	}
}

func scanProgram(row rowScanner) (compliance.Program, error) {
	var p compliance.Program
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Framework, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return compliance.Program{}, err
	}
	return p, nil
}

func scanTask(row rowScanner) (compliance.Task, error) {
	var (
		t      compliance.Task
		status string
		due    sql.NullTime
		meta   []byte
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.ProgramID, &t.Title, &t.Description, &status,
		&t.AssigneeID, &due, &meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return compliance.Task{}, err
	}
	t.Status = record.Status(status)
	t.DueAt = timePtr(due)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return compliance.Task{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return t, nil
}
