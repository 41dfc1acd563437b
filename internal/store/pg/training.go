package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritrail.io/internal/record"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
	"veritrail.io/internal/training"
)

func (s *Store) CreateModule(ctx context.Context, scope tenant.Scope, m *training.Module) error {
	created := *m
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "module",
		action:     "create",
		resourceID: m.ID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				insert into modules (id, tenant_id, title, description, pass_score, active, created_at, updated_at)
				values ($1, $2, $3, $4, $5, $6, $7, $7)
				returning id, tenant_id, title, coalesce(description, ''), pass_score, active, created_at, updated_at
			`, m.ID, m.TenantID, m.Title, nullIfEmpty(m.Description), m.PassScore, m.Active, stamped)
			out, err := scanModule(row)
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
	*m = created
	return nil
}

func (s *Store) GetModule(ctx context.Context, scope tenant.Scope, id string) (training.Module, error) {
	if s.db == nil {
		return training.Module{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, tenant_id, title, coalesce(description, ''), pass_score, active, created_at, updated_at
		from modules
		where id = $1 and ($2::text is null or tenant_id = $2)
	`, id, tenantArg(scope))
	m, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return training.Module{}, store.ErrNotFound
	}
	if err != nil {
		return training.Module{}, err
	}
	return m, nil
}

func (s *Store) ListModules(ctx context.Context, scope tenant.Scope) ([]training.Module, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, title, coalesce(description, ''), pass_score, active, created_at, updated_at
		from modules
		where ($1::text is null or tenant_id = $1)
		order by title
	`, tenantArg(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []training.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateEnrollment(ctx context.Context, scope tenant.Scope, e *training.Enrollment) error {
	created := *e
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "enrollment",
		action:     "create",
		resourceID: e.ID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				insert into enrollments (id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at)
				values ($1, $2, $3, $4, $5, $6, $7, $8, $8)
				returning id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at
			`, e.ID, e.TenantID, e.ModuleID, e.PrincipalID, string(e.Status),
				nullFloat(e.Score), nullTime(e.DueAt), stamped)
			out, err := scanEnrollment(row)
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
	*e = created
	return nil
}

func (s *Store) GetEnrollment(ctx context.Context, scope tenant.Scope, id string) (training.Enrollment, error) {
	if s.db == nil {
		return training.Enrollment{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at
		from enrollments
		where id = $1 and ($2::text is null or tenant_id = $2)
	`, id, tenantArg(scope))
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return training.Enrollment{}, store.ErrNotFound
	}
	if err != nil {
		return training.Enrollment{}, err
	}
	return e, nil
}

func (s *Store) ListEnrollments(ctx context.Context, scope tenant.Scope, filter training.EnrollmentFilter) ([]training.Enrollment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		conds = []string{"($1::text is null or tenant_id = $1)"}
		args  = []any{tenantArg(scope)}
		idx   = 2
	)
	if filter.ModuleID != "" {
		conds = append(conds, fmt.Sprintf("module_id = $%d", idx))
		args = append(args, filter.ModuleID)
		idx++
	}
	if filter.PrincipalID != "" {
		conds = append(conds, fmt.Sprintf("principal_id = $%d", idx))
		args = append(args, filter.PrincipalID)
		idx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(filter.Status))
		idx++
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		select id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at
		from enrollments
		where %s
		order by created_at desc
		limit $%d
	`, strings.Join(conds, " and "), idx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []training.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateEnrollment(ctx context.Context, scope tenant.Scope, id string, upd training.EnrollmentUpdate) (training.Enrollment, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Score != nil {
		sets = append(sets, fmt.Sprintf("score = $%d", idx))
		args = append(args, *upd.Score)
		idx++
	}
	if upd.DueAt != nil {
		sets = append(sets, fmt.Sprintf("due_at = $%d", idx))
		args = append(args, *upd.DueAt)
		idx++
	}
	if len(sets) == 0 {
		return s.GetEnrollment(ctx, scope, id)
	}

	var updated training.Enrollment
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "enrollment",
		action:     "update",
		resourceID: id,
		fetch:      s.fetchEnrollment(id),
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			sets := append(sets, fmt.Sprintf("updated_at = $%d", idx))
			args := append(args, stamped, id)
			query := fmt.Sprintf(`
				update enrollments set %s where id = $%d
				returning id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at
			`, strings.Join(sets, ", "), idx+1)
			e, err := scanEnrollment(tx.QueryRowContext(ctx, query, args...))
			if err != nil {
				return nil, mapWriteError(err)
			}
			updated = e
			return json.Marshal(e)
		},
	})
	if err != nil {
		return training.Enrollment{}, err
	}
	return updated, nil
}

func (s *Store) TransitionEnrollment(ctx context.Context, scope tenant.Scope, id string, to record.Status) (training.Enrollment, error) {
	var updated training.Enrollment
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "enrollment",
		action:     "transition",
		resourceID: id,
		transition: &to,
		fetch:      s.fetchEnrollment(id),
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				update enrollments set status = $1, updated_at = $2 where id = $3
				returning id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at
			`, string(to), stamped, id)
			e, err := scanEnrollment(row)
			if err != nil {
				return nil, mapWriteError(err)
			}
			updated = e
			return json.Marshal(e)
		},
	})
	if err != nil {
		return training.Enrollment{}, err
	}
	return updated, nil
}

func (s *Store) fetchEnrollment(id string) func(ctx context.Context, tx *sql.Tx) (rowState, error) {
	return func(ctx context.Context, tx *sql.Tx) (rowState, error) {
		row := tx.QueryRowContext(ctx, `
			select id, tenant_id, module_id, principal_id, status, score, due_at, created_at, updated_at
			from enrollments
			where id = $1
			for update
		`, id)
		e, err := scanEnrollment(row)
		if err != nil {
			return rowState{}, err
		}
		state, err := json.Marshal(e)
		if err != nil {
			return rowState{}, err
		}
		return rowState{TenantID: e.TenantID, Status: e.Status, UpdatedAt: e.UpdatedAt, State: state}, nil
	}
}

func scanModule(row rowScanner) (training.Module, error) {
	var m training.Module
	if err := row.Scan(&m.ID, &m.TenantID, &m.Title, &m.Description, &m.PassScore, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return training.Module{}, err
	}
	return m, nil
}

func scanEnrollment(row rowScanner) (training.Enrollment, error) {
	var (
		e      training.Enrollment
		status string
		score  sql.NullFloat64
		due    sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.ModuleID, &e.PrincipalID, &status, &score, &due, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return training.Enrollment{}, err
	}
	e.Status = record.Status(status)
	if score.Valid {
		v := score.Float64
		e.Score = &v
	}
	e.DueAt = timePtr(due)
	return e, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
