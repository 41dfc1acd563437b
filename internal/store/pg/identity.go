package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritrail.io/internal/identity"
	"veritrail.io/internal/ids"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

func (s *Store) CreateTenant(ctx context.Context, scope tenant.Scope, t *identity.Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	settings, err := marshalSettings(t.Settings)
	if err != nil {
		return err
	}
	created := *t
	err = s.applyMutation(ctx, scope, mutation{
		resource:   "tenant",
		action:     "create",
		resourceID: t.ID,
		tenantID:   t.ID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				insert into tenants (id, name, active, settings, created_at, updated_at)
				values ($1, $2, $3, $4, $5, $5)
				returning id, name, active, settings, created_at, updated_at
			`, t.ID, t.Name, t.Active, settings, stamped)
			out, err := scanTenant(row)
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

func (s *Store) GetTenant(ctx context.Context, scope tenant.Scope, id string) (identity.Tenant, error) {
	if s.db == nil {
		return identity.Tenant{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, name, active, settings, created_at, updated_at
		from tenants
		where id = $1 and ($2::text is null or id = $2)
	`, id, tenantArg(scope))
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Tenant{}, store.ErrNotFound
	}
	if err != nil {
		return identity.Tenant{}, err
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context, scope tenant.Scope) ([]identity.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, active, settings, created_at, updated_at
		from tenants
		where ($1::text is null or id = $1)
		order by name
	`, tenantArg(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
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

func (s *Store) UpdateTenant(ctx context.Context, scope tenant.Scope, id string, upd identity.TenantUpdate) (identity.Tenant, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if upd.Settings != nil {
		settings, err := marshalSettings(upd.Settings)
		if err != nil {
			return identity.Tenant{}, err
		}
		sets = append(sets, fmt.Sprintf("settings = $%d", idx))
		args = append(args, settings)
		idx++
	}
	if len(sets) == 0 {
		return s.GetTenant(ctx, scope, id)
	}

	var updated identity.Tenant
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "tenant",
		action:     "update",
		resourceID: id,
		tenantID:   id,
		fetch: func(ctx context.Context, tx *sql.Tx) (rowState, error) {
			row := tx.QueryRowContext(ctx, `
				select id, name, active, settings, created_at, updated_at
				from tenants
				where id = $1
				for update
			`, id)
			t, err := scanTenant(row)
			if err != nil {
				return rowState{}, err
			}
			state, err := json.Marshal(t)
			if err != nil {
				return rowState{}, err
			}
			return rowState{TenantID: t.ID, UpdatedAt: t.UpdatedAt, State: state}, nil
		},
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			sets := append(sets, fmt.Sprintf("updated_at = $%d", idx))
			args := append(args, stamped, id)
			query := fmt.Sprintf(`
				update tenants set %s where id = $%d
				returning id, name, active, settings, created_at, updated_at
			`, strings.Join(sets, ", "), idx+1)
			t, err := scanTenant(tx.QueryRowContext(ctx, query, args...))
			if err != nil {
				return nil, mapWriteError(err)
			}
			updated = t
			return json.Marshal(t)
		},
	})
	if err != nil {
		return identity.Tenant{}, err
	}
	return updated, nil
}

func (s *Store) CreatePrincipal(ctx context.Context, scope tenant.Scope, p *identity.Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	created := *p
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "principal",
		action:     "create",
		resourceID: p.ID,
		tenantID:   p.TenantID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			row := tx.QueryRowContext(ctx, `
				insert into principals (id, tenant_id, email, role, status, system, password_hash, created_at, updated_at)
				values ($1, $2, $3, $4, $5, $6, $7, $8, $8)
				returning id, coalesce(tenant_id, ''), email, role, status, system, created_at, updated_at
			`, p.ID, nullIfEmpty(p.TenantID), p.Email, p.Role, p.Status, p.System, p.PasswordHash, stamped)
			out, err := scanPrincipal(row)
			if err != nil {
				return nil, mapWriteError(err)
			}
			out.PasswordHash = p.PasswordHash
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

func (s *Store) GetPrincipal(ctx context.Context, scope tenant.Scope, id string) (identity.Principal, error) {
	if s.db == nil {
		return identity.Principal{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, coalesce(tenant_id, ''), email, role, status, system, created_at, updated_at
		from principals
		where id = $1 and ($2::text is null or tenant_id = $2)
	`, id, tenantArg(scope))
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Principal{}, store.ErrNotFound
	}
	if err != nil {
		return identity.Principal{}, err
	}
	return p, nil
}

func (s *Store) ListPrincipals(ctx context.Context, scope tenant.Scope) ([]identity.Principal, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(tenant_id, ''), email, role, status, system, created_at, updated_at
		from principals
		where ($1::text is null or tenant_id = $1)
		order by email
	`, tenantArg(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
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

func (s *Store) UpdatePrincipal(ctx context.Context, scope tenant.Scope, id string, upd identity.PrincipalUpdate) (identity.Principal, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", idx))
		args = append(args, *upd.Role)
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if upd.Password != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.Password)
		idx++
	}
	if len(sets) == 0 {
		return s.GetPrincipal(ctx, scope, id)
	}

	var updated identity.Principal
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "principal",
		action:     "update",
		resourceID: id,
		fetch: func(ctx context.Context, tx *sql.Tx) (rowState, error) {
			row := tx.QueryRowContext(ctx, `
				select id, coalesce(tenant_id, ''), email, role, status, system, created_at, updated_at
				from principals
				where id = $1
				for update
			`, id)
			p, err := scanPrincipal(row)
			if err != nil {
				return rowState{}, err
			}
			state, err := json.Marshal(p)
			if err != nil {
				return rowState{}, err
			}
			return rowState{TenantID: p.TenantID, UpdatedAt: p.UpdatedAt, State: state}, nil
		},
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			sets := append(sets, fmt.Sprintf("updated_at = $%d", idx))
			args := append(args, stamped, id)
			query := fmt.Sprintf(`
				update principals set %s where id = $%d
				returning id, coalesce(tenant_id, ''), email, role, status, system, created_at, updated_at
			`, strings.Join(sets, ", "), idx+1)
			p, err := scanPrincipal(tx.QueryRowContext(ctx, query, args...))
			if err != nil {
				return nil, mapWriteError(err)
			}
			updated = p
			return json.Marshal(p)
		},
	})
	if err != nil {
		return identity.Principal{}, err
	}
	return updated, nil
}

// PrincipalByEmail backs login: unscoped, and the only read that surfaces
// the password hash.
func (s *Store) PrincipalByEmail(ctx context.Context, email string) (identity.Principal, error) {
	if s.db == nil {
		return identity.Principal{}, errors.New("database connection unavailable")
	}
	var p identity.Principal
	err := s.db.QueryRowContext(ctx, `
		select id, coalesce(tenant_id, ''), email, role, status, system, password_hash, created_at, updated_at
		from principals
		where email = $1
	`, email).Scan(&p.ID, &p.TenantID, &p.Email, &p.Role, &p.Status, &p.System, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Principal{}, store.ErrNotFound
	}
	if err != nil {
		return identity.Principal{}, err
	}
	return p, nil
}

// PrincipalByID backs session establishment and refresh; unscoped.
func (s *Store) PrincipalByID(ctx context.Context, id string) (identity.Principal, error) {
	if s.db == nil {
		return identity.Principal{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select id, coalesce(tenant_id, ''), email, role, status, system, created_at, updated_at
		from principals
		where id = $1
	`, id)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Principal{}, store.ErrNotFound
	}
	if err != nil {
		return identity.Principal{}, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (identity.Tenant, error) {
	var (
		t   identity.Tenant
		raw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Active, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return identity.Tenant{}, err
	}
	t.Settings = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Settings); err != nil {
			return identity.Tenant{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return t, nil
}

func scanPrincipal(row rowScanner) (identity.Principal, error) {
	var p identity.Principal
	if err := row.Scan(&p.ID, &p.TenantID, &p.Email, &p.Role, &p.Status, &p.System, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return identity.Principal{}, err
	}
	return p, nil
}

func marshalSettings(settings map[string]any) ([]byte, error) {
	if len(settings) == 0 {
		return []byte("{}"), nil
	}
	bytes, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return bytes, nil
}
