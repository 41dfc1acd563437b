package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"veritrail.io/internal/authz"
	"veritrail.io/internal/ids"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

// EnsurePermissions upserts the builtin catalog at startup. Name is the
// stable key; descriptions and classification follow the code.
func (s *Store) EnsurePermissions(ctx context.Context, perms []authz.Permission) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, description, category, resource, action)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (name) do update
			set description = excluded.description,
			    category = excluded.category,
			    resource = excluded.resource,
			    action = excluded.action
		`, id, p.Name, nullIfEmpty(p.Description), p.Category, p.Resource, p.Action); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPermissions reads the whole catalog. Unscoped: the catalog is shared
// reference data.
func (s *Store) ListPermissions(ctx context.Context) ([]authz.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, ''), category, resource, action, created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) CreateGrant(ctx context.Context, scope tenant.Scope, g *authz.Grant) error {
	created := *g
	err := s.applyMutation(ctx, scope, mutation{
		resource:   "grant",
		action:     "create",
		resourceID: g.PrincipalID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			// The subselect binds the grant to a principal the scope can see;
			// a system scope passes nil and sees every principal.
			err := tx.QueryRowContext(ctx, `
				insert into permission_grants (principal_id, permission_id, granted_by, expires_at, created_at)
				select pr.id, p.id, $3, $4, $5
				from permissions p
				join principals pr on pr.id = $1 and ($6::text is null or pr.tenant_id = $6)
				where p.name = $2
				returning created_at
			`, g.PrincipalID, g.Permission, nullIfEmpty(g.GrantedBy), nullTime(g.ExpiresAt), stamped,
				tenantArg(scope)).Scan(&created.CreatedAt)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			if err != nil {
				return nil, mapWriteError(err)
			}
			return json.Marshal(created)
		},
	})
	if err != nil {
		return err
	}
	*g = created
	return nil
}

func (s *Store) RevokeGrant(ctx context.Context, scope tenant.Scope, principalID, permission string) error {
	return s.applyMutation(ctx, scope, mutation{
		resource:   "grant",
		action:     "revoke",
		resourceID: principalID,
		apply: func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error) {
			res, err := tx.ExecContext(ctx, `
				delete from permission_grants g
				using permissions p, principals pr
				where g.permission_id = p.id and p.name = $2
				  and g.principal_id = pr.id and pr.id = $1
				  and ($3::text is null or pr.tenant_id = $3)
			`, principalID, permission, tenantArg(scope))
			if err != nil {
				return nil, err
			}
			aff, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if aff == 0 {
				return nil, store.ErrNotFound
			}
			return json.Marshal(map[string]string{"principal_id": principalID, "permission": permission})
		},
	})
}

// GrantsFor lists a principal's grants, expired ones included; the caller
// filters by expiry.
func (s *Store) GrantsFor(ctx context.Context, principalID string) ([]authz.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select g.principal_id, p.name, coalesce(g.granted_by, ''), g.expires_at, g.created_at
		from permission_grants g
		join permissions p on p.id = g.permission_id
		where g.principal_id = $1
		order by p.name
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []authz.Grant
	for rows.Next() {
		var (
			g   authz.Grant
			exp sql.NullTime
		)
		if err := rows.Scan(&g.PrincipalID, &g.Permission, &g.GrantedBy, &exp, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.ExpiresAt = timePtr(exp)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
