package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"veritrail.io/internal/audit"
	"veritrail.io/internal/tenant"
)

// ListEntries reads the audit trail. Appends happen only inside
// applyMutation; there is no write path through this interface.
func (s *Store) ListEntries(ctx context.Context, scope tenant.Scope, filter audit.Filter) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		conds = []string{"($1::text is null or tenant_id = $1)"}
		args  = []any{tenantArg(scope)}
		idx   = 2
	)
	if filter.ResourceType != "" {
		conds = append(conds, fmt.Sprintf("resource_type = $%d", idx))
		args = append(args, filter.ResourceType)
		idx++
	}
	if filter.ResourceID != "" {
		conds = append(conds, fmt.Sprintf("resource_id = $%d", idx))
		args = append(args, filter.ResourceID)
		idx++
	}
	if filter.ActorID != "" {
		conds = append(conds, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, filter.ActorID)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		select id, coalesce(tenant_id, ''), coalesce(actor_id, ''), action, resource_type, resource_id, old_state, new_state, coalesce(request_id, ''), occurred_at
		from audit_entries
		where %s
		order by occurred_at desc
		limit $%d
	`, strings.Join(conds, " and "), idx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			oldState []byte
			newState []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &oldState, &newState, &e.RequestID, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.OldState = oldState
		e.NewState = newState
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
