package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"veritrail.io/internal/audit"
	"veritrail.io/internal/ids"
	"veritrail.io/internal/obs"
	"veritrail.io/internal/record"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

// rowState is what a mutation fetch returns: enough of the locked row to
// check ownership, validate the workflow transition and build the audit
// entry's old-state snapshot.
type rowState struct {
	TenantID  string
	Status    record.Status
	UpdatedAt time.Time
	State     json.RawMessage
}

// mutation describes one audited state change. fetch locks and reads the
// current row (nil for creates); apply performs the write using the stamped
// timestamp and returns the new-state snapshot.
type mutation struct {
	resource   string
	action     string
	resourceID string

	// tenantID overrides the audit entry's tenant when it differs from the
	// scope's (tenant records owned under a system scope).
	tenantID string

	// transition, when set, is validated against the fetched status before
	// apply runs.
	transition *record.Status

	fetch func(ctx context.Context, tx *sql.Tx) (rowState, error)
	apply func(ctx context.Context, tx *sql.Tx, stamped time.Time) (json.RawMessage, error)
}

// applyMutation runs one mutation and its audit entry in a single
// transaction. Both commit or neither does. The sequence is fixed: lock,
// ownership check, transition check, stamp, write, audit, commit.
func (s *Store) applyMutation(ctx context.Context, scope tenant.Scope, m mutation) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if !scope.Valid() {
		return tenant.ErrMissingScope
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	stamped := now
	var prev rowState
	if m.fetch != nil {
		prev, err = m.fetch(ctx, tx)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !scope.Owns(prev.TenantID) {
			return tenant.ErrTenantMismatch
		}
		if m.transition != nil {
			if err := record.Transition(prev.Status, *m.transition); err != nil {
				return err
			}
		}
		stamped = record.StampUpdated(prev.UpdatedAt, now)
	}

	newState, err := m.apply(ctx, tx, stamped)
	if err != nil {
		return err
	}

	entryTenant := scope.TenantID()
	if m.tenantID != "" {
		entryTenant = m.tenantID
	}
	entry := audit.Entry{
		ID:           ids.New(),
		TenantID:     entryTenant,
		ActorID:      scope.PrincipalID(),
		Action:       m.action,
		ResourceType: m.resource,
		ResourceID:   m.resourceID,
		OldState:     prev.State,
		NewState:     newState,
		RequestID:    audit.RequestIDFromContext(ctx),
		OccurredAt:   stamped,
	}
	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	obs.MutationApplied(m.resource, m.action)
	return nil
}

func insertAuditEntry(ctx context.Context, tx *sql.Tx, e audit.Entry) error {
	_, err := tx.ExecContext(ctx, `
		insert into audit_entries (id, tenant_id, actor_id, action, resource_type, resource_id, old_state, new_state, request_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, nullIfEmpty(e.TenantID), nullIfEmpty(e.ActorID), e.Action, e.ResourceType, e.ResourceID,
		rawOrNil(e.OldState), rawOrNil(e.NewState), nullIfEmpty(e.RequestID), e.OccurredAt)
	return err
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
