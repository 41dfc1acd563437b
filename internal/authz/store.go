package authz

import (
	"context"

	"veritrail.io/internal/tenant"
)

// Store describes persistence for the permission catalog and grants.
// Catalog reads are unscoped (shared reference data); grant mutations are
// scoped and audited by the backend.
type Store interface {
	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)

	CreateGrant(ctx context.Context, scope tenant.Scope, g *Grant) error
	RevokeGrant(ctx context.Context, scope tenant.Scope, principalID, permission string) error
	GrantsFor(ctx context.Context, principalID string) ([]Grant, error)
}
