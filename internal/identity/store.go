package identity

import (
	"context"

	"veritrail.io/internal/tenant"
)

// Store describes persistence for tenants and principals. Tenant-scoped
// methods take a tenant.Scope and must conjoin the tenant predicate; the
// scope is never optional.
type Store interface {
	CreateTenant(ctx context.Context, scope tenant.Scope, t *Tenant) error
	GetTenant(ctx context.Context, scope tenant.Scope, id string) (Tenant, error)
	ListTenants(ctx context.Context, scope tenant.Scope) ([]Tenant, error)
	UpdateTenant(ctx context.Context, scope tenant.Scope, id string, upd TenantUpdate) (Tenant, error)

	CreatePrincipal(ctx context.Context, scope tenant.Scope, p *Principal) error
	GetPrincipal(ctx context.Context, scope tenant.Scope, id string) (Principal, error)
	ListPrincipals(ctx context.Context, scope tenant.Scope) ([]Principal, error)
	UpdatePrincipal(ctx context.Context, scope tenant.Scope, id string, upd PrincipalUpdate) (Principal, error)

	// PrincipalByEmail is unscoped: it backs login, which runs before any
	// scope exists. Callers must not expose the result across tenants.
	PrincipalByEmail(ctx context.Context, email string) (Principal, error)
}
