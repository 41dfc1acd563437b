// Package tenant defines the request-scoped tenant boundary. A Scope is
// established once per session and threaded explicitly through every
// data-access call; there is no ambient or connection-wide tenant state.
package tenant

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrMissingScope indicates a tenant-scoped code path ran without an
	// established scope. This is a programming defect, not a request error.
	ErrMissingScope = errors.New("tenant: scope missing from context")

	// ErrForbidden indicates the principal does not belong to the tenant it
	// tried to act for.
	ErrForbidden = errors.New("tenant: forbidden")

	// ErrTenantMismatch indicates a write targeted a record owned by another
	// tenant. Callers surface this as not-found.
	ErrTenantMismatch = errors.New("tenant: record belongs to another tenant")
)

// Scope identifies who is acting and which tenant's data is visible. The
// zero value is invalid; construct via ForTenant or SystemScope.
type Scope struct {
	principalID string
	tenantID    string
	allTenants  bool
}

// ForTenant returns a scope limited to a single tenant.
func ForTenant(principalID, tenantID string) Scope {
	return Scope{
		principalID: strings.TrimSpace(principalID),
		tenantID:    strings.TrimSpace(tenantID),
	}
}

// SystemScope returns a cross-tenant scope. It is granted only to system
// principals (seeding, background jobs) and every use is audited.
func SystemScope(principalID string) Scope {
	return Scope{principalID: strings.TrimSpace(principalID), allTenants: true}
}

// PrincipalID returns the acting principal.
func (s Scope) PrincipalID() string { return s.principalID }

// TenantID returns the owning tenant, or "" for a system scope.
func (s Scope) TenantID() string { return s.tenantID }

// AllTenants reports whether the scope crosses tenant boundaries.
func (s Scope) AllTenants() bool { return s.allTenants }

// Valid reports whether the scope was properly constructed.
func (s Scope) Valid() bool {
	if s.principalID == "" {
		return false
	}
	return s.allTenants || s.tenantID != ""
}

// Owns reports whether a record with the given tenant id is visible to the
// scope. Records with an empty tenant id are shared reference data.
func (s Scope) Owns(tenantID string) bool {
	if s.allTenants || tenantID == "" {
		return true
	}
	return s.tenantID == tenantID
}

type scopeContextKey struct{}

// WithScope attaches the scope to the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// FromContext extracts the scope if one was previously attached.
func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	v, ok := ctx.Value(scopeContextKey{}).(Scope)
	if !ok || !v.Valid() {
		return Scope{}, false
	}
	return v, true
}

// Require extracts the scope or fails with ErrMissingScope. An absent scope
// never degrades to all-tenants visibility.
func Require(ctx context.Context) (Scope, error) {
	scope, ok := FromContext(ctx)
	if !ok {
		return Scope{}, ErrMissingScope
	}
	return scope, nil
}
