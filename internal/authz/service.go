package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

// Service resolves permissions from grant state plus wall-clock time.
type Service struct {
	store Store
	now   func() time.Time

	// mu guards catalog; grants run concurrently with catalog reloads.
	mu      sync.RWMutex
	catalog map[string]struct{}
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(st Store, opts ...ServiceOption) (*Service, error) {
	if st == nil {
		return nil, errors.New("authz store is required")
	}
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins seeds the builtin permission catalog and caches known names.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	if err := s.store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return err
	}
	return s.reloadCatalog(ctx)
}

func (s *Service) reloadCatalog(ctx context.Context) error {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return err
	}
	catalog := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		catalog[p.Name] = struct{}{}
	}
	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()
	return nil
}

// catalogHas reports whether name is in the cached catalog. loaded is false
// until EnsureBuiltins has populated the cache; before that the store is the
// only authority.
func (s *Service) catalogHas(name string) (known, loaded bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return false, false
	}
	_, ok := s.catalog[name]
	return ok, true
}

// ListPermissions returns the catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// HasPermission reports whether the principal holds an unexpired grant for
// name. Unknown permission names yield false, never an error: typos fail
// closed.
func (s *Service) HasPermission(ctx context.Context, principalID, name string) (bool, error) {
	principalID = strings.TrimSpace(principalID)
	name = strings.TrimSpace(name)
	if principalID == "" || name == "" {
		return false, nil
	}
	grants, err := s.store.GrantsFor(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_, ok := Resolve(grants, s.now())[name]
	return ok, nil
}

// Resolve returns the set of permission names held by the grants at now,
// filtering expired entries. Pure function; no store access.
func Resolve(grants []Grant, now time.Time) map[string]struct{} {
	set := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		set[g.Permission] = struct{}{}
	}
	return set
}

// GrantPermission records a grant after checking the permission exists.
func (s *Service) GrantPermission(ctx context.Context, scope tenant.Scope, principalID, name string, expiresAt *time.Time) (Grant, error) {
	principalID = strings.TrimSpace(principalID)
	name = strings.TrimSpace(name)
	if principalID == "" || name == "" {
		return Grant{}, fmt.Errorf("%w: principal_id and permission are required", store.ErrInvalidInput)
	}
	if known, loaded := s.catalogHas(name); loaded && !known {
		if err := s.reloadCatalog(ctx); err != nil {
			return Grant{}, err
		}
		if known, _ := s.catalogHas(name); !known {
			return Grant{}, fmt.Errorf("%w: permission %s", store.ErrNotFound, name)
		}
	}
	g := Grant{
		PrincipalID: principalID,
		Permission:  name,
		GrantedBy:   scope.PrincipalID(),
		ExpiresAt:   expiresAt,
	}
	if err := s.store.CreateGrant(ctx, scope, &g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// RevokePermission removes a grant.
func (s *Service) RevokePermission(ctx context.Context, scope tenant.Scope, principalID, name string) error {
	principalID = strings.TrimSpace(principalID)
	name = strings.TrimSpace(name)
	if principalID == "" || name == "" {
		return fmt.Errorf("%w: principal_id and permission are required", store.ErrInvalidInput)
	}
	return s.store.RevokeGrant(ctx, scope, principalID, name)
}

// GrantsFor lists a principal's grants, including expired ones.
func (s *Service) GrantsFor(ctx context.Context, principalID string) ([]Grant, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal_id is required", store.ErrInvalidInput)
	}
	return s.store.GrantsFor(ctx, principalID)
}
