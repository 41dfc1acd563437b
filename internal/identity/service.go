package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
)

// Service validates and executes tenant and principal provisioning.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(st Store) (*Service, error) {
	if st == nil {
		return nil, errors.New("identity store is required")
	}
	return &Service{store: st}, nil
}

// CreateTenant provisions a tenant. Only a system scope may do this.
func (s *Service) CreateTenant(ctx context.Context, scope tenant.Scope, name string, settings map[string]any) (Tenant, error) {
	if !scope.AllTenants() {
		return Tenant{}, tenant.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("%w: tenant name is required", store.ErrInvalidInput)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	t := Tenant{Name: name, Active: true, Settings: settings}
	if err := s.store.CreateTenant(ctx, scope, &t); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// GetTenant loads a tenant visible to the scope.
func (s *Service) GetTenant(ctx context.Context, scope tenant.Scope, id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("%w: tenant_id is required", store.ErrInvalidInput)
	}
	return s.store.GetTenant(ctx, scope, id)
}

// ListTenants lists tenants visible to the scope. A tenant-bound scope sees
// only its own tenant.
func (s *Service) ListTenants(ctx context.Context, scope tenant.Scope) ([]Tenant, error) {
	return s.store.ListTenants(ctx, scope)
}

// UpdateTenant applies tenant field changes.
func (s *Service) UpdateTenant(ctx context.Context, scope tenant.Scope, id string, upd TenantUpdate) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("%w: tenant_id is required", store.ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return Tenant{}, fmt.Errorf("%w: tenant name is required", store.ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	return s.store.UpdateTenant(ctx, scope, id, upd)
}

// CreatePrincipal provisions a principal in the scope's tenant. A system
// scope must name the target tenant explicitly via tenantID.
func (s *Service) CreatePrincipal(ctx context.Context, scope tenant.Scope, tenantID, email, password, role string) (Principal, error) {
	tenantID = strings.TrimSpace(tenantID)
	if scope.AllTenants() {
		if tenantID == "" {
			return Principal{}, fmt.Errorf("%w: tenant_id is required", store.ErrInvalidInput)
		}
	} else {
		if tenantID != "" && tenantID != scope.TenantID() {
			return Principal{}, tenant.ErrTenantMismatch
		}
		tenantID = scope.TenantID()
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Principal{}, fmt.Errorf("%w: valid email is required", store.ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return Principal{}, fmt.Errorf("%w: password is required", store.ErrInvalidInput)
	}
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = "member"
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		TenantID:     tenantID,
		Email:        email,
		Role:         role,
		Status:       PrincipalStatusActive,
		PasswordHash: hash,
	}
	if err := s.store.CreatePrincipal(ctx, scope, &p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// EnsureSystemPrincipal provisions the first operator account on an empty
// database. Idempotent: an existing principal with the email is returned
// as-is with created false. Only a system scope may call it.
func (s *Service) EnsureSystemPrincipal(ctx context.Context, scope tenant.Scope, email, password string) (Principal, bool, error) {
	if !scope.AllTenants() {
		return Principal{}, false, tenant.ErrForbidden
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Principal{}, false, fmt.Errorf("%w: valid email is required", store.ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return Principal{}, false, fmt.Errorf("%w: password is required", store.ErrInvalidInput)
	}
	existing, err := s.store.PrincipalByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Principal{}, false, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Principal{}, false, err
	}
	p := Principal{
		Email:        email,
		Role:         "admin",
		Status:       PrincipalStatusActive,
		System:       true,
		PasswordHash: hash,
	}
	if err := s.store.CreatePrincipal(ctx, scope, &p); err != nil {
		return Principal{}, false, err
	}
	return p, true, nil
}

// GetPrincipal loads a principal visible to the scope.
func (s *Service) GetPrincipal(ctx context.Context, scope tenant.Scope, id string) (Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Principal{}, fmt.Errorf("%w: principal_id is required", store.ErrInvalidInput)
	}
	return s.store.GetPrincipal(ctx, scope, id)
}

// ListPrincipals lists the scope's principals.
func (s *Service) ListPrincipals(ctx context.Context, scope tenant.Scope) ([]Principal, error) {
	return s.store.ListPrincipals(ctx, scope)
}

// UpdatePrincipal applies principal field changes.
func (s *Service) UpdatePrincipal(ctx context.Context, scope tenant.Scope, id string, upd PrincipalUpdate) (Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Principal{}, fmt.Errorf("%w: principal_id is required", store.ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return Principal{}, fmt.Errorf("%w: valid email is required", store.ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		if status != PrincipalStatusActive && status != PrincipalStatusDisabled {
			return Principal{}, fmt.Errorf("%w: unsupported status %s", store.ErrInvalidInput, status)
		}
		upd.Status = &status
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return Principal{}, fmt.Errorf("%w: password is required", store.ErrInvalidInput)
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return Principal{}, err
		}
		upd.Password = &hash
	}
	return s.store.UpdatePrincipal(ctx, scope, id, upd)
}
