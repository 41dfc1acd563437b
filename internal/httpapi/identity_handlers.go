package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"veritrail.io/internal/authz"
	"veritrail.io/internal/identity"
	"veritrail.io/internal/tenant"
)

type createTenantRequest struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings"`
}

type updateTenantRequest struct {
	Name     *string        `json:"name"`
	Active   *bool          `json:"active"`
	Settings map[string]any `json:"settings"`
}

type createPrincipalRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updatePrincipalRequest struct {
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Password *string `json:"password"`
}

type createGrantRequest struct {
	Permission string     `json:"permission"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (a *API) handleTenantsCollection(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManageTenants) {
			return
		}
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.identity.CreateTenant(r.Context(), scope, req.Name, req.Settings)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", t.ID))
		writeJSON(w, http.StatusCreated, t)
	case http.MethodGet:
		tenants, err := a.identity.ListTenants(r.Context(), scope)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		t, err := a.identity.GetTenant(r.Context(), scope, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		if !a.requirePermission(w, r, authz.PermManageTenants) {
			return
		}
		var req updateTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.identity.UpdateTenant(r.Context(), scope, id, identity.TenantUpdate{
			Name:     req.Name,
			Active:   req.Active,
			Settings: req.Settings,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handlePrincipalsCollection(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManagePrincipals) {
			return
		}
		var req createPrincipalRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.identity.CreatePrincipal(r.Context(), scope, req.TenantID, req.Email, req.Password, req.Role)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/principals/%s", p.ID))
		writeJSON(w, http.StatusCreated, p)
	case http.MethodGet:
		principals, err := a.identity.ListPrincipals(r.Context(), scope)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": principals})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handlePrincipalResource serves /v1/principals/{id}, its grants collection
// and single-grant revocation.
func (a *API) handlePrincipalResource(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/principals/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handlePrincipal(w, r, scope, id)
	case len(parts) == 2 && parts[1] == "grants":
		a.handlePrincipalGrants(w, r, scope, id)
	case len(parts) == 3 && parts[1] == "grants":
		a.handlePrincipalGrant(w, r, scope, id, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePrincipal(w http.ResponseWriter, r *http.Request, scope tenant.Scope, id string) {
	switch r.Method {
	case http.MethodGet:
		p, err := a.identity.GetPrincipal(r.Context(), scope, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPatch:
		if !a.requirePermission(w, r, authz.PermManagePrincipals) {
			return
		}
		var req updatePrincipalRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.identity.UpdatePrincipal(r.Context(), scope, id, identity.PrincipalUpdate{
			Email:    req.Email,
			Role:     req.Role,
			Status:   req.Status,
			Password: req.Password,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handlePrincipalGrants(w http.ResponseWriter, r *http.Request, scope tenant.Scope, principalID string) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManageGrants) {
			return
		}
		var req createGrantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		// The grant must target a principal the scope can see.
		if _, err := a.identity.GetPrincipal(r.Context(), scope, principalID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		g, err := a.authz.GrantPermission(r.Context(), scope, principalID, req.Permission, req.ExpiresAt)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	case http.MethodGet:
		if _, err := a.identity.GetPrincipal(r.Context(), scope, principalID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		grants, err := a.authz.GrantsFor(r.Context(), principalID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": grants})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handlePrincipalGrant(w http.ResponseWriter, r *http.Request, scope tenant.Scope, principalID, permission string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, authz.PermManageGrants) {
		return
	}
	if err := a.authz.RevokePermission(r.Context(), scope, principalID, permission); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := tenant.Require(r.Context()); err != nil {
		handleDomainError(w, r, err)
		return
	}
	perms, err := a.authz.ListPermissions(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": perms})
}
