package httpapi

import (
	"net/http"
	"strconv"

	"veritrail.io/internal/audit"
	"veritrail.io/internal/authz"
	"veritrail.io/internal/tenant"
)

// handleAuditTrail lists audit entries visible to the scope.
func (a *API) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	scope, err := tenant.Require(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !a.requirePermission(w, r, authz.PermReadAudit) {
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		ActorID:      q.Get("actor_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	entries, err := a.trail.ListEntries(r.Context(), scope, filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
