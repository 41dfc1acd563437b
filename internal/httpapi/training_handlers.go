package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"veritrail.io/internal/authz"
	"veritrail.io/internal/record"
	"veritrail.io/internal/training"
)

type createModuleRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PassScore   float64 `json:"pass_score"`
}

type createEnrollmentRequest struct {
	ModuleID    string     `json:"module_id"`
	PrincipalID string     `json:"principal_id"`
	DueAt       *time.Time `json:"due_at"`
}

type recordScoreRequest struct {
	Score float64 `json:"score"`
}

func (a *API) handleModulesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManageModules) {
			return
		}
		var req createModuleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.training.CreateModule(r.Context(), req.Title, req.Description, req.PassScore)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/modules/%s", m.ID))
		writeJSON(w, http.StatusCreated, m)
	case http.MethodGet:
		modules, err := a.training.ListModules(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": modules})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleModuleResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/modules/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	m, err := a.training.GetModule(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleEnrollmentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManageEnrollment) {
			return
		}
		var req createEnrollmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.training.Enroll(r.Context(), req.ModuleID, req.PrincipalID, req.DueAt)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/enrollments/%s", e.ID))
		writeJSON(w, http.StatusCreated, e)
	case http.MethodGet:
		q := r.URL.Query()
		filter := training.EnrollmentFilter{
			ModuleID:    q.Get("module_id"),
			PrincipalID: q.Get("principal_id"),
		}
		if raw := q.Get("status"); raw != "" {
			status, err := record.Parse(raw)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			filter.Status = status
		}
		enrollments, err := a.training.ListEnrollments(r.Context(), filter)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": enrollments})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleEnrollmentResource serves /v1/enrollments/{id}, .../score and
// .../transition.
func (a *API) handleEnrollmentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/enrollments/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		e, err := a.training.GetEnrollment(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case len(parts) == 2 && parts[1] == "score":
		a.handleEnrollmentScore(w, r, id)
	case len(parts) == 2 && parts[1] == "transition":
		a.handleEnrollmentTransition(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleEnrollmentScore(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, authz.PermManageEnrollment) {
		return
	}
	var req recordScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := a.training.RecordScore(r.Context(), id, req.Score)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleEnrollmentTransition(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, authz.PermManageEnrollment) {
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, err := record.Parse(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := a.training.TransitionEnrollment(r.Context(), id, status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
