package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"veritrail.io/internal/authz"
	"veritrail.io/internal/compliance"
	"veritrail.io/internal/record"
)

type createProgramRequest struct {
	Name      string `json:"name"`
	Framework string `json:"framework"`
}

type createTaskRequest struct {
	ProgramID   string         `json:"program_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	AssigneeID  string         `json:"assignee_id"`
	DueAt       *time.Time     `json:"due_at"`
	Metadata    map[string]any `json:"metadata"`
}

type updateTaskRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	AssigneeID  *string        `json:"assignee_id"`
	DueAt       *time.Time     `json:"due_at"`
	Metadata    map[string]any `json:"metadata"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (a *API) handleProgramsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManagePrograms) {
			return
		}
		var req createProgramRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.compliance.CreateProgram(r.Context(), req.Name, req.Framework)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/programs/%s", p.ID))
		writeJSON(w, http.StatusCreated, p)
	case http.MethodGet:
		programs, err := a.compliance.ListPrograms(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": programs})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleProgramResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/programs/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, err := a.compliance.GetProgram(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.requirePermission(w, r, authz.PermManageTasks) {
			return
		}
		var req createTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.compliance.CreateTask(r.Context(), req.ProgramID, req.Title, req.Description, req.AssigneeID, req.DueAt, req.Metadata)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/tasks/%s", t.ID))
		writeJSON(w, http.StatusCreated, t)
	case http.MethodGet:
		q := r.URL.Query()
		filter := compliance.TaskFilter{
			ProgramID:  q.Get("program_id"),
			AssigneeID: q.Get("assignee_id"),
		}
		if raw := q.Get("status"); raw != "" {
			status, err := record.Parse(raw)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			filter.Status = status
		}
		tasks, err := a.compliance.ListTasks(r.Context(), filter)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tasks})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleTaskResource serves /v1/tasks/{id} and /v1/tasks/{id}/transition.
func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tasks/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		a.handleTask(w, r, id)
	case len(parts) == 2 && parts[1] == "transition":
		a.handleTaskTransition(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTask(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		t, err := a.compliance.GetTask(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		if !a.requirePermission(w, r, authz.PermManageTasks) {
			return
		}
		var req updateTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.compliance.UpdateTask(r.Context(), id, compliance.TaskUpdate{
			Title:       req.Title,
			Description: req.Description,
			AssigneeID:  req.AssigneeID,
			DueAt:       req.DueAt,
			Metadata:    req.Metadata,
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

func (a *API) handleTaskTransition(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, authz.PermManageTasks) {
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
	t, err := a.compliance.TransitionTask(r.Context(), id, status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
