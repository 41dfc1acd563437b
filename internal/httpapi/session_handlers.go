package httpapi

import (
	"errors"
	"net/http"

	"veritrail.io/internal/session"
	"veritrail.io/internal/tenant"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	SessionToken string `json:"session_token"`
}

type sessionResponse struct {
	session.TokenPair
	TenantID string `json:"tenant_id,omitempty"`
	System   bool   `json:"system,omitempty"`
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, scope, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		TokenPair: pair,
		TenantID:  scope.TenantID(),
		System:    scope.AllTenants(),
	})
}

func (a *API) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, scope, err := a.sessions.Refresh(r.Context(), req.SessionToken)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		TokenPair: pair,
		TenantID:  scope.TenantID(),
		System:    scope.AllTenants(),
	})
}

func (a *API) handleSessionCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	if err := a.sessions.End(r.Context(), token); err != nil {
		handleSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, tenant.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		handleDomainError(w, r, err)
	}
}
