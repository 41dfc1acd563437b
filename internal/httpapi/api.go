package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"veritrail.io/internal/audit"
	"veritrail.io/internal/authz"
	"veritrail.io/internal/compliance"
	"veritrail.io/internal/identity"
	"veritrail.io/internal/obs"
	"veritrail.io/internal/record"
	"veritrail.io/internal/session"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
	"veritrail.io/internal/training"
)

// SessionService establishes and validates sessions.
type SessionService interface {
	Login(ctx context.Context, email, password string) (session.TokenPair, tenant.Scope, error)
	Refresh(ctx context.Context, sessionToken string) (session.TokenPair, tenant.Scope, error)
	Authenticate(ctx context.Context, accessToken string) (tenant.Scope, error)
	End(ctx context.Context, accessToken string) error
}

// IdentityService provisions tenants and principals.
type IdentityService interface {
	CreateTenant(ctx context.Context, scope tenant.Scope, name string, settings map[string]any) (identity.Tenant, error)
	GetTenant(ctx context.Context, scope tenant.Scope, id string) (identity.Tenant, error)
	ListTenants(ctx context.Context, scope tenant.Scope) ([]identity.Tenant, error)
	UpdateTenant(ctx context.Context, scope tenant.Scope, id string, upd identity.TenantUpdate) (identity.Tenant, error)
	CreatePrincipal(ctx context.Context, scope tenant.Scope, tenantID, email, password, role string) (identity.Principal, error)
	GetPrincipal(ctx context.Context, scope tenant.Scope, id string) (identity.Principal, error)
	ListPrincipals(ctx context.Context, scope tenant.Scope) ([]identity.Principal, error)
	UpdatePrincipal(ctx context.Context, scope tenant.Scope, id string, upd identity.PrincipalUpdate) (identity.Principal, error)
}

// AuthzService answers permission questions and manages grants.
type AuthzService interface {
	ListPermissions(ctx context.Context) ([]authz.Permission, error)
	HasPermission(ctx context.Context, principalID, name string) (bool, error)
	GrantPermission(ctx context.Context, scope tenant.Scope, principalID, name string, expiresAt *time.Time) (authz.Grant, error)
	RevokePermission(ctx context.Context, scope tenant.Scope, principalID, name string) error
	GrantsFor(ctx context.Context, principalID string) ([]authz.Grant, error)
}

// ComplianceService manages programs and tasks.
type ComplianceService interface {
	CreateProgram(ctx context.Context, name, framework string) (compliance.Program, error)
	GetProgram(ctx context.Context, id string) (compliance.Program, error)
	ListPrograms(ctx context.Context) ([]compliance.Program, error)
	CreateTask(ctx context.Context, programID, title, description, assigneeID string, dueAt *time.Time, metadata map[string]any) (compliance.Task, error)
	GetTask(ctx context.Context, id string) (compliance.Task, error)
	ListTasks(ctx context.Context, filter compliance.TaskFilter) ([]compliance.Task, error)
	UpdateTask(ctx context.Context, id string, upd compliance.TaskUpdate) (compliance.Task, error)
	TransitionTask(ctx context.Context, id string, to record.Status) (compliance.Task, error)
}

// TrainingService manages modules and enrollments.
type TrainingService interface {
	CreateModule(ctx context.Context, title, description string, passScore float64) (training.Module, error)
	GetModule(ctx context.Context, id string) (training.Module, error)
	ListModules(ctx context.Context) ([]training.Module, error)
	Enroll(ctx context.Context, moduleID, principalID string, dueAt *time.Time) (training.Enrollment, error)
	GetEnrollment(ctx context.Context, id string) (training.Enrollment, error)
	ListEnrollments(ctx context.Context, filter training.EnrollmentFilter) ([]training.Enrollment, error)
	RecordScore(ctx context.Context, id string, score float64) (training.Enrollment, error)
	TransitionEnrollment(ctx context.Context, id string, to record.Status) (training.Enrollment, error)
}

// AuditReader reads the audit trail.
type AuditReader interface {
	ListEntries(ctx context.Context, scope tenant.Scope, filter audit.Filter) ([]audit.Entry, error)
}

// ReadyProbe checks backing-store liveness for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	sessions   SessionService
	identity   IdentityService
	authz      AuthzService
	compliance ComplianceService
	training   TrainingService
	trail      AuditReader
	readyProbe ReadyProbe
	version    string
}

// Services bundles the dependencies the API serves.
type Services struct {
	Sessions   SessionService
	Identity   IdentityService
	Authz      AuthzService
	Compliance ComplianceService
	Training   TrainingService
	Trail      AuditReader
}

func New(svcs Services, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		sessions:   svcs.Sessions,
		identity:   svcs.Identity,
		authz:      svcs.Authz,
		compliance: svcs.Compliance,
		training:   svcs.Training,
		trail:      svcs.Trail,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sessions
	a.mux.HandleFunc("/v1/sessions", a.handleSessions)
	a.mux.HandleFunc("/v1/sessions/refresh", a.handleSessionRefresh)
	a.mux.HandleFunc("/v1/sessions/current", a.handleSessionCurrent)

	// identity + grants
	a.mux.HandleFunc("/v1/tenants", a.handleTenantsCollection)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantResource)
	a.mux.HandleFunc("/v1/principals", a.handlePrincipalsCollection)
	a.mux.HandleFunc("/v1/principals/", a.handlePrincipalResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)

	// compliance
	a.mux.HandleFunc("/v1/programs", a.handleProgramsCollection)
	a.mux.HandleFunc("/v1/programs/", a.handleProgramResource)
	a.mux.HandleFunc("/v1/tasks", a.handleTasksCollection)
	a.mux.HandleFunc("/v1/tasks/", a.handleTaskResource)

	// training
	a.mux.HandleFunc("/v1/modules", a.handleModulesCollection)
	a.mux.HandleFunc("/v1/modules/", a.handleModuleResource)
	a.mux.HandleFunc("/v1/enrollments", a.handleEnrollmentsCollection)
	a.mux.HandleFunc("/v1/enrollments/", a.handleEnrollmentResource)

	// audit trail
	a.mux.HandleFunc("/v1/audit", a.handleAuditTrail)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wires the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "veritrail-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "veritrail-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service errors onto status codes. A tenant mismatch
// reads as not found so the response never confirms the record exists.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *record.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		allowed := make([]string, len(invalid.Allowed))
		for i, s := range invalid.Allowed {
			allowed[i] = string(s)
		}
		payload := map[string]any{
			"error":   invalid.Error(),
			"allowed": allowed,
		}
		if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusUnprocessableEntity, payload)
	case errors.Is(err, tenant.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, tenant.ErrMissingScope):
		// A request without scope past authn is a wiring defect, not a
		// client error.
		_ = audit.LogEvent(r.Context(), "missing_scope", map[string]any{"path": r.URL.Path})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	case errors.Is(err, tenant.ErrTenantMismatch), errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrConstraint):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
