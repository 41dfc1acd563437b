// Package audit defines the append-only audit trail. Entries are written in
// the same transaction as the mutation they describe and are never updated
// or deleted.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"veritrail.io/internal/obs"
	"veritrail.io/internal/tenant"
)

// Entry records one action against one resource. TenantID is empty for
// system-level actions; ActorID is empty for unattended jobs.
type Entry struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id,omitempty"`
	ActorID      string          `json:"actor_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	OldState     json.RawMessage `json:"old_state,omitempty"`
	NewState     json.RawMessage `json:"new_state,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Store reads the trail. Appending happens inside store/pg mutation
// transactions, not through this interface, so no code path can write an
// entry outside its mutation.
type Store interface {
	ListEntries(ctx context.Context, scope tenant.Scope, filter Filter) ([]Entry, error)
}

// Filter narrows a trail query.
type Filter struct {
	ResourceType string
	ResourceID   string
	ActorID      string
	Limit        int
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so persisted
// entries and log events can be correlated.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent mirrors an audit event to the structured log, enriched with
// request and scope context. Persistence happens separately in the mutation
// transaction; the log line is for operators, not the system of record.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if scope, ok := tenant.FromContext(ctx); ok {
		entry["actor_id"] = scope.PrincipalID()
		if !scope.AllTenants() {
			entry["tenant_id"] = scope.TenantID()
		}
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}
	obs.Emit("audit", entry)
	return nil
}
