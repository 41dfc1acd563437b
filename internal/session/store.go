package session

import (
	"context"

	"veritrail.io/internal/identity"
)

// Store manages session rows.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id string) (Session, error)
	DeactivateSession(ctx context.Context, id string) error
	DeactivateSessionsFor(ctx context.Context, principalID string) error
}

// Directory resolves principals during login and refresh. Both lookups are
// unscoped because they run before a scope exists.
type Directory interface {
	PrincipalByEmail(ctx context.Context, email string) (identity.Principal, error)
	PrincipalByID(ctx context.Context, id string) (identity.Principal, error)
}
