// Package pg implements the persistence interfaces on PostgreSQL through
// database/sql and the pgx stdlib driver. Tenant isolation is enforced here:
// every scoped query conjoins the tenant predicate, and every audited
// mutation runs through applyMutation so the state change and its audit
// entry commit together.
package pg

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"veritrail.io/internal/audit"
	"veritrail.io/internal/authz"
	"veritrail.io/internal/compliance"
	"veritrail.io/internal/identity"
	"veritrail.io/internal/session"
	"veritrail.io/internal/store"
	"veritrail.io/internal/tenant"
	"veritrail.io/internal/training"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ identity.Store    = (*Store)(nil)
	_ authz.Store       = (*Store)(nil)
	_ session.Store     = (*Store)(nil)
	_ session.Directory = (*Store)(nil)
	_ compliance.Store  = (*Store)(nil)
	_ training.Store    = (*Store)(nil)
	_ audit.Store       = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing pool. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// tenantArg turns a scope into the uniform predicate argument: nil for a
// system scope (matches every row), the tenant id otherwise. Queries use it
// as ($N::text is null or tenant_id = $N).
func tenantArg(scope tenant.Scope) any {
	if scope.AllTenants() {
		return nil
	}
	return scope.TenantID()
}

// mapWriteError translates constraint failures on inserts: duplicate keys
// conflict, dangling references read as missing parents.
func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return store.ErrConflict
		case pgErrForeignKeyViolation:
			return store.ErrNotFound
		case pgErrCheckViolation:
			return store.ErrConstraint
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
