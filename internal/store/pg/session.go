package pg

import (
	"context"
	"database/sql"
	"errors"

	"veritrail.io/internal/session"
	"veritrail.io/internal/store"
)

// Sessions are authentication plumbing, not domain records: they carry no
// workflow status and their writes are not audited.

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, principal_id, tenant_id, token_hash, issued_at, expires_at, active)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.PrincipalID, nullIfEmpty(sess.TenantID), sess.TokenHash,
		sess.IssuedAt, sess.ExpiresAt, sess.Active)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) FindSession(ctx context.Context, id string) (session.Session, error) {
	if s.db == nil {
		return session.Session{}, errors.New("database connection unavailable")
	}
	var sess session.Session
	err := s.db.QueryRowContext(ctx, `
		select id, principal_id, coalesce(tenant_id, ''), token_hash, issued_at, expires_at, active
		from sessions
		where id = $1
	`, id).Scan(&sess.ID, &sess.PrincipalID, &sess.TenantID, &sess.TokenHash,
		&sess.IssuedAt, &sess.ExpiresAt, &sess.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, store.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `update sessions set active = false where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateSessionsFor(ctx context.Context, principalID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		update sessions set active = false
		where principal_id = $1 and active
	`, principalID)
	return err
}
