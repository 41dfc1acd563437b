package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"veritrail.io/internal/identity"
	"veritrail.io/internal/ids"
	"veritrail.io/internal/tenant"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultSessionTTL = 12 * time.Hour
)

var (
	// ErrInvalidToken indicates the token failed validation or its session
	// is no longer authoritative.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrInvalidCredentials indicates login failed. Deliberately opaque.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
)

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tid,omitempty"`
	System    bool   `json:"sys,omitempty"`
	jwt.RegisteredClaims
}

// Service establishes and authenticates sessions. It is the only component
// that turns credentials into a tenant.Scope.
type Service struct {
	store      Store
	dir        Directory
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) { s.issuer = strings.TrimSpace(issuer) }
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service. The signing secret is required.
func NewService(store Store, dir Directory, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil || dir == nil {
		return nil, errors.New("session store and directory are required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session signing secret is required")
	}
	s := &Service{
		store:      store,
		dir:        dir,
		secret:     []byte(secret),
		issuer:     "veritrail",
		accessTTL:  defaultAccessTTL,
		sessionTTL: defaultSessionTTL,
	}
	s.now = time.Now
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates credentials and begins a session for the principal's
// own tenant (or a system session for system principals).
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, tenant.Scope, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, tenant.Scope{}, ErrInvalidCredentials
	}
	p, err := s.dir.PrincipalByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, tenant.Scope{}, ErrInvalidCredentials
	}
	if err := identity.VerifyPassword(p.PasswordHash, password); err != nil {
		return TokenPair{}, tenant.Scope{}, ErrInvalidCredentials
	}
	return s.Begin(ctx, p.ID, p.TenantID)
}

// Begin establishes a session for principalID acting within tenantID. An
// empty tenantID requests a cross-tenant system session, which only system
// principals may hold. A principal/tenant mismatch fails with
// tenant.ErrForbidden.
func (s *Service) Begin(ctx context.Context, principalID, tenantID string) (TokenPair, tenant.Scope, error) {
	principalID = strings.TrimSpace(principalID)
	tenantID = strings.TrimSpace(tenantID)
	p, err := s.dir.PrincipalByID(ctx, principalID)
	if err != nil {
		return TokenPair{}, tenant.Scope{}, tenant.ErrForbidden
	}
	if p.Status != identity.PrincipalStatusActive {
		return TokenPair{}, tenant.Scope{}, tenant.ErrForbidden
	}

	var scope tenant.Scope
	switch {
	case tenantID == "" && p.System:
		scope = tenant.SystemScope(p.ID)
	case tenantID != "" && (tenantID == p.TenantID || p.System):
		scope = tenant.ForTenant(p.ID, tenantID)
	default:
		return TokenPair{}, tenant.Scope{}, tenant.ErrForbidden
	}

	pair, err := s.mint(ctx, scope)
	if err != nil {
		return TokenPair{}, tenant.Scope{}, err
	}
	return pair, scope, nil
}

// Authenticate validates an access token and returns the scope its session
// authorizes. The session row is authoritative: a deactivated or expired
// session rejects even a cryptographically valid token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (tenant.Scope, error) {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return tenant.Scope{}, ErrInvalidToken
	}
	sess, err := s.store.FindSession(ctx, claims.SessionID)
	if err != nil {
		return tenant.Scope{}, ErrInvalidToken
	}
	if !sess.Active || !s.now().Before(sess.ExpiresAt) {
		return tenant.Scope{}, ErrInvalidToken
	}
	if sess.PrincipalID != claims.Subject {
		return tenant.Scope{}, ErrInvalidToken
	}
	if sess.TenantID == "" {
		return tenant.SystemScope(sess.PrincipalID), nil
	}
	return tenant.ForTenant(sess.PrincipalID, sess.TenantID), nil
}

// Refresh rotates a session: the presented session token is retired and a
// fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, sessionToken string) (TokenPair, tenant.Scope, error) {
	id, secret, err := splitSessionToken(sessionToken)
	if err != nil {
		return TokenPair{}, tenant.Scope{}, ErrInvalidToken
	}
	sess, err := s.store.FindSession(ctx, id)
	if err != nil {
		return TokenPair{}, tenant.Scope{}, ErrInvalidToken
	}
	if !sess.Active || !s.now().Before(sess.ExpiresAt) {
		return TokenPair{}, tenant.Scope{}, ErrInvalidToken
	}
	if !compareTokenHash(sess.TokenHash, secret) {
		// Presenting a wrong secret for a live session id burns the session.
		_ = s.store.DeactivateSession(ctx, sess.ID)
		return TokenPair{}, tenant.Scope{}, ErrInvalidToken
	}
	if err := s.store.DeactivateSession(ctx, sess.ID); err != nil {
		return TokenPair{}, tenant.Scope{}, err
	}
	return s.Begin(ctx, sess.PrincipalID, sess.TenantID)
}

// End deactivates the session behind an access token.
func (s *Service) End(ctx context.Context, accessToken string) error {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return ErrInvalidToken
	}
	return s.store.DeactivateSession(ctx, claims.SessionID)
}

// EndAllFor deactivates every session of a principal (disable/offboarding).
func (s *Service) EndAllFor(ctx context.Context, principalID string) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return errors.New("principal id is required")
	}
	return s.store.DeactivateSessionsFor(ctx, principalID)
}

func (s *Service) mint(ctx context.Context, scope tenant.Scope) (TokenPair, error) {
	now := s.now().UTC()
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return TokenPair{}, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))

	sess := Session{
		ID:          ids.New(),
		PrincipalID: scope.PrincipalID(),
		TenantID:    scope.TenantID(),
		TokenHash:   hex.EncodeToString(sum[:]),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.sessionTTL),
		Active:      true,
	}
	if err := s.store.CreateSession(ctx, &sess); err != nil {
		return TokenPair{}, err
	}

	accessExp := now.Add(s.accessTTL)
	claims := Claims{
		SessionID: sess.ID,
		TenantID:  scope.TenantID(),
		System:    scope.AllTenants(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   scope.PrincipalID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		SessionToken:     sess.ID + "." + secret,
		AccessExpiresAt:  accessExp,
		SessionExpiresAt: sess.ExpiresAt,
	}, nil
}

func (s *Service) parseAccessToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func splitSessionToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid session token format")
	}
	return parts[0], parts[1], nil
}

func compareTokenHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
