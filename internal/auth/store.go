package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

// PrincipalStore resolves verified subjects to user records.
type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

// SessionStore persists refresh-token sessions.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	GetByRefreshToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PasswordHasher abstracts the credential-hashing collaborator.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// PGPrincipalStore implements PrincipalStore on PostgreSQL.
type PGPrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPGPrincipalStore constructs the store.
func NewPGPrincipalStore(pool *pgxpool.Pool) *PGPrincipalStore {
	return &PGPrincipalStore{pool: pool}
}

// GetByID fetches a principal by id.
func (s *PGPrincipalStore) GetByID(ctx context.Context, id string) (*Principal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, name, role, is_active FROM users WHERE id = $1`, id)
	return scanPrincipal(row)
}

// GetByEmail fetches an account, including the password hash, by
// canonicalized email.
func (s *PGPrincipalStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, name, role, is_active, password_hash FROM users WHERE email = $1`,
		CanonicalEmail(email))
	var account Account
	var role string
	err := row.Scan(&account.ID, &account.Email, &account.Name, &role, &account.Active, &account.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return nil, err
	}
	account.Role = parsed
	return &account, nil
}

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var principal Principal
	var role string
	err := row.Scan(&principal.ID, &principal.Email, &principal.Name, &role, &principal.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return nil, err
	}
	principal.Role = parsed
	return &principal, nil
}

// CanonicalEmail normalizes an email address for lookup using the PRECIS
// UsernameCaseMapped profile, falling back to a simple lowercase when the
// input contains codepoints the profile rejects.
func CanonicalEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	canonical, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	return canonical
}

// PGSessionStore implements SessionStore on PostgreSQL.
type PGSessionStore struct {
	pool *pgxpool.Pool
}

// NewPGSessionStore constructs the store.
func NewPGSessionStore(pool *pgxpool.Pool) *PGSessionStore {
	return &PGSessionStore{pool: pool}
}

// Create persists a new session record.
func (s *PGSessionStore) Create(ctx context.Context, session Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token, expires_at, created_at, ip, ua)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))`,
		session.ID, session.UserID, session.RefreshToken,
		session.ExpiresAt.UTC(), session.CreatedAt.UTC(), session.IP, session.UserAgent)
	return err
}

// GetByRefreshToken fetches a live session for the token.
func (s *PGSessionStore) GetByRefreshToken(ctx context.Context, token string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, refresh_token, expires_at, created_at
		 FROM sessions WHERE refresh_token = $1 AND expires_at > NOW()`, token)
	var session Session
	err := row.Scan(&session.ID, &session.UserID, &session.RefreshToken, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Delete removes one session.
func (s *PGSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteByUser revokes every session for a user.
func (s *PGSessionStore) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired drops sessions that expired before the cutoff and reports
// how many were removed.
func (s *PGSessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	Cost int
}

// Hash derives a bcrypt hash for the password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = 12
	}
	raw, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Compare checks a password against its hash.
func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

var (
	_ PrincipalStore = (*PGPrincipalStore)(nil)
	_ SessionStore   = (*PGSessionStore)(nil)
	_ PasswordHasher = BcryptHasher{}
)
