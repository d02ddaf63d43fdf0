package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetflow/fleetflow/internal/rbac"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, name, COALESCE(phone, ''), role, is_active, created_at, updated_at`

// List returns all users ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Get returns one user by id.
func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user with its credential hash.
func (r *Repository) Create(ctx context.Context, in CreateInput, passwordHash string) (*User, error) {
	id := uuid.NewString()
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, email, name, phone, role, password_hash, is_active, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, TRUE, NOW(), NOW())
RETURNING `+userColumns,
		id, in.Email, in.Name, in.Phone, string(in.Role), passwordHash)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &user, nil
}

// Update applies the non-nil fields of in and returns the fresh row.
func (r *Repository) Update(ctx context.Context, id string, in UpdateInput) (*User, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE users
SET name = COALESCE($2, name),
    phone = COALESCE($3, phone),
    is_active = COALESCE($4, is_active),
    updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns,
		id, in.Name, in.Phone, in.Active)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetRole changes the stored role.
func (r *Repository) SetRole(ctx context.Context, id string, role rbac.Role) (*User, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1
RETURNING `+userColumns, id, string(role))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Delete removes a user row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &role, &user.Active, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return User{}, err
	}
	user.Role = parsed
	return user, nil
}
