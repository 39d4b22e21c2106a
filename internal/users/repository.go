package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-auth/keystone/internal/shared"
)

// Repository defines persistence operations for user accounts.
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	List(ctx context.Context) ([]User, error)
}

const uniqueViolation = "23505"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, hashed_password, is_active, is_superuser, is_verified, created_at, updated_at`

// Create inserts a new user. Email uniqueness is enforced by the database
// constraint so concurrent registrations with the same address race safely:
// exactly one insert wins, the rest surface ErrDuplicateEmail.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, hashed_password, is_active, is_superuser, is_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.HashedPassword, user.IsActive, user.IsSuperuser, user.IsVerified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// FindByEmail fetches a user by normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UpdatePassword replaces the stored password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET hashed_password = $2, updated_at = now() WHERE id = $1`, id, hashedPassword)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateEmail changes the account email. Changing the address drops the
// verified flag since the new address has not been confirmed.
func (r *PGRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email = $2, is_verified = FALSE, updated_at = now() WHERE id = $1`,
		id, NormalizeEmail(email))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrDuplicateEmail
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetVerified flips the verification flag.
func (r *PGRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_verified = $2, updated_at = now() WHERE id = $1`, id, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns all users ordered by creation time.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.HashedPassword, &user.IsActive,
			&user.IsSuperuser, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &user.IsActive,
		&user.IsSuperuser, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
