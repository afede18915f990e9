package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/user"
)

const (
	getUserSQL = `SELECT id, name, email, role FROM users WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	return &u, nil
}

// Upsert creates the user or replaces its profile.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	if _, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, string(u.Role)); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(user.ErrEmailTaken, "upsert user %q", u.ID)
		}
		return errors.Wrapf(err, "upsert user %q", u.ID)
	}
	return nil
}
