package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Save(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, name, email, roles)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email, roles=EXCLUDED.roles
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Roles.Strings(),
	).Scan(&user.CreatedAt)
}

func (r *userRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, roles, created_at FROM users WHERE id=$1`

	var (
		user  domain.User
		roles []string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&roles,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.Roles = domain.RoleSetFromStrings(roles)
	return &user, nil
}

func (r *userRepository) RolesOf(ctx context.Context, id string) (domain.RoleSet, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Roles, nil
}
