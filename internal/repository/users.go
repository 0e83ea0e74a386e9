package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

// UsersRepository is the credential store.
type UsersRepository struct {
	base
}

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

// UserCreateParams bundles the fields required to create a user.
type UserCreateParams struct {
	Username     string
	Email        string
	PasswordHash string
	Role         domain.Role
}

// Create inserts a user. A duplicate username or email yields ErrConflict.
func (r *UsersRepository) Create(ctx context.Context, params UserCreateParams) (domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	role := params.Role
	if role == "" {
		role = domain.RoleUser
	}

	query := fmt.Sprintf(`
        INSERT INTO users (username, email, password_hash, role)
        VALUES ($1,$2,$3,$4)
        RETURNING %s
    `, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, params.Username, params.Email, params.PasswordHash, string(role)))
	if err != nil {
		return domain.User{}, translateErr(err)
	}
	return user, nil
}

// GetByEmail fetches a user by exact email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return domain.User{}, translateErr(err)
	}
	return user, nil
}

// GetByID fetches a user by identifier.
func (r *UsersRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, translateErr(err)
	}
	return user, nil
}

// ExistsByUsernameOrEmail reports whether either identifier is taken.
func (r *UsersRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, username, email).Scan(&exists); err != nil {
		return false, translateErr(err)
	}
	return exists, nil
}

// SetRole changes the role of the named user.
func (r *UsersRepository) SetRole(ctx context.Context, username string, role domain.Role) (domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
        UPDATE users SET role = $2, updated_at = now()
        WHERE username = $1
        RETURNING %s
    `, userColumns)

	user, err := scanUser(r.pool.QueryRow(ctx, query, username, string(role)))
	if err != nil {
		return domain.User{}, translateErr(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	user.Role = domain.Role(role)
	return user, nil
}
