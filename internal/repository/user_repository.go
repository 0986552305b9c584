package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/auth-service/internal/domain"
)

const pgUniqueViolation = "23505"

// UserRepository defines persistence access for user accounts.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// Save inserts users with a zero ID and updates the rest.
	Save(ctx context.Context, user *domain.User) (*domain.User, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	DeleteByID(ctx context.Context, id int64) error
	FindAll(ctx context.Context) ([]*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const pgUserColumns = `id, username, email, password_hash, roles, balance, created_at, updated_at`

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT ` + pgUserColumns + ` FROM users WHERE username=$1`
	return r.findOne(ctx, query, username)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + pgUserColumns + ` FROM users WHERE email=$1`
	return r.findOne(ctx, query, email)
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT ` + pgUserColumns + ` FROM users WHERE id=$1`
	return r.findOne(ctx, query, id)
}

func (r *userRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanPgUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapPgError(err)
	}
	return user, nil
}

func (r *userRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved := *user
	if saved.ID == 0 {
		const query = `
        INSERT INTO users (username, email, password_hash, roles, balance)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

		if err := r.pool.QueryRow(ctx, query,
			saved.Username,
			saved.Email,
			saved.PasswordHash,
			saved.Roles,
			saved.Balance,
		).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt); err != nil {
			return nil, mapPgError(err)
		}
		return &saved, nil
	}

	const query = `
        UPDATE users SET username=$1, email=$2, password_hash=$3, roles=$4, balance=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING created_at, updated_at`

	if err := r.pool.QueryRow(ctx, query,
		saved.Username,
		saved.Email,
		saved.PasswordHash,
		saved.Roles,
		saved.Balance,
		saved.ID,
	).Scan(&saved.CreatedAt, &saved.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &saved, nil
}

func (r *userRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists user %d: %w", id, err)
	}
	return exists, nil
}

func (r *userRepository) DeleteByID(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) FindAll(ctx context.Context) ([]*domain.User, error) {
	const query = `SELECT ` + pgUserColumns + ` FROM users ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanPgUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func scanPgUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Roles,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return ErrDuplicateUsername
		case "users_email_key":
			return ErrDuplicateEmail
		}
	}
	return err
}
