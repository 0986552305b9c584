package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spec-kit/auth-service/internal/domain"
)

// Roles are stored comma-joined; role names never contain commas.
const roleSeparator = ","

type sqliteUserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteUserRepository returns a UserRepository over an embedded SQLite database.
func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db, now: time.Now}
}

const sqliteUserColumns = `id, username, email, password_hash, roles, balance, created_at, updated_at`

func (r *sqliteUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT ` + sqliteUserColumns + ` FROM users WHERE username = ?`
	return r.findOne(ctx, query, username)
}

func (r *sqliteUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + sqliteUserColumns + ` FROM users WHERE email = ?`
	return r.findOne(ctx, query, email)
}

func (r *sqliteUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT ` + sqliteUserColumns + ` FROM users WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *sqliteUserRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanSQLiteUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return user, nil
}

func (r *sqliteUserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved := *user
	now := r.now().UTC()
	roles := strings.Join(saved.Roles, roleSeparator)

	if saved.ID == 0 {
		const query = `
        INSERT INTO users (username, email, password_hash, roles, balance, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

		res, err := r.db.ExecContext(ctx, query,
			saved.Username,
			saved.Email,
			saved.PasswordHash,
			roles,
			saved.Balance,
			now.UnixMilli(),
			now.UnixMilli(),
		)
		if err != nil {
			return nil, mapSQLiteError(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read inserted id: %w", err)
		}
		saved.ID = id
		saved.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
		saved.UpdatedAt = saved.CreatedAt
		return &saved, nil
	}

	const query = `
        UPDATE users SET username = ?, email = ?, password_hash = ?, roles = ?, balance = ?, updated_at = ?
        WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		saved.Username,
		saved.Email,
		saved.PasswordHash,
		roles,
		saved.Balance,
		now.UnixMilli(),
		saved.ID,
	)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, saved.ID)
}

func (r *sqliteUserRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists user %d: %w", id, err)
	}
	return exists, nil
}

func (r *sqliteUserRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteUserRepository) FindAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*domain.User, error) {
	var (
		user      domain.User
		roles     string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&roles,
		&user.Balance,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if roles != "" {
		user.Roles = strings.Split(roles, roleSeparator)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &user, nil
}

func mapSQLiteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code&0xff == sqlite3.SQLITE_CONSTRAINT {
			// SQLite reports the violated column only in the message.
			msg := sqliteErr.Error()
			switch {
			case strings.Contains(msg, "users.username"):
				return ErrDuplicateUsername
			case strings.Contains(msg, "users.email"):
				return ErrDuplicateEmail
			}
		}
	}
	return err
}
