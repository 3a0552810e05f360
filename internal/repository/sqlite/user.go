package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/model"
)

const userColumns = `id, email, password_hash, role, provider, confirmed, created_at`

// CreateUser inserts a new user.
//
// RACE-SAFE UNIQUENESS:
// A SELECT-then-INSERT would let two concurrent registrations for the same
// email both pass the SELECT. Instead the INSERT itself carries the check:
// ON CONFLICT DO NOTHING turns a UNIQUE violation into "0 rows affected",
// which we report as a Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Provider == "" {
		user.Provider = model.ProviderPassword
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Provider,
		user.Confirmed,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Conflict("User already exists")
	}

	return nil
}

// FindUserByEmail retrieves a user by email.
// Returns apperror.ErrNotFound if no user has that email.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// FindUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// scanUser reads one users row. sql.ErrNoRows becomes apperror.NotFound so
// the handler knows to return 404.
func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Provider,
		&u.Confirmed,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		return nil, err
	}
	return &u, nil
}
