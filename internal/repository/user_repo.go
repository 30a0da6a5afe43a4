package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"go-auth-service/internal/model"
)

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, is_active,
	last_login_at, password_changed_at, created_at, updated_at`

type UserRepository struct {
	pool DBTX
}

func NewUserRepository(pool DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, r.lookupError("find user by id", "id", id, err)
	}
	return u, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	username = strings.TrimSpace(username)
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, r.lookupError("find user by username", "username", username, err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.TrimSpace(email)
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, r.lookupError("find user by email", "email", email, err)
	}
	return u, nil
}

// ExistsByUsername reports whether another user already holds username.
// excludeID may be empty.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(username) = lower($1) AND id::text <> $2)`,
		strings.TrimSpace(username), excludeID).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_QUERY_FAILED").With("operation", "check username exists").Wrap(err)
	}
	return exists, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1) AND id::text <> $2)`,
		strings.TrimSpace(email), excludeID).Scan(&exists)
	if err != nil {
		return false, oops.Code("USER_QUERY_FAILED").With("operation", "check email exists").Wrap(err)
	}
	return exists, nil
}

// Create inserts u. A concurrent insert of the same username or email loses on the
// unique index and gets model.ErrUsernameTaken or model.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, first_name, last_name, password_hash, is_active,
		                    password_changed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsActive,
		u.PasswordChangedAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return duplicateOr(err, oops.Code("USER_CREATE_FAILED").With("username", u.Username))
	}
	return nil
}

// UpdateProfile applies the non-nil fields of update and returns the stored user.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate, updatedAt time.Time) (model.User, error) {
	set := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, id)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("username", update.Username)
	add("email", update.Email)
	add("first_name", update.FirstName)
	add("last_name", update.LastName)

	args = append(args, updatedAt)
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))

	row := r.pool.QueryRow(ctx,
		`UPDATE users SET `+strings.Join(set, ", ")+` WHERE id = $1 RETURNING `+userColumns,
		args...)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrUserNotFound
		}
		return model.User{}, duplicateOr(err, oops.Code("USER_UPDATE_FAILED").With("id", id))
	}
	return u, nil
}

// UpdatePassword swaps currentHash for newHash. It reports model.ErrStaleCredential
// when the stored hash is no longer currentHash, so two racing updates cannot both win.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, currentHash string, newHash string, changedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $3, password_changed_at = $4, updated_at = $4
		 WHERE id = $1 AND password_hash = $2`,
		id, currentHash, newHash, changedAt)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("id", id).With("operation", "update password").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrStaleCredential
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("id", id).With("operation", "touch last login").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) lookupError(operation string, key string, value string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrUserNotFound
	}
	return oops.Code("USER_QUERY_FAILED").With("operation", operation).With(key, value).Wrap(err)
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsActive,
		&u.LastLoginAt, &u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func duplicateOr(err error, builder oops.OopsErrorBuilder) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case usernameConstraint:
			return model.ErrUsernameTaken
		case emailConstraint:
			return model.ErrEmailTaken
		}
	}
	return builder.Wrap(err)
}
