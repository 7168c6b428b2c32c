package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
)

const userColumns = `id, email, password_hash, bio, created_at, updated_at`

// CreateUser inserts a user. The caller sets the timestamps; an empty ID is
// filled with a fresh xid.
func (q *queries) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = xid.New().String()
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.Bio,
		toNanos(u.CreatedAt),
		toNanos(u.UpdatedAt),
	)
	if err != nil {
		return translate(fmt.Sprintf("inserting user (email=%s)", u.Email), err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (q *queries) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(q.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "user", id, "getting user "+id)
	}
	return u, nil
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(q.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrNotFound,
				Message: fmt.Sprintf("user not found with email %s", email),
			}
		}
		return nil, translate("getting user by email", err)
	}
	return u, nil
}

func (q *queries) UpdateUser(ctx context.Context, u *model.User) (int, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE users SET bio = ?, updated_at = ? WHERE id = ?`,
		u.Bio, toNanos(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return 0, translate("updating user "+u.ID, err)
	}
	return rowsAffected("updating user", res)
}

// DeleteUser removes the user row only. Nodes and snippets must already be
// gone, otherwise the foreign keys reject the delete.
func (q *queries) DeleteUser(ctx context.Context, id string) (int, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return 0, translate("deleting user "+id, err)
	}
	return rowsAffected("deleting user", res)
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u                model.User
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Bio, &created, &updated); err != nil {
		return nil, err
	}
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return &u, nil
}
