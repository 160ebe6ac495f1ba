package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vehiql/internal/model"
)

const userColumns = `id, external_id, email, name, COALESCE(phone, ''), COALESCE(image_url, ''), role, created_at, updated_at`

func scanUser(s rowScanner) (*model.User, error) {
	u := &model.User{}
	var role string
	if err := s.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Phone, &u.ImageURL, &role,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return u, nil
}

// EnsureUser upserts a user by external id. Role is only applied on first insert;
// non-empty email and name refresh the stored profile.
func (db *DB) EnsureUser(ctx context.Context, u *model.User) (*model.User, error) {
	role := u.Role
	if role == "" {
		role = model.RoleUser
	}
	now := time.Now()

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, external_id, email, name, phone, image_url, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			updated_at = excluded.updated_at`,
		uuid.NewString(), u.ExternalID, u.Email, u.Name, nullIfEmpty(u.Phone), nullIfEmpty(u.ImageURL),
		string(role), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return db.GetUserByExternalID(ctx, u.ExternalID)
}

func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users, newest first.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (db *DB) UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	res, err := db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetUser(ctx, id)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
