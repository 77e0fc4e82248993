package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store"
)

const userColumns = `
	SELECT u.id, u.username, u.password_hash, u.full_name, u.role_id, r.name, r.permissions, u.active, u.created_at
	FROM users u
	JOIN roles r ON r.id = u.role_id
`

func scanUser(row interface{ Scan(...any) error }) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var permissions []byte
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FullName, &user.RoleID,
		&user.RoleName, &permissions, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(permissions, &user.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions of role %s: %w", user.RoleName, err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	return scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE u.username = $1`, username))
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE u.id = $1`, id))
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, store.ErrInvalidInput
	}
	role, err := s.GetRoleByName(ctx, user.RoleName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, user.RoleName)
		}
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, full_name, role_id, active, created_at)
		VALUES ($1,$2,$3,$4,true,now())
		RETURNING id, created_at
	`, username, user.PasswordHash, user.FullName, role.ID).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	user.Username = username
	user.RoleID = role.ID
	user.RoleName = role.Name
	user.Permissions = role.Permissions
	user.Active = true
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	var permissions []byte
	err := s.db.QueryRowContext(ctx, `SELECT id, name, permissions FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &permissions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(permissions, &role.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions of role %s: %w", name, err)
	}
	return &role, nil
}
