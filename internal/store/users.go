// ABOUTME: Platform user store methods on the admin store
// ABOUTME: Covers login lookups and the domain-scoped cleanup tool

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateUser inserts a platform user. Email comparison is case-insensitive,
// so the email is lowercased before storage.
func (s *AdminStore) CreateUser(ctx context.Context, u *PlatformUser) error {
	query := `
		INSERT INTO platform_users (id, email, password_hash, display_name, tenant_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	var tenantID any
	if u.TenantID != nil {
		tenantID = *u.TenantID
	}

	_, err := s.h.Exec(ctx, query,
		u.ID,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.PasswordHash,
		u.DisplayName,
		tenantID,
		u.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created platform user", "id", u.ID)
	return nil
}

const userColumns = `id, email, password_hash, display_name, tenant_id, created_at`

// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
func (s *AdminStore) GetUser(ctx context.Context, id string) (*PlatformUser, error) {
	row := s.h.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM platform_users WHERE id = ?", userColumns), id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *AdminStore) GetUserByEmail(ctx context.Context, email string) (*PlatformUser, error) {
	row := s.h.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM platform_users WHERE email = ?", userColumns),
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// ListUsers returns all platform users.
func (s *AdminStore) ListUsers(ctx context.Context) ([]*PlatformUser, error) {
	rows, err := s.h.Query(ctx,
		fmt.Sprintf("SELECT %s FROM platform_users ORDER BY created_at", userColumns))
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*PlatformUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of platform users. Used by bootstrap to
// detect first-run.
func (s *AdminStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.h.QueryRow(ctx, `SELECT COUNT(*) FROM platform_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// DeleteUsersByDomain removes every platform-admin user whose email is
// under the given domain. Backs the one-time cleanup tool; tenant-bound
// users are left alone.
func (s *AdminStore) DeleteUsersByDomain(ctx context.Context, domain string) (int, error) {
	result, err := s.h.Exec(ctx,
		`DELETE FROM platform_users WHERE tenant_id IS NULL AND email LIKE ?`,
		"%@"+NormalizeDomain(domain))
	if err != nil {
		return 0, fmt.Errorf("deleting users by domain: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("deleted platform users by domain", "domain", domain, "count", n)
	}
	return int(n), nil
}

func scanUser(row scanner) (*PlatformUser, error) {
	var u PlatformUser
	var tenantID sql.NullString
	var createdAt string

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &tenantID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if tenantID.Valid {
		u.TenantID = &tenantID.String
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &u, nil
}
