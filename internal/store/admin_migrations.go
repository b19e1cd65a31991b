// ABOUTME: Migration units applied only to the admin store
// ABOUTME: Tenant registry, platform users, roles, and the audit log

package store

import (
	"context"
	"database/sql"
)

// AdminMigrations returns the admin-store-only sequence. It runs after the
// shared sequence during NewAdminStore.
func AdminMigrations() []Migration {
	return []Migration{
		{ID: 1, Name: "tenant registry and platform users", Apply: migrateAdminBase},
		{ID: 2, Name: "license window", Apply: migrateTenantLicense},
		{ID: 3, Name: "module allow-list", Apply: migrateTenantModules},
		{ID: 4, Name: "soft delete timestamp", Apply: migrateTenantDeletedAt},
		{ID: 5, Name: "audit log", Apply: migrateAuditLog},
		{ID: 6, Name: "roles and permissions", Apply: migrateRoles},
	}
}

func migrateAdminBase(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			store_id TEXT NOT NULL UNIQUE,
			domain TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'trial',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('trial', 'active', 'suspended', 'expired', 'deleted'))
		);

		CREATE INDEX IF NOT EXISTS idx_tenants_domain ON tenants(domain);
		CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);

		CREATE TABLE IF NOT EXISTS platform_users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name TEXT NOT NULL,
			tenant_id TEXT REFERENCES tenants(id),
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_platform_users_tenant ON platform_users(tenant_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateTenantLicense(ctx context.Context, db *sql.DB) error {
	if err := addColumn(ctx, db, "tenants", "license_start", "TEXT"); err != nil {
		return err
	}
	return addColumn(ctx, db, "tenants", "license_end", "TEXT")
}

func migrateTenantModules(ctx context.Context, db *sql.DB) error {
	// JSON array of module codes; NULL means all modules enabled, which is
	// the backward-compatible default for tenants created before the column.
	return addColumn(ctx, db, "tenants", "enabled_modules", "TEXT")
}

func migrateTenantDeletedAt(ctx context.Context, db *sql.DB) error {
	return addColumn(ctx, db, "tenants", "deleted_at", "TEXT")
}

func migrateAuditLog(ctx context.Context, db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_type, target_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func migrateRoles(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS roles (
			user_id TEXT NOT NULL REFERENCES platform_users(id),
			role TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (user_id, role),
			CHECK (role IN ('platform_admin', 'tenant_admin', 'support'))
		)
	`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_roles_user ON roles(user_id)`)
	return err
}
