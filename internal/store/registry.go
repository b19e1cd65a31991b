// ABOUTME: Tenant registry CRUD and domain resolution on the admin store
// ABOUTME: Maps normalized email domains to tenant records and their store files

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CreateTenant inserts a new tenant record. The domain is normalized before
// insert; ID and timestamps are generated by the caller. Returns
// ErrDuplicateDomain or ErrDuplicateStoreID on uniqueness violations.
func (s *AdminStore) CreateTenant(ctx context.Context, t *Tenant) error {
	t.Domain = NormalizeDomain(t.Domain)

	modules, err := marshalModules(t.EnabledModules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, name, store_id, domain, status, license_start, license_end,
			enabled_modules, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.h.Exec(ctx, query,
		t.ID,
		t.Name,
		t.StoreID,
		t.Domain,
		string(t.Status),
		nullTime(t.LicenseStart),
		nullTime(t.LicenseEnd),
		modules,
		nullTime(t.DeletedAt),
		t.CreatedAt.UTC().Format(time.RFC3339),
		t.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "tenants.domain") {
				return ErrDuplicateDomain
			}
			if strings.Contains(err.Error(), "tenants.store_id") {
				return ErrDuplicateStoreID
			}
			return ErrDuplicateDomain
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}

	s.logger.Info("created tenant", "id", t.ID, "domain", t.Domain, "store_id", t.StoreID)
	return nil
}

const tenantColumns = `id, name, store_id, domain, status, license_start, license_end,
	enabled_modules, deleted_at, created_at, updated_at`

// GetTenant retrieves a tenant by ID. Returns ErrTenantNotFound if absent.
func (s *AdminStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.h.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE id = ?", tenantColumns), id)
	return scanTenant(row)
}

// GetTenantByDomain retrieves a tenant by its normalized email domain.
func (s *AdminStore) GetTenantByDomain(ctx context.Context, domain string) (*Tenant, error) {
	row := s.h.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE domain = ?", tenantColumns),
		NormalizeDomain(domain))
	return scanTenant(row)
}

// GetTenantByStoreID retrieves a tenant by its store identifier.
func (s *AdminStore) GetTenantByStoreID(ctx context.Context, storeID string) (*Tenant, error) {
	row := s.h.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE store_id = ?", tenantColumns), storeID)
	return scanTenant(row)
}

// ResolveByEmail maps the domain portion of an email address to its tenant.
// Lookup is case- and whitespace-insensitive. Returns ErrTenantNotFound for
// an unknown domain; callers present that the same way as any other login
// failure so registered domains cannot be probed.
func (s *AdminStore) ResolveByEmail(ctx context.Context, email string) (*Tenant, error) {
	domain := DomainFromEmail(email)
	if domain == "" {
		return nil, ErrTenantNotFound
	}
	return s.GetTenantByDomain(ctx, domain)
}

// ListTenants returns every tenant record, including soft-deleted ones.
func (s *AdminStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.h.Query(ctx,
		fmt.Sprintf("SELECT %s FROM tenants ORDER BY created_at", tenantColumns))
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// UpdateTenantStatus sets the stored status. Lifecycle rules (which
// transitions are admin actions, how deletion is handled) live in the
// lifecycle package; this is the raw write.
func (s *AdminStore) UpdateTenantStatus(ctx context.Context, id string, status TenantStatus) error {
	result, err := s.h.Exec(ctx,
		`UPDATE tenants SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}
	return requireRow(result)
}

// UpdateTenantLicense sets the license window. Nil bounds clear them.
func (s *AdminStore) UpdateTenantLicense(ctx context.Context, id string, start, end *time.Time) error {
	result, err := s.h.Exec(ctx,
		`UPDATE tenants SET license_start = ?, license_end = ?, updated_at = ? WHERE id = ?`,
		nullTime(start), nullTime(end), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating tenant license: %w", err)
	}
	return requireRow(result)
}

// UpdateTenantModules replaces the module allow-list. A nil or empty slice
// enables all modules.
func (s *AdminStore) UpdateTenantModules(ctx context.Context, id string, modules []string) error {
	encoded, err := marshalModules(modules)
	if err != nil {
		return err
	}
	result, err := s.h.Exec(ctx,
		`UPDATE tenants SET enabled_modules = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating tenant modules: %w", err)
	}
	return requireRow(result)
}

// SoftDeleteTenant marks the tenant deleted and stamps deleted_at. The
// registry row and the store file both remain; the physical file is removed
// only by the purge job after the retention window.
func (s *AdminStore) SoftDeleteTenant(ctx context.Context, id string, at time.Time) error {
	result, err := s.h.Exec(ctx,
		`UPDATE tenants SET status = ?, deleted_at = ?, updated_at = ? WHERE id = ?`,
		string(TenantDeleted),
		at.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id)
	if err != nil {
		return fmt.Errorf("soft-deleting tenant: %w", err)
	}
	return requireRow(result)
}

// ListPurgeable returns soft-deleted tenants whose deleted_at is older than
// the cutoff. The purge job decides what to do with them.
func (s *AdminStore) ListPurgeable(ctx context.Context, cutoff time.Time) ([]*Tenant, error) {
	rows, err := s.h.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM tenants
			WHERE status = ? AND deleted_at IS NOT NULL AND deleted_at <= ?
			ORDER BY deleted_at`, tenantColumns),
		string(TenantDeleted), cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying purgeable tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*Tenant, error) {
	var t Tenant
	var status, createdAt, updatedAt string
	var licenseStart, licenseEnd, modules, deletedAt sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.StoreID, &t.Domain, &status,
		&licenseStart, &licenseEnd, &modules, &deletedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = TenantStatus(status)

	if t.LicenseStart, err = parseNullTime(licenseStart); err != nil {
		return nil, fmt.Errorf("parsing license_start: %w", err)
	}
	if t.LicenseEnd, err = parseNullTime(licenseEnd); err != nil {
		return nil, fmt.Errorf("parsing license_end: %w", err)
	}
	if t.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}
	if modules.Valid {
		if err := json.Unmarshal([]byte(modules.String), &t.EnabledModules); err != nil {
			return nil, fmt.Errorf("parsing enabled_modules: %w", err)
		}
	}

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &t, nil
}

// marshalModules encodes the allow-list as JSON. An empty list is stored as
// NULL so it reads back the same as "all modules enabled."
func marshalModules(modules []string) (any, error) {
	if len(modules) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(modules)
	if err != nil {
		return nil, fmt.Errorf("encoding enabled_modules: %w", err)
	}
	return string(data), nil
}

// nullTime formats an optional timestamp, keeping NULL for nil.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// requireRow converts a zero-row update into ErrTenantNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// isUniqueConstraintError checks for the engine's uniqueness violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
