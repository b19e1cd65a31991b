// ABOUTME: Tenant lifecycle enforcement: authentication gating and status transitions
// ABOUTME: Soft delete evicts the cache entry but keeps the store file for recovery

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wrenchworks/wrenchd/internal/store"
)

// ErrTenantUnavailable is returned when the tenant is deleted or unknown.
// Callers must present it the same way as a bad credential so account
// existence cannot be probed.
var ErrTenantUnavailable = errors.New("tenant unavailable")

// ErrLicenseExpired is returned when the current time falls outside the
// tenant's license window, regardless of the stored status.
var ErrLicenseExpired = errors.New("license expired")

// ErrTenantSuspended is returned when the tenant is administratively
// suspended.
var ErrTenantSuspended = errors.New("tenant suspended")

// ErrModuleDisabled is returned when the tenant's module allow-list does not
// include the requested module.
var ErrModuleDisabled = errors.New("module disabled")

// PurgeMetrics receives purge job counters.
type PurgeMetrics interface {
	TenantsPurged(n int)
}

// Manager enforces tenant status and license gating, performs admin status
// transitions, and owns the soft-delete path. Purge lives in purge.go.
type Manager struct {
	admin          *store.AdminStore
	cache          *store.Cache
	defaultStoreID string
	retention      time.Duration
	logger         *slog.Logger
	metrics        PurgeMetrics

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// New creates a lifecycle manager. defaultStoreID names the bootstrap/demo
// tenant store that the purge job must never touch.
func New(admin *store.AdminStore, cache *store.Cache, defaultStoreID string, retention time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		admin:          admin,
		cache:          cache,
		defaultStoreID: defaultStoreID,
		retention:      retention,
		logger:         logger.With("component", "lifecycle"),
		now:            time.Now,
	}
}

// SetMetrics attaches a metrics sink. Call before running purge.
func (m *Manager) SetMetrics(pm PurgeMetrics) {
	m.metrics = pm
}

// Authorize resolves the tenant for an email address and applies the
// authentication gate in order: unknown or deleted tenants are rejected
// first, then the license window is evaluated against the current time
// (expiry is computed, never read from the status field), then suspension.
// On success the returned tenant carries the store identifier the session
// binds to.
func (m *Manager) Authorize(ctx context.Context, email string) (*store.Tenant, error) {
	tenant, err := m.admin.ResolveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return nil, ErrTenantUnavailable
		}
		return nil, fmt.Errorf("resolving tenant: %w", err)
	}

	if tenant.Status == store.TenantDeleted {
		return nil, ErrTenantUnavailable
	}

	now := m.now()
	if tenant.LicenseStart != nil && now.Before(*tenant.LicenseStart) {
		return nil, ErrLicenseExpired
	}
	if tenant.LicenseEnd != nil && now.After(*tenant.LicenseEnd) {
		return nil, ErrLicenseExpired
	}

	if tenant.Status == store.TenantSuspended {
		return nil, ErrTenantSuspended
	}

	return tenant, nil
}

// RequireModule checks the tenant's module allow-list. A tenant with an
// empty allow-list has every module enabled.
func (m *Manager) RequireModule(ctx context.Context, tenantID, module string) error {
	tenant, err := m.admin.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if !tenant.ModuleEnabled(module) {
		return fmt.Errorf("%s: %w", module, ErrModuleDisabled)
	}
	return nil
}

// Provision creates a new tenant: registry row first, then the store file.
// Opening the store through the cache runs the full migration sequence, so
// a brand-new store matches the shape of stores that existed for earlier
// units. A store that cannot be created rolls the tenant back to deleted so
// it never authenticates against a missing file.
func (m *Manager) Provision(ctx context.Context, actorID string, t *store.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = store.TenantTrial
	}
	now := m.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := m.admin.CreateTenant(ctx, t); err != nil {
		return err
	}

	if _, err := m.cache.Get(ctx, t.StoreID); err != nil {
		if derr := m.admin.SoftDeleteTenant(ctx, t.ID, m.now()); derr != nil {
			m.logger.Error("rolling back tenant after store creation failure",
				"tenant", t.ID, "error", derr)
		}
		return fmt.Errorf("provisioning tenant store: %w", err)
	}

	m.audit(ctx, actorID, store.AuditCreateTenant, t.ID, map[string]any{
		"domain":   t.Domain,
		"store_id": t.StoreID,
	})
	return nil
}

// Suspend marks a tenant suspended. Open handles stay open; suspension only
// blocks new logins.
func (m *Manager) Suspend(ctx context.Context, actorID, tenantID string) error {
	if err := m.admin.UpdateTenantStatus(ctx, tenantID, store.TenantSuspended); err != nil {
		return err
	}
	m.audit(ctx, actorID, store.AuditSuspendTenant, tenantID, nil)
	return nil
}

// Activate returns a suspended or trial tenant to active.
func (m *Manager) Activate(ctx context.Context, actorID, tenantID string) error {
	if err := m.admin.UpdateTenantStatus(ctx, tenantID, store.TenantActive); err != nil {
		return err
	}
	m.audit(ctx, actorID, store.AuditActivateTenant, tenantID, nil)
	return nil
}

// UpdateLicense sets the tenant's license window.
func (m *Manager) UpdateLicense(ctx context.Context, actorID, tenantID string, start, end *time.Time) error {
	if err := m.admin.UpdateTenantLicense(ctx, tenantID, start, end); err != nil {
		return err
	}
	m.audit(ctx, actorID, store.AuditUpdateLicense, tenantID, nil)
	return nil
}

// SoftDelete marks the tenant deleted, stamps deleted_at, and evicts any
// open cache entry. The store file stays on disk for the retention window.
func (m *Manager) SoftDelete(ctx context.Context, actorID, tenantID string) error {
	tenant, err := m.admin.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	if err := m.admin.SoftDeleteTenant(ctx, tenantID, m.now()); err != nil {
		return err
	}

	if err := m.cache.Evict(tenant.StoreID); err != nil {
		// The tenant is already marked deleted; a close failure here only
		// delays the purge job's delete.
		m.logger.Warn("evicting store for deleted tenant", "tenant", tenantID, "error", err)
	}

	m.audit(ctx, actorID, store.AuditDeleteTenant, tenantID, map[string]any{
		"store_id": tenant.StoreID,
	})
	return nil
}

func (m *Manager) audit(ctx context.Context, actorID string, action store.AuditAction, tenantID string, detail map[string]any) {
	err := m.admin.AppendAudit(ctx, &store.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		TargetType: "tenant",
		TargetID:   tenantID,
		Detail:     detail,
	})
	if err != nil {
		m.logger.Error("appending audit entry", "action", action, "tenant", tenantID, "error", err)
	}
}
