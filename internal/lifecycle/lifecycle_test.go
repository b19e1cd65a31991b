// ABOUTME: Tests for tenant lifecycle enforcement
// ABOUTME: Verifies the authentication gate order, provisioning, and soft delete

package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenchworks/wrenchd/internal/store"
)

const testDefaultStore = "default.db"

type testEnv struct {
	admin *store.AdminStore
	cache *store.Cache
	mgr   *Manager
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	admin, err := store.NewAdminStore(context.Background(), filepath.Join(dir, "platform.db"))
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	cache := store.NewCache(dir, "platform.db")
	t.Cleanup(func() { cache.CloseAll() })

	mgr := New(admin, cache, testDefaultStore, 30*24*time.Hour, slog.Default())
	return &testEnv{admin: admin, cache: cache, mgr: mgr, dir: dir}
}

// setNow pins the manager's clock.
func (e *testEnv) setNow(t time.Time) {
	e.mgr.now = func() time.Time { return t }
}

func (e *testEnv) provision(t *testing.T, domain, storeID string) *store.Tenant {
	t.Helper()
	tenant := &store.Tenant{
		Name:    "Tenant " + domain,
		Domain:  domain,
		StoreID: storeID,
		Status:  store.TenantActive,
	}
	require.NoError(t, e.mgr.Provision(context.Background(), "admin-1", tenant))
	return tenant
}

func TestProvision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.provision(t, "acme.example", "acme.db")

	assert.NotEmpty(t, tenant.ID, "ID should be generated")

	// Registry row and store file both exist.
	got, err := env.admin.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme.db", got.StoreID)

	_, err = os.Stat(filepath.Join(env.dir, "acme.db"))
	assert.NoError(t, err, "store file should be created")

	// Provisioning is audited.
	entries, err := env.admin.ListAuditByTarget(ctx, "tenant", tenant.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditCreateTenant, entries[0].Action)
	assert.Equal(t, "admin-1", entries[0].ActorID)
}

func TestProvision_DefaultsToTrial(t *testing.T) {
	env := newTestEnv(t)

	tenant := &store.Tenant{
		Name:    "Fresh",
		Domain:  "fresh.example",
		StoreID: "fresh.db",
	}
	require.NoError(t, env.mgr.Provision(context.Background(), "admin-1", tenant))
	assert.Equal(t, store.TenantTrial, tenant.Status)
}

func TestProvision_DuplicateDomain(t *testing.T) {
	env := newTestEnv(t)
	env.provision(t, "acme.example", "acme.db")

	err := env.mgr.Provision(context.Background(), "admin-1", &store.Tenant{
		Name:    "Impostor",
		Domain:  "acme.example",
		StoreID: "impostor.db",
	})
	assert.ErrorIs(t, err, store.ErrDuplicateDomain)
}

func TestAuthorize_ActiveTenant(t *testing.T) {
	env := newTestEnv(t)
	env.provision(t, "acme.example", "acme.db")

	tenant, err := env.mgr.Authorize(context.Background(), "alice@acme.example")
	require.NoError(t, err)
	assert.Equal(t, "acme.db", tenant.StoreID)
}

func TestAuthorize_UnknownDomain(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mgr.Authorize(context.Background(), "x@nowhere.example")
	assert.ErrorIs(t, err, ErrTenantUnavailable)
}

func TestAuthorize_DeletedTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	require.NoError(t, env.mgr.SoftDelete(ctx, "admin-1", tenant.ID))

	_, err := env.mgr.Authorize(ctx, "alice@acme.example")
	assert.ErrorIs(t, err, ErrTenantUnavailable)
}

func TestAuthorize_LicenseWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	require.NoError(t, env.mgr.UpdateLicense(ctx, "admin-1", tenant.ID, &start, &end))

	// Inside the window
	env.setNow(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	_, err := env.mgr.Authorize(ctx, "alice@acme.example")
	assert.NoError(t, err)

	// Before the window
	env.setNow(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	_, err = env.mgr.Authorize(ctx, "alice@acme.example")
	assert.ErrorIs(t, err, ErrLicenseExpired)

	// After the window
	env.setNow(time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err = env.mgr.Authorize(ctx, "alice@acme.example")
	assert.ErrorIs(t, err, ErrLicenseExpired)
}

func TestAuthorize_ExpiryComputedNotStored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	// Status still says active, but the window has passed. The stored
	// status never overrides the computed window.
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.mgr.UpdateLicense(ctx, "admin-1", tenant.ID, nil, &end))
	env.setNow(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	got, err := env.admin.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, store.TenantActive, got.Status)

	_, err = env.mgr.Authorize(ctx, "alice@acme.example")
	assert.ErrorIs(t, err, ErrLicenseExpired)
}

func TestAuthorize_SuspendedTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	require.NoError(t, env.mgr.Suspend(ctx, "admin-1", tenant.ID))

	_, err := env.mgr.Authorize(ctx, "alice@acme.example")
	assert.ErrorIs(t, err, ErrTenantSuspended)

	// Reactivation restores access.
	require.NoError(t, env.mgr.Activate(ctx, "admin-1", tenant.ID))
	_, err = env.mgr.Authorize(ctx, "alice@acme.example")
	assert.NoError(t, err)
}

func TestAuthorize_ExpiryBeforeSuspension(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	// Both conditions hold; the license check is evaluated first.
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.mgr.UpdateLicense(ctx, "admin-1", tenant.ID, nil, &end))
	require.NoError(t, env.mgr.Suspend(ctx, "admin-1", tenant.ID))
	env.setNow(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	_, err := env.mgr.Authorize(ctx, "alice@acme.example")
	assert.ErrorIs(t, err, ErrLicenseExpired)
}

func TestRequireModule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	// No allow-list: everything is enabled.
	require.NoError(t, env.mgr.RequireModule(ctx, tenant.ID, "work_orders"))

	require.NoError(t, env.admin.UpdateTenantModules(ctx, tenant.ID, []string{"inventory"}))
	assert.NoError(t, env.mgr.RequireModule(ctx, tenant.ID, "inventory"))

	err := env.mgr.RequireModule(ctx, tenant.ID, "work_orders")
	assert.ErrorIs(t, err, ErrModuleDisabled)

	err = env.mgr.RequireModule(ctx, "nonexistent", "inventory")
	assert.ErrorIs(t, err, store.ErrTenantNotFound)
}

func TestSoftDelete_EvictsCacheKeepsFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := env.provision(t, "acme.example", "acme.db")

	// Touch the store so a handle is cached.
	_, err := env.cache.Get(ctx, "acme.db")
	require.NoError(t, err)
	require.Equal(t, 1, env.cache.Len())

	require.NoError(t, env.mgr.SoftDelete(ctx, "admin-1", tenant.ID))

	// Handle evicted, file intact, registry row marked deleted.
	assert.Equal(t, 0, env.cache.Len())
	_, err = os.Stat(filepath.Join(env.dir, "acme.db"))
	assert.NoError(t, err, "store file must survive soft delete")

	got, err := env.admin.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TenantDeleted, got.Status)
	assert.NotNil(t, got.DeletedAt)
}
