// ABOUTME: Tests for tenant registry CRUD and email-domain resolution
// ABOUTME: Covers normalization, uniqueness mapping, soft delete, and purge listing

package store

import (
	"context"
	"testing"
	"time"
)

func testTenant(id, domain, storeID string) *Tenant {
	now := time.Now().UTC().Truncate(time.Second)
	return &Tenant{
		ID:        id,
		Name:      "Test Tenant " + id,
		StoreID:   storeID,
		Domain:    domain,
		Status:    TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetTenant(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	tenant := testTenant("t-1", "acme.example", "acme.db")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	tenant.LicenseStart = &start
	tenant.LicenseEnd = &end
	tenant.EnabledModules = []string{"work_orders", "inventory"}

	if err := admin.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	got, err := admin.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}

	if got.Domain != "acme.example" {
		t.Errorf("Domain = %q, want %q", got.Domain, "acme.example")
	}
	if got.StoreID != "acme.db" {
		t.Errorf("StoreID = %q, want %q", got.StoreID, "acme.db")
	}
	if got.Status != TenantActive {
		t.Errorf("Status = %q, want %q", got.Status, TenantActive)
	}
	if got.LicenseStart == nil || !got.LicenseStart.Equal(start) {
		t.Errorf("LicenseStart = %v, want %v", got.LicenseStart, start)
	}
	if got.LicenseEnd == nil || !got.LicenseEnd.Equal(end) {
		t.Errorf("LicenseEnd = %v, want %v", got.LicenseEnd, end)
	}
	if len(got.EnabledModules) != 2 {
		t.Errorf("EnabledModules = %v, want two entries", got.EnabledModules)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", got.DeletedAt)
	}
}

func TestGetTenant_NotFound(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()

	if _, err := admin.GetTenant(context.Background(), "nonexistent"); err != ErrTenantNotFound {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestCreateTenant_NormalizesDomain(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	tenant := testTenant("t-1", "  ACME.Example  ", "acme.db")
	if err := admin.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	got, err := admin.GetTenantByDomain(ctx, "acme.example")
	if err != nil {
		t.Fatalf("GetTenantByDomain failed: %v", err)
	}
	if got.Domain != "acme.example" {
		t.Errorf("stored domain = %q, want normalized form", got.Domain)
	}
}

func TestCreateTenant_DuplicateDomain(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	if err := admin.CreateTenant(ctx, testTenant("t-1", "acme.example", "acme.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	// Same domain differing only by case still collides.
	err := admin.CreateTenant(ctx, testTenant("t-2", "ACME.EXAMPLE", "acme2.db"))
	if err != ErrDuplicateDomain {
		t.Errorf("expected ErrDuplicateDomain, got %v", err)
	}
}

func TestCreateTenant_DuplicateStoreID(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	if err := admin.CreateTenant(ctx, testTenant("t-1", "acme.example", "shared.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	err := admin.CreateTenant(ctx, testTenant("t-2", "globex.example", "shared.db"))
	if err != ErrDuplicateStoreID {
		t.Errorf("expected ErrDuplicateStoreID, got %v", err)
	}
}

func TestResolveByEmail(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	if err := admin.CreateTenant(ctx, testTenant("t-1", "acme.example", "acme.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	// All of these address the same tenant.
	for _, email := range []string{
		"alice@acme.example",
		"Alice@ACME.Example",
		"  bob@acme.example  ",
	} {
		got, err := admin.ResolveByEmail(ctx, email)
		if err != nil {
			t.Errorf("ResolveByEmail(%q) failed: %v", email, err)
			continue
		}
		if got.ID != "t-1" {
			t.Errorf("ResolveByEmail(%q) = tenant %q, want t-1", email, got.ID)
		}
	}
}

func TestResolveByEmail_UnknownDomain(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()

	if _, err := admin.ResolveByEmail(context.Background(), "x@nowhere.example"); err != ErrTenantNotFound {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestResolveByEmail_Malformed(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	for _, email := range []string{"", "no-at-sign", "trailing@"} {
		if _, err := admin.ResolveByEmail(ctx, email); err != ErrTenantNotFound {
			t.Errorf("ResolveByEmail(%q): expected ErrTenantNotFound, got %v", email, err)
		}
	}
}

func TestUpdateTenantStatus(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	if err := admin.CreateTenant(ctx, testTenant("t-1", "acme.example", "acme.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	if err := admin.UpdateTenantStatus(ctx, "t-1", TenantSuspended); err != nil {
		t.Fatalf("UpdateTenantStatus failed: %v", err)
	}

	got, err := admin.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if got.Status != TenantSuspended {
		t.Errorf("Status = %q, want %q", got.Status, TenantSuspended)
	}
}

func TestUpdateTenantStatus_NotFound(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()

	err := admin.UpdateTenantStatus(context.Background(), "nonexistent", TenantSuspended)
	if err != ErrTenantNotFound {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestUpdateTenantModules(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	tenant := testTenant("t-1", "acme.example", "acme.db")
	if err := admin.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	// Fresh tenant has no allow-list: everything enabled.
	got, _ := admin.GetTenant(ctx, "t-1")
	if !got.ModuleEnabled("inventory") {
		t.Error("nil allow-list should enable every module")
	}

	if err := admin.UpdateTenantModules(ctx, "t-1", []string{"work_orders"}); err != nil {
		t.Fatalf("UpdateTenantModules failed: %v", err)
	}

	got, err := admin.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if !got.ModuleEnabled("work_orders") {
		t.Error("listed module should be enabled")
	}
	if got.ModuleEnabled("inventory") {
		t.Error("unlisted module should be disabled")
	}

	// Nil clears the allow-list back to all-enabled.
	if err := admin.UpdateTenantModules(ctx, "t-1", nil); err != nil {
		t.Fatalf("UpdateTenantModules(nil) failed: %v", err)
	}
	got, _ = admin.GetTenant(ctx, "t-1")
	if !got.ModuleEnabled("inventory") {
		t.Error("cleared allow-list should enable every module")
	}
}

func TestUpdateTenantModules_EmptyMeansAllEnabled(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	tenant := testTenant("t-1", "acme.example", "acme.db")
	tenant.EnabledModules = []string{"inventory"}
	if err := admin.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	// An empty (non-nil) slice must read back the same as no allow-list at
	// all, so clients sending [] and clients sending null agree.
	if err := admin.UpdateTenantModules(ctx, "t-1", []string{}); err != nil {
		t.Fatalf("UpdateTenantModules([]) failed: %v", err)
	}

	got, err := admin.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTenant failed: %v", err)
	}
	if got.EnabledModules != nil {
		t.Errorf("empty allow-list should be stored as NULL, got %v", got.EnabledModules)
	}
	if !got.ModuleEnabled("work_orders") {
		t.Error("empty allow-list should enable every module")
	}

	// The check holds for in-memory tenants too, before any round trip.
	empty := &Tenant{EnabledModules: []string{}}
	if !empty.ModuleEnabled("inventory") {
		t.Error("non-nil empty allow-list should enable every module")
	}
}

func TestSoftDeleteTenant(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	if err := admin.CreateTenant(ctx, testTenant("t-1", "acme.example", "acme.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}

	deletedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := admin.SoftDeleteTenant(ctx, "t-1", deletedAt); err != nil {
		t.Fatalf("SoftDeleteTenant failed: %v", err)
	}

	got, err := admin.GetTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("registry row should survive soft delete: %v", err)
	}
	if got.Status != TenantDeleted {
		t.Errorf("Status = %q, want %q", got.Status, TenantDeleted)
	}
	if got.DeletedAt == nil || !got.DeletedAt.Equal(deletedAt) {
		t.Errorf("DeletedAt = %v, want %v", got.DeletedAt, deletedAt)
	}
}

func TestListPurgeable(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		id        string
		domain    string
		storeID   string
		deletedAt *time.Time
	}{
		{"t-old", "old.example", "old.db", timePtr(now.AddDate(0, 0, -40))},
		{"t-recent", "recent.example", "recent.db", timePtr(now.AddDate(0, 0, -10))},
		{"t-live", "live.example", "live.db", nil},
	} {
		tenant := testTenant(tc.id, tc.domain, tc.storeID)
		if err := admin.CreateTenant(ctx, tenant); err != nil {
			t.Fatalf("CreateTenant(%s) failed: %v", tc.id, err)
		}
		if tc.deletedAt != nil {
			if err := admin.SoftDeleteTenant(ctx, tc.id, *tc.deletedAt); err != nil {
				t.Fatalf("SoftDeleteTenant(%s) failed: %v", tc.id, err)
			}
		}
	}

	cutoff := now.AddDate(0, 0, -30)
	purgeable, err := admin.ListPurgeable(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListPurgeable failed: %v", err)
	}

	if len(purgeable) != 1 {
		t.Fatalf("ListPurgeable returned %d tenants, want 1", len(purgeable))
	}
	if purgeable[0].ID != "t-old" {
		t.Errorf("purgeable tenant = %q, want t-old", purgeable[0].ID)
	}
}

func TestListTenants_IncludesDeleted(t *testing.T) {
	admin := newTestAdmin(t)
	defer admin.Close()
	ctx := context.Background()

	if err := admin.CreateTenant(ctx, testTenant("t-1", "acme.example", "acme.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	if err := admin.CreateTenant(ctx, testTenant("t-2", "globex.example", "globex.db")); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	if err := admin.SoftDeleteTenant(ctx, "t-2", time.Now().UTC()); err != nil {
		t.Fatalf("SoftDeleteTenant failed: %v", err)
	}

	tenants, err := admin.ListTenants(ctx)
	if err != nil {
		t.Fatalf("ListTenants failed: %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("ListTenants returned %d tenants, want 2", len(tenants))
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
