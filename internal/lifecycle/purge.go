// ABOUTME: Purge job: hard deletion of soft-deleted tenant stores after retention
// ABOUTME: Registry rows are never removed; only the store file is deleted

package lifecycle

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/wrenchworks/wrenchd/internal/store"
)

// PurgeReport summarizes one purge run.
type PurgeReport struct {
	Purged  []string // tenant IDs whose store files were removed
	Skipped []string // tenant IDs protected from purge (default store)
	Failed  []string // tenant IDs whose file delete failed
}

// Purge hard-deletes the store files of tenants that were soft-deleted
// longer ago than the retention window. For each candidate the cache entry
// is evicted first (a no-op if already evicted), then the file is removed
// if still present. The default bootstrap store is never purged and the
// tenant registry row always remains, with status still deleted, so the
// audit trail survives. A failure on one tenant does not abort the batch.
func (m *Manager) Purge(ctx context.Context) (*PurgeReport, error) {
	cutoff := m.now().Add(-m.retention)

	candidates, err := m.admin.ListPurgeable(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &PurgeReport{}
	for _, tenant := range candidates {
		if tenant.StoreID == m.defaultStoreID {
			report.Skipped = append(report.Skipped, tenant.ID)
			continue
		}

		// Evict before delete: the file must not go away under an open
		// handle.
		if err := m.cache.Evict(tenant.StoreID); err != nil {
			m.logger.Error("evicting store during purge", "tenant", tenant.ID, "error", err)
			report.Failed = append(report.Failed, tenant.ID)
			continue
		}

		path := m.cache.Path(tenant.StoreID)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Error("deleting store file", "tenant", tenant.ID, "path", path, "error", err)
			report.Failed = append(report.Failed, tenant.ID)
			continue
		}
		// WAL sidecar files go with the store.
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
				m.logger.Warn("deleting store sidecar", "tenant", tenant.ID, "error", err)
			}
		}

		m.logger.Info("purged tenant store", "tenant", tenant.ID, "store_id", tenant.StoreID)
		m.auditPurge(ctx, tenant.ID, tenant.StoreID)
		report.Purged = append(report.Purged, tenant.ID)
	}

	if m.metrics != nil && len(report.Purged) > 0 {
		m.metrics.TenantsPurged(len(report.Purged))
	}
	return report, nil
}

func (m *Manager) auditPurge(ctx context.Context, tenantID, storeID string) {
	m.audit(ctx, "", store.AuditPurgeTenant, tenantID, map[string]any{
		"store_id": storeID,
	})
}
