// Package lifecycle enforces tenant status and license rules for wrenchd.
//
// # Authentication Gate
//
// Authorize applies the checks in a fixed order for every tenant login:
//
//  1. Resolve the email domain to a tenant; unknown and deleted tenants
//     are rejected identically (ErrTenantUnavailable).
//  2. Evaluate the license window against the current time. Expiry is
//     always computed from license_start/license_end; the stored status
//     field is never consulted for it, so a tenant whose status still
//     says "active" is rejected once its window passes.
//  3. Reject suspended tenants.
//
// Callers in the login path collapse all three rejections into one generic
// failure so registered domains and account states cannot be probed.
//
// # Deletion Model
//
// Deletion is two-phase:
//
//   - SoftDelete marks the registry row deleted, stamps deleted_at, and
//     evicts the open store handle. The store file stays on disk.
//   - Purge, run out-of-band, hard-deletes store files whose deleted_at
//     is older than the retention window (default 30 days, overridable
//     with WRENCH_RETENTION_DAYS). Registry rows are never removed, and
//     the default bootstrap store is never purged.
//
// Provision is the inverse: registry row first, then the store file is
// created and migrated through the cache so a brand-new store immediately
// matches the schema of long-lived ones.
package lifecycle
