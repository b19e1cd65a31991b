// Package store provides persistent storage for wrenchd using SQLite.
//
// # Architecture
//
// One process owns one data directory of SQLite files: a single admin store
// (tenant registry, platform users, audit log) plus one store file per
// tenant holding that tenant's business data. Three pieces cooperate:
//
//   - Handle: a thin wrapper around one open store file
//   - Cache: lazy-opening map from store identifier to Handle, with
//     single-flight opens and explicit eviction
//   - Migration: ordered, idempotent schema-change units applied to every
//     store so all stores share one shape
//
// AdminStore implements the Registry and Users interfaces on top of its own
// Handle. The admin store is opened eagerly at bootstrap; tenant stores are
// opened on first touch through the Cache.
//
// # Migrations
//
// There is no ledger of applied units. Each unit detects its own
// already-applied state: CREATE ... IF NOT EXISTS for tables and indexes,
// pragma_table_info checks before ALTER TABLE ADD COLUMN, row-count guards
// before seeding, and WHERE clauses that touch only rows still missing a
// backfilled value. Destructive changes (relaxing NOT NULL, widening a
// CHECK) go through rebuildTable, which guarantees foreign key enforcement
// is re-enabled even when the copy fails.
//
// A unit that fails for any unrecognized reason aborts the run for that
// store. The platform isolates such failures per tenant; an admin store
// failure aborts startup.
//
// # SQLite Configuration
//
// Every store is opened with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Sentinel errors: ErrNotFound, ErrTenantNotFound, ErrDuplicateDomain,
// ErrDuplicateStoreID, ErrDuplicateEmail, ErrStoreUnavailable. All methods
// accept context.Context.
package store
