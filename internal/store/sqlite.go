// ABOUTME: SQLite handle management using modernc.org/sqlite
// ABOUTME: Opens store files with WAL mode and runs the migration sequence

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Handle wraps one open SQLite store file. Route handlers receive a Handle
// from the cache and issue queries through it; they never open files
// themselves.
type Handle struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// openHandle opens (creating if absent) the store file at path and applies
// the given migration sequence. Parent directories are created if needed.
// On any failure the underlying connection is closed before returning, so a
// half-open handle is never observable.
func openHandle(ctx context.Context, path string, migrations []Migration) (*Handle, error) {
	logger := slog.Default().With("component", "store", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite is single-writer, and connection pragmas (foreign_keys in
	// particular) apply per connection. One pooled connection keeps every
	// statement, including the rebuild sequence, on the connection the
	// pragmas were set on.
	db.SetMaxOpenConns(1)

	// WAL mode for concurrent readers
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	h := &Handle{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := ApplyAll(ctx, h, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	return h, nil
}

// Path returns the filesystem path of the store file.
func (h *Handle) Path() string {
	return h.path
}

// DB exposes the underlying connection for query building in route handlers.
func (h *Handle) DB() *sql.DB {
	return h.db
}

// Exec executes a statement against the store.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.db.ExecContext(ctx, query, args...)
}

// Query runs a query returning rows.
func (h *Handle) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a query expected to return at most one row.
func (h *Handle) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return h.db.QueryRowContext(ctx, query, args...)
}

// Close flushes the WAL back into the main store file and closes the
// connection. Must complete before the file is deleted or moved.
func (h *Handle) Close() error {
	if _, err := h.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		h.logger.Warn("wal checkpoint failed on close", "error", err)
	}
	return h.db.Close()
}

// AdminStore is the single cross-tenant store: tenant registry, platform
// users, and the audit log. It implements the Registry, Users and Audit
// interfaces.
type AdminStore struct {
	h      *Handle
	logger *slog.Logger
}

// NewAdminStore opens the admin store at path and applies both the shared
// migration sequence and the admin-only sequence. The process must not
// accept traffic until this returns.
func NewAdminStore(ctx context.Context, path string) (*AdminStore, error) {
	h, err := openHandle(ctx, path, Migrations())
	if err != nil {
		return nil, err
	}

	if err := ApplyAll(ctx, h, AdminMigrations()); err != nil {
		h.Close()
		return nil, fmt.Errorf("migrating admin store: %w", err)
	}

	logger := slog.Default().With("component", "admin-store")
	logger.Info("admin store initialized", "path", path)

	return &AdminStore{h: h, logger: logger}, nil
}

// Handle returns the admin store's own handle. The admin store is never
// addressable through the tenant resolution path.
func (s *AdminStore) Handle() *Handle {
	return s.h
}

// Close closes the admin store handle.
func (s *AdminStore) Close() error {
	return s.h.Close()
}

// Ensure AdminStore implements the store interfaces.
var (
	_ Registry = (*AdminStore)(nil)
	_ Users    = (*AdminStore)(nil)
)
